package approval

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/loreweave/backend/pkg/graph"
	"github.com/loreweave/backend/pkg/store"
)

type fakeStore struct {
	mu       sync.Mutex
	entities map[string]graph.Entity
	edges    []store.UpsertEdgeParams
}

func newFakeStore(entities ...graph.Entity) *fakeStore {
	s := &fakeStore{entities: map[string]graph.Entity{}}
	for _, e := range entities {
		s.entities[e.ID] = e
	}
	return s
}

func (s *fakeStore) GetEntityByID(_ context.Context, id string) (graph.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return graph.Entity{}, fmt.Errorf("entity %s: %w", id, graph.ErrNotFound)
	}
	return e, nil
}

func (s *fakeStore) transition(id string, status graph.ShardStatus) (graph.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok || e.Status != graph.ShardStatusStaging {
		return graph.Entity{}, fmt.Errorf("entity %s: %w", id, graph.ErrNotFound)
	}
	pending := e.PendingRelations
	e.Status = status
	e.PendingRelations = nil
	s.entities[id] = e
	e.PendingRelations = pending
	return e, nil
}

func (s *fakeStore) ApproveEntity(_ context.Context, id string) (graph.Entity, error) {
	return s.transition(id, graph.ShardStatusApproved)
}

func (s *fakeStore) RejectEntity(_ context.Context, id string, _ string) (graph.Entity, error) {
	return s.transition(id, graph.ShardStatusRejected)
}

func (s *fakeStore) UpsertEdge(_ context.Context, params store.UpsertEdgeParams) ([]graph.Relation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if params.FromEntityID == params.ToEntityID && !params.AllowSelfRelation {
		return nil, fmt.Errorf("self-relation: %w", graph.ErrValidation)
	}
	target, ok := s.entities[params.ToEntityID]
	if !ok {
		return nil, fmt.Errorf("target: %w", graph.ErrNotFound)
	}
	if target.CampaignID != params.CampaignID {
		return nil, fmt.Errorf("target: %w", graph.ErrCrossCampaign)
	}
	s.edges = append(s.edges, params)
	return []graph.Relation{{FromEntityID: params.FromEntityID, ToEntityID: params.ToEntityID}}, nil
}

func (s *fakeStore) CountStagingEntities(_ context.Context, campaignID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.entities {
		if e.CampaignID == campaignID && e.Status == graph.ShardStatusStaging {
			n++
		}
	}
	return n, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	calls    int
	approved int
	drained  bool
}

func (n *fakeNotifier) RecordApprovals(_ context.Context, _ int64, approved int, drained bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.approved = approved
	n.drained = drained
}

func staged(id string, campaignID int64, pending ...graph.PendingRelation) graph.Entity {
	return graph.Entity{
		ID:               id,
		CampaignID:       campaignID,
		Name:             id,
		EntityType:       "character",
		Status:           graph.ShardStatusStaging,
		PendingRelations: pending,
	}
}

func strengthOf(v float64) *float64 { return &v }

func TestApproveBatchMaterializesPendingRelations(t *testing.T) {
	st := newFakeStore(
		staged("hero", 1, graph.PendingRelation{TargetID: "keep", Type: "allied_with", Strength: strengthOf(0.8)}),
		staged("keep", 1),
	)
	n := &fakeNotifier{}
	w := NewWorkflow(st, n)

	res, err := w.ApproveBatch(context.Background(), 1, []string{"hero", "keep"})
	if err != nil {
		t.Fatalf("ApproveBatch: %v", err)
	}
	if res.Approved != 2 {
		t.Errorf("approved = %d, want 2", res.Approved)
	}
	if res.Relationships != 1 {
		t.Errorf("relationships = %d, want 1", res.Relationships)
	}
	if len(res.Skipped) != 0 {
		t.Errorf("skipped = %v, want none", res.Skipped)
	}
	if len(st.edges) != 1 || st.edges[0].Ignored || st.edges[0].Rejected {
		t.Errorf("edges = %+v, want one live edge", st.edges)
	}
	if st.entities["hero"].Status != graph.ShardStatusApproved {
		t.Errorf("hero status = %s, want approved", st.entities["hero"].Status)
	}
	if st.entities["hero"].PendingRelations != nil {
		t.Error("pending relations not cleared after approval")
	}
	if n.calls != 1 || n.approved != 2 || !n.drained {
		t.Errorf("notifier = %+v, want one call with 2 approvals and drained staging", n)
	}
}

func TestApproveBatchPartialSuccess(t *testing.T) {
	st := newFakeStore(
		staged("ok", 1),
		staged("other", 2),
		graph.Entity{ID: "done", CampaignID: 1, Status: graph.ShardStatusApproved},
	)
	w := NewWorkflow(st, nil)

	res, err := w.ApproveBatch(context.Background(), 1, []string{"ok", "other", "done", "ghost"})
	if err != nil {
		t.Fatalf("ApproveBatch: %v", err)
	}
	if res.Approved != 1 {
		t.Errorf("approved = %d, want 1", res.Approved)
	}
	wantSkips := map[string]string{
		"done":  "not in staging",
		"ghost": "not found",
		"other": "belongs to another campaign",
	}
	if len(res.Skipped) != len(wantSkips) {
		t.Fatalf("skipped = %v, want %d entries", res.Skipped, len(wantSkips))
	}
	for _, s := range res.Skipped {
		if wantSkips[s.EntityID] != s.Reason {
			t.Errorf("skip %s: reason = %q, want %q", s.EntityID, s.Reason, wantSkips[s.EntityID])
		}
	}
}

func TestApproveBatchDropsBadPendingRelations(t *testing.T) {
	st := newFakeStore(
		staged("hero", 1,
			graph.PendingRelation{TargetID: "ghost", Type: "knows"},
			graph.PendingRelation{TargetID: "hero", Type: "knows"},
			graph.PendingRelation{TargetID: "foreign", Type: "knows"},
			graph.PendingRelation{TargetID: "keep", Type: "knows"},
		),
		staged("keep", 1),
		staged("foreign", 2),
	)
	w := NewWorkflow(st, nil)

	res, err := w.ApproveBatch(context.Background(), 1, []string{"hero"})
	if err != nil {
		t.Fatalf("ApproveBatch: %v", err)
	}
	if res.Approved != 1 {
		t.Errorf("approved = %d, want 1", res.Approved)
	}
	if res.Relationships != 1 {
		t.Errorf("relationships = %d, want 1 (only the valid target)", res.Relationships)
	}
	if len(st.edges) != 1 || st.edges[0].ToEntityID != "keep" {
		t.Errorf("edges = %+v, want one edge to keep", st.edges)
	}
}

func TestRejectBatchTagsEdgesIgnored(t *testing.T) {
	st := newFakeStore(
		staged("villain", 1, graph.PendingRelation{TargetID: "lair", Type: "located_in"}),
		staged("lair", 1),
	)
	n := &fakeNotifier{}
	w := NewWorkflow(st, n)

	res, err := w.RejectBatch(context.Background(), 1, []string{"villain"}, "duplicate")
	if err != nil {
		t.Fatalf("RejectBatch: %v", err)
	}
	if res.Rejected != 1 {
		t.Errorf("rejected = %d, want 1", res.Rejected)
	}
	if len(st.edges) != 1 {
		t.Fatalf("edges = %+v, want 1", st.edges)
	}
	edge := st.edges[0]
	if !edge.Ignored || !edge.Rejected || edge.RejectionReason != "duplicate" {
		t.Errorf("edge flags = %+v, want ignored+rejected with reason", edge)
	}
	if st.entities["villain"].Status != graph.ShardStatusRejected {
		t.Errorf("status = %s, want rejected", st.entities["villain"].Status)
	}
	// lair is still staged, so the scheduler must not see a drained campaign.
	if n.calls != 1 || n.drained {
		t.Errorf("notifier = %+v, want one call with staging not drained", n)
	}
}

func TestBatchDeduplicatesIDs(t *testing.T) {
	st := newFakeStore(staged("hero", 1))
	w := NewWorkflow(st, nil)

	res, err := w.ApproveBatch(context.Background(), 1, []string{"hero", "hero", "hero"})
	if err != nil {
		t.Fatalf("ApproveBatch: %v", err)
	}
	if res.Approved != 1 || len(res.Skipped) != 0 {
		t.Errorf("result = %+v, want exactly one approval and no skips", res)
	}
}
