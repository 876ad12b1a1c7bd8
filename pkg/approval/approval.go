// Package approval runs the staged-entity review workflow: batch approval
// and rejection of extractor-proposed entities, with pending relationship
// materialization and scheduler notification.
package approval

import (
	"context"
	"errors"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/loreweave/backend/pkg/graph"
	"github.com/loreweave/backend/pkg/logger"
	"github.com/loreweave/backend/pkg/store"
)

// batchConcurrency bounds how many entities one batch processes at once.
// Sub-item work is independent, so failures never roll back siblings.
const batchConcurrency = 4

// Store is the slice of the graph store the workflow needs.
type Store interface {
	GetEntityByID(ctx context.Context, entityID string) (graph.Entity, error)
	ApproveEntity(ctx context.Context, entityID string) (graph.Entity, error)
	RejectEntity(ctx context.Context, entityID string, reason string) (graph.Entity, error)
	UpsertEdge(ctx context.Context, params store.UpsertEdgeParams) ([]graph.Relation, error)
	CountStagingEntities(ctx context.Context, campaignID int64) (int64, error)
}

// Notifier receives the outcome of a finished batch. stagingDrained is true
// when the campaign has no staged entities left, which is the scheduler's
// cue to evaluate a rebuild.
type Notifier interface {
	RecordApprovals(ctx context.Context, campaignID int64, approved int, stagingDrained bool)
}

// SkippedEntity explains why one batch item was not processed.
type SkippedEntity struct {
	EntityID string `json:"entity_id"`
	Reason   string `json:"reason"`
}

// BatchResult is a partial-success report. A batch only fails as a whole on
// infrastructure errors, never because individual entities were invalid.
type BatchResult struct {
	Approved      int             `json:"approved_count"`
	Rejected      int             `json:"rejected_count"`
	Relationships int             `json:"relationship_count"`
	Skipped       []SkippedEntity `json:"skipped,omitempty"`
}

type Workflow struct {
	store    Store
	notifier Notifier
}

// NewWorkflow wires the workflow. notifier may be nil when no scheduler is
// attached, for example in the worker binary.
func NewWorkflow(s Store, n Notifier) *Workflow {
	return &Workflow{store: s, notifier: n}
}

// ApproveBatch approves each staged entity and materializes its pending
// relations as live edges. Entities that are missing, belong to another
// campaign or already left staging are skipped and reported, not fatal.
func (w *Workflow) ApproveBatch(ctx context.Context, campaignID int64, entityIDs []string) (BatchResult, error) {
	return w.runBatch(ctx, campaignID, entityIDs, batchItem{
		transition: w.store.ApproveEntity,
		edgeFlags:  func(p *store.UpsertEdgeParams) {},
	})
}

// RejectBatch rejects each staged entity. Pending relations are still
// written so the review trail survives, but tagged ignored and rejected so
// clustering and reads never see them.
func (w *Workflow) RejectBatch(ctx context.Context, campaignID int64, entityIDs []string, reason string) (BatchResult, error) {
	return w.runBatch(ctx, campaignID, entityIDs, batchItem{
		transition: func(ctx context.Context, id string) (graph.Entity, error) {
			return w.store.RejectEntity(ctx, id, reason)
		},
		edgeFlags: func(p *store.UpsertEdgeParams) {
			p.Ignored = true
			p.Rejected = true
			p.RejectionReason = reason
		},
		rejecting: true,
	})
}

type batchItem struct {
	transition func(ctx context.Context, id string) (graph.Entity, error)
	edgeFlags  func(p *store.UpsertEdgeParams)
	rejecting  bool
}

func (w *Workflow) runBatch(ctx context.Context, campaignID int64, entityIDs []string, item batchItem) (BatchResult, error) {
	var (
		mu     sync.Mutex
		result BatchResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)

	for _, entityID := range store.DedupeStrings(entityIDs) {
		g.Go(func() error {
			processed, created, skip := w.processOne(gctx, campaignID, entityID, item)
			mu.Lock()
			defer mu.Unlock()
			if skip != nil {
				result.Skipped = append(result.Skipped, *skip)
				return nil
			}
			if processed {
				if item.rejecting {
					result.Rejected++
				} else {
					result.Approved++
				}
				result.Relationships += created
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResult{}, err
	}

	sort.Slice(result.Skipped, func(i, j int) bool {
		return result.Skipped[i].EntityID < result.Skipped[j].EntityID
	})

	w.notify(ctx, campaignID, result)
	return result, nil
}

func (w *Workflow) processOne(ctx context.Context, campaignID int64, entityID string, item batchItem) (processed bool, created int, skip *SkippedEntity) {
	entity, err := w.store.GetEntityByID(ctx, entityID)
	if errors.Is(err, graph.ErrNotFound) {
		return false, 0, &SkippedEntity{EntityID: entityID, Reason: "not found"}
	}
	if err != nil {
		logger.Error("[Approval] Lookup failed", "entity", entityID, "err", err)
		return false, 0, &SkippedEntity{EntityID: entityID, Reason: "lookup failed"}
	}
	if entity.CampaignID != campaignID {
		return false, 0, &SkippedEntity{EntityID: entityID, Reason: "belongs to another campaign"}
	}
	if entity.Status != graph.ShardStatusStaging {
		return false, 0, &SkippedEntity{EntityID: entityID, Reason: "not in staging"}
	}

	entity, err = item.transition(ctx, entityID)
	if errors.Is(err, graph.ErrNotFound) {
		// Lost the race with another batch.
		return false, 0, &SkippedEntity{EntityID: entityID, Reason: "not in staging"}
	}
	if err != nil {
		logger.Error("[Approval] Transition failed", "entity", entityID, "err", err)
		return false, 0, &SkippedEntity{EntityID: entityID, Reason: "transition failed"}
	}

	created = w.materialize(ctx, entity, item)
	return true, created, nil
}

// materialize turns the entity's pending relations into stored edges.
// Relations whose target is missing, in another campaign or the entity
// itself are dropped with a warning; one bad relation never blocks the
// rest.
func (w *Workflow) materialize(ctx context.Context, entity graph.Entity, item batchItem) int {
	created := 0
	for _, pending := range entity.PendingRelations {
		params := store.UpsertEdgeParams{
			CampaignID:   entity.CampaignID,
			FromEntityID: entity.ID,
			ToEntityID:   pending.TargetID,
			Type:         string(pending.Type),
			Metadata:     pending.Metadata,
		}
		if pending.Strength != nil {
			params.Strength = pending.Strength
		}
		item.edgeFlags(&params)

		relations, err := w.store.UpsertEdge(ctx, params)
		if err != nil {
			logger.Warn("[Approval] Dropping pending relation",
				"entity", entity.ID, "target", pending.TargetID, "type", pending.Type, "err", err)
			continue
		}
		created += len(relations)
	}
	return created
}

func (w *Workflow) notify(ctx context.Context, campaignID int64, result BatchResult) {
	if w.notifier == nil {
		return
	}
	remaining, err := w.store.CountStagingEntities(ctx, campaignID)
	if err != nil {
		logger.Warn("[Approval] Staging count failed, assuming staging is not drained",
			"campaign_id", campaignID, "err", err)
		remaining = -1
	}
	w.notifier.RecordApprovals(ctx, campaignID, result.Approved, remaining == 0)
}
