package community

import (
	"context"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/loreweave/backend/pkg/graph"
	"github.com/loreweave/backend/pkg/rebuild"
	"github.com/loreweave/backend/pkg/store"
)

func strength(v float64) *float64 { return &v }

func membershipSets(communities []graph.Community, level int) [][]string {
	var sets [][]string
	for _, c := range communities {
		if c.Level != level {
			continue
		}
		members := append([]string(nil), c.EntityIDs...)
		sort.Strings(members)
		sets = append(sets, members)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i][0] < sets[j][0] })
	return sets
}

func TestDetectTwoComponents(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f"}
	edges := []InputEdge{
		{"a", "b", 1}, {"b", "c", 1}, {"a", "c", 1},
		{"d", "e", 1}, {"e", "f", 1}, {"d", "f", 1},
		{"c", "d", 1},
	}
	communities := Detect(1, ids, edges, Options{})

	got := membershipSets(communities, 0)
	want := [][]string{{"a", "b", "c"}, {"d", "e", "f"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("level 0 = %v, want %v", got, want)
	}
	for _, c := range communities {
		if c.CampaignID != 1 {
			t.Errorf("community %s campaign = %d, want 1", c.ID, c.CampaignID)
		}
		if c.RunID != communities[0].RunID {
			t.Errorf("community %s has run id %s, want a single run id", c.ID, c.RunID)
		}
		if len(c.EntityIDs) == 0 {
			t.Errorf("community %s has no members", c.ID)
		}
	}
}

func TestDetectHierarchyContainment(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f"}
	edges := []InputEdge{
		{"a", "b", 1}, {"b", "c", 1}, {"a", "c", 1},
		{"d", "e", 1}, {"e", "f", 1}, {"d", "f", 1},
		{"c", "d", 1},
	}
	communities := Detect(1, ids, edges, Options{})

	byID := map[string]graph.Community{}
	maxLevel := 0
	for _, c := range communities {
		byID[c.ID] = c
		if c.Level > maxLevel {
			maxLevel = c.Level
		}
	}

	for _, c := range communities {
		if c.Level == maxLevel {
			if c.ParentID != "" {
				t.Errorf("top-level community %s has parent %s", c.ID, c.ParentID)
			}
			continue
		}
		parent, ok := byID[c.ParentID]
		if !ok {
			t.Fatalf("community %s references missing parent %s", c.ID, c.ParentID)
		}
		if parent.Level != c.Level+1 {
			t.Errorf("parent of level-%d community is level %d", c.Level, parent.Level)
		}
		parentMembers := map[string]bool{}
		for _, id := range parent.EntityIDs {
			parentMembers[id] = true
		}
		for _, id := range c.EntityIDs {
			if !parentMembers[id] {
				t.Errorf("entity %s in %s missing from parent %s", id, c.ID, parent.ID)
			}
		}
	}

	// Every entity sits in exactly one community per level.
	for lvl := 0; lvl <= maxLevel; lvl++ {
		counts := map[string]int{}
		for _, c := range communities {
			if c.Level != lvl {
				continue
			}
			for _, id := range c.EntityIDs {
				counts[id]++
			}
		}
		for _, id := range ids {
			if counts[id] != 1 {
				t.Errorf("level %d: entity %s appears %d times", lvl, id, counts[id])
			}
		}
	}
}

func TestDetectIsolatedSingleton(t *testing.T) {
	communities := Detect(1, []string{"alone"}, nil, Options{})
	if len(communities) != 1 {
		t.Fatalf("communities = %v, want one singleton", communities)
	}
	c := communities[0]
	if c.Level != 0 || !reflect.DeepEqual(c.EntityIDs, []string{"alone"}) {
		t.Errorf("community = %+v, want level-0 singleton of alone", c)
	}
}

func TestDetectEmptyInput(t *testing.T) {
	if got := Detect(1, nil, nil, Options{}); got != nil {
		t.Errorf("Detect on empty input = %v, want nil", got)
	}
}

func TestUndirectedCollapsesBidirectionalPairs(t *testing.T) {
	relations := []graph.Relation{
		{FromEntityID: "a", ToEntityID: "b", Type: "allied_with", Strength: strength(0.8)},
		{FromEntityID: "b", ToEntityID: "a", Type: "allied_with", Strength: strength(0.8)},
		{FromEntityID: "a", ToEntityID: "b", Type: "owns", Strength: strength(0.5)},
		{FromEntityID: "c", ToEntityID: "d", Type: "knows"},
	}
	got := undirected(relations)
	want := []InputEdge{
		{From: "a", To: "b", Weight: 0.8},
		{From: "a", To: "b", Weight: 0.5},
		{From: "c", To: "d", Weight: 1.0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("undirected = %v, want %v", got, want)
	}
}

func TestAffectedComponent(t *testing.T) {
	ids := []string{"a", "b", "c", "x", "y", "lone"}
	edges := []InputEdge{
		{From: "a", To: "b", Weight: 1},
		{From: "b", To: "c", Weight: 1},
		{From: "x", To: "y", Weight: 1},
	}
	scope := affectedComponent(ids, edges, []string{"a", "ghost"})
	want := map[string]bool{"a": true, "b": true, "c": true}
	if !reflect.DeepEqual(scope, want) {
		t.Errorf("scope = %v, want %v", scope, want)
	}
}

// engineStore is an in-memory Store for rebuild orchestration tests.
type engineStore struct {
	entities    []graph.Entity
	relations   []graph.Relation
	state       store.ImpactState
	touched     []string
	edgeTouched []string
	existing    map[string][]string // community id -> entity ids

	replacedScope []string
	replacedWith  []graph.Community
	replaceCalls  int
	resetCalls    int
}

func (s *engineStore) ApprovedSubgraph(context.Context, int64) ([]graph.Entity, []graph.Relation, error) {
	return s.entities, s.relations, nil
}

func (s *engineStore) EntitiesApprovedSince(context.Context, int64, time.Time) ([]string, error) {
	return s.touched, nil
}

func (s *engineStore) RelationEndpointsChangedSince(context.Context, int64, time.Time) ([]string, error) {
	return s.edgeTouched, nil
}

func (s *engineStore) CommunitiesContainingEntities(_ context.Context, _ int64, entityIDs []string) ([]string, error) {
	asked := map[string]bool{}
	for _, id := range entityIDs {
		asked[id] = true
	}
	var out []string
	for cid, members := range s.existing {
		for _, m := range members {
			if asked[m] {
				out = append(out, cid)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *engineStore) ReplaceCommunities(_ context.Context, _ int64, supersededIDs []string, communities []graph.Community) error {
	s.replaceCalls++
	s.replacedScope = supersededIDs
	s.replacedWith = communities
	return nil
}

func (s *engineStore) RebuildState(context.Context, int64) (store.ImpactState, error) {
	return s.state, nil
}

func (s *engineStore) ResetImpact(context.Context, int64) error {
	s.resetCalls++
	return nil
}

func approved(id string, campaignID int64) graph.Entity {
	return graph.Entity{ID: id, CampaignID: campaignID, Status: graph.ShardStatusApproved}
}

func TestRebuildFullReplacesEverything(t *testing.T) {
	st := &engineStore{
		entities: []graph.Entity{approved("a", 1), approved("b", 1)},
		relations: []graph.Relation{
			{FromEntityID: "a", ToEntityID: "b", Type: "allied_with", Strength: strength(0.9)},
		},
	}
	e := NewEngine(st, Options{})

	if err := e.Rebuild(context.Background(), 1, rebuild.ActionFull); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if st.replacedScope != nil {
		t.Errorf("scope = %v, want nil (full replace)", st.replacedScope)
	}
	if got := membershipSets(st.replacedWith, 0); !reflect.DeepEqual(got, [][]string{{"a", "b"}}) {
		t.Errorf("level 0 = %v, want [[a b]]", got)
	}
	if st.resetCalls != 1 {
		t.Errorf("resetCalls = %d, want 1", st.resetCalls)
	}
}

func TestRebuildPartialOnlyTouchedComponent(t *testing.T) {
	last := time.Now().Add(-time.Hour)
	st := &engineStore{
		entities: []graph.Entity{
			approved("a", 1), approved("b", 1),
			approved("x", 1), approved("y", 1),
		},
		relations: []graph.Relation{
			{FromEntityID: "a", ToEntityID: "b", Type: "allied_with"},
			{FromEntityID: "x", ToEntityID: "y", Type: "allied_with"},
		},
		state:   store.ImpactState{CampaignID: 1, ImpactScore: 25, LastRebuildAt: &last},
		touched: []string{"a"},
		existing: map[string][]string{
			"old-ab": {"a", "b"},
			"old-xy": {"x", "y"},
		},
	}
	e := NewEngine(st, Options{})

	if err := e.Rebuild(context.Background(), 1, rebuild.ActionPartial); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if !reflect.DeepEqual(st.replacedScope, []string{"old-ab"}) {
		t.Errorf("superseded = %v, want [old-ab]", st.replacedScope)
	}
	if got := membershipSets(st.replacedWith, 0); !reflect.DeepEqual(got, [][]string{{"a", "b"}}) {
		t.Errorf("level 0 = %v, want [[a b]] only", got)
	}
	if st.resetCalls != 1 {
		t.Errorf("resetCalls = %d, want 1", st.resetCalls)
	}
}

func TestRebuildPartialEdgeOnlyChanges(t *testing.T) {
	last := time.Now().Add(-time.Hour)
	st := &engineStore{
		entities: []graph.Entity{
			approved("a", 1), approved("b", 1),
			approved("x", 1), approved("y", 1),
		},
		relations: []graph.Relation{
			{FromEntityID: "a", ToEntityID: "b", Type: "allied_with"},
			{FromEntityID: "x", ToEntityID: "y", Type: "allied_with"},
		},
		state: store.ImpactState{CampaignID: 1, ImpactScore: 21, LastRebuildAt: &last},
		// No approvals since the last run, only a manually edited edge.
		edgeTouched: []string{"x"},
		existing: map[string][]string{
			"old-ab": {"a", "b"},
			"old-xy": {"x", "y"},
		},
	}
	e := NewEngine(st, Options{})

	if err := e.Rebuild(context.Background(), 1, rebuild.ActionPartial); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if !reflect.DeepEqual(st.replacedScope, []string{"old-xy"}) {
		t.Errorf("superseded = %v, want [old-xy]", st.replacedScope)
	}
	if got := membershipSets(st.replacedWith, 0); !reflect.DeepEqual(got, [][]string{{"x", "y"}}) {
		t.Errorf("level 0 = %v, want [[x y]] only", got)
	}
	if st.resetCalls != 1 {
		t.Errorf("resetCalls = %d, want 1", st.resetCalls)
	}
}

func TestRebuildPartialNothingTouchedKeepsImpact(t *testing.T) {
	last := time.Now().Add(-time.Hour)
	st := &engineStore{
		entities: []graph.Entity{approved("a", 1), approved("b", 1)},
		relations: []graph.Relation{
			{FromEntityID: "a", ToEntityID: "b", Type: "allied_with"},
		},
		state: store.ImpactState{CampaignID: 1, ImpactScore: 25, LastRebuildAt: &last},
	}
	e := NewEngine(st, Options{})

	if err := e.Rebuild(context.Background(), 1, rebuild.ActionPartial); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if st.replaceCalls != 0 {
		t.Errorf("replaceCalls = %d, want 0 (no clustering ran)", st.replaceCalls)
	}
	if st.resetCalls != 0 {
		t.Errorf("resetCalls = %d, want 0 (score must survive an empty window)", st.resetCalls)
	}
}

func TestRebuildPartialWithoutPriorRunFallsBackToFull(t *testing.T) {
	st := &engineStore{
		entities: []graph.Entity{approved("a", 1)},
	}
	e := NewEngine(st, Options{})

	if err := e.Rebuild(context.Background(), 1, rebuild.ActionPartial); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if st.replacedScope != nil {
		t.Errorf("scope = %v, want nil (fell back to full)", st.replacedScope)
	}
	if len(st.replacedWith) != 1 {
		t.Errorf("communities = %v, want one singleton", st.replacedWith)
	}
}
