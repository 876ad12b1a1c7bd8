package community

import (
	"context"
	"fmt"
	"sort"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/loreweave/backend/pkg/graph"
	"github.com/loreweave/backend/pkg/logger"
	"github.com/loreweave/backend/pkg/rebuild"
	"github.com/loreweave/backend/pkg/store"
)

const (
	// defaultEdgeWeight applies when a relation carries no strength.
	defaultEdgeWeight = 1.0

	defaultMaxSweeps = 20
	defaultMaxLevels = 50
)

// Store is the slice of the graph store the engine reads and writes.
type Store interface {
	ApprovedSubgraph(ctx context.Context, campaignID int64) ([]graph.Entity, []graph.Relation, error)
	EntitiesApprovedSince(ctx context.Context, campaignID int64, since time.Time) ([]string, error)
	RelationEndpointsChangedSince(ctx context.Context, campaignID int64, since time.Time) ([]string, error)
	CommunitiesContainingEntities(ctx context.Context, campaignID int64, entityIDs []string) ([]string, error)
	ReplaceCommunities(ctx context.Context, campaignID int64, supersededIDs []string, communities []graph.Community) error
	RebuildState(ctx context.Context, campaignID int64) (store.ImpactState, error)
	ResetImpact(ctx context.Context, campaignID int64) error
}

type Options struct {
	MaxSweeps int
	MaxLevels int
}

func (o Options) withDefaults() Options {
	if o.MaxSweeps <= 0 {
		o.MaxSweeps = defaultMaxSweeps
	}
	if o.MaxLevels <= 0 {
		o.MaxLevels = defaultMaxLevels
	}
	return o
}

type Engine struct {
	store Store
	opts  Options
}

func NewEngine(s Store, opts Options) *Engine {
	return &Engine{store: s, opts: opts.withDefaults()}
}

// Rebuild recomputes the community hierarchy for a campaign and resets the
// accumulated impact score once clustering actually ran. A partial rebuild
// falls back to a full one when the campaign was never clustered before; a
// partial rebuild that finds nothing touched keeps the score, so the
// mutations behind it still count towards the next evaluation.
func (e *Engine) Rebuild(ctx context.Context, campaignID int64, mode rebuild.Action) error {
	start := time.Now()
	clustered := true
	var err error
	switch mode {
	case rebuild.ActionPartial:
		clustered, err = e.rebuildPartial(ctx, campaignID)
	default:
		err = e.rebuildFull(ctx, campaignID)
	}
	if err != nil {
		return err
	}
	if !clustered {
		logger.Debug("[Community] Nothing touched since last rebuild, keeping impact",
			"campaign_id", campaignID)
		return nil
	}
	if err := e.store.ResetImpact(ctx, campaignID); err != nil {
		return fmt.Errorf("resetting impact after rebuild: %w", err)
	}
	logger.Info("[Community] Rebuild finished",
		"campaign_id", campaignID, "mode", mode, "duration", time.Since(start))
	return nil
}

func (e *Engine) rebuildFull(ctx context.Context, campaignID int64) error {
	entities, relations, err := e.store.ApprovedSubgraph(ctx, campaignID)
	if err != nil {
		return err
	}
	communities := Detect(campaignID, entityIDs(entities), undirected(relations), e.opts)
	return e.store.ReplaceCommunities(ctx, campaignID, nil, communities)
}

// rebuildPartial re-clusters only the connected components containing
// entities mutated since the last rebuild: newly approved ones plus the
// endpoints of edges written by manual graph editing. Communities wholly
// outside those components keep their identifiers. Returns false when the
// touched window is empty and no clustering ran.
func (e *Engine) rebuildPartial(ctx context.Context, campaignID int64) (bool, error) {
	state, err := e.store.RebuildState(ctx, campaignID)
	if err != nil {
		return false, err
	}
	if state.LastRebuildAt == nil {
		return true, e.rebuildFull(ctx, campaignID)
	}

	approvedIDs, err := e.store.EntitiesApprovedSince(ctx, campaignID, *state.LastRebuildAt)
	if err != nil {
		return false, err
	}
	endpointIDs, err := e.store.RelationEndpointsChangedSince(ctx, campaignID, *state.LastRebuildAt)
	if err != nil {
		return false, err
	}
	touched := store.DedupeStrings(append(approvedIDs, endpointIDs...))
	if len(touched) == 0 {
		return false, nil
	}

	entities, relations, err := e.store.ApprovedSubgraph(ctx, campaignID)
	if err != nil {
		return false, err
	}
	ids := entityIDs(entities)
	edges := undirected(relations)

	scope := affectedComponent(ids, edges, touched)
	scopedIDs := make([]string, 0, len(scope))
	for _, id := range ids {
		if scope[id] {
			scopedIDs = append(scopedIDs, id)
		}
	}
	scopedEdges := make([]InputEdge, 0, len(edges))
	for _, e := range edges {
		if scope[e.From] && scope[e.To] {
			scopedEdges = append(scopedEdges, e)
		}
	}

	superseded, err := e.store.CommunitiesContainingEntities(ctx, campaignID, scopedIDs)
	if err != nil {
		return false, err
	}
	if superseded == nil {
		superseded = []string{}
	}

	communities := Detect(campaignID, scopedIDs, scopedEdges, e.opts)
	return true, e.store.ReplaceCommunities(ctx, campaignID, superseded, communities)
}

// entityIDs collects the public ids of the given entities, in order.
func entityIDs(entities []graph.Entity) []string {
	ids := make([]string, 0, len(entities))
	for _, ent := range entities {
		ids = append(ids, ent.ID)
	}
	return ids
}

// InputEdge is one undirected clustering input edge between entity public
// ids.
type InputEdge struct {
	From, To string
	Weight   float64
}

// undirected collapses stored relations into clustering input. The two
// rows of a synthesized bidirectional pair fold into a single undirected
// edge instead of counting twice; distinct relation types between the same
// entities keep their own weight contributions.
func undirected(relations []graph.Relation) []InputEdge {
	type key struct {
		lo, hi, typ string
	}
	weights := map[key]float64{}
	order := []key{}
	for _, r := range relations {
		w := defaultEdgeWeight
		if r.Strength != nil {
			w = *r.Strength
		}
		lo, hi := r.FromEntityID, r.ToEntityID
		if lo > hi {
			lo, hi = hi, lo
		}
		k := key{lo: lo, hi: hi, typ: string(r.Type)}
		if prev, ok := weights[k]; !ok {
			weights[k] = w
			order = append(order, k)
		} else if w > prev {
			weights[k] = w
		}
	}

	edges := make([]InputEdge, 0, len(order))
	for _, k := range order {
		edges = append(edges, InputEdge{From: k.lo, To: k.hi, Weight: weights[k]})
	}
	return edges
}

// Detect clusters the given entities and returns the full community
// hierarchy, parent links included. Every community carries its complete
// entity membership, so a level-1 community lists the union of its
// children's entities. Empty input yields an empty result.
func Detect(campaignID int64, ids []string, edges []InputEdge, opts Options) []graph.Community {
	opts = opts.withDefaults()
	if len(ids) == 0 {
		return nil
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	index := make(map[string]int, len(sorted))
	for i, id := range sorted {
		index[id] = i
	}

	dense := make([]weightedEdge, 0, len(edges))
	for _, e := range edges {
		fi, okF := index[e.From]
		ti, okT := index[e.To]
		if !okF || !okT {
			continue
		}
		dense = append(dense, weightedEdge{from: fi, to: ti, weight: e.Weight})
	}

	levels := cluster(len(sorted), dense, opts.MaxSweeps, opts.MaxLevels)
	runID := newPublicID()

	// entityComm[level][entity index] = community index at that level,
	// composed through the per-level membership chains.
	entityComm := make([][]int, len(levels))
	prev := make([]int, len(sorted))
	for i := range prev {
		prev[i] = i
	}
	for lvl, la := range levels {
		cur := make([]int, len(sorted))
		for i := range sorted {
			cur[i] = la.membership[prev[i]]
		}
		entityComm[lvl] = cur
		prev = cur
	}

	var out []graph.Community
	// publicIDs[level][community index]
	publicIDs := make([][]string, len(levels))
	for lvl := len(levels) - 1; lvl >= 0; lvl-- {
		publicIDs[lvl] = make([]string, levels[lvl].numComms)
		for c := range publicIDs[lvl] {
			publicIDs[lvl][c] = newPublicID()
		}
	}
	for lvl, la := range levels {
		members := make([][]string, la.numComms)
		for i, id := range sorted {
			c := entityComm[lvl][i]
			members[c] = append(members[c], id)
		}
		for c := 0; c < la.numComms; c++ {
			community := graph.Community{
				ID:         publicIDs[lvl][c],
				CampaignID: campaignID,
				Level:      lvl,
				RunID:      runID,
				EntityIDs:  members[c],
			}
			if lvl+1 < len(levels) {
				community.ParentID = publicIDs[lvl+1][levels[lvl+1].membership[c]]
			}
			out = append(out, community)
		}
	}
	return out
}

// affectedComponent returns the set of entities in any connected component
// containing a touched entity. Touched entities absent from the approved
// subgraph are ignored.
func affectedComponent(ids []string, edges []InputEdge, touched []string) map[string]bool {
	adjacency := map[string][]string{}
	for _, e := range edges {
		adjacency[e.From] = append(adjacency[e.From], e.To)
		adjacency[e.To] = append(adjacency[e.To], e.From)
	}
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}

	scope := map[string]bool{}
	var stack []string
	for _, id := range touched {
		if known[id] && !scope[id] {
			scope[id] = true
			stack = append(stack, id)
		}
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range adjacency[id] {
			if !scope[next] {
				scope[next] = true
				stack = append(stack, next)
			}
		}
	}
	return scope
}

func newPublicID() string {
	id, err := gonanoid.New()
	if err != nil {
		// nanoid only fails when the system entropy source does.
		return fmt.Sprintf("c-%d", time.Now().UnixNano())
	}
	return id
}
