// Package store defines the persistence contract of the knowledge graph.
// The store is the single serialization point of the system: approval
// batches, graph editing calls and the clustering engine all converge here,
// and the invariants they rely on (edge dedup, self-loop guard, campaign
// scoping) are enforced in this layer rather than by callers.
package store

import (
	"context"
	"time"

	"github.com/loreweave/backend/pkg/graph"
)

// UpsertEdgeParams describes one edge write. Type and Strength arrive raw;
// the store runs both through the relation normalizer.
type UpsertEdgeParams struct {
	CampaignID   int64
	FromEntityID string
	ToEntityID   string
	Type         string
	Strength     *float64
	Metadata     map[string]any

	// Ignored/Rejected tag edges materialized from a rejected shard so
	// graph consumers can exclude them while the shape survives.
	Ignored         bool
	Rejected        bool
	RejectionReason string

	// AllowSelfRelation overrides the self-loop guard. Off by default.
	AllowSelfRelation bool
}

// ListEntitiesOptions filters ListEntitiesByCampaign.
type ListEntitiesOptions struct {
	Status graph.ShardStatus // empty means all statuses
	Limit  int
}

// EntityUpdate is a partial entity update. Nil fields are left untouched;
// Metadata is merged key-wise into the stored map, never overwritten
// wholesale.
type EntityUpdate struct {
	Name       *string
	EntityType *string
	Content    map[string]any
	Confidence *float64
	Metadata   map[string]any
}

// ImpactState is the persisted scheduler state for one campaign.
type ImpactState struct {
	CampaignID    int64
	ImpactScore   float64
	LastRebuildAt *time.Time
}

// GraphStore persists entities, relations, communities and scheduler state.
// Implementations must keep every edge inside a single campaign and
// guarantee at most one edge row per (campaign, from, to, type) tuple even
// under concurrent upserts.
type GraphStore interface {
	CreateStagedEntity(ctx context.Context, entity graph.Entity) (graph.Entity, error)
	GetEntityByID(ctx context.Context, entityID string) (graph.Entity, error)
	GetEntitiesByIDs(ctx context.Context, entityIDs []string) ([]graph.Entity, error)
	ListEntitiesByCampaign(ctx context.Context, campaignID int64, opts ListEntitiesOptions) ([]graph.Entity, error)
	ListStagedEntities(ctx context.Context, campaignID int64) ([]graph.Entity, error)
	UpdateEntity(ctx context.Context, entityID string, upd EntityUpdate) (graph.Entity, error)
	CountStagingEntities(ctx context.Context, campaignID int64) (int64, error)

	// ApproveEntity and RejectEntity perform the shard state transition
	// atomically with clearing pending relations. Both return the
	// entity as it was before the transition so the caller can
	// materialize its pending relations, and fail with graph.ErrNotFound
	// when the entity is absent or not in staging.
	ApproveEntity(ctx context.Context, entityID string) (graph.Entity, error)
	RejectEntity(ctx context.Context, entityID string, reason string) (graph.Entity, error)

	UpsertEdge(ctx context.Context, params UpsertEdgeParams) ([]graph.Relation, error)
	GetRelationshipsForEntity(ctx context.Context, entityID string) ([]graph.Relation, error)

	// ApprovedSubgraph returns the clustering input: approved non-ignored
	// entities and the non-ignored edges between them.
	ApprovedSubgraph(ctx context.Context, campaignID int64) ([]graph.Entity, []graph.Relation, error)
	EntitiesApprovedSince(ctx context.Context, campaignID int64, since time.Time) ([]string, error)
	// RelationEndpointsChangedSince reports entities whose edges changed
	// after the given time, so edge-only mutations scope partial rebuilds.
	RelationEndpointsChangedSince(ctx context.Context, campaignID int64, since time.Time) ([]string, error)

	// ReplaceCommunities persists a clustering result. With a nil scope
	// every previous community of the campaign is superseded; otherwise
	// only the named community ids are removed and communities outside
	// the scope keep their identifiers. The replacement is transactional
	// so a failed rebuild retains the previous clustering.
	ReplaceCommunities(ctx context.Context, campaignID int64, supersededIDs []string, communities []graph.Community) error
	ListCommunities(ctx context.Context, campaignID int64) ([]graph.Community, error)
	GetCommunity(ctx context.Context, campaignID int64, communityID string) (graph.Community, error)
	CommunitiesForEntity(ctx context.Context, campaignID int64, entityID string) ([]graph.Community, error)
	CommunitiesContainingEntities(ctx context.Context, campaignID int64, entityIDs []string) ([]string, error)

	GetCommunitySummary(ctx context.Context, campaignID int64, communityID string) (graph.CommunitySummary, error)
	SaveCommunitySummary(ctx context.Context, summary graph.CommunitySummary) (graph.CommunitySummary, error)

	AddImpact(ctx context.Context, campaignID int64, delta float64) (float64, error)
	RebuildState(ctx context.Context, campaignID int64) (ImpactState, error)
	ResetImpact(ctx context.Context, campaignID int64) error

	SearchEntities(ctx context.Context, campaignID int64, query string) ([]graph.Entity, error)
}
