// Package graph defines the domain model of the Loreweave knowledge graph:
// entities proposed by extraction ("shards"), typed relations between them,
// and the community hierarchy produced by clustering.
package graph

import (
	"time"

	"github.com/loreweave/backend/pkg/relation"
)

// ShardStatus is the lifecycle state of an entity. Entities enter the graph
// as staging shards and are moved to a terminal state by human review.
// Rejected and deleted entities are retained for audit; they are never
// physically removed.
type ShardStatus string

const (
	ShardStatusStaging  ShardStatus = "staging"
	ShardStatusApproved ShardStatus = "approved"
	ShardStatusRejected ShardStatus = "rejected"
	ShardStatusDeleted  ShardStatus = "deleted"
)

// Provenance records where a staged entity came from: the uploaded resource
// and the object-storage key of the original file.
type Provenance struct {
	ResourceID   string `json:"resource_id,omitempty"`
	ResourceName string `json:"resource_name,omitempty"`
	FileKey      string `json:"file_key,omitempty"`
}

// PendingRelation is an edge the extractor proposes alongside a staged
// entity. It is materialized by the approval workflow once the entity
// leaves staging; the target may itself still be staged or even rejected
// by the time that happens.
type PendingRelation struct {
	TargetID string                    `json:"target_id"`
	Type     relation.RelationshipType `json:"type"`
	Strength *float64                  `json:"strength,omitempty"`
	Metadata map[string]any            `json:"metadata,omitempty"`
}

// Entity is a node in the knowledge graph: a character, place, item or any
// other concept the extractor produced for a campaign.
//
// PendingRelations is populated only while Status is staging; the store
// clears it on the transition out of staging so an approved entity can
// never carry proposed edges.
type Entity struct {
	ID         string         `json:"id"`
	CampaignID int64          `json:"campaign_id"`
	Name       string         `json:"name"`
	EntityType string         `json:"entity_type"`
	Content    map[string]any `json:"content,omitempty"`
	Confidence float64        `json:"confidence"`

	Status           ShardStatus       `json:"shard_status"`
	Ignored          bool              `json:"ignored"`
	RejectionReason  string            `json:"rejection_reason,omitempty"`
	PendingRelations []PendingRelation `json:"pending_relations,omitempty"`

	Provenance Provenance     `json:"provenance"`
	Metadata   map[string]any `json:"metadata,omitempty"`

	StagedAt   *time.Time `json:"staged_at,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	RejectedAt *time.Time `json:"rejected_at,omitempty"`
}

// Relation is a typed, optionally weighted edge between two entities of the
// same campaign. Rejected-entity edges stay in the graph for shape but carry
// Ignored so search and clustering skip them.
type Relation struct {
	ID              string                    `json:"id"`
	CampaignID      int64                     `json:"campaign_id"`
	FromEntityID    string                    `json:"from_entity_id"`
	ToEntityID      string                    `json:"to_entity_id"`
	Type            relation.RelationshipType `json:"relationship_type"`
	Strength        *float64                  `json:"strength,omitempty"`
	Ignored         bool                      `json:"ignored"`
	Rejected        bool                      `json:"rejected"`
	RejectionReason string                    `json:"rejection_reason,omitempty"`
	Metadata        map[string]any            `json:"metadata,omitempty"`
}

// Community is one cluster of a clustering run. Level 0 is the finest
// partition; a community at level k+1 is the disjoint union of its level-k
// children, linked through ParentID.
type Community struct {
	ID         string   `json:"id"`
	CampaignID int64    `json:"campaign_id"`
	Level      int      `json:"level"`
	ParentID   string   `json:"parent_community_id,omitempty"`
	RunID      string   `json:"run_id"`
	EntityIDs  []string `json:"entity_ids"`
}

// CommunitySummary is the cached natural-language label and summary for one
// community. It becomes stale implicitly: after a rebuild the owning
// community id no longer exists, lookups miss and regeneration kicks in.
type CommunitySummary struct {
	CommunityID string    `json:"community_id"`
	CampaignID  int64     `json:"campaign_id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	APIScope    string    `json:"api_scope,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}
