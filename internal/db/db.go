// Package db is the hand-written query layer over PostgreSQL. It mirrors
// the shape of a generated query package: a Queries value bound to a
// connection or transaction, one method per statement.
package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// Campaign is one tenant graph. All entities, relations and communities are
// scoped to a campaign.
type Campaign struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Entity is an entities table row. Content, PendingRelations and Metadata
// hold raw jsonb; the store layer owns the decoding.
type Entity struct {
	ID               int64
	PublicID         string
	CampaignID       int64
	Name             string
	EntityType       string
	Content          []byte
	Confidence       float64
	ShardStatus      string
	Ignored          bool
	RejectionReason  *string
	ResourceID       *string
	ResourceName     *string
	FileKey          *string
	PendingRelations []byte
	Metadata         []byte
	StagedAt         *time.Time
	ApprovedAt       *time.Time
	RejectedAt       *time.Time
}

// Relation is a relations table row. The unique index on
// (campaign_id, from_entity_id, to_entity_id, relation_type) is what makes
// edge upserts race-safe.
type Relation struct {
	ID              int64
	PublicID        string
	CampaignID      int64
	FromEntityID    string
	ToEntityID      string
	RelationType    string
	Strength        *float64
	Ignored         bool
	Rejected        bool
	RejectionReason *string
	Metadata        []byte
}

// Community is a communities table row; members live in community_members.
type Community struct {
	ID         int64
	PublicID   string
	CampaignID int64
	Level      int
	ParentID   *string
	RunID      string
}

// CommunitySummary is a cached LLM summary keyed by community public id.
type CommunitySummary struct {
	CommunityPublicID string
	CampaignID        int64
	Title             string
	Summary           string
	APIScope          *string
	GeneratedAt       time.Time
}

// RebuildState carries the per-campaign impact score that survives process
// restarts.
type RebuildState struct {
	CampaignID    int64
	ImpactScore   float64
	LastRebuildAt *time.Time
}

func (q *Queries) GetCampaign(ctx context.Context, id int64) (Campaign, error) {
	var c Campaign
	err := q.db.QueryRow(ctx,
		`SELECT id, name, created_at FROM campaigns WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Name, &c.CreatedAt)
	return c, err
}
