package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

const entityColumns = `id, public_id, campaign_id, name, entity_type, content, confidence,
	shard_status, ignored, rejection_reason, resource_id, resource_name, file_key,
	pending_relations, metadata, staged_at, approved_at, rejected_at`

func scanEntity(row pgx.Row) (Entity, error) {
	var e Entity
	err := row.Scan(
		&e.ID, &e.PublicID, &e.CampaignID, &e.Name, &e.EntityType, &e.Content,
		&e.Confidence, &e.ShardStatus, &e.Ignored, &e.RejectionReason,
		&e.ResourceID, &e.ResourceName, &e.FileKey,
		&e.PendingRelations, &e.Metadata, &e.StagedAt, &e.ApprovedAt, &e.RejectedAt,
	)
	return e, err
}

func collectEntities(rows pgx.Rows) ([]Entity, error) {
	defer rows.Close()
	var out []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type CreateStagedEntityParams struct {
	PublicID         string
	CampaignID       int64
	Name             string
	EntityType       string
	Content          []byte
	Confidence       float64
	ResourceID       *string
	ResourceName     *string
	FileKey          *string
	PendingRelations []byte
	Metadata         []byte
	Embedding        *pgvector.Vector
}

func (q *Queries) CreateStagedEntity(ctx context.Context, arg CreateStagedEntityParams) (Entity, error) {
	return scanEntity(q.db.QueryRow(ctx,
		`INSERT INTO entities (
			public_id, campaign_id, name, entity_type, content, confidence,
			shard_status, resource_id, resource_name, file_key,
			pending_relations, metadata, embedding, staged_at
		) VALUES ($1, $2, $3, $4, $5, $6, 'staging', $7, $8, $9, $10, $11, $12, now())
		RETURNING `+entityColumns,
		arg.PublicID, arg.CampaignID, arg.Name, arg.EntityType, arg.Content,
		arg.Confidence, arg.ResourceID, arg.ResourceName, arg.FileKey,
		arg.PendingRelations, arg.Metadata, arg.Embedding,
	))
}

func (q *Queries) GetEntityByPublicID(ctx context.Context, publicID string) (Entity, error) {
	return scanEntity(q.db.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE public_id = $1`,
		publicID,
	))
}

func (q *Queries) GetEntitiesByPublicIDs(ctx context.Context, publicIDs []string) ([]Entity, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE public_id = ANY($1)`,
		publicIDs,
	)
	if err != nil {
		return nil, err
	}
	return collectEntities(rows)
}

type ListCampaignEntitiesParams struct {
	CampaignID  int64
	ShardStatus *string
	Lim         int32
}

func (q *Queries) ListCampaignEntities(ctx context.Context, arg ListCampaignEntitiesParams) ([]Entity, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+entityColumns+` FROM entities
		WHERE campaign_id = $1
		  AND ($2::text IS NULL OR shard_status = $2)
		ORDER BY id
		LIMIT NULLIF($3::int, 0)`,
		arg.CampaignID, arg.ShardStatus, arg.Lim,
	)
	if err != nil {
		return nil, err
	}
	return collectEntities(rows)
}

// ListApprovedEntities returns the clustering input: approved, non-ignored
// entities of one campaign.
func (q *Queries) ListApprovedEntities(ctx context.Context, campaignID int64) ([]Entity, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+entityColumns+` FROM entities
		WHERE campaign_id = $1 AND shard_status = 'approved' AND NOT ignored
		ORDER BY id`,
		campaignID,
	)
	if err != nil {
		return nil, err
	}
	return collectEntities(rows)
}

func (q *Queries) ListStagedEntities(ctx context.Context, campaignID int64) ([]Entity, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+entityColumns+` FROM entities
		WHERE campaign_id = $1 AND shard_status = 'staging'
		ORDER BY resource_id NULLS LAST, id`,
		campaignID,
	)
	if err != nil {
		return nil, err
	}
	return collectEntities(rows)
}

func (q *Queries) CountStagingEntities(ctx context.Context, campaignID int64) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM entities WHERE campaign_id = $1 AND shard_status = 'staging'`,
		campaignID,
	).Scan(&n)
	return n, err
}

// ApproveEntity flips a staging entity to approved and drops its pending
// relations in the same statement, so no approved row can ever carry them.
// Returns pgx.ErrNoRows if the entity is missing or not in staging.
func (q *Queries) ApproveEntity(ctx context.Context, publicID string) (Entity, error) {
	return scanEntity(q.db.QueryRow(ctx,
		`UPDATE entities
		SET shard_status = 'approved', pending_relations = NULL, approved_at = now()
		WHERE public_id = $1 AND shard_status = 'staging'
		RETURNING `+entityColumns,
		publicID,
	))
}

type RejectEntityParams struct {
	PublicID string
	Reason   string
}

// RejectEntity flips a staging entity to rejected. Like ApproveEntity it
// clears pending relations atomically with the transition.
func (q *Queries) RejectEntity(ctx context.Context, arg RejectEntityParams) (Entity, error) {
	return scanEntity(q.db.QueryRow(ctx,
		`UPDATE entities
		SET shard_status = 'rejected', ignored = TRUE, rejection_reason = $2,
		    pending_relations = NULL, rejected_at = now()
		WHERE public_id = $1 AND shard_status = 'staging'
		RETURNING `+entityColumns,
		arg.PublicID, arg.Reason,
	))
}

type UpdateEntityParams struct {
	PublicID   string
	Name       *string
	EntityType *string
	Content    []byte
	Confidence *float64
	Metadata   []byte
}

// UpdateEntity applies a partial update. Metadata is merged with the stored
// jsonb instead of overwritten, so concurrently written keys survive.
func (q *Queries) UpdateEntity(ctx context.Context, arg UpdateEntityParams) (Entity, error) {
	return scanEntity(q.db.QueryRow(ctx,
		`UPDATE entities
		SET name        = COALESCE($2, name),
		    entity_type = COALESCE($3, entity_type),
		    content     = COALESCE($4, content),
		    confidence  = COALESCE($5, confidence),
		    metadata    = COALESCE(metadata, '{}'::jsonb) || COALESCE($6, '{}'::jsonb)
		WHERE public_id = $1
		RETURNING `+entityColumns,
		arg.PublicID, arg.Name, arg.EntityType, arg.Content, arg.Confidence, arg.Metadata,
	))
}

// EntitiesApprovedSince returns public ids of entities approved after the
// given time, used to scope partial rebuilds.
func (q *Queries) EntitiesApprovedSince(ctx context.Context, campaignID int64, since time.Time) ([]string, error) {
	rows, err := q.db.Query(ctx,
		`SELECT public_id FROM entities
		WHERE campaign_id = $1 AND shard_status = 'approved' AND approved_at > $2`,
		campaignID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

type SearchEntitiesByNameParams struct {
	CampaignID int64
	Name       string
}

func (q *Queries) SearchEntitiesByName(ctx context.Context, arg SearchEntitiesByNameParams) ([]Entity, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+entityColumns+` FROM entities
		WHERE campaign_id = $1 AND shard_status = 'approved' AND NOT ignored
		  AND name ILIKE $2
		ORDER BY name = $3 DESC, length(name)
		LIMIT 10`,
		arg.CampaignID, "%"+arg.Name+"%", arg.Name,
	)
	if err != nil {
		return nil, err
	}
	return collectEntities(rows)
}

type FindSimilarEntitiesParams struct {
	CampaignID int64
	Embedding  pgvector.Vector
	Lim        int32
}

// FindSimilarEntities is the semantic fallback for entity search. Cosine
// distance over the stored extraction embeddings.
func (q *Queries) FindSimilarEntities(ctx context.Context, arg FindSimilarEntitiesParams) ([]Entity, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+entityColumns+` FROM entities
		WHERE campaign_id = $1 AND shard_status = 'approved' AND NOT ignored
		  AND embedding IS NOT NULL
		ORDER BY embedding <=> $2
		LIMIT $3`,
		arg.CampaignID, arg.Embedding, arg.Lim,
	)
	if err != nil {
		return nil, err
	}
	return collectEntities(rows)
}
