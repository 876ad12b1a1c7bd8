package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

const relationColumns = `id, public_id, campaign_id, from_entity_id, to_entity_id,
	relation_type, strength, ignored, rejected, rejection_reason, metadata`

func scanRelation(row pgx.Row) (Relation, error) {
	var r Relation
	err := row.Scan(
		&r.ID, &r.PublicID, &r.CampaignID, &r.FromEntityID, &r.ToEntityID,
		&r.RelationType, &r.Strength, &r.Ignored, &r.Rejected,
		&r.RejectionReason, &r.Metadata,
	)
	return r, err
}

func collectRelations(rows pgx.Rows) ([]Relation, error) {
	defer rows.Close()
	var out []Relation
	for rows.Next() {
		r, err := scanRelation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type UpsertRelationParams struct {
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

// UpsertRelation inserts an edge or, when the (campaign, from, to, type)
// tuple already exists, updates the existing row. Last writer wins on
// strength and metadata; the stored public id survives, so two racing
// batches converge on a single row.
func (q *Queries) UpsertRelation(ctx context.Context, arg UpsertRelationParams) (Relation, error) {
	return scanRelation(q.db.QueryRow(ctx,
		`INSERT INTO relations (
			public_id, campaign_id, from_entity_id, to_entity_id, relation_type,
			strength, ignored, rejected, rejection_reason, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (campaign_id, from_entity_id, to_entity_id, relation_type)
		DO UPDATE SET
			strength         = EXCLUDED.strength,
			ignored          = EXCLUDED.ignored,
			rejected         = EXCLUDED.rejected,
			rejection_reason = EXCLUDED.rejection_reason,
			metadata         = COALESCE(relations.metadata, '{}'::jsonb) || COALESCE(EXCLUDED.metadata, '{}'::jsonb),
			updated_at       = now()
		RETURNING `+relationColumns,
		arg.PublicID, arg.CampaignID, arg.FromEntityID, arg.ToEntityID,
		arg.RelationType, arg.Strength, arg.Ignored, arg.Rejected,
		arg.RejectionReason, arg.Metadata,
	))
}

// RelationEndpointsChangedSince returns public ids of entities that gained
// or changed an edge after the given time. Together with
// EntitiesApprovedSince this bounds the touched window of a partial rebuild,
// so manual edge edits between approval batches still reach the clusterer.
func (q *Queries) RelationEndpointsChangedSince(ctx context.Context, campaignID int64, since time.Time) ([]string, error) {
	rows, err := q.db.Query(ctx,
		`SELECT from_entity_id FROM relations
		WHERE campaign_id = $1 AND updated_at > $2
		UNION
		SELECT to_entity_id FROM relations
		WHERE campaign_id = $1 AND updated_at > $2`,
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

// GetRelationsForEntity returns every edge touching the entity in either
// direction, including ignored ones; callers filter.
func (q *Queries) GetRelationsForEntity(ctx context.Context, entityPublicID string) ([]Relation, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+relationColumns+` FROM relations
		WHERE from_entity_id = $1 OR to_entity_id = $1
		ORDER BY id`,
		entityPublicID,
	)
	if err != nil {
		return nil, err
	}
	return collectRelations(rows)
}

// ListApprovedRelations returns the clustering input edges: non-ignored
// relations of the campaign whose endpoints are both approved non-ignored
// entities.
func (q *Queries) ListApprovedRelations(ctx context.Context, campaignID int64) ([]Relation, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+relationColumns+` FROM relations r
		WHERE r.campaign_id = $1 AND NOT r.ignored
		  AND EXISTS (
			SELECT 1 FROM entities e WHERE e.public_id = r.from_entity_id
			  AND e.shard_status = 'approved' AND NOT e.ignored)
		  AND EXISTS (
			SELECT 1 FROM entities e WHERE e.public_id = r.to_entity_id
			  AND e.shard_status = 'approved' AND NOT e.ignored)
		ORDER BY r.id`,
		campaignID,
	)
	if err != nil {
		return nil, err
	}
	return collectRelations(rows)
}
