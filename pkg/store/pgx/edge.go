package pgx

import (
	"context"
	"fmt"
	"time"

	"github.com/loreweave/backend/internal/db"
	"github.com/loreweave/backend/pkg/graph"
	"github.com/loreweave/backend/pkg/relation"
	"github.com/loreweave/backend/pkg/store"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// UpsertEdge validates, normalizes and writes one logical edge. For a
// bidirectional type the reverse edge is synthesized with the same type and
// swapped endpoints, so the result carries one or two relations written in
// a single transaction. Dedup on
// (campaign, from, to, type) is delegated to the database's unique index,
// which makes racing approval batches converge on a single row with
// last-writer-wins semantics.
func (s *GraphDBStorage) UpsertEdge(ctx context.Context, params store.UpsertEdgeParams) ([]graph.Relation, error) {
	if params.FromEntityID == "" || params.ToEntityID == "" {
		return nil, fmt.Errorf("%w: edge requires both endpoint ids", graph.ErrValidation)
	}
	if params.FromEntityID == params.ToEntityID && !params.AllowSelfRelation {
		return nil, fmt.Errorf("%w: self-relation on entity %s", graph.ErrValidation, params.FromEntityID)
	}

	relType := relation.Normalize(params.Type)
	var strength *float64
	if params.Strength != nil {
		strength = relation.NormalizeStrength(*params.Strength)
	}

	q := db.New(s.conn)
	endpoints, err := q.GetEntitiesByPublicIDs(ctx, store.DedupeStrings([]string{params.FromEntityID, params.ToEntityID}))
	if err != nil {
		return nil, err
	}
	byID := make(map[string]db.Entity, len(endpoints))
	for _, e := range endpoints {
		byID[e.PublicID] = e
	}
	for _, id := range []string{params.FromEntityID, params.ToEntityID} {
		e, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("edge endpoint %s: %w", id, graph.ErrNotFound)
		}
		if e.CampaignID != params.CampaignID {
			return nil, fmt.Errorf("entity %s belongs to campaign %d, not %d: %w",
				id, e.CampaignID, params.CampaignID, graph.ErrCrossCampaign)
		}
	}

	s.dbLock.Lock()
	defer s.dbLock.Unlock()

	// Both rows of a bidirectional pair commit together; a failed reverse
	// write must not leave a forward edge without its counterpart.
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)
	qtx := q.WithTx(tx)

	forward, err := s.upsertOne(ctx, qtx, params, relType, strength, params.FromEntityID, params.ToEntityID)
	if err != nil {
		return nil, err
	}
	result := []graph.Relation{forward}

	if reciprocal, ok := relation.Reciprocal(relType); ok && params.FromEntityID != params.ToEntityID {
		reverse, err := s.upsertOne(ctx, qtx, params, reciprocal, strength, params.ToEntityID, params.FromEntityID)
		if err != nil {
			return nil, err
		}
		result = append(result, reverse)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *GraphDBStorage) upsertOne(
	ctx context.Context,
	q *db.Queries,
	params store.UpsertEdgeParams,
	relType relation.RelationshipType,
	strength *float64,
	fromID, toID string,
) (graph.Relation, error) {
	publicID, err := gonanoid.New()
	if err != nil {
		return graph.Relation{}, err
	}

	row, err := q.UpsertRelation(ctx, db.UpsertRelationParams{
		PublicID:        publicID,
		CampaignID:      params.CampaignID,
		FromEntityID:    fromID,
		ToEntityID:      toID,
		RelationType:    string(relType),
		Strength:        strength,
		Ignored:         params.Ignored,
		Rejected:        params.Rejected,
		RejectionReason: nullableString(params.RejectionReason),
		Metadata:        marshalMap(params.Metadata),
	})
	if err != nil {
		return graph.Relation{}, err
	}
	return toGraphRelation(row), nil
}

func (s *GraphDBStorage) GetRelationshipsForEntity(ctx context.Context, entityID string) ([]graph.Relation, error) {
	rows, err := db.New(s.conn).GetRelationsForEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return toGraphRelations(rows), nil
}

func (s *GraphDBStorage) ApprovedSubgraph(ctx context.Context, campaignID int64) ([]graph.Entity, []graph.Relation, error) {
	q := db.New(s.conn)
	entityRows, err := q.ListApprovedEntities(ctx, campaignID)
	if err != nil {
		return nil, nil, err
	}
	relationRows, err := q.ListApprovedRelations(ctx, campaignID)
	if err != nil {
		return nil, nil, err
	}
	return toGraphEntities(entityRows), toGraphRelations(relationRows), nil
}

func (s *GraphDBStorage) EntitiesApprovedSince(ctx context.Context, campaignID int64, since time.Time) ([]string, error) {
	return db.New(s.conn).EntitiesApprovedSince(ctx, campaignID, since)
}

func (s *GraphDBStorage) RelationEndpointsChangedSince(ctx context.Context, campaignID int64, since time.Time) ([]string, error) {
	return db.New(s.conn).RelationEndpointsChangedSince(ctx, campaignID, since)
}
