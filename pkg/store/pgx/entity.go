package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/loreweave/backend/internal/db"
	"github.com/loreweave/backend/internal/util"
	"github.com/loreweave/backend/pkg/graph"
	"github.com/loreweave/backend/pkg/logger"
	"github.com/loreweave/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pgvector/pgvector-go"
)

// CreateStagedEntity persists an extractor-proposed entity in staging. An
// embedding of the name and content is generated when an AI client is
// configured; embedding failures are logged and skipped since search can
// fall back to name matching.
func (s *GraphDBStorage) CreateStagedEntity(ctx context.Context, entity graph.Entity) (graph.Entity, error) {
	if entity.Name == "" || entity.EntityType == "" || entity.CampaignID == 0 {
		return graph.Entity{}, fmt.Errorf("%w: entity requires name, entity_type and campaign id", graph.ErrValidation)
	}

	publicID := entity.ID
	if publicID == "" {
		var err error
		publicID, err = gonanoid.New()
		if err != nil {
			return graph.Entity{}, err
		}
	}

	var embedding *pgvector.Vector
	if s.aiClient != nil {
		vec, err := util.RetryWithContext(ctx, 3, func(ctx context.Context) ([]float32, error) {
			return s.aiClient.GenerateEmbedding(ctx, []byte(embeddingInput(entity)))
		})
		if err != nil {
			logger.Warn("[Store] Embedding generation failed, storing entity without one", "entity", publicID, "err", err)
		} else {
			v := pgvector.NewVector(vec)
			embedding = &v
		}
	}

	var pending []byte
	if len(entity.PendingRelations) > 0 {
		b, err := json.Marshal(entity.PendingRelations)
		if err != nil {
			return graph.Entity{}, err
		}
		pending = b
	}

	q := db.New(s.conn)
	row, err := q.CreateStagedEntity(ctx, db.CreateStagedEntityParams{
		PublicID:         publicID,
		CampaignID:       entity.CampaignID,
		Name:             entity.Name,
		EntityType:       entity.EntityType,
		Content:          marshalMap(entity.Content),
		Confidence:       entity.Confidence,
		ResourceID:       nullableString(entity.Provenance.ResourceID),
		ResourceName:     nullableString(entity.Provenance.ResourceName),
		FileKey:          nullableString(entity.Provenance.FileKey),
		PendingRelations: pending,
		Metadata:         marshalMap(entity.Metadata),
		Embedding:        embedding,
	})
	if err != nil {
		return graph.Entity{}, err
	}
	return toGraphEntity(row), nil
}

func (s *GraphDBStorage) GetEntityByID(ctx context.Context, entityID string) (graph.Entity, error) {
	row, err := db.New(s.conn).GetEntityByPublicID(ctx, entityID)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return graph.Entity{}, fmt.Errorf("entity %s: %w", entityID, graph.ErrNotFound)
	}
	if err != nil {
		return graph.Entity{}, err
	}
	return toGraphEntity(row), nil
}

// GetEntitiesByIDs returns the entities found for the given public ids.
// Missing ids are silently absent from the result.
func (s *GraphDBStorage) GetEntitiesByIDs(ctx context.Context, entityIDs []string) ([]graph.Entity, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	rows, err := db.New(s.conn).GetEntitiesByPublicIDs(ctx, store.DedupeStrings(entityIDs))
	if err != nil {
		return nil, err
	}
	return toGraphEntities(rows), nil
}

func (s *GraphDBStorage) ListEntitiesByCampaign(ctx context.Context, campaignID int64, opts store.ListEntitiesOptions) ([]graph.Entity, error) {
	var status *string
	if opts.Status != "" {
		v := string(opts.Status)
		status = &v
	}
	rows, err := db.New(s.conn).ListCampaignEntities(ctx, db.ListCampaignEntitiesParams{
		CampaignID:  campaignID,
		ShardStatus: status,
		Lim:         int32(opts.Limit),
	})
	if err != nil {
		return nil, err
	}
	return toGraphEntities(rows), nil
}

func (s *GraphDBStorage) ListStagedEntities(ctx context.Context, campaignID int64) ([]graph.Entity, error) {
	rows, err := db.New(s.conn).ListStagedEntities(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return toGraphEntities(rows), nil
}

func (s *GraphDBStorage) CountStagingEntities(ctx context.Context, campaignID int64) (int64, error) {
	return db.New(s.conn).CountStagingEntities(ctx, campaignID)
}

// ApproveEntity transitions a staging entity to approved. The returned
// entity still carries the pending relations as they were before the
// transition so the approval workflow can materialize them.
func (s *GraphDBStorage) ApproveEntity(ctx context.Context, entityID string) (graph.Entity, error) {
	q := db.New(s.conn)
	before, err := q.GetEntityByPublicID(ctx, entityID)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return graph.Entity{}, fmt.Errorf("entity %s: %w", entityID, graph.ErrNotFound)
	}
	if err != nil {
		return graph.Entity{}, err
	}

	row, err := q.ApproveEntity(ctx, entityID)
	if errors.Is(err, pgxv5.ErrNoRows) {
		// Present but no longer in staging: another batch got there first.
		return graph.Entity{}, fmt.Errorf("entity %s is not in staging: %w", entityID, graph.ErrNotFound)
	}
	if err != nil {
		return graph.Entity{}, err
	}

	out := toGraphEntity(row)
	if len(before.PendingRelations) > 0 {
		_ = json.Unmarshal(before.PendingRelations, &out.PendingRelations)
	}
	return out, nil
}

// RejectEntity transitions a staging entity to rejected, keeping the
// pre-transition pending relations on the returned value like
// ApproveEntity does.
func (s *GraphDBStorage) RejectEntity(ctx context.Context, entityID string, reason string) (graph.Entity, error) {
	q := db.New(s.conn)
	before, err := q.GetEntityByPublicID(ctx, entityID)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return graph.Entity{}, fmt.Errorf("entity %s: %w", entityID, graph.ErrNotFound)
	}
	if err != nil {
		return graph.Entity{}, err
	}

	row, err := q.RejectEntity(ctx, db.RejectEntityParams{PublicID: entityID, Reason: reason})
	if errors.Is(err, pgxv5.ErrNoRows) {
		return graph.Entity{}, fmt.Errorf("entity %s is not in staging: %w", entityID, graph.ErrNotFound)
	}
	if err != nil {
		return graph.Entity{}, err
	}

	out := toGraphEntity(row)
	if len(before.PendingRelations) > 0 {
		_ = json.Unmarshal(before.PendingRelations, &out.PendingRelations)
	}
	return out, nil
}

func (s *GraphDBStorage) UpdateEntity(ctx context.Context, entityID string, upd store.EntityUpdate) (graph.Entity, error) {
	row, err := db.New(s.conn).UpdateEntity(ctx, db.UpdateEntityParams{
		PublicID:   entityID,
		Name:       upd.Name,
		EntityType: upd.EntityType,
		Content:    marshalMap(upd.Content),
		Confidence: upd.Confidence,
		Metadata:   marshalMap(upd.Metadata),
	})
	if errors.Is(err, pgxv5.ErrNoRows) {
		return graph.Entity{}, fmt.Errorf("entity %s: %w", entityID, graph.ErrNotFound)
	}
	if err != nil {
		return graph.Entity{}, err
	}
	return toGraphEntity(row), nil
}

// SearchEntities resolves a query by public id, then name match, then
// embedding similarity when an AI client is available.
func (s *GraphDBStorage) SearchEntities(ctx context.Context, campaignID int64, query string) ([]graph.Entity, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", graph.ErrValidation)
	}

	q := db.New(s.conn)

	if row, err := q.GetEntityByPublicID(ctx, query); err == nil && row.CampaignID == campaignID {
		return []graph.Entity{toGraphEntity(row)}, nil
	}

	rows, err := q.SearchEntitiesByName(ctx, db.SearchEntitiesByNameParams{
		CampaignID: campaignID,
		Name:       query,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		return toGraphEntities(rows), nil
	}

	if s.aiClient == nil {
		return nil, nil
	}
	vec, err := util.RetryWithContext(ctx, 3, func(ctx context.Context) ([]float32, error) {
		return s.aiClient.GenerateEmbedding(ctx, []byte(query))
	})
	if err != nil {
		logger.Warn("[Store] Search embedding failed, returning name matches only", "err", err)
		return nil, nil
	}
	similar, err := q.FindSimilarEntities(ctx, db.FindSimilarEntitiesParams{
		CampaignID: campaignID,
		Embedding:  pgvector.NewVector(vec),
		Lim:        5,
	})
	if err != nil {
		return nil, err
	}
	return toGraphEntities(similar), nil
}

func embeddingInput(entity graph.Entity) string {
	var b strings.Builder
	b.WriteString(entity.Name)
	b.WriteString(" (")
	b.WriteString(entity.EntityType)
	b.WriteString(")")
	if len(entity.Content) > 0 {
		if raw, err := json.Marshal(entity.Content); err == nil {
			b.WriteString("\n")
			b.Write(raw)
		}
	}
	return b.String()
}
