package pgx

import (
	"context"

	"github.com/loreweave/backend/internal/db"
	"github.com/loreweave/backend/pkg/store"
)

func (s *GraphDBStorage) AddImpact(ctx context.Context, campaignID int64, delta float64) (float64, error) {
	return db.New(s.conn).AddImpact(ctx, campaignID, delta)
}

func (s *GraphDBStorage) RebuildState(ctx context.Context, campaignID int64) (store.ImpactState, error) {
	row, err := db.New(s.conn).GetRebuildState(ctx, campaignID)
	if err != nil {
		return store.ImpactState{}, err
	}
	return store.ImpactState{
		CampaignID:    row.CampaignID,
		ImpactScore:   row.ImpactScore,
		LastRebuildAt: row.LastRebuildAt,
	}, nil
}

func (s *GraphDBStorage) ResetImpact(ctx context.Context, campaignID int64) error {
	return db.New(s.conn).ResetImpact(ctx, campaignID)
}
