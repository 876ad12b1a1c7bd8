package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// AddImpact accumulates rebuild impact for a campaign and returns the new
// total. The row is created lazily on first use.
func (q *Queries) AddImpact(ctx context.Context, campaignID int64, delta float64) (float64, error) {
	var score float64
	err := q.db.QueryRow(ctx,
		`INSERT INTO rebuild_state (campaign_id, impact_score)
		VALUES ($1, $2)
		ON CONFLICT (campaign_id)
		DO UPDATE SET impact_score = rebuild_state.impact_score + EXCLUDED.impact_score
		RETURNING impact_score`,
		campaignID, delta,
	).Scan(&score)
	return score, err
}

func (q *Queries) GetRebuildState(ctx context.Context, campaignID int64) (RebuildState, error) {
	var s RebuildState
	err := q.db.QueryRow(ctx,
		`SELECT campaign_id, impact_score, last_rebuild_at
		FROM rebuild_state WHERE campaign_id = $1`,
		campaignID,
	).Scan(&s.CampaignID, &s.ImpactScore, &s.LastRebuildAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return RebuildState{CampaignID: campaignID}, nil
	}
	return s, err
}

// ResetImpact zeroes the score and records the rebuild completion time.
func (q *Queries) ResetImpact(ctx context.Context, campaignID int64) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO rebuild_state (campaign_id, impact_score, last_rebuild_at)
		VALUES ($1, 0, now())
		ON CONFLICT (campaign_id)
		DO UPDATE SET impact_score = 0, last_rebuild_at = now()`,
		campaignID,
	)
	return err
}
