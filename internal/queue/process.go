package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/loreweave/backend/pkg/community"
	"github.com/loreweave/backend/pkg/leaselock"
	"github.com/loreweave/backend/pkg/logger"
	"github.com/loreweave/backend/pkg/rebuild"
	graphstorage "github.com/loreweave/backend/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ProcessRebuildMessage runs a community rebuild for one campaign. A
// Postgres lease keyed by campaign keeps concurrent workers off the same
// graph; a busy lease is returned as an error so the message lands on the
// retry queue and runs once the current rebuild finished.
func ProcessRebuildMessage(
	ctx context.Context,
	conn *pgxpool.Pool,
	msg string,
) error {
	data := new(rebuild.Request)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return fmt.Errorf("unmarshalling rebuild request: %w", err)
	}
	if data.CampaignID <= 0 {
		return fmt.Errorf("rebuild request without campaign id")
	}

	store := graphstorage.NewGraphDBStorage(conn, nil)
	engine := community.NewEngine(store, community.Options{})
	locker := leaselock.New(conn)

	key := fmt.Sprintf("rebuild:campaign:%d", data.CampaignID)
	err := locker.WithLease(ctx, key, leaselock.Options{
		TTL:         10 * time.Minute,
		TokenPrefix: "worker-",
	}, func(leaseCtx context.Context) error {
		return engine.Rebuild(leaseCtx, data.CampaignID, data.Mode)
	})
	if errors.Is(err, leaselock.ErrBusy) {
		logger.Info("[Queue] Campaign rebuild already in progress, retrying later",
			"campaign_id", data.CampaignID)
		return err
	}
	return err
}
