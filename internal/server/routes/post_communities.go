package routes

import (
	"errors"
	"net/http"

	"github.com/loreweave/backend/internal/db"
	"github.com/loreweave/backend/internal/server/middleware"
	"github.com/loreweave/backend/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
)

// DetectCommunitiesHandler queues a full community rebuild for a campaign.
// The clustering itself runs on the worker; the request returns as soon as
// the rebuild is dispatched.
func DetectCommunitiesHandler(c echo.Context) error {
	campaignID, err := campaignParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	q := db.New(app.DBConn)
	if _, err := q.GetCampaign(ctx, campaignID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "campaign not found"})
		}
		logger.Error("[Server] Campaign lookup failed", "campaign_id", campaignID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	app.Scheduler.TriggerFull(ctx, campaignID)

	return c.JSON(http.StatusAccepted, map[string]any{
		"message":     "Community detection queued",
		"campaign_id": campaignID,
	})
}
