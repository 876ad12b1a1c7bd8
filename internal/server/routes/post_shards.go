package routes

import (
	"net/http"

	"github.com/loreweave/backend/internal/server/middleware"
	"github.com/loreweave/backend/pkg/approval"
	"github.com/loreweave/backend/pkg/logger"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

// ApproveShardsHandler approves a batch of staged entities and materializes
// their pending relations. Partial success is reported, never rolled back.
func ApproveShardsHandler(c echo.Context) error {
	type approveShardsBody struct {
		EntityIDs []string `json:"entity_ids" validate:"required,min=1"`
	}

	campaignID, err := campaignParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	data := new(approveShardsBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	workflow := approval.NewWorkflow(graphStore(c), app.Scheduler)

	result, err := workflow.ApproveBatch(ctx, campaignID, data.EntityIDs)
	if err != nil {
		logger.Error("[Server] Approve batch failed", "campaign_id", campaignID, "err", err)
		return storeErrorResponse(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

// RejectShardsHandler rejects a batch of staged entities. Their pending
// relations are materialized tagged ignored and rejected so the graph keeps
// its shape without the rejected lore leaking into queries.
func RejectShardsHandler(c echo.Context) error {
	type rejectShardsBody struct {
		EntityIDs []string `json:"entity_ids" validate:"required,min=1"`
		Reason    string   `json:"reason" validate:"required"`
	}

	campaignID, err := campaignParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	data := new(rejectShardsBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	workflow := approval.NewWorkflow(graphStore(c), app.Scheduler)

	result, err := workflow.RejectBatch(ctx, campaignID, data.EntityIDs, data.Reason)
	if err != nil {
		logger.Error("[Server] Reject batch failed", "campaign_id", campaignID, "err", err)
		return storeErrorResponse(c, err)
	}

	return c.JSON(http.StatusOK, result)
}
