package routes

import (
	"net/http"

	"github.com/loreweave/backend/internal/server/middleware"
	"github.com/loreweave/backend/pkg/logger"
	"github.com/loreweave/backend/pkg/store"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

// UpsertRelationHandler creates or updates one edge between two approved
// entities. A bidirectional relation type also writes the reciprocal edge.
// The edit feeds the rebuild scheduler so heavy manual editing eventually
// triggers re-clustering.
func UpsertRelationHandler(c echo.Context) error {
	type upsertRelationBody struct {
		FromEntityID      string         `json:"from_entity_id" validate:"required"`
		ToEntityID        string         `json:"to_entity_id" validate:"required"`
		Type              string         `json:"relationship_type" validate:"required"`
		Strength          *float64       `json:"strength"`
		Metadata          map[string]any `json:"metadata"`
		AllowSelfRelation bool           `json:"allow_self_relation"`
	}

	campaignID, err := campaignParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	data := new(upsertRelationBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	ctx := c.Request().Context()
	relations, err := graphStore(c).UpsertEdge(ctx, store.UpsertEdgeParams{
		CampaignID:        campaignID,
		FromEntityID:      data.FromEntityID,
		ToEntityID:        data.ToEntityID,
		Type:              data.Type,
		Strength:          data.Strength,
		Metadata:          data.Metadata,
		AllowSelfRelation: data.AllowSelfRelation,
	})
	if err != nil {
		logger.Error("[Server] Relation upsert failed", "campaign_id", campaignID, "err", err)
		return storeErrorResponse(c, err)
	}

	app := c.(*middleware.AppContext).App
	app.Scheduler.RecordEdgeChange(ctx, campaignID)

	return c.JSON(http.StatusOK, map[string]any{
		"relations": relations,
	})
}
