package routes

import (
	"net/http"

	"github.com/loreweave/backend/pkg/graph"
	"github.com/loreweave/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

// SearchEntitiesHandler resolves a query against the campaign graph: by
// public id, by exact name, then by embedding similarity. Each match is
// returned with the communities containing it across hierarchy levels.
func SearchEntitiesHandler(c echo.Context) error {
	type entityMatch struct {
		Entity      graph.Entity      `json:"entity"`
		Communities []graph.Community `json:"communities"`
	}

	type searchResponse struct {
		Query   string        `json:"query"`
		Matches []entityMatch `json:"matches"`
	}

	campaignID, err := campaignParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	query := c.QueryParam("q")
	if query == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing query parameter q"})
	}

	ctx := c.Request().Context()
	store := graphStore(c)

	entities, err := store.SearchEntities(ctx, campaignID, query)
	if err != nil {
		logger.Error("[Server] Entity search failed", "campaign_id", campaignID, "err", err)
		return storeErrorResponse(c, err)
	}

	matches := make([]entityMatch, 0, len(entities))
	for _, entity := range entities {
		communities, err := store.CommunitiesForEntity(ctx, campaignID, entity.ID)
		if err != nil {
			logger.Warn("[Server] Loading communities for entity failed",
				"campaign_id", campaignID, "entity_id", entity.ID, "err", err)
			communities = nil
		}
		matches = append(matches, entityMatch{Entity: entity, Communities: communities})
	}

	return c.JSON(http.StatusOK, searchResponse{Query: query, Matches: matches})
}
