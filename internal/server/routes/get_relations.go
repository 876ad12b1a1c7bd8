package routes

import (
	"net/http"

	"github.com/loreweave/backend/pkg/graph"
	"github.com/loreweave/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

// GetEntityRelationsHandler lists every edge touching an entity, in either
// direction, including ignored edges from rejected shards.
func GetEntityRelationsHandler(c echo.Context) error {
	type entityRelationsResponse struct {
		EntityID  string           `json:"entity_id"`
		Relations []graph.Relation `json:"relations"`
	}

	entityID := c.Param("id")
	if entityID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid entity id"})
	}

	ctx := c.Request().Context()
	store := graphStore(c)

	// Ensure the entity exists before returning an empty edge list.
	if _, err := store.GetEntityByID(ctx, entityID); err != nil {
		return storeErrorResponse(c, err)
	}

	relations, err := store.GetRelationshipsForEntity(ctx, entityID)
	if err != nil {
		logger.Error("[Server] Listing relations failed", "entity_id", entityID, "err", err)
		return storeErrorResponse(c, err)
	}

	return c.JSON(http.StatusOK, entityRelationsResponse{
		EntityID:  entityID,
		Relations: relations,
	})
}
