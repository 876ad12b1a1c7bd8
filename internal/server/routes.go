package server

import (
	"github.com/loreweave/backend/internal/server/middleware"
	"github.com/loreweave/backend/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Shard review routes
	apiRoutes.GET("/campaigns/:id/shards", routes.GetStagedShardsHandler, middleware.RequirePermission("shard.view"))
	apiRoutes.POST("/campaigns/:id/shards/approve", routes.ApproveShardsHandler, middleware.RequirePermission("shard.approve"))
	apiRoutes.POST("/campaigns/:id/shards/reject", routes.RejectShardsHandler, middleware.RequirePermission("shard.reject"))

	// Community routes
	apiRoutes.POST("/campaigns/:id/communities/detect", routes.DetectCommunitiesHandler, middleware.RequirePermission("community.rebuild"))
	apiRoutes.GET("/campaigns/:id/communities/graph", routes.GetCommunityGraphHandler, middleware.RequirePermission("community.view"))
	apiRoutes.GET("/campaigns/:id/communities/:community_id/graph", routes.GetCommunityEntitiesHandler, middleware.RequirePermission("community.view"))
	apiRoutes.GET("/campaigns/:id/communities/:community_id/summary", routes.GetCommunitySummaryHandler, middleware.RequirePermission("community.view"))

	// Entity and relation routes
	apiRoutes.GET("/campaigns/:id/entities/search", routes.SearchEntitiesHandler, middleware.RequirePermission("entity.view"))
	apiRoutes.POST("/campaigns/:id/relations", routes.UpsertRelationHandler, middleware.RequirePermission("relation.edit"))
	apiRoutes.GET("/entities/:id/relations", routes.GetEntityRelationsHandler, middleware.RequireAnyPermission("relation.view", "entity.view"))
}
