package routes

import (
	"net/http"
	"strconv"

	"github.com/loreweave/backend/internal/server/middleware"
	"github.com/loreweave/backend/pkg/ai"
	"github.com/loreweave/backend/pkg/graph"
	"github.com/loreweave/backend/pkg/logger"
	"github.com/loreweave/backend/pkg/summary"

	"github.com/labstack/echo/v4"
)

// GetCommunityGraphHandler returns the campaign graph collapsed to
// communities of one hierarchy level: one node per community, one edge per
// community pair with at least one underlying relation.
func GetCommunityGraphHandler(c echo.Context) error {
	type communityNode struct {
		CommunityID string `json:"community_id"`
		Level       int    `json:"level"`
		ParentID    string `json:"parent_community_id,omitempty"`
		Size        int    `json:"size"`
	}

	type communityEdge struct {
		FromCommunityID string  `json:"from_community_id"`
		ToCommunityID   string  `json:"to_community_id"`
		Weight          float64 `json:"weight"`
		RelationCount   int     `json:"relation_count"`
	}

	type communityGraphResponse struct {
		Level int             `json:"level"`
		Nodes []communityNode `json:"nodes"`
		Edges []communityEdge `json:"edges"`
	}

	campaignID, err := campaignParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	level := 0
	if raw := c.QueryParam("level"); raw != "" {
		level, err = strconv.Atoi(raw)
		if err != nil || level < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid level"})
		}
	}

	ctx := c.Request().Context()
	store := graphStore(c)

	communities, err := store.ListCommunities(ctx, campaignID)
	if err != nil {
		logger.Error("[Server] Listing communities failed", "campaign_id", campaignID, "err", err)
		return storeErrorResponse(c, err)
	}

	nodes := make([]communityNode, 0)
	membership := make(map[string]string)
	for _, community := range communities {
		if community.Level != level {
			continue
		}
		nodes = append(nodes, communityNode{
			CommunityID: community.ID,
			Level:       community.Level,
			ParentID:    community.ParentID,
			Size:        len(community.EntityIDs),
		})
		for _, entityID := range community.EntityIDs {
			membership[entityID] = community.ID
		}
	}

	_, relations, err := store.ApprovedSubgraph(ctx, campaignID)
	if err != nil {
		logger.Error("[Server] Loading approved subgraph failed", "campaign_id", campaignID, "err", err)
		return storeErrorResponse(c, err)
	}

	type pair struct{ from, to string }
	edgeIdx := make(map[pair]int)
	edges := make([]communityEdge, 0)
	for _, rel := range relations {
		from, ok := membership[rel.FromEntityID]
		if !ok {
			continue
		}
		to, ok := membership[rel.ToEntityID]
		if !ok || from == to {
			continue
		}
		if from > to {
			from, to = to, from
		}
		weight := 1.0
		if rel.Strength != nil {
			weight = *rel.Strength
		}
		p := pair{from, to}
		idx, ok := edgeIdx[p]
		if !ok {
			idx = len(edges)
			edgeIdx[p] = idx
			edges = append(edges, communityEdge{FromCommunityID: from, ToCommunityID: to})
		}
		edges[idx].Weight += weight
		edges[idx].RelationCount++
	}

	return c.JSON(http.StatusOK, communityGraphResponse{
		Level: level,
		Nodes: nodes,
		Edges: edges,
	})
}

// GetCommunityEntitiesHandler returns the entity-level subgraph of one
// community: its member entities and the relations between them.
func GetCommunityEntitiesHandler(c echo.Context) error {
	type communityEntitiesResponse struct {
		Community graph.Community  `json:"community"`
		Entities  []graph.Entity   `json:"entities"`
		Relations []graph.Relation `json:"relations"`
	}

	campaignID, err := campaignParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	communityID := c.Param("community_id")

	ctx := c.Request().Context()
	store := graphStore(c)

	community, err := store.GetCommunity(ctx, campaignID, communityID)
	if err != nil {
		return storeErrorResponse(c, err)
	}

	entities, err := store.GetEntitiesByIDs(ctx, community.EntityIDs)
	if err != nil {
		logger.Error("[Server] Loading community members failed",
			"campaign_id", campaignID, "community_id", communityID, "err", err)
		return storeErrorResponse(c, err)
	}

	members := make(map[string]struct{}, len(community.EntityIDs))
	for _, entityID := range community.EntityIDs {
		members[entityID] = struct{}{}
	}

	_, relations, err := store.ApprovedSubgraph(ctx, campaignID)
	if err != nil {
		logger.Error("[Server] Loading approved subgraph failed", "campaign_id", campaignID, "err", err)
		return storeErrorResponse(c, err)
	}

	internal := make([]graph.Relation, 0)
	for _, rel := range relations {
		if _, ok := members[rel.FromEntityID]; !ok {
			continue
		}
		if _, ok := members[rel.ToEntityID]; !ok {
			continue
		}
		internal = append(internal, rel)
	}

	return c.JSON(http.StatusOK, communityEntitiesResponse{
		Community: community,
		Entities:  entities,
		Relations: internal,
	})
}

// GetCommunitySummaryHandler returns the cached community summary,
// generating it through the configured model on a cache miss.
func GetCommunitySummaryHandler(c echo.Context) error {
	type communitySummaryResponse struct {
		Summary graph.CommunitySummary `json:"summary"`
		Metrics *ai.ModelMetrics       `json:"metrics,omitempty"`
	}

	campaignID, err := campaignParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	communityID := c.Param("community_id")

	apiScope := c.QueryParam("scope")
	if apiScope == "" {
		apiScope = "player"
	}

	app := c.(*middleware.AppContext).App
	service := summary.NewService(graphStore(c), app.AiClient)

	result, err := service.GenerateOrGet(c.Request().Context(), campaignID, communityID, apiScope)
	if err != nil {
		logger.Error("[Server] Community summary failed",
			"campaign_id", campaignID, "community_id", communityID, "err", err)
		return storeErrorResponse(c, err)
	}

	metrics := app.AiClient.GetMetrics()
	app.AiClient.ResetMetrics()
	return c.JSON(http.StatusOK, communitySummaryResponse{
		Summary: result,
		Metrics: &metrics,
	})
}
