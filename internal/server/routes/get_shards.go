package routes

import (
	"net/http"

	"github.com/loreweave/backend/internal/server/middleware"
	"github.com/loreweave/backend/internal/storage"
	"github.com/loreweave/backend/pkg/graph"
	"github.com/loreweave/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

// GetStagedShardsHandler lists a campaign's staged entities grouped by the
// source resource they were extracted from. When the resource file is still
// in object storage a presigned download link is attached to the group.
func GetStagedShardsHandler(c echo.Context) error {
	type shardGroup struct {
		ResourceID   string         `json:"resource_id"`
		ResourceName string         `json:"resource_name"`
		SourceURL    string         `json:"source_url,omitempty"`
		Shards       []graph.Entity `json:"shards"`
	}

	type stagedShardsResponse struct {
		Groups []shardGroup `json:"groups"`
		Total  int          `json:"total"`
	}

	campaignID, err := campaignParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	ctx := c.Request().Context()
	entities, err := graphStore(c).ListStagedEntities(ctx, campaignID)
	if err != nil {
		logger.Error("[Server] Listing staged shards failed", "campaign_id", campaignID, "err", err)
		return storeErrorResponse(c, err)
	}

	s3Client := c.(*middleware.AppContext).App.S3

	// Group by resource, preserving the order shards were staged in.
	groupIdx := make(map[string]int)
	groups := make([]shardGroup, 0)
	for _, entity := range entities {
		key := entity.Provenance.ResourceID
		idx, ok := groupIdx[key]
		if !ok {
			idx = len(groups)
			groupIdx[key] = idx

			sourceURL := ""
			if s3Client != nil && entity.Provenance.FileKey != "" {
				sourceURL, err = storage.GenerateDownloadLink(ctx, s3Client, entity.Provenance.FileKey)
				if err != nil {
					logger.Warn("[Server] Presigning source file failed",
						"campaign_id", campaignID, "file_key", entity.Provenance.FileKey, "err", err)
					sourceURL = ""
				}
			}

			groups = append(groups, shardGroup{
				ResourceID:   entity.Provenance.ResourceID,
				ResourceName: entity.Provenance.ResourceName,
				SourceURL:    sourceURL,
			})
		}
		groups[idx].Shards = append(groups[idx].Shards, entity)
	}

	return c.JSON(http.StatusOK, stagedShardsResponse{
		Groups: groups,
		Total:  len(entities),
	})
}
