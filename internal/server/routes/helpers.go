package routes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/loreweave/backend/internal/server/middleware"
	"github.com/loreweave/backend/pkg/graph"
	graphstorage "github.com/loreweave/backend/pkg/store/pgx"

	"github.com/labstack/echo/v4"
)

func appContext(c echo.Context) *middleware.AppContext {
	return c.(*middleware.AppContext)
}

// graphStore builds the store for one request on the shared pool.
func graphStore(c echo.Context) *graphstorage.GraphDBStorage {
	app := appContext(c).App
	return graphstorage.NewGraphDBStorage(app.DBConn, app.AiClient)
}

func campaignParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid campaign id")
	}
	return id, nil
}

// storeErrorResponse maps the graph sentinel errors to HTTP statuses.
func storeErrorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, graph.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, graph.ErrValidation), errors.Is(err, graph.ErrCrossCampaign):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, graph.ErrUpstream):
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
}
