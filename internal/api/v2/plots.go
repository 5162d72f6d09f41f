// internal/api/v2/plots.go: plot artifact endpoints.
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/isotrace/isotrace-go/internal/datastore"
)

// PlotUploadRequest carries one plot artifact. Payload is base64 in
// transit (encoding/json handles []byte that way) and opaque to the
// engine.
type PlotUploadRequest struct {
	PlotType  string   `json:"plot_type"`
	Title     string   `json:"title"`
	Payload   []byte   `json:"payload"`
	Isotope   *string  `json:"isotope"`
	EnergyKeV *float64 `json:"energy_kev"`
}

// initPlotRoutes registers the plot endpoints
func (c *Controller) initPlotRoutes() {
	plots := c.Group.Group("/sessions/:id/plots")
	plots.POST("", c.AppendPlot)
	plots.GET("", c.GetPlotCatalog)
	plots.GET("/:plotId", c.GetPlot)
}

// AppendPlot handles POST /api/v2/sessions/:id/plots
func (c *Controller) AppendPlot(ctx echo.Context) error {
	var req PlotUploadRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	plot := &datastore.AnalysisPlot{
		PlotType:  req.PlotType,
		Title:     req.Title,
		Payload:   req.Payload,
		Isotope:   req.Isotope,
		EnergyKeV: req.EnergyKeV,
	}

	if err := c.DS.AppendPlot(ctx.Param("id"), plot); err != nil {
		return c.handleStoreError(ctx, err, "Failed to append plot")
	}

	return ctx.JSON(http.StatusCreated, map[string]uint{"plot_id": plot.ID})
}

// GetPlotCatalog handles GET /api/v2/sessions/:id/plots, the catalog
// view with payload sizes instead of payload content.
func (c *Controller) GetPlotCatalog(ctx echo.Context) error {
	catalog, err := c.DS.GetPlotCatalog(ctx.Param("id"))
	if err != nil {
		return c.handleStoreError(ctx, err, "Failed to get plot catalog")
	}
	return ctx.JSON(http.StatusOK, catalog)
}

// GetPlot handles GET /api/v2/sessions/:id/plots/:plotId and serves the
// raw artifact payload.
func (c *Controller) GetPlot(ctx echo.Context) error {
	plotID, err := strconv.ParseUint(ctx.Param("plotId"), 10, 32)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid plot identifier", http.StatusBadRequest)
	}

	plot, err := c.DS.GetPlot(ctx.Param("id"), uint(plotID))
	if err != nil {
		return c.handleStoreError(ctx, err, "Failed to get plot")
	}

	return ctx.Blob(http.StatusOK, "image/png", plot.Payload)
}
