// internal/api/v2/sessions.go: session write and read endpoints.
package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/isotrace/isotrace-go/internal/datastore"
	"github.com/isotrace/isotrace-go/internal/summary"
)

// CreateSessionRequest is the inbound payload from the analysis producer.
type CreateSessionRequest struct {
	SampleFile          string             `json:"sample_file"`
	BackgroundFile      string             `json:"background_file"`
	ConfidenceThreshold float64            `json:"confidence_threshold"`
	AnalyzedAt          time.Time          `json:"analyzed_at"`
	PeaksFound          int                `json:"peaks_found"`
	BackgroundPeaks     int                `json:"background_peaks"`
	Metadata            string             `json:"metadata"`
	Detections          []DetectionRecord  `json:"detections"`
	MassEstimates       []MassEstimateBody `json:"mass_estimates"`
}

// DetectionRecord is one identified gamma peak in a write request.
type DetectionRecord struct {
	ParentIsotope     string  `json:"parent_isotope"`
	DaughterIsotope   string  `json:"daughter_isotope"`
	EnergyKeV         float64 `json:"energy_kev"`
	Counts            float64 `json:"counts"`
	CountsUncertainty float64 `json:"counts_uncertainty"`
}

// MassEstimateBody is one mass estimate in a write request.
type MassEstimateBody struct {
	ParentIsotope   string  `json:"parent_isotope"`
	MassGrams       float64 `json:"mass_grams"`
	MassUncertainty float64 `json:"mass_uncertainty"`
}

// SummaryBody is the derived per-session summary in a session response.
type SummaryBody struct {
	TotalMassGrams   float64            `json:"total_mass_grams"`
	TotalDetections  int                `json:"total_detections"`
	UniqueIsotopes   int                `json:"unique_isotopes"`
	DominantIsotope  string             `json:"dominant_isotope,omitempty"`
	MassDistribution map[string]float64 `json:"mass_distribution,omitempty"`
}

// SessionResponse is the session detail shape returned to the dashboard.
type SessionResponse struct {
	SessionID           string       `json:"session_id"`
	SampleFile          string       `json:"sample_file"`
	BackgroundFile      string       `json:"background_file,omitempty"`
	ConfidenceThreshold float64      `json:"confidence_threshold"`
	AnalyzedAt          time.Time    `json:"analyzed_at"`
	PeaksFound          int          `json:"peaks_found"`
	BackgroundPeaks     int          `json:"background_peaks"`
	Metadata            string       `json:"metadata,omitempty"`
	Summary             *SummaryBody `json:"summary,omitempty"`
}

// initSessionRoutes registers the session endpoints
func (c *Controller) initSessionRoutes() {
	sessions := c.Group.Group("/sessions")
	sessions.POST("", c.CreateSession)
	sessions.GET("", c.GetLatestSessions)
	sessions.GET("/:id", c.GetSession)
	sessions.DELETE("/:id", c.DeleteSession)
	sessions.POST("/:id/detections", c.AppendDetections)
	sessions.POST("/:id/estimates", c.AppendMassEstimates)
	sessions.GET("/:id/results", c.GetDetectionResults)
}

// CreateSession handles POST /api/v2/sessions. The whole request is one
// atomic write: session, detections, estimates and the derived summary
// become visible together or not at all.
func (c *Controller) CreateSession(ctx echo.Context) error {
	var req CreateSessionRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	session := &datastore.AnalysisSession{
		SessionID:           uuid.NewString(),
		SampleFile:          req.SampleFile,
		BackgroundFile:      req.BackgroundFile,
		ConfidenceThreshold: req.ConfidenceThreshold,
		AnalyzedAt:          req.AnalyzedAt,
		PeaksFound:          req.PeaksFound,
		BackgroundPeaks:     req.BackgroundPeaks,
		Metadata:            req.Metadata,
	}

	detections := make([]datastore.IsotopeDetection, 0, len(req.Detections))
	for i := range req.Detections {
		d := &req.Detections[i]
		detections = append(detections, datastore.IsotopeDetection{
			ParentIsotope:     d.ParentIsotope,
			DaughterIsotope:   d.DaughterIsotope,
			EnergyKeV:         d.EnergyKeV,
			Counts:            d.Counts,
			CountsUncertainty: d.CountsUncertainty,
		})
	}

	estimates := make([]datastore.MassEstimate, 0, len(req.MassEstimates))
	for i := range req.MassEstimates {
		e := &req.MassEstimates[i]
		estimates = append(estimates, datastore.MassEstimate{
			ParentIsotope:   e.ParentIsotope,
			MassGrams:       e.MassGrams,
			MassUncertainty: e.MassUncertainty,
		})
	}

	if err := c.DS.SaveAnalysis(session, detections, estimates, nil); err != nil {
		return c.handleStoreError(ctx, err, "Failed to save analysis session")
	}
	c.invalidateAggregates()

	if c.metrics != nil {
		c.metrics.Datastore.RecordSessionSaved()
	}
	if c.apiLogger != nil {
		c.apiLogger.Info("Analysis session saved",
			"session_id", session.SessionID,
			"sample_file", session.SampleFile,
			"detections", len(detections),
			"estimates", len(estimates),
		)
	}

	return ctx.JSON(http.StatusCreated, map[string]string{"session_id": session.SessionID})
}

// GetLatestSessions handles GET /api/v2/sessions
func (c *Controller) GetLatestSessions(ctx echo.Context) error {
	limit, offset := c.pageParams(ctx)

	overviews, err := c.DS.GetLatestSessions(limit, offset)
	if err != nil {
		return c.handleStoreError(ctx, err, "Failed to list sessions")
	}
	total, err := c.DS.CountSessions()
	if err != nil {
		return c.handleStoreError(ctx, err, "Failed to count sessions")
	}

	resp := PaginatedResponse{
		Data:   overviews,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	if int64(offset+len(overviews)) < total {
		next := offset + len(overviews)
		resp.NextOffset = &next
	}
	return ctx.JSON(http.StatusOK, resp)
}

// GetSession handles GET /api/v2/sessions/:id
func (c *Controller) GetSession(ctx echo.Context) error {
	session, err := c.DS.GetSession(ctx.Param("id"))
	if err != nil {
		return c.handleStoreError(ctx, err, "Failed to get session")
	}

	resp := SessionResponse{
		SessionID:           session.SessionID,
		SampleFile:          session.SampleFile,
		BackgroundFile:      session.BackgroundFile,
		ConfidenceThreshold: session.ConfidenceThreshold,
		AnalyzedAt:          session.AnalyzedAt,
		PeaksFound:          session.PeaksFound,
		BackgroundPeaks:     session.BackgroundPeaks,
		Metadata:            session.Metadata,
	}
	if session.Summary != nil {
		distribution, err := summary.UnmarshalDistribution(session.Summary.MassDistribution)
		if err != nil {
			return c.HandleError(ctx, err, "Failed to decode summary", http.StatusInternalServerError)
		}
		resp.Summary = &SummaryBody{
			TotalMassGrams:   session.Summary.TotalMassGrams,
			TotalDetections:  session.Summary.TotalDetections,
			UniqueIsotopes:   session.Summary.UniqueIsotopes,
			DominantIsotope:  session.Summary.DominantIsotope,
			MassDistribution: distribution,
		}
	}
	return ctx.JSON(http.StatusOK, resp)
}

// DeleteSession handles DELETE /api/v2/sessions/:id. Removes the session
// and everything it owns.
func (c *Controller) DeleteSession(ctx echo.Context) error {
	sessionID := ctx.Param("id")
	if err := c.DS.DeleteSession(sessionID); err != nil {
		return c.handleStoreError(ctx, err, "Failed to delete session")
	}
	c.invalidateAggregates()

	if c.apiLogger != nil {
		c.apiLogger.Info("Analysis session deleted", "session_id", sessionID)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// AppendDetections handles POST /api/v2/sessions/:id/detections
func (c *Controller) AppendDetections(ctx echo.Context) error {
	var records []DetectionRecord
	if err := ctx.Bind(&records); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	detections := make([]datastore.IsotopeDetection, 0, len(records))
	for i := range records {
		d := &records[i]
		detections = append(detections, datastore.IsotopeDetection{
			ParentIsotope:     d.ParentIsotope,
			DaughterIsotope:   d.DaughterIsotope,
			EnergyKeV:         d.EnergyKeV,
			Counts:            d.Counts,
			CountsUncertainty: d.CountsUncertainty,
		})
	}

	if err := c.DS.AppendDetections(ctx.Param("id"), detections); err != nil {
		return c.handleStoreError(ctx, err, "Failed to append detections")
	}
	c.invalidateAggregates()

	return ctx.JSON(http.StatusCreated, map[string]int{"appended": len(detections)})
}

// AppendMassEstimates handles POST /api/v2/sessions/:id/estimates
func (c *Controller) AppendMassEstimates(ctx echo.Context) error {
	var bodies []MassEstimateBody
	if err := ctx.Bind(&bodies); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	estimates := make([]datastore.MassEstimate, 0, len(bodies))
	for i := range bodies {
		e := &bodies[i]
		estimates = append(estimates, datastore.MassEstimate{
			ParentIsotope:   e.ParentIsotope,
			MassGrams:       e.MassGrams,
			MassUncertainty: e.MassUncertainty,
		})
	}

	if err := c.DS.AppendMassEstimates(ctx.Param("id"), estimates); err != nil {
		return c.handleStoreError(ctx, err, "Failed to append mass estimates")
	}
	c.invalidateAggregates()

	return ctx.JSON(http.StatusCreated, map[string]int{"appended": len(estimates)})
}

// GetDetectionResults handles GET /api/v2/sessions/:id/results, the
// detection-to-mass join view.
func (c *Controller) GetDetectionResults(ctx echo.Context) error {
	results, err := c.DS.GetDetectionResults(ctx.Param("id"))
	if err != nil {
		return c.handleStoreError(ctx, err, "Failed to get detection results")
	}
	return ctx.JSON(http.StatusOK, results)
}
