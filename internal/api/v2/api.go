// internal/api/v2/api.go: HTTP facade over the aggregation engine.
package api

import (
	"crypto/rand"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/isotrace/isotrace-go/internal/conf"
	"github.com/isotrace/isotrace-go/internal/datastore"
	"github.com/isotrace/isotrace-go/internal/errors"
	"github.com/isotrace/isotrace-go/internal/logging"
	"github.com/isotrace/isotrace-go/internal/observability"
)

// Controller manages the API routes and handlers
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	DS       datastore.Interface
	Settings *conf.Settings

	apiLogger *slog.Logger
	metrics   *observability.Metrics

	// aggregateCache holds cross-session aggregate results, flushed on
	// every successful write so readers see their own writes.
	aggregateCache *cache.Cache
}

// New creates the API controller and registers all routes under /api/v2.
func New(e *echo.Echo, ds datastore.Interface, settings *conf.Settings, metrics *observability.Metrics) *Controller {
	ttl := time.Duration(settings.Engine.CacheTTL) * time.Second
	if ttl <= 0 {
		ttl = time.Minute
	}

	c := &Controller{
		Echo:           e,
		Group:          e.Group("/api/v2"),
		DS:             ds,
		Settings:       settings,
		apiLogger:      logging.ForService("api"),
		metrics:        metrics,
		aggregateCache: cache.New(ttl, 2*ttl),
	}

	c.initSessionRoutes()
	c.initPlotRoutes()
	c.initAnalyticsRoutes()

	return c
}

// PaginatedResponse wraps list results with pagination metadata
type PaginatedResponse struct {
	Data       any   `json:"data"`
	Total      int64 `json:"total"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
	NextOffset *int  `json:"next_offset,omitempty"`
}

// ErrorResponse is the error envelope returned by every handler
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// generateCorrelationID creates a short random identifier for tracking
// an error report across logs and responses.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// statusForError maps the engine's error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.IsValidation(err):
		return http.StatusBadRequest
	case errors.IsConflict(err):
		return http.StatusConflict
	case errors.IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// HandleError constructs and returns an appropriate error response
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := &ErrorResponse{
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Error = message
	}

	if c.apiLogger != nil {
		c.apiLogger.Error("API error",
			"correlation_id", resp.CorrelationID,
			"message", message,
			"error", resp.Error,
			"code", code,
			"path", ctx.Request().URL.Path,
			"method", ctx.Request().Method,
			"ip", ctx.RealIP(),
		)
	}

	return ctx.JSON(code, resp)
}

// handleStoreError maps a datastore error to a response using the
// taxonomy-derived status code.
func (c *Controller) handleStoreError(ctx echo.Context, err error, message string) error {
	return c.HandleError(ctx, err, message, statusForError(err))
}

// invalidateAggregates flushes cached aggregate query results after a
// successful write so subsequent reads reflect it.
func (c *Controller) invalidateAggregates() {
	c.aggregateCache.Flush()
}

// pageParams resolves limit/offset query parameters against the
// configured bounds.
func (c *Controller) pageParams(ctx echo.Context) (limit, offset int) {
	limit = c.Settings.Engine.DefaultPageSize
	if limit <= 0 {
		limit = 20
	}
	maxLimit := c.Settings.Engine.MaxPageSize
	if maxLimit <= 0 {
		maxLimit = 200
	}

	if raw := ctx.QueryParam("limit"); raw != "" {
		if parsed, err := parsePositiveInt(raw); err == nil {
			limit = parsed
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	if raw := ctx.QueryParam("offset"); raw != "" {
		if parsed, err := parsePositiveInt(raw); err == nil {
			offset = parsed
		}
	}
	return limit, offset
}

func parsePositiveInt(raw string) (int, error) {
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, errors.NewStd("value must not be negative")
	}
	return value, nil
}
