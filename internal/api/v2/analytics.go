// internal/api/v2/analytics.go: cross-session statistics endpoints.
// Results are cached briefly and the cache is flushed on every write.
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	cacheKeyFrequency   = "analytics:frequency"
	cacheKeyDailyPrefix = "analytics:daily:"
	cacheKeyRankPrefix  = "analytics:rank:"
)

// initAnalyticsRoutes registers the analytics endpoints
func (c *Controller) initAnalyticsRoutes() {
	analytics := c.Group.Group("/analytics")
	analytics.GET("/isotopes/frequency", c.GetIsotopeFrequency)
	analytics.GET("/isotopes/:isotope/ranking", c.GetMassRanking)
	analytics.GET("/daily", c.GetDailyRollups)
}

// GetIsotopeFrequency handles GET /api/v2/analytics/isotopes/frequency
func (c *Controller) GetIsotopeFrequency(ctx echo.Context) error {
	if cached, found := c.aggregateCache.Get(cacheKeyFrequency); found {
		if c.metrics != nil {
			c.metrics.HTTP.RecordCacheHit()
		}
		return ctx.JSON(http.StatusOK, cached)
	}
	if c.metrics != nil {
		c.metrics.HTTP.RecordCacheMiss()
	}

	frequencies, err := c.DS.GetIsotopeFrequency()
	if err != nil {
		return c.handleStoreError(ctx, err, "Failed to get isotope frequency")
	}

	c.aggregateCache.SetDefault(cacheKeyFrequency, frequencies)
	return ctx.JSON(http.StatusOK, frequencies)
}

// GetMassRanking handles GET /api/v2/analytics/isotopes/:isotope/ranking
func (c *Controller) GetMassRanking(ctx echo.Context) error {
	isotope := ctx.Param("isotope")
	cacheKey := cacheKeyRankPrefix + isotope

	if cached, found := c.aggregateCache.Get(cacheKey); found {
		if c.metrics != nil {
			c.metrics.HTTP.RecordCacheHit()
		}
		return ctx.JSON(http.StatusOK, cached)
	}
	if c.metrics != nil {
		c.metrics.HTTP.RecordCacheMiss()
	}

	ranking, err := c.DS.GetMassRanking(isotope)
	if err != nil {
		return c.handleStoreError(ctx, err, "Failed to get mass ranking")
	}

	c.aggregateCache.SetDefault(cacheKey, ranking)
	return ctx.JSON(http.StatusOK, ranking)
}

// GetDailyRollups handles GET /api/v2/analytics/daily with optional
// start/end date parameters (YYYY-MM-DD).
func (c *Controller) GetDailyRollups(ctx echo.Context) error {
	var start, end time.Time
	var err error

	if raw := ctx.QueryParam("start"); raw != "" {
		start, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return c.HandleError(ctx, err, "Invalid start date", http.StatusBadRequest)
		}
	}
	if raw := ctx.QueryParam("end"); raw != "" {
		end, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return c.HandleError(ctx, err, "Invalid end date", http.StatusBadRequest)
		}
		// End date is inclusive: extend to the following midnight.
		end = end.AddDate(0, 0, 1)
	}

	cacheKey := cacheKeyDailyPrefix + ctx.QueryParam("start") + ":" + ctx.QueryParam("end")
	if cached, found := c.aggregateCache.Get(cacheKey); found {
		if c.metrics != nil {
			c.metrics.HTTP.RecordCacheHit()
		}
		return ctx.JSON(http.StatusOK, cached)
	}
	if c.metrics != nil {
		c.metrics.HTTP.RecordCacheMiss()
	}

	rollups, err := c.DS.GetDailyRollups(start, end)
	if err != nil {
		return c.handleStoreError(ctx, err, "Failed to get daily rollups")
	}

	c.aggregateCache.SetDefault(cacheKey, rollups)
	return ctx.JSON(http.StatusOK, rollups)
}
