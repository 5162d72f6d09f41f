// Package httpserver assembles the echo web server hosting the API
// facade and the metrics endpoint.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	api "github.com/isotrace/isotrace-go/internal/api/v2"
	"github.com/isotrace/isotrace-go/internal/conf"
	"github.com/isotrace/isotrace-go/internal/datastore"
	"github.com/isotrace/isotrace-go/internal/logging"
	"github.com/isotrace/isotrace-go/internal/observability"
)

// Server wraps the echo instance and its dependencies.
type Server struct {
	Echo     *echo.Echo
	Settings *conf.Settings

	apiController *api.Controller
	logger        *slog.Logger
	closeLog      func() error
}

// New builds the server, wiring middleware, the API controller and the
// Prometheus metrics endpoint.
func New(settings *conf.Settings, ds datastore.Interface, metrics *observability.Metrics) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = 60 * time.Second
	e.Server.IdleTimeout = 120 * time.Second

	s := &Server{
		Echo:     e,
		Settings: settings,
		logger:   logging.ForService("httpserver"),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	// Web server log goes to its own rotated file when configured.
	if settings.WebServer.Log.Enabled && settings.WebServer.Log.Path != "" {
		fileLogger, closeFunc, err := logging.NewFileLogger(settings.WebServer.Log.Path, "httpserver", slog.LevelInfo)
		if err != nil {
			s.logger.Error("Failed to open web server log file, using default output",
				"path", settings.WebServer.Log.Path, "error", err)
		} else {
			s.logger = fileLogger
			s.closeLog = closeFunc
		}
	}

	e.Use(middleware.Recover())
	e.Use(middleware.Gzip())
	if metrics != nil {
		e.Use(requestMetrics(metrics))
	}
	if settings.WebServer.Debug || settings.WebServer.Log.Enabled {
		e.Use(s.requestLogger())
	}

	s.apiController = api.New(e, ds, settings, metrics)

	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}
	e.GET("/healthz", func(ctx echo.Context) error {
		return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	return s
}

// Start runs the server until the listener fails. http.ErrServerClosed
// from a clean shutdown is not an error.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%s", s.Settings.WebServer.Port)
	s.logger.Info("Starting web server", "address", addr)

	if err := s.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down web server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err := s.Echo.Shutdown(shutdownCtx)

	if s.closeLog != nil {
		if closeErr := s.closeLog(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

// requestMetrics records every handled request in the HTTP metrics.
func requestMetrics(m *observability.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)

			status := ctx.Response().Status
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				status = httpErr.Code
			}
			m.HTTP.RecordRequest(ctx.Request().Method, ctx.Path(), status, time.Since(start))
			return err
		}
	}
}

// requestLogger emits one structured log line per request.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Info("HTTP request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			)
			return nil
		},
	})
}
