// Package server provides the HTTP API for discoveryd.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/discoveryd/internal/matcher"
	"github.com/fyrsmithlabs/discoveryd/internal/registry"
)

// MatchService is the matching entry point the server fronts.
type MatchService interface {
	Match(ctx context.Context, query string, queryContext map[string]string) (*matcher.Result, error)
}

// Catalog is the registry view exposed over the admin endpoints.
type Catalog interface {
	List(enabledOnly bool) []registry.ResourceDescriptor
	Get(id string) (registry.ResourceDescriptor, error)
	SetEnabled(id string, enabled bool) error
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides HTTP endpoints for discoveryd.
type Server struct {
	echo    *echo.Echo
	matcher MatchService
	catalog Catalog
	logger  *zap.Logger
	config  *Config
}

// NewServer creates a new HTTP server.
func NewServer(m MatchService, catalog Catalog, logger *zap.Logger, cfg *Config) (*Server, error) {
	if m == nil {
		return nil, fmt.Errorf("matcher cannot be nil")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8765,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		matcher: m,
		catalog: catalog,
		logger:  logger,
		config:  cfg,
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	// Health check and metrics
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API v1 routes
	v1 := s.echo.Group("/v1")
	v1.POST("/match", s.handleMatch)
	v1.GET("/resources", s.handleListResources)
	v1.PUT("/resources/:id/enabled", s.handleSetEnabled)
}

// MatchRequest is the request body for POST /v1/match.
type MatchRequest struct {
	Query   string            `json:"query"`
	Context map[string]string `json:"context,omitempty"`
}

// ResourceResponse is one catalog entry in GET /v1/resources.
type ResourceResponse struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	SourceTable string `json:"source_table"`
	Tool        string `json:"tool"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// SetEnabledRequest is the request body for PUT /v1/resources/:id/enabled.
type SetEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Resources int    `json:"resources"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Resources: len(s.catalog.List(true)),
	})
}

// handleMatch routes a query to the best matching resource. A no-match
// outcome is still a 200; the body carries the no_match flag.
func (s *Server) handleMatch(c echo.Context) error {
	var req MatchRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid match request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}

	result, err := s.matcher.Match(c.Request().Context(), req.Query, req.Context)
	if err != nil {
		if c.Request().Context().Err() != nil {
			return echo.NewHTTPError(http.StatusGatewayTimeout, "match timed out")
		}
		s.logger.Error("match failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "match failed")
	}

	return c.JSON(http.StatusOK, result)
}

// handleListResources lists the catalog, disabled entries included.
func (s *Server) handleListResources(c echo.Context) error {
	descriptors := s.catalog.List(false)
	out := make([]ResourceResponse, 0, len(descriptors))
	for _, desc := range descriptors {
		out = append(out, ResourceResponse{
			ID:          desc.ID,
			Type:        string(desc.Type),
			SourceTable: desc.SourceTable,
			Tool:        desc.Tool,
			Description: desc.Description,
			Enabled:     desc.Enabled,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// handleSetEnabled flips a resource's participation in matching. Vectors are
// untouched, so re-enabling is instant.
func (s *Server) handleSetEnabled(c echo.Context) error {
	var req SetEnabledRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	id := c.Param("id")
	if err := s.catalog.SetEnabled(id, req.Enabled); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("resource %s not found", id))
	}

	s.logger.Info("resource toggled",
		zap.String("resource_id", id),
		zap.Bool("enabled", req.Enabled))
	return c.NoContent(http.StatusNoContent)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
