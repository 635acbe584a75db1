// Package http serves the search API, health, Prometheus metrics and the
// MCP streamable endpoint on one echo server.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/danielfsbarreto/crewai-expert/internal/collections"
	"github.com/danielfsbarreto/crewai-expert/internal/indexerr"
	"github.com/danielfsbarreto/crewai-expert/internal/search"
	"github.com/danielfsbarreto/crewai-expert/internal/vectorstore"
)

// Searcher answers prompts against the current collection.
type Searcher interface {
	Search(ctx context.Context, prompt string, k int) (*search.Response, error)
	Prefix() string
}

// Collections resolves and lists collections of a prefix.
type Collections interface {
	CurrentCollectionName(ctx context.Context, prefix string) (string, error)
	List(ctx context.Context, prefix string) ([]collections.Summary, error)
}

// Dependencies are the services behind the routes.
type Dependencies struct {
	Store       vectorstore.Store
	Collections Collections
	Searcher    Searcher

	// MCP is mounted at /mcp when set.
	MCP http.Handler
}

// Server provides HTTP endpoints for the indexer.
type Server struct {
	echo   *echo.Echo
	deps   Dependencies
	logger *zap.Logger
	config *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(deps Dependencies, logger *zap.Logger, cfg *Config) (*Server, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if deps.Collections == nil {
		return nil, fmt.Errorf("collections cannot be nil")
	}
	if deps.Searcher == nil {
		return nil, fmt.Errorf("searcher cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9090,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(newRequestMetrics(nil, logger).middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:   e,
		deps:   deps,
		logger: logger,
		config: cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	if s.deps.MCP != nil {
		s.echo.Any("/mcp", echo.WrapHandler(s.deps.MCP))
	}

	v1 := s.echo.Group("/api/v1")
	v1.GET("/collections", s.handleListCollections)
	v1.GET("/collections/current", s.handleCurrentCollection)
	v1.POST("/search", s.handleSearch)
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.deps.Store.Health(c.Request().Context()); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: err.Error()})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleCurrentCollection(c echo.Context) error {
	prefix := s.prefix(c)
	name, err := s.deps.Collections.CurrentCollectionName(c.Request().Context(), prefix)
	if err != nil {
		return s.apiError(c, err)
	}
	return c.JSON(http.StatusOK, CurrentCollectionResponse{Prefix: prefix, Collection: name})
}

func (s *Server) handleListCollections(c echo.Context) error {
	prefix := s.prefix(c)
	list, err := s.deps.Collections.List(c.Request().Context(), prefix)
	if err != nil {
		return s.apiError(c, err)
	}
	if list == nil {
		list = []collections.Summary{}
	}
	return c.JSON(http.StatusOK, CollectionsResponse{Prefix: prefix, Collections: list})
}

func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid search request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	resp, err := s.deps.Searcher.Search(c.Request().Context(), req.Prompt, req.K)
	if err != nil {
		return s.apiError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) prefix(c echo.Context) string {
	if p := c.QueryParam("prefix"); p != "" {
		return p
	}
	return s.deps.Searcher.Prefix()
}

// apiError writes err with the status its kind maps to.
func (s *Server) apiError(c echo.Context, err error) error {
	var ve *indexerr.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: ve.Reason, Field: ve.Field})
	case errors.Is(err, collections.ErrNoCurrentCollection), errors.Is(err, vectorstore.ErrCollectionNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case indexerr.IsTransport(err):
		s.logger.Warn("upstream failure", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
	default:
		s.logger.Error("request failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
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
