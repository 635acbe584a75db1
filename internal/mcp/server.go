package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/danielfsbarreto/crewai-expert/internal/search"
)

// Searcher answers prompts against the current collection.
type Searcher interface {
	Search(ctx context.Context, prompt string, k int) (*search.Response, error)
	Prefix() string
}

// Resolver names the current collection of a prefix.
type Resolver interface {
	CurrentCollectionName(ctx context.Context, prefix string) (string, error)
}

// Server is the MCP server for documentation search.
type Server struct {
	mcp      *mcp.Server
	searcher Searcher
	resolver Resolver
	metrics  *toolMetrics
	logger   *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "crewai-expert")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Logger for structured logging
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "crewai-expert",
		Version: "dev",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates an MCP server backed by searcher and resolver.
func NewServer(cfg *Config, searcher Searcher, resolver Resolver) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if resolver == nil {
		return nil, errors.New("resolver is required")
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		searcher: searcher,
		resolver: resolver,
		metrics:  newToolMetrics(nil, cfg.Logger),
		logger:   cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves MCP on the stdio transport until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Handler returns a streamable HTTP handler serving this server.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)
}

// Connect attaches the server to an arbitrary transport.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}
