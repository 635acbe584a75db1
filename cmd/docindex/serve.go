package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpserver "github.com/danielfsbarreto/crewai-expert/internal/http"
	"github.com/danielfsbarreto/crewai-expert/internal/mcp"
)

var serveStdio bool

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveStdio, "stdio", false, "Serve MCP over stdin/stdout instead of HTTP")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve search over HTTP and MCP",
	Long: `Serve exposes search over the current collection.

By default it starts an HTTP server with a REST API, Prometheus metrics and a
streamable MCP endpoint at /mcp. With --stdio it speaks MCP on stdin/stdout
instead, for clients that launch the server as a subprocess.

Examples:
  # HTTP on the configured host and port
  docindex serve

  # MCP over stdio
  docindex serve --stdio`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	svc, err := a.searchService()
	if err != nil {
		return err
	}
	manager := a.collections()
	zl := a.logger.Underlying()

	mcpServer, err := mcp.NewServer(&mcp.Config{
		Name:    "crewai-expert",
		Version: version,
		Logger:  zl.Named("mcp"),
	}, svc, manager)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	if serveStdio {
		fmt.Fprintln(os.Stderr, "docindex MCP stdio mode started")
		return mcpServer.Run(ctx)
	}

	srv, err := httpserver.NewServer(httpserver.Dependencies{
		Store:       a.store,
		Collections: manager,
		Searcher:    svc,
		MCP:         mcpServer.Handler(),
	}, zl.Named("http"), &httpserver.Config{
		Host: a.cfg.Server.HTTPHost,
		Port: a.cfg.Server.HTTPPort,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	a.logger.Info(ctx, "server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://%s:%d/health", a.cfg.Server.HTTPHost, a.cfg.Server.HTTPPort)),
		zap.String("mcp_prefix", "/mcp"),
		zap.String("metrics_endpoint", "/metrics"),
		zap.String("prefix", a.prefix()))

	return serveUntilDone(ctx, srv, a.cfg.Server.ShutdownTimeout.Duration())
}

// server is the subset of the HTTP server serveUntilDone drives.
type server interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// serveUntilDone runs srv until it fails or ctx is cancelled, then shuts it
// down within timeout.
func serveUntilDone(ctx context.Context, srv server, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
