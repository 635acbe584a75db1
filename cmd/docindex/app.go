package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/danielfsbarreto/crewai-expert/internal/collections"
	"github.com/danielfsbarreto/crewai-expert/internal/config"
	"github.com/danielfsbarreto/crewai-expert/internal/embeddings"
	"github.com/danielfsbarreto/crewai-expert/internal/logging"
	"github.com/danielfsbarreto/crewai-expert/internal/search"
	"github.com/danielfsbarreto/crewai-expert/internal/telemetry"
	"github.com/danielfsbarreto/crewai-expert/internal/vectorstore"
)

// app holds the process-wide dependencies shared by the commands.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	store     vectorstore.Store
}

// newApp loads configuration and connects to the vector store.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadWithFile(configPath, envFiles...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	tel, err := newTelemetry(ctx, cfg)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg, tel)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}
	if health := tel.Health(); health.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.String("reason", health.Reason))
	}

	store, err := vectorstore.NewStore(ctx, cfg.Store.Backend,
		vectorstore.QdrantConfig{
			URL:    cfg.Qdrant.URL,
			Host:   cfg.Qdrant.Host,
			Port:   cfg.Qdrant.Port,
			APIKey: cfg.Qdrant.APIKey,
			UseTLS: cfg.Qdrant.UseTLS,
		},
		vectorstore.ChromemConfig{
			Path:     cfg.Store.ChromemPath,
			Compress: cfg.Store.ChromemCompress,
		},
		logger.Underlying(),
	)
	if err != nil {
		_ = logger.Sync()
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	logger.Debug(ctx, "dependencies initialized",
		zap.String("backend", cfg.Store.Backend),
		zap.String("prefix", cfg.Qdrant.CollectionPrefix))

	return &app{cfg: cfg, logger: logger, telemetry: tel, store: store}, nil
}

// newTelemetry builds the OpenTelemetry providers from the telemetry section.
func newTelemetry(ctx context.Context, cfg *config.Config) (*telemetry.Telemetry, error) {
	telCfg := telemetry.NewDefaultConfig()
	if err := cfg.Section("telemetry", telCfg); err != nil {
		return nil, fmt.Errorf("failed to read telemetry config: %w", err)
	}
	if version != "dev" {
		telCfg.ServiceVersion = version
	}
	tel, err := telemetry.New(ctx, telCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	return tel, nil
}

// newLogger builds the structured logger from the logging section. The
// console stream always goes to stderr: stdout carries command output and,
// for serve --stdio, the MCP protocol.
func newLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	if err := cfg.Section("logging", logCfg); err != nil {
		return nil, fmt.Errorf("failed to read logging config: %w", err)
	}
	logCfg.Output.Stderr = true

	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// prefix is the collection prefix every command works on.
func (a *app) prefix() string {
	return a.cfg.Qdrant.CollectionPrefix
}

func (a *app) collections() *collections.Manager {
	return collections.NewManager(a.store,
		collections.WithPublishBatchSize(a.cfg.Pipeline.PublishBatchSize),
		collections.WithLogger(a.logger.Underlying()),
	)
}

func (a *app) embeddingClient() (embeddings.Client, error) {
	client, err := embeddings.NewClient(embeddings.Config{
		Provider: a.cfg.OpenAI.Provider,
		APIKey:   a.cfg.OpenAI.APIKey,
		BaseURL:  a.cfg.OpenAI.BaseURL,
		Model:    a.cfg.OpenAI.EmbeddingModel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	return client, nil
}

// searchService wires query embedding and the current collection together.
func (a *app) searchService() (*search.Service, error) {
	client, err := a.embeddingClient()
	if err != nil {
		return nil, err
	}
	zl := a.logger.Underlying()
	batcher := embeddings.NewBatcher(client,
		embeddings.WithModel(a.cfg.OpenAI.EmbeddingModel),
		embeddings.WithLogger(zl),
		embeddings.WithMetrics(embeddings.NewMetrics(a.telemetry.Meter("docindex.embeddings"), zl)),
	)
	return search.NewService(a.store, a.collections(), batcher, a.prefix(), zl), nil
}

// Close releases the store and flushes logs and telemetry.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
