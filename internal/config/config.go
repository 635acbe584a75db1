// Package config loads docindex configuration.
//
// Values come from built-in defaults, an optional YAML file, a .env file and
// the process environment, in increasing order of precedence. Sections used
// by packages that config cannot import (logging, telemetry) are decoded on
// demand with Config.Section.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/v2"

	"github.com/danielfsbarreto/crewai-expert/internal/indexerr"
)

// Store backends.
const (
	BackendQdrant  = "qdrant"
	BackendChromem = "chromem"
)

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderTEI    = "tei"
)

// Config holds the complete docindex configuration.
type Config struct {
	GitHub   GitHubConfig   `koanf:"github"`
	OpenAI   OpenAIConfig   `koanf:"openai"`
	Qdrant   QdrantConfig   `koanf:"qdrant"`
	Chunker  ChunkerConfig  `koanf:"chunker"`
	Pipeline PipelineConfig `koanf:"pipeline"`
	Store    StoreConfig    `koanf:"store"`
	Server   ServerConfig   `koanf:"server"`
	NATS     NATSConfig     `koanf:"nats"`

	k *koanf.Koanf
}

// GitHubConfig locates the documentation repository.
type GitHubConfig struct {
	AuthKey           Secret   `koanf:"auth_key"`
	Owner             string   `koanf:"owner"`
	Repo              string   `koanf:"repo"`
	DocsPath          string   `koanf:"docs_path"`
	PrimaryLanguage   string   `koanf:"primary_language"`
	Extensions        []string `koanf:"extensions"`
	RequestsPerSecond float64  `koanf:"requests_per_second"`
	BaseURL           string   `koanf:"base_url"`
}

// OpenAIConfig selects the embedding provider.
type OpenAIConfig struct {
	Provider       string `koanf:"provider"`
	APIKey         Secret `koanf:"api_key"`
	BaseURL        string `koanf:"base_url"`
	EmbeddingModel string `koanf:"embedding_model"`
}

// QdrantConfig locates the Qdrant server.
type QdrantConfig struct {
	URL              string `koanf:"url"`
	Host             string `koanf:"host"`
	Port             int    `koanf:"port"`
	APIKey           Secret `koanf:"api_key"`
	UseTLS           bool   `koanf:"use_tls"`
	CollectionPrefix string `koanf:"collection_prefix"`
}

// ChunkerConfig controls splitting.
type ChunkerConfig struct {
	MaxTokens int    `koanf:"max_tokens"`
	Encoding  string `koanf:"encoding"`
}

// PipelineConfig sizes the indexing stages.
type PipelineConfig struct {
	FetchBatchSize   int      `koanf:"fetch_batch_size"`
	EmbedBatchSize   int      `koanf:"embed_batch_size"`
	PublishBatchSize int      `koanf:"publish_batch_size"`
	FinalizeTimeout  Duration `koanf:"finalize_timeout"`

	// RunRetries is how many times the index command re-runs a failed
	// pipeline whose failure is retryable. 0 disables retries.
	RunRetries int `koanf:"run_retries"`
}

// StoreConfig selects the vector store.
type StoreConfig struct {
	Backend         string `koanf:"backend"`
	ChromemPath     string `koanf:"chromem_path"`
	ChromemCompress bool   `koanf:"chromem_compress"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	HTTPHost        string   `koanf:"http_host"`
	HTTPPort        int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// NATSConfig enables collection-published events. Empty URL disables them.
type NATSConfig struct {
	URL     string `koanf:"url"`
	Subject string `koanf:"subject"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

var prefixPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,90}$`)

// Validate reports the first unusable setting as an *indexerr.ValidationError.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendQdrant:
		if c.Qdrant.URL == "" && c.Qdrant.Host == "" {
			return indexerr.NewValidationError("qdrant.url", "required for the qdrant backend")
		}
		if !c.Qdrant.APIKey.IsSet() {
			return indexerr.NewValidationError("qdrant.api_key", "required for the qdrant backend")
		}
	case BackendChromem:
	default:
		return indexerr.NewValidationError("store.backend", fmt.Sprintf("unknown backend %q", c.Store.Backend))
	}

	switch c.OpenAI.Provider {
	case ProviderOpenAI:
		if !c.OpenAI.APIKey.IsSet() {
			return indexerr.NewValidationError("openai.api_key", "required for the openai provider")
		}
	case ProviderTEI:
		if c.OpenAI.BaseURL == "" {
			return indexerr.NewValidationError("openai.base_url", "required for the tei provider")
		}
	default:
		return indexerr.NewValidationError("openai.provider", fmt.Sprintf("unknown provider %q", c.OpenAI.Provider))
	}

	if !prefixPattern.MatchString(c.Qdrant.CollectionPrefix) {
		return indexerr.NewValidationError("qdrant.collection_prefix", fmt.Sprintf("must match %s", prefixPattern))
	}

	sizes := []struct {
		field string
		value int
	}{
		{"chunker.max_tokens", c.Chunker.MaxTokens},
		{"pipeline.fetch_batch_size", c.Pipeline.FetchBatchSize},
		{"pipeline.embed_batch_size", c.Pipeline.EmbedBatchSize},
		{"pipeline.publish_batch_size", c.Pipeline.PublishBatchSize},
	}
	for _, s := range sizes {
		if s.value <= 0 {
			return indexerr.NewValidationError(s.field, fmt.Sprintf("must be positive, got %d", s.value))
		}
	}
	if c.Pipeline.RunRetries < 0 {
		return indexerr.NewValidationError("pipeline.run_retries", "must not be negative")
	}
	if c.Pipeline.FinalizeTimeout.Duration() <= 0 {
		return indexerr.NewValidationError("pipeline.finalize_timeout", "must be positive")
	}

	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return indexerr.NewValidationError("server.http_port", fmt.Sprintf("must be 1-65535, got %d", c.Server.HTTPPort))
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return indexerr.NewValidationError("server.shutdown_timeout", "must be positive")
	}
	return nil
}

// Section decodes the raw configuration tree under path into out. Keys
// absent from the sources leave out's existing values untouched, so out
// should be pre-filled with defaults.
func (c *Config) Section(path string, out any) error {
	if c.k == nil || !c.k.Exists(path) {
		return nil
	}
	if err := c.k.Unmarshal(path, out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.GitHub.Owner == "" {
		cfg.GitHub.Owner = "crewAIInc"
	}
	if cfg.GitHub.Repo == "" {
		cfg.GitHub.Repo = "crewAI"
	}
	if cfg.GitHub.DocsPath == "" {
		cfg.GitHub.DocsPath = "docs"
	}
	if cfg.GitHub.PrimaryLanguage == "" {
		cfg.GitHub.PrimaryLanguage = "en"
	}
	if len(cfg.GitHub.Extensions) == 0 {
		cfg.GitHub.Extensions = []string{".md", ".mdx"}
	}
	for i, ext := range cfg.GitHub.Extensions {
		cfg.GitHub.Extensions[i] = strings.TrimSpace(ext)
	}

	if cfg.OpenAI.Provider == "" {
		cfg.OpenAI.Provider = ProviderOpenAI
	}
	if cfg.OpenAI.EmbeddingModel == "" {
		cfg.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}

	if cfg.Qdrant.CollectionPrefix == "" {
		cfg.Qdrant.CollectionPrefix = "crewai-docs"
	}

	if cfg.Chunker.MaxTokens == 0 {
		cfg.Chunker.MaxTokens = 512
	}
	if cfg.Chunker.Encoding == "" {
		cfg.Chunker.Encoding = "cl100k_base"
	}

	if cfg.Pipeline.FetchBatchSize == 0 {
		cfg.Pipeline.FetchBatchSize = 10
	}
	if cfg.Pipeline.EmbedBatchSize == 0 {
		cfg.Pipeline.EmbedBatchSize = 32
	}
	if cfg.Pipeline.PublishBatchSize == 0 {
		cfg.Pipeline.PublishBatchSize = 32
	}
	if cfg.Pipeline.FinalizeTimeout == 0 {
		cfg.Pipeline.FinalizeTimeout = Duration(2 * time.Minute)
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendQdrant
	}

	if cfg.Server.HTTPHost == "" {
		cfg.Server.HTTPHost = "localhost"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.NATS.Subject == "" {
		cfg.NATS.Subject = "docindex.collection.published"
	}
}
