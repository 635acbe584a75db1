package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danielfsbarreto/crewai-expert/internal/config"
)

var (
	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyInput indicates empty or nil input texts
	ErrEmptyInput = errors.New("empty or nil input texts")
)

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "text-embedding-3-small"

// Client maps a batch of texts to vectors in one round trip.
//
// The returned slice must be parallel to texts. It matches langchaingo's
// embeddings.EmbedderClient so any langchaingo LLM with embedding support
// can be used directly.
type Client interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Config holds configuration for creating an embedding client.
type Config struct {
	// Provider is "openai" (default) or "tei".
	Provider string

	// APIKey authenticates against OpenAI. Required for the openai provider.
	APIKey config.Secret

	// BaseURL overrides the API endpoint. Required for the tei provider.
	BaseURL string

	// Model is the embedding model name.
	Model string
}

// Validate validates the configuration.
func (c Config) Validate() error {
	switch c.Provider {
	case "", "openai":
		if !c.APIKey.IsSet() {
			return fmt.Errorf("%w: api key required", ErrInvalidConfig)
		}
	case "tei":
		if c.BaseURL == "" {
			return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider)
	}
	return nil
}

// NewClient creates an embedding client based on the configuration.
func NewClient(cfg Config) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	switch cfg.Provider {
	case "tei":
		return NewTEIClient(cfg)
	default:
		return NewOpenAIClient(cfg)
	}
}

// modelDimensions lists the vector sizes of well-known models.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"bge-small-en-v1.5":      384,
	"bge-base-en-v1.5":       768,
	"bge-large-en-v1.5":      1024,
	"all-minilm-l6-v2":       384,
	"nomic-embed-text":       768,
}

// ModelDimension returns the vector size for a known model.
// Organisation prefixes such as "BAAI/" are ignored.
func ModelDimension(model string) (int, bool) {
	name := strings.ToLower(model)
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	dim, ok := modelDimensions[name]
	return dim, ok
}
