package embeddings

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/tmc/langchaingo/llms/openai"

	"github.com/danielfsbarreto/crewai-expert/internal/indexerr"
)

// OpenAIClient creates embeddings through the OpenAI API.
type OpenAIClient struct {
	llm   *openai.LLM
	model string
}

// NewOpenAIClient creates a client for the OpenAI embeddings endpoint.
func NewOpenAIClient(cfg Config) (*OpenAIClient, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("%w: api key required", ErrInvalidConfig)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey.Value()),
		openai.WithEmbeddingModel(model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}
	return &OpenAIClient{llm: llm, model: model}, nil
}

// CreateEmbedding embeds texts in a single request.
func (c *OpenAIClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	vectors, err := c.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, indexerr.NewTransportError("create_embedding", c.model, statusFromMessage(err), err)
	}
	return vectors, nil
}

// Model returns the embedding model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

var statusPattern = regexp.MustCompile(`status code:? (\d{3})`)

// statusFromMessage recovers the HTTP status from a langchaingo error, which
// only reports it in the message text. Returns 0 when none is present.
func statusFromMessage(err error) int {
	m := statusPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	code, _ := strconv.Atoi(m[1])
	return code
}
