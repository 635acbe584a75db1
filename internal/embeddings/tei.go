package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/danielfsbarreto/crewai-expert/internal/indexerr"
)

// TEIClient creates embeddings through a Text Embeddings Inference server
// (POST {base}/embed).
type TEIClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// teiRequest is the request body for TEI embed endpoint.
type teiRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate"`
}

// NewTEIClient creates a TEI client.
func NewTEIClient(cfg Config) (*TEIClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	return &TEIClient{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  &http.Client{},
	}, nil
}

// CreateEmbedding embeds texts in a single request.
func (s *TEIClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	body, err := json.Marshal(teiRequest{Inputs: texts, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, indexerr.NewTransportError("create_embedding", s.model, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, indexerr.NewTransportError("create_embedding", s.model, resp.StatusCode,
			errors.New(strings.TrimSpace(string(respBody))))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, indexerr.NewTransportError("create_embedding", s.model, resp.StatusCode,
			fmt.Errorf("decoding response: %w", err))
	}
	return vectors, nil
}

// Model returns the embedding model name.
func (s *TEIClient) Model() string {
	return s.model
}
