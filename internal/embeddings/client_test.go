package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielfsbarreto/crewai-expert/internal/indexerr"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"openai with key", Config{APIKey: "sk-test"}, false},
		{"openai without key", Config{Provider: "openai"}, true},
		{"tei with base url", Config{Provider: "tei", BaseURL: "http://localhost:8080"}, false},
		{"tei without base url", Config{Provider: "tei"}, true},
		{"unknown provider", Config{Provider: "fastembed"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(Config{Provider: "tei", BaseURL: "http://localhost:8080/"})
	require.NoError(t, err)
	tei, ok := c.(*TEIClient)
	require.True(t, ok)
	assert.Equal(t, DefaultModel, tei.Model())
	assert.Equal(t, "http://localhost:8080", tei.baseURL)

	c, err = NewClient(Config{APIKey: "sk-test", Model: "text-embedding-3-large"})
	require.NoError(t, err)
	oa, ok := c.(*OpenAIClient)
	require.True(t, ok)
	assert.Equal(t, "text-embedding-3-large", oa.Model())
}

func TestTEIClient_CreateEmbedding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req teiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Truncate)

		out := make([][]float32, len(req.Inputs))
		for i := range out {
			out[i] = []float32{float32(i), 1}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer server.Close()

	c, err := NewTEIClient(Config{BaseURL: server.URL, Model: "bge-small-en-v1.5"})
	require.NoError(t, err)

	vectors, err := c.CreateEmbedding(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}, {2, 1}}, vectors)

	_, err = c.CreateEmbedding(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestTEIClient_ErrorStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"overloaded", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"payload too large", http.StatusRequestEntityTooLarge, false},
		{"bad request", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			c, err := NewTEIClient(Config{BaseURL: server.URL})
			require.NoError(t, err)

			_, err = c.CreateEmbedding(context.Background(), []string{"a"})
			require.Error(t, err)

			var te *indexerr.TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.status, te.Status)
			assert.Contains(t, te.Error(), "nope")
			assert.Equal(t, tt.retryable, indexerr.Retryable(err))
		})
	}
}

func TestOpenAIClient_CreateEmbedding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)

		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(i), 0.5},
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 2, "total_tokens": 2},
		})
	}))
	defer server.Close()

	c, err := NewOpenAIClient(Config{APIKey: "sk-test", BaseURL: server.URL})
	require.NoError(t, err)

	vectors, err := c.CreateEmbedding(context.Background(), []string{"agents", "tasks"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 0.5}, {1, 0.5}}, vectors)
}

func TestOpenAIClient_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	c, err := NewOpenAIClient(Config{APIKey: "sk-bad", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = c.CreateEmbedding(context.Background(), []string{"agents"})
	require.Error(t, err)
	assert.True(t, indexerr.IsTransport(err))
}

func TestStatusFromMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want int
	}{
		{"API returned unexpected status code: 429: rate limited", 429},
		{"status code 503", 503},
		{"connection refused", 0},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFromMessage(assertErr(tt.msg)))
		})
	}
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
