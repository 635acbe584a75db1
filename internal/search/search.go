package search

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/danielfsbarreto/crewai-expert/internal/indexerr"
	"github.com/danielfsbarreto/crewai-expert/internal/vectorstore"
)

const (
	// DefaultK is the number of hits returned when none is requested.
	DefaultK = 5

	// MaxK caps the number of hits per query.
	MaxK = 50

	// MaxPromptLength is the longest prompt accepted, in characters.
	MaxPromptLength = 10000
)

var tracer = otel.Tracer("crewai-expert.search")

var requestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "docindex",
		Subsystem: "search",
		Name:      "requests_total",
		Help:      "Total number of search requests by result",
	},
	[]string{"result"},
)

// Resolver names the collection readers should query.
type Resolver interface {
	CurrentCollectionName(ctx context.Context, prefix string) (string, error)
}

// QueryEmbedder turns a prompt into a vector.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Hit is one matching chunk.
type Hit struct {
	ID               string  `json:"id"`
	Score            float32 `json:"score"`
	Text             string  `json:"text"`
	SourceIdentifier string  `json:"source_identifier"`
	Order            int     `json:"order"`
}

// Response is the result of one search.
type Response struct {
	Prompt     string `json:"prompt"`
	Collection string `json:"collection"`
	Hits       []Hit  `json:"hits"`
}

// Service answers prompts against the current collection of a prefix.
type Service struct {
	store    vectorstore.Store
	resolver Resolver
	embedder QueryEmbedder
	prefix   string
	logger   *zap.Logger
}

// NewService creates a search service.
func NewService(store vectorstore.Store, resolver Resolver, embedder QueryEmbedder, prefix string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		resolver: resolver,
		embedder: embedder,
		prefix:   prefix,
		logger:   logger,
	}
}

// Prefix returns the collection prefix searched.
func (s *Service) Prefix() string {
	return s.prefix
}

// Search returns the k chunks nearest to prompt. A k of 0 means DefaultK.
// An empty prompt is rejected before any network call.
func (s *Service) Search(ctx context.Context, prompt string, k int) (_ *Response, err error) {
	ctx, span := tracer.Start(ctx, "search.Search")
	defer span.End()
	start := time.Now()
	defer func() {
		result := "success"
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		requestsTotal.WithLabelValues(result).Inc()
	}()

	prompt = strings.TrimSpace(prompt)
	k, err = validate(prompt, k)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("k", k))

	collection, err := s.resolver.CurrentCollectionName(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("resolving collection: %w", err)
	}

	vector, err := s.embedder.EmbedQuery(ctx, prompt)
	if err != nil {
		return nil, err
	}

	results, err := s.store.Query(ctx, collection, vector, k)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = hitFromResult(r)
	}

	s.logger.Debug("search completed",
		zap.String("collection", collection),
		zap.Int("k", k),
		zap.Int("hits", len(hits)),
		zap.Duration("duration", time.Since(start)),
	)
	span.SetAttributes(attribute.String("collection", collection), attribute.Int("hits", len(hits)))
	return &Response{Prompt: prompt, Collection: collection, Hits: hits}, nil
}

func validate(prompt string, k int) (int, error) {
	if prompt == "" {
		return 0, indexerr.NewValidationError("prompt", "must not be empty")
	}
	if utf8.RuneCountInString(prompt) > MaxPromptLength {
		return 0, indexerr.NewValidationError("prompt", fmt.Sprintf("exceeds %d characters", MaxPromptLength))
	}
	switch {
	case k < 0:
		return 0, indexerr.NewValidationError("k", fmt.Sprintf("must not be negative, got %d", k))
	case k == 0:
		return DefaultK, nil
	case k > MaxK:
		return MaxK, nil
	}
	return k, nil
}

func hitFromResult(r vectorstore.SearchResult) Hit {
	h := Hit{ID: r.ID, Score: r.Score}
	h.Text, _ = r.Payload["text"].(string)
	h.SourceIdentifier, _ = r.Payload["sourceIdentifier"].(string)
	switch v := r.Payload["order"].(type) {
	case int64:
		h.Order = int(v)
	case int:
		h.Order = v
	case float64:
		h.Order = int(v)
	}
	return h
}
