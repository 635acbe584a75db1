package embeddings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/danielfsbarreto/crewai-expert/internal/indexerr"
)

// DefaultBatchSize is the number of texts sent per embedding request.
const DefaultBatchSize = 32

var tracer = otel.Tracer("crewai-expert.embeddings")

// ProgressFunc is called after each completed batch with the number of texts
// embedded so far and the total.
type ProgressFunc func(completed, total int)

// Batcher embeds arbitrarily long text sequences through a Client.
//
// Texts are sent in batches of BatchSize, one batch at a time, each batch a
// single round trip. Vectors are returned in input order and all share one
// dimension.
type Batcher struct {
	client     Client
	model      string
	batchSize  int
	onProgress ProgressFunc
	metrics    *Metrics
	logger     *zap.Logger

	mu        sync.RWMutex
	dimension int
}

// Option configures a Batcher.
type Option func(*Batcher)

// WithBatchSize sets the batch size. Non-positive values are ignored.
func WithBatchSize(n int) Option {
	return func(b *Batcher) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithModel records the model name for metrics and, when the model is
// well known, fixes the expected vector dimension.
func WithModel(model string) Option {
	return func(b *Batcher) {
		b.model = model
		if dim, ok := ModelDimension(model); ok && b.dimension == 0 {
			b.dimension = dim
		}
	}
}

// WithDimension fixes the expected vector dimension.
func WithDimension(dim int) Option {
	return func(b *Batcher) {
		if dim > 0 {
			b.dimension = dim
		}
	}
}

// WithProgress registers a per-batch progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(b *Batcher) {
		b.onProgress = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Batcher) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *Metrics) Option {
	return func(b *Batcher) {
		b.metrics = m
	}
}

// NewBatcher creates a Batcher over client.
func NewBatcher(client Client, opts ...Option) *Batcher {
	b := &Batcher{
		client:    client,
		model:     DefaultModel,
		batchSize: DefaultBatchSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics == nil {
		b.metrics = NewMetrics(nil, b.logger)
	}
	return b
}

// BatchSize returns the configured batch size.
func (b *Batcher) BatchSize() int {
	return b.batchSize
}

// EmbedAll returns one vector per text, in input order.
//
// A collaborator failure is returned as a TransportError carrying the batch
// index. A response with the wrong number of vectors, or a vector whose
// length differs from the others, is a SchemaError.
func (b *Batcher) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := tracer.Start(ctx, "Batcher.EmbedAll")
	defer span.End()
	span.SetAttributes(
		attribute.Int("text_count", len(texts)),
		attribute.Int("batch_size", b.batchSize),
		attribute.String("model", b.model),
	)

	out := make([][]float32, 0, len(texts))
	expected := b.knownDimension()

	for i, batch := range embeddings.BatchTexts(texts, b.batchSize) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vectors, err := b.embedBatch(ctx, i, batch)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		for _, v := range vectors {
			if expected == 0 {
				expected = len(v)
			}
			if len(v) != expected || len(v) == 0 {
				err := indexerr.NewSchemaError("embed", "",
					fmt.Errorf("batch %d: vector length %d, want %d", i, len(v), expected))
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}
		}
		out = append(out, vectors...)

		if b.onProgress != nil {
			b.onProgress(len(out), len(texts))
		}
	}

	if expected > 0 {
		b.setDimension(expected)
	}
	span.SetStatus(codes.Ok, "success")
	return out, nil
}

func (b *Batcher) embedBatch(ctx context.Context, index int, batch []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := b.client.CreateEmbedding(ctx, batch)
	b.metrics.Observe(ctx, Call{Model: b.model, Operation: opEmbedBatch, Texts: len(batch), Elapsed: time.Since(start), Err: err})
	if err != nil {
		return nil, indexerr.NewBatchTransportError("embed", b.model, index, err)
	}
	if len(vectors) != len(batch) {
		return nil, indexerr.NewSchemaError("embed", "",
			fmt.Errorf("batch %d: got %d vectors for %d texts", index, len(vectors), len(batch)))
	}

	b.logger.Debug("embedded batch",
		zap.Int("batch", index),
		zap.Int("size", len(batch)),
		zap.Duration("duration", time.Since(start)),
	)
	return vectors, nil
}

// EmbedQuery embeds a single search prompt.
func (b *Batcher) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, indexerr.NewValidationError("prompt", "must not be empty")
	}

	start := time.Now()
	vectors, err := b.client.CreateEmbedding(ctx, []string{text})
	b.metrics.Observe(ctx, Call{Model: b.model, Operation: opEmbedQuery, Texts: 1, Elapsed: time.Since(start), Err: err})
	if err != nil {
		return nil, indexerr.NewTransportError("embed_query", b.model, 0, err)
	}
	if len(vectors) != 1 {
		return nil, indexerr.NewSchemaError("embed_query", "", fmt.Errorf("got %d vectors for 1 text", len(vectors)))
	}
	return vectors[0], nil
}

// Dimension returns the vector size produced by the model, probing the
// client once when the model is not well known.
func (b *Batcher) Dimension(ctx context.Context) (int, error) {
	if dim := b.knownDimension(); dim > 0 {
		return dim, nil
	}

	vectors, err := b.EmbedAll(ctx, []string{"dimension check"})
	if err != nil {
		return 0, fmt.Errorf("probing embedding dimension: %w", err)
	}
	return len(vectors[0]), nil
}

func (b *Batcher) knownDimension() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dimension
}

func (b *Batcher) setDimension(dim int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dimension = dim
}
