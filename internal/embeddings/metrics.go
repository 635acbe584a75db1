package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/danielfsbarreto/crewai-expert/internal/telemetry"
)

const embeddingsInstrumentationName = "github.com/danielfsbarreto/crewai-expert/internal/embeddings"

// Embedding operations, used as the "operation" label.
const (
	opEmbedBatch = "embed_batch"
	opEmbedQuery = "embed_query"
)

// Call describes one embedding round trip.
type Call struct {
	Model     string
	Operation string
	Texts     int
	Elapsed   time.Duration
	Err       error
}

// Metrics instruments embedding round trips.
type Metrics struct {
	latency metric.Float64Histogram
	texts   metric.Int64Histogram
	vectors metric.Int64Counter
	errors  metric.Int64Counter
}

// NewMetrics registers the embedding instruments on meter, or the global
// meter when nil.
func NewMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	in := telemetry.NewInstruments(meter, embeddingsInstrumentationName)
	m := &Metrics{
		latency: in.Seconds("docindex.embedding.generation_duration_seconds",
			"Embedding round trip latency by model and operation"),
		texts: in.Sizes("docindex.embedding.batch_size",
			"Texts per embedding request", "{text}",
			1, 2, 4, 8, 16, 32, 64, 128),
		vectors: in.Counter("docindex.embedding.vectors_total",
			"Vectors returned by successful embedding requests", "{vector}"),
		errors: in.Counter("docindex.embedding.errors_total",
			"Failed embedding round trips by model and operation", "{error}"),
	}
	if err := in.Err(); err != nil {
		logger.Warn("some embedding instruments are disabled", zap.Error(err))
	}
	return m
}

// Observe records one round trip.
func (m *Metrics) Observe(ctx context.Context, c Call) {
	set := metric.WithAttributes(
		attribute.String("model", c.Model),
		attribute.String("operation", c.Operation),
	)
	m.latency.Record(ctx, c.Elapsed.Seconds(), set)
	if c.Texts > 0 {
		m.texts.Record(ctx, int64(c.Texts), set)
	}
	if c.Err != nil {
		m.errors.Add(ctx, 1, set)
		return
	}
	m.vectors.Add(ctx, int64(c.Texts), set)
}
