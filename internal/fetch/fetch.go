// Package fetch retrieves raw document content in bounded concurrent batches.
package fetch

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielfsbarreto/crewai-expert/internal/indexerr"
	"github.com/danielfsbarreto/crewai-expert/internal/source"
)

// DefaultBatchSize is the number of documents fetched concurrently.
const DefaultBatchSize = 10

var tracer = otel.Tracer("crewai-expert.fetch")

// ProgressFunc is called after each completed document with the number of
// documents completed so far and the total.
type ProgressFunc func(completed, total int)

// Coordinator fetches documents from a Source.
//
// Documents are fetched in batches of BatchSize. All fetches in a batch run
// concurrently and the next batch starts only after the whole batch has
// completed, so at most BatchSize requests are ever in flight.
type Coordinator struct {
	source     source.Source
	batchSize  int
	onProgress ProgressFunc
	logger     *zap.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithBatchSize sets the batch size. Non-positive values are ignored.
func WithBatchSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithProgress registers a per-document progress callback. The callback may
// be invoked from several goroutines at once.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Coordinator) {
		c.onProgress = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCoordinator creates a Coordinator over src.
func NewCoordinator(src source.Source, opts ...Option) *Coordinator {
	c := &Coordinator{
		source:    src,
		batchSize: DefaultBatchSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BatchSize returns the configured batch size.
func (c *Coordinator) BatchSize() int {
	return c.batchSize
}

// Fetch retrieves the content of every identifier.
//
// The result has one Document per identifier at the same index. The first
// failure cancels the rest of its batch and is returned as a TransportError
// carrying the identifier and batch index; no partial result is returned.
func (c *Coordinator) Fetch(ctx context.Context, ids []string) ([]source.Document, error) {
	ctx, span := tracer.Start(ctx, "Coordinator.Fetch")
	defer span.End()
	span.SetAttributes(
		attribute.Int("document_count", len(ids)),
		attribute.Int("batch_size", c.batchSize),
	)

	docs := make([]source.Document, len(ids))
	var completed atomic.Int64

	for batch, start := 0, 0; start < len(ids); batch, start = batch+1, start+c.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(start+c.batchSize, len(ids))
		if err := c.fetchBatch(ctx, batch, ids, start, end, docs, &completed); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		c.logger.Debug("fetched batch",
			zap.Int("batch", batch),
			zap.Int("completed", end),
			zap.Int("total", len(ids)),
		)
	}

	span.SetStatus(codes.Ok, "success")
	return docs, nil
}

// fetchBatch fetches ids[start:end] concurrently, writing each result into
// docs at its own index.
func (c *Coordinator) fetchBatch(ctx context.Context, batch int, ids []string, start, end int, docs []source.Document, completed *atomic.Int64) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := start; i < end; i++ {
		g.Go(func() error {
			id := ids[i]
			content, err := c.source.GetContent(gctx, id)
			if err != nil {
				return indexerr.NewBatchTransportError("fetch", id, batch, err)
			}
			docs[i] = source.Document{Identifier: id, Content: content}

			n := completed.Add(1)
			if c.onProgress != nil {
				c.onProgress(int(n), len(ids))
			}
			return nil
		})
	}

	return g.Wait()
}
