package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/danielfsbarreto/crewai-expert/internal/chunker"
	"github.com/danielfsbarreto/crewai-expert/internal/collections"
	"github.com/danielfsbarreto/crewai-expert/internal/embeddings"
	"github.com/danielfsbarreto/crewai-expert/internal/events"
	"github.com/danielfsbarreto/crewai-expert/internal/fetch"
	"github.com/danielfsbarreto/crewai-expert/internal/indexerr"
	"github.com/danielfsbarreto/crewai-expert/internal/logging"
	"github.com/danielfsbarreto/crewai-expert/internal/source"
	"github.com/danielfsbarreto/crewai-expert/internal/vectorstore"
)

// DefaultFinalizeTimeout bounds the cleanup that runs after a run ends.
const DefaultFinalizeTimeout = 2 * time.Minute

var tracer = otel.Tracer("crewai-expert.pipeline")

// Config holds the tunables of a run.
type Config struct {
	// Prefix names the collections and the alias readers follow.
	Prefix string

	// MaxTokens is the chunk token budget.
	MaxTokens int

	FetchBatchSize   int
	EmbedBatchSize   int
	PublishBatchSize int

	// EmbeddingModel selects the known vector dimension, if any.
	EmbeddingModel string

	// Distance is the similarity metric of new collections.
	Distance vectorstore.Distance

	// FinalizeTimeout bounds finalization after the run's context ends.
	FinalizeTimeout time.Duration
}

// Validate rejects a configuration before any network activity.
func (c Config) Validate() error {
	if err := vectorstore.ValidateCollectionName(c.Prefix); err != nil {
		return indexerr.NewValidationError("prefix", err.Error())
	}
	for field, v := range map[string]int{
		"max_tokens":         c.MaxTokens,
		"fetch_batch_size":   c.FetchBatchSize,
		"embed_batch_size":   c.EmbedBatchSize,
		"publish_batch_size": c.PublishBatchSize,
	} {
		if v < 0 {
			return indexerr.NewValidationError(field, fmt.Sprintf("must not be negative, got %d", v))
		}
	}
	return nil
}

// ProgressFunc reports progress within a stage. It carries no guarantees
// and exists for display only.
type ProgressFunc func(stage State, completed, total int)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPublisher announces successful runs.
func WithPublisher(pub events.Publisher) Option {
	return func(p *Pipeline) {
		if pub != nil {
			p.publisher = pub
		}
	}
}

// WithProgress registers a progress callback for fetch, chunk, embed and
// publish.
func WithProgress(fn ProgressFunc) Option {
	return func(p *Pipeline) {
		p.onProgress = fn
	}
}

// WithStateHook is called on every state transition.
func WithStateHook(fn func(State)) Option {
	return func(p *Pipeline) {
		p.onState = fn
	}
}

// Pipeline indexes a documentation source into a fresh collection and makes
// it current.
type Pipeline struct {
	cfg         Config
	source      source.Source
	store       vectorstore.Store
	fetcher     *fetch.Coordinator
	chunker     *chunker.Chunker
	embedder    *embeddings.Batcher
	collections *collections.Manager
	publisher   events.Publisher
	logger      *logging.Logger
	onProgress  ProgressFunc
	onState     func(State)
}

// New wires a pipeline from its collaborators.
func New(cfg Config, src source.Source, client embeddings.Client, store vectorstore.Store, tokenizer chunker.Tokenizer, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil || client == nil || store == nil {
		return nil, errors.New("pipeline: source, embedding client and store are required")
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = DefaultFinalizeTimeout
	}
	if cfg.Distance == "" {
		cfg.Distance = vectorstore.DistanceCosine
	}

	p := &Pipeline{
		cfg:       cfg,
		source:    src,
		store:     store,
		publisher: events.NopPublisher{},
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	zl := p.logger.Underlying()
	p.fetcher = fetch.NewCoordinator(src,
		fetch.WithBatchSize(cfg.FetchBatchSize),
		fetch.WithLogger(zl),
		fetch.WithProgress(func(done, total int) { p.progress(StateFetching, done, total) }),
	)
	p.chunker = chunker.New(tokenizer, chunker.WithMaxTokens(cfg.MaxTokens))

	embedOpts := []embeddings.Option{
		embeddings.WithBatchSize(cfg.EmbedBatchSize),
		embeddings.WithLogger(zl),
		embeddings.WithProgress(func(done, total int) { p.progress(StateEmbedding, done, total) }),
	}
	if cfg.EmbeddingModel != "" {
		embedOpts = append(embedOpts, embeddings.WithModel(cfg.EmbeddingModel))
	}
	p.embedder = embeddings.NewBatcher(client, embedOpts...)

	p.collections = collections.NewManager(store,
		collections.WithPublishBatchSize(cfg.PublishBatchSize),
		collections.WithLogger(zl),
		collections.WithProgress(func(done, total int) { p.progress(StatePublishing, done, total) }),
	)
	return p, nil
}

// run carries the state of one Run call.
type run struct {
	result     *Result
	ids        []string
	documents  []source.Document
	chunks     []chunker.Chunk
	vectors    [][]float32
	collection string
}

// Run performs one full indexing pass. The returned Result is never nil;
// on failure it records the stage that failed and err is a *StageError.
func (p *Pipeline) Run(ctx context.Context) (_ *Result, err error) {
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	ctx, span := tracer.Start(ctx, "pipeline.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.String("prefix", p.cfg.Prefix),
	)

	start := time.Now()
	r := &run{result: &Result{RunID: runID}}
	p.logger.Info(ctx, "indexing run started", zap.String("prefix", p.cfg.Prefix))

	defer func() {
		if r.collection != "" {
			err = p.finalize(ctx, r, err)
		}
		r.result.Duration = time.Since(start)

		if err != nil {
			r.result.State = StateFailed
			RunsTotal.WithLabelValues("failed").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			p.logger.Error(ctx, "indexing run failed",
				zap.String("failed_at", string(r.result.FailedAt)),
				zap.Error(err),
			)
		} else {
			r.result.State = StateDone
			RunsTotal.WithLabelValues("done").Inc()
			span.SetStatus(codes.Ok, "success")
			p.logger.Info(ctx, "indexing run done",
				zap.String("collection", r.result.Collection),
				zap.Int("documents", r.result.Documents),
				zap.Int("points", r.result.Points),
				zap.Duration("duration", r.result.Duration),
			)
		}
		p.transition(r.result.State)
	}()

	stages := []struct {
		state State
		fn    func(context.Context, *run) error
	}{
		{StateListing, p.list},
		{StateFetching, p.fetch},
		{StateChunking, p.chunk},
		{StateEmbedding, p.embed},
		{StatePublishing, p.publish},
	}
	for _, s := range stages {
		if err := p.stage(ctx, r, s.state, func(ctx context.Context) error {
			return s.fn(ctx, r)
		}); err != nil {
			return r.result, err
		}
	}
	return r.result, nil
}

// stage runs fn as state, timing it and wrapping its error.
func (p *Pipeline) stage(ctx context.Context, r *run, state State, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		r.result.FailedAt = state
		return &StageError{Stage: state, Err: err}
	}

	r.result.State = state
	p.transition(state)

	ctx = logging.WithStage(ctx, string(state))
	ctx, span := tracer.Start(ctx, "pipeline."+string(state))
	defer span.End()

	start := time.Now()
	p.logger.Debug(ctx, "stage started")
	err := fn(ctx)
	elapsed := time.Since(start)
	StageDuration.WithLabelValues(string(state)).Observe(elapsed.Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.result.FailedAt = state
		return &StageError{Stage: state, Err: err}
	}
	p.logger.Info(ctx, "stage completed", zap.Duration("duration", elapsed))
	return nil
}

func (p *Pipeline) list(ctx context.Context, r *run) error {
	ids, err := p.source.ListDocuments(ctx)
	if err != nil {
		return err
	}
	r.ids = ids
	p.logger.Info(ctx, "documents listed", zap.Int("documents", len(ids)))
	return nil
}

func (p *Pipeline) fetch(ctx context.Context, r *run) error {
	docs, err := p.fetcher.Fetch(ctx, r.ids)
	if err != nil {
		return err
	}
	r.documents = docs
	r.result.Documents = len(docs)
	return nil
}

func (p *Pipeline) chunk(ctx context.Context, r *run) error {
	total := len(r.documents)
	for i, doc := range r.documents {
		r.chunks = append(r.chunks, p.chunker.Split(doc.Identifier, doc.Content)...)
		p.progress(StateChunking, i+1, total)
	}
	// Content is not needed past this point.
	r.documents = nil

	r.result.Chunks = len(r.chunks)
	Documents.Set(float64(r.result.Documents))
	Chunks.Set(float64(len(r.chunks)))
	p.logger.Info(ctx, "documents chunked",
		zap.Int("documents", r.result.Documents),
		zap.Int("chunks", len(r.chunks)),
	)
	return nil
}

func (p *Pipeline) embed(ctx context.Context, r *run) error {
	texts := make([]string, len(r.chunks))
	for i, c := range r.chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.EmbedAll(ctx, texts)
	if err != nil {
		return err
	}
	r.vectors = vectors
	return nil
}

func (p *Pipeline) publish(ctx context.Context, r *run) error {
	dimension := 0
	if len(r.vectors) > 0 {
		dimension = len(r.vectors[0])
	} else {
		var err error
		if dimension, err = p.embedder.Dimension(ctx); err != nil {
			return err
		}
	}

	name, err := p.collections.CreateCollection(ctx, p.cfg.Prefix, dimension, p.cfg.Distance)
	if err != nil {
		return err
	}
	r.collection = name
	r.result.Collection = name

	points := BuildPoints(r.chunks, r.vectors)
	if err := p.collections.Publish(ctx, points, name); err != nil {
		return err
	}

	info, err := p.store.GetCollectionInfo(ctx, name)
	if err != nil {
		return err
	}
	if info.PointCount != len(points) {
		return indexerr.NewSchemaError("publish", name,
			fmt.Errorf("collection holds %d points, want %d", info.PointCount, len(points)))
	}
	r.result.Points = info.PointCount
	return nil
}

// finalize closes out the run's collection on a context that survives the
// caller's cancellation. A failed run discards its collection; a finished
// one is made current, or discarded with ErrEmptyIndex if it holds nothing.
func (p *Pipeline) finalize(ctx context.Context, r *run, runErr error) error {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.FinalizeTimeout)
	defer cancel()

	if runErr != nil {
		r.result.State = StateFinalizing
		p.transition(StateFinalizing)
		if err := p.collections.Abort(fctx, r.collection); err != nil {
			p.logger.Error(fctx, "failed to discard collection of failed run",
				zap.String("collection", r.collection),
				zap.Error(err),
			)
			return errors.Join(runErr, err)
		}
		r.result.Deleted = append(r.result.Deleted, r.collection)
		r.result.Points = 0
		return runErr
	}

	var fr *collections.FinalizeResult
	err := p.stage(fctx, r, StateFinalizing, func(ctx context.Context) error {
		var err error
		fr, err = p.collections.FinalizeOrAbort(ctx, r.collection, p.cfg.Prefix)
		if fr != nil {
			r.result.Deleted = fr.Deleted
			r.result.SweepFailed = fr.SweepFailed
		}
		if err != nil {
			return err
		}
		if !fr.Published {
			return ErrEmptyIndex
		}
		return nil
	})
	if err != nil {
		if fr != nil && !fr.Published {
			r.result.Points = 0
		}
		return err
	}

	event := events.CollectionPublished{
		RunID:       r.result.RunID,
		Collection:  r.collection,
		Prefix:      p.cfg.Prefix,
		Points:      r.result.Points,
		Documents:   r.result.Documents,
		Deleted:     r.result.Deleted,
		PublishedAt: time.Now().UTC(),
	}
	if err := p.publisher.PublishCollection(fctx, event); err != nil {
		p.logger.Warn(fctx, "failed to announce published collection",
			zap.String("collection", r.collection),
			zap.Error(err),
		)
	}
	return nil
}

// BuildPoints pairs each chunk with its vector. Every point gets a fresh
// random ID, so re-indexing never overwrites in place.
func BuildPoints(chunks []chunker.Chunk, vectors [][]float32) []vectorstore.Point {
	points := make([]vectorstore.Point, len(chunks))
	for i, c := range chunks {
		points[i] = vectorstore.Point{
			ID:     uuid.NewString(),
			Vector: vectors[i],
			Payload: map[string]any{
				collections.FieldText:             c.Text,
				collections.FieldSourceIdentifier: c.SourceIdentifier,
				collections.FieldOrder:            c.Order,
				"metadata": map[string]any{
					"order":            c.Order,
					"sourceIdentifier": c.SourceIdentifier,
				},
			},
		}
	}
	return points
}

func (p *Pipeline) transition(state State) {
	if p.onState != nil {
		p.onState(state)
	}
}

func (p *Pipeline) progress(state State, done, total int) {
	if p.onProgress != nil {
		p.onProgress(state, done, total)
	}
}
