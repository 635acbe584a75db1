package collections

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/danielfsbarreto/crewai-expert/internal/indexerr"
	"github.com/danielfsbarreto/crewai-expert/internal/vectorstore"
)

// DefaultPublishBatchSize is the number of points written per upsert.
const DefaultPublishBatchSize = 32

// Payload fields that every collection indexes.
const (
	FieldText             = "text"
	FieldSourceIdentifier = "sourceIdentifier"
	FieldOrder            = "order"
)

var (
	// ErrNoCurrentCollection is returned when no alias exists and no
	// non-empty collection carries the prefix.
	ErrNoCurrentCollection = errors.New("no current collection")
)

var tracer = otel.Tracer("crewai-expert.collections")

// payloadIndexes are provisioned on every new collection.
var payloadIndexes = []struct {
	field     string
	fieldType vectorstore.FieldType
}{
	{FieldText, vectorstore.FieldTypeText},
	{FieldSourceIdentifier, vectorstore.FieldTypeKeyword},
	{FieldOrder, vectorstore.FieldTypeInteger},
}

// Summary describes one collection owned by a prefix.
type Summary struct {
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	PointCount int       `json:"point_count"`
	Current    bool      `json:"current"`
}

// FinalizeResult reports what FinalizeOrAbort did.
type FinalizeResult struct {
	// Collection is the collection that was finalized.
	Collection string `json:"collection"`

	// Published is true when the collection became current.
	Published bool `json:"published"`

	// PointCount is the number of points found in the collection.
	PointCount int `json:"point_count"`

	// Deleted lists every collection removed, including Collection itself
	// when it was empty.
	Deleted []string `json:"deleted"`

	// SweepFailed lists superseded collections that could not be deleted
	// after the alias moved. They are left for a later prune.
	SweepFailed []string `json:"sweep_failed,omitempty"`
}

// ProgressFunc receives the number of points written so far.
type ProgressFunc func(written, total int)

// Option configures a Manager.
type Option func(*Manager)

// WithPublishBatchSize overrides DefaultPublishBatchSize.
func WithPublishBatchSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.publishBatchSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithProgress registers a callback invoked after every published batch.
func WithProgress(fn ProgressFunc) Option {
	return func(m *Manager) {
		m.onProgress = fn
	}
}

// Manager creates, publishes, resolves and retires collections.
type Manager struct {
	store            vectorstore.Store
	publishBatchSize int
	onProgress       ProgressFunc
	logger           *zap.Logger
}

// NewManager creates a Manager backed by store.
func NewManager(store vectorstore.Store, opts ...Option) *Manager {
	m := &Manager{
		store:            store,
		publishBatchSize: DefaultPublishBatchSize,
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateCollection creates prefix-<uuidv7> with the standard payload indexes
// and returns its name. If any index cannot be provisioned the collection is
// deleted again and a SchemaError is returned.
func (m *Manager) CreateCollection(ctx context.Context, prefix string, dimension int, distance vectorstore.Distance) (_ string, err error) {
	ctx, span := tracer.Start(ctx, "collections.CreateCollection")
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if err := validatePrefix(prefix); err != nil {
		return "", err
	}
	if dimension <= 0 {
		return "", indexerr.NewValidationError("dimension", fmt.Sprintf("must be positive, got %d", dimension))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating collection suffix: %w", err)
	}
	name := prefix + "-" + id.String()
	span.SetAttributes(attribute.String("collection", name))

	if err := m.store.CreateCollection(ctx, name, dimension, distance); err != nil {
		return "", err
	}

	for _, idx := range payloadIndexes {
		if err := m.store.CreatePayloadIndex(ctx, name, idx.field, idx.fieldType); err != nil {
			if delErr := m.store.DeleteCollection(ctx, name); delErr != nil {
				m.logger.Error("failed to delete collection after index failure",
					zap.String("collection", name),
					zap.Error(delErr),
				)
			} else {
				CollectionsDeleted.WithLabelValues(reasonIndexFailure).Inc()
			}
			return "", indexerr.NewSchemaError("create_payload_index", name,
				fmt.Errorf("index on %s: %w", idx.field, err))
		}
	}

	CollectionsCreated.Inc()
	m.logger.Info("created collection",
		zap.String("collection", name),
		zap.Int("dimension", dimension),
	)
	return name, nil
}

// Publish writes points to the collection in sequential batches. It does
// not retry; the first failing batch aborts the write.
func (m *Manager) Publish(ctx context.Context, points []vectorstore.Point, name string) (err error) {
	ctx, span := tracer.Start(ctx, "collections.Publish")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("point_count", len(points)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	total := len(points)
	for batch, start := 0, 0; start < total; batch, start = batch+1, start+m.publishBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+m.publishBatchSize, total)

		if err := m.store.Upsert(ctx, name, points[start:end]); err != nil {
			if indexerr.IsSchema(err) {
				return fmt.Errorf("publish batch %d: %w", batch, err)
			}
			return indexerr.NewBatchTransportError("publish", name, batch, err)
		}

		m.logger.Debug("published batch",
			zap.String("collection", name),
			zap.Int("batch", batch),
			zap.Int("written", end),
			zap.Int("total", total),
		)
		if m.onProgress != nil {
			m.onProgress(end, total)
		}
	}
	return nil
}

// CurrentCollectionName resolves the collection readers should query: the
// alias target when the alias exists, else the newest non-empty collection
// of the prefix by creation stamp.
func (m *Manager) CurrentCollectionName(ctx context.Context, prefix string) (string, error) {
	if err := validatePrefix(prefix); err != nil {
		return "", err
	}

	target, err := m.store.GetAlias(ctx, prefix)
	switch {
	case err == nil:
		return target, nil
	case !errors.Is(err, vectorstore.ErrAliasNotFound):
		return "", fmt.Errorf("resolving alias %s: %w", prefix, err)
	}

	summaries, err := m.List(ctx, prefix)
	if err != nil {
		return "", err
	}
	for _, s := range summaries {
		if s.PointCount > 0 {
			return s.Name, nil
		}
	}
	return "", fmt.Errorf("%w for prefix %s", ErrNoCurrentCollection, prefix)
}

// FinalizeOrAbort closes out a run. An empty collection is deleted. A
// populated one becomes current: the alias is swapped to it first, then
// every other collection of the prefix is deleted. Once the alias has moved
// no error is returned; collections the sweep could not delete are reported
// in SweepFailed.
func (m *Manager) FinalizeOrAbort(ctx context.Context, name, prefix string) (_ *FinalizeResult, err error) {
	ctx, span := tracer.Start(ctx, "collections.FinalizeOrAbort")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", name),
		attribute.String("prefix", prefix),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	info, err := m.store.GetCollectionInfo(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("finalize %s: %w", name, err)
	}
	result := &FinalizeResult{Collection: name, PointCount: info.PointCount, Deleted: []string{}}

	if info.PointCount == 0 {
		if err := m.store.DeleteCollection(ctx, name); err != nil {
			return result, fmt.Errorf("deleting empty collection %s: %w", name, err)
		}
		CollectionsDeleted.WithLabelValues(reasonEmpty).Inc()
		result.Deleted = append(result.Deleted, name)
		m.logger.Info("deleted empty collection", zap.String("collection", name))
		return result, nil
	}

	if err := m.store.SwapAlias(ctx, prefix, name); err != nil {
		return result, fmt.Errorf("swapping alias %s to %s: %w", prefix, name, err)
	}
	AliasSwaps.Inc()
	result.Published = true
	m.logger.Info("alias swapped",
		zap.String("alias", prefix),
		zap.String("collection", name),
		zap.Int("points", info.PointCount),
	)

	deleted, failed, sweepErr := m.sweep(ctx, prefix, name, reasonSuperseded)
	result.Deleted = append(result.Deleted, deleted...)
	result.SweepFailed = failed
	if sweepErr != nil {
		span.AddEvent("sweep incomplete")
		m.logger.Warn("superseded collections left behind",
			zap.String("collection", name),
			zap.Strings("leftover", failed),
			zap.Error(sweepErr),
		)
	}
	return result, nil
}

// Abort deletes a collection from a run that did not complete. Whatever it
// holds is discarded and the alias is left alone, so the previous collection
// stays current.
func (m *Manager) Abort(ctx context.Context, name string) error {
	if err := m.store.DeleteCollection(ctx, name); err != nil {
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			return nil
		}
		return fmt.Errorf("aborting %s: %w", name, err)
	}
	CollectionsDeleted.WithLabelValues(reasonAborted).Inc()
	m.logger.Info("deleted collection of failed run", zap.String("collection", name))
	return nil
}

// List returns the collections of a prefix, newest first. Names without a
// UUIDv7 suffix are ignored.
func (m *Manager) List(ctx context.Context, prefix string) ([]Summary, error) {
	if err := validatePrefix(prefix); err != nil {
		return nil, err
	}

	names, err := m.store.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}

	current, err := m.store.GetAlias(ctx, prefix)
	if err != nil && !errors.Is(err, vectorstore.ErrAliasNotFound) {
		return nil, fmt.Errorf("resolving alias %s: %w", prefix, err)
	}

	var summaries []Summary
	for _, name := range names {
		stamp, ok := ParseStamp(name, prefix)
		if !ok {
			continue
		}
		info, err := m.store.GetCollectionInfo(ctx, name)
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			// Deleted since listing.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("inspecting %s: %w", name, err)
		}
		summaries = append(summaries, Summary{
			Name:       name,
			CreatedAt:  stamp,
			PointCount: info.PointCount,
			Current:    name == current,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].Name > summaries[j].Name
		}
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// Prune deletes every collection of the prefix except the current one.
func (m *Manager) Prune(ctx context.Context, prefix string) ([]string, error) {
	current, err := m.CurrentCollectionName(ctx, prefix)
	if err != nil {
		return nil, err
	}
	deleted, _, err := m.sweep(ctx, prefix, current, reasonPruned)
	return deleted, err
}

// sweep deletes every stamped collection of prefix other than keep. It keeps
// going past individual failures and reports them together, along with the
// names it could not delete.
func (m *Manager) sweep(ctx context.Context, prefix, keep, reason string) (deleted, failed []string, _ error) {
	names, err := m.store.ListCollections(ctx)
	if err != nil {
		return []string{}, nil, fmt.Errorf("listing collections: %w", err)
	}

	deleted = []string{}
	var errs []error
	for _, name := range names {
		if name == keep {
			continue
		}
		if _, ok := ParseStamp(name, prefix); !ok {
			continue
		}
		if err := m.store.DeleteCollection(ctx, name); err != nil {
			if errors.Is(err, vectorstore.ErrCollectionNotFound) {
				continue
			}
			m.logger.Warn("failed to delete collection",
				zap.String("collection", name),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("deleting %s: %w", name, err))
			failed = append(failed, name)
			continue
		}
		CollectionsDeleted.WithLabelValues(reason).Inc()
		deleted = append(deleted, name)
		m.logger.Info("deleted collection",
			zap.String("collection", name),
			zap.String("reason", reason),
		)
	}
	sort.Strings(deleted)
	sort.Strings(failed)
	return deleted, failed, errors.Join(errs...)
}

// ParseStamp extracts the creation time from a collection named
// prefix-<uuidv7>. It reports false for any other name.
func ParseStamp(name, prefix string) (time.Time, bool) {
	suffix, ok := strings.CutPrefix(name, prefix+"-")
	if !ok {
		return time.Time{}, false
	}
	id, err := uuid.Parse(suffix)
	if err != nil || id.Version() != 7 || id.String() != suffix {
		return time.Time{}, false
	}
	// The first 48 bits of a UUIDv7 are Unix milliseconds.
	var buf [8]byte
	copy(buf[2:], id[:6])
	ms := int64(binary.BigEndian.Uint64(buf[:]))
	return time.UnixMilli(ms).UTC(), true
}

func validatePrefix(prefix string) error {
	if err := vectorstore.ValidateCollectionName(prefix); err != nil {
		return indexerr.NewValidationError("prefix", err.Error())
	}
	return nil
}
