package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/danielfsbarreto/crewai-expert/internal/indexerr"
)

const (
	chromemBackend = "chromem"

	// Reserved collections. Their leading underscore can never match
	// collectionNamePattern, so user collections cannot collide with them.
	aliasCollection  = "_aliases"
	schemaCollection = "_schema"

	metaTarget    = "target"
	metaDimension = "dimension"
	metaDistance  = "distance"
	metaIndexes   = "indexes"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("crewai-expert.vectorstore.chromem")

// ChromemConfig holds configuration for chromem-go embedded vector database.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty keeps everything
	// in memory.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool
}

// ChromemStore implements the Store interface using chromem-go.
//
// chromem-go stores only string metadata, so payload values are kept as
// JSON and decoded on read. Collection schema and aliases live in reserved
// collections of the same database, which keeps them persistent alongside
// the data when a Path is configured.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger

	// mu serialises schema and alias changes.
	mu sync.Mutex
}

// NewChromemStore creates a new ChromemStore with the given configuration.
func NewChromemStore(cfg ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		expandedPath, err := expandChromemPath(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(expandedPath, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
		}
		db, err = chromem.NewPersistentDB(expandedPath, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
		cfg.Path = expandedPath
	}

	logger.Info("ChromemStore initialized",
		zap.String("path", cfg.Path),
		zap.Bool("persistent", cfg.Path != ""),
		zap.Bool("compress", cfg.Compress),
	)

	return &ChromemStore{db: db, config: cfg, logger: logger}, nil
}

// expandChromemPath expands ~ to home directory.
func expandChromemPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// noEmbedding is handed to chromem so it never falls back to its default
// OpenAI embedder; every vector is supplied by the caller.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem store requires precomputed embeddings")
}

// Close is a no-op; persistent databases are written on every change.
func (s *ChromemStore) Close() error {
	return nil
}

// Health always succeeds for the embedded store.
func (s *ChromemStore) Health(context.Context) error {
	return nil
}

// CreateCollection creates a new collection with the specified configuration.
func (s *ChromemStore) CreateCollection(ctx context.Context, name string, dimension int, distance Distance) (err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.CreateCollection")
	defer span.End()
	start := time.Now()
	defer func() { observe(chromemBackend, "create_collection", start, err) }()

	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("vector_size", dimension),
	)

	if err := ValidateCollectionName(name); err != nil {
		return indexerr.NewSchemaError("create_collection", name, err)
	}
	if dimension <= 0 {
		return indexerr.NewSchemaError("create_collection", name, fmt.Errorf("vector size must be positive, got %d", dimension))
	}
	if distance == "" {
		distance = DistanceCosine
	}
	if distance != DistanceCosine {
		// chromem-go only implements cosine similarity.
		return indexerr.NewSchemaError("create_collection", name, fmt.Errorf("unsupported distance %q", distance))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db.GetCollection(name, noEmbedding) != nil {
		return indexerr.NewSchemaError("create_collection", name, ErrCollectionExists)
	}

	if _, err = s.db.CreateCollection(name, nil, noEmbedding); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return indexerr.NewSchemaError("create_collection", name, err)
	}

	schema := map[string]string{
		metaDimension: strconv.Itoa(dimension),
		metaDistance:  string(distance),
	}
	if err = s.putReserved(ctx, schemaCollection, name, schema); err != nil {
		_ = s.db.DeleteCollection(name)
		return indexerr.NewSchemaError("create_collection", name, err)
	}

	s.logger.Debug("created chromem collection",
		zap.String("collection", name),
		zap.Int("vector_size", dimension),
	)
	span.SetStatus(codes.Ok, "success")
	return nil
}

// CreatePayloadIndex records the requested index. chromem-go filters by
// scanning metadata, so no physical index is built.
func (s *ChromemStore) CreatePayloadIndex(ctx context.Context, name, field string, fieldType FieldType) (err error) {
	start := time.Now()
	defer func() { observe(chromemBackend, "create_payload_index", start, err) }()

	switch fieldType {
	case FieldTypeText, FieldTypeKeyword, FieldTypeInteger:
	default:
		return indexerr.NewSchemaError("create_payload_index", name, fmt.Errorf("unsupported field type %q", fieldType))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	schema, err := s.getReserved(ctx, schemaCollection, name)
	if err != nil {
		return fmt.Errorf("create_payload_index %s: %w", name, ErrCollectionNotFound)
	}
	indexes := schema[metaIndexes]
	if indexes != "" {
		indexes += ","
	}
	schema[metaIndexes] = indexes + field + ":" + string(fieldType)
	return s.putReserved(ctx, schemaCollection, name, schema)
}

// Upsert writes points to a collection.
func (s *ChromemStore) Upsert(ctx context.Context, name string, points []Point) (err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()
	start := time.Now()
	defer func() { observe(chromemBackend, "upsert", start, err) }()

	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("point_count", len(points)),
	)

	if len(points) == 0 {
		return nil
	}

	col := s.db.GetCollection(name, noEmbedding)
	if col == nil {
		return fmt.Errorf("upsert %s: %w", name, ErrCollectionNotFound)
	}
	dimension, _, err := s.schema(ctx, name)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, len(points))
	for i, p := range points {
		if len(p.Vector) != dimension {
			return indexerr.NewSchemaError("upsert", name,
				fmt.Errorf("point %s has vector length %d, want %d", p.ID, len(p.Vector), dimension))
		}
		vector, err := normalize(p.Vector)
		if err != nil {
			return indexerr.NewSchemaError("upsert", name, fmt.Errorf("point %s: %w", p.ID, err))
		}
		metadata, err := encodePayload(p.Payload)
		if err != nil {
			return indexerr.NewSchemaError("upsert", name, fmt.Errorf("point %s payload: %w", p.ID, err))
		}
		text, _ := p.Payload["text"].(string)
		docs[i] = chromem.Document{
			ID:        p.ID,
			Metadata:  metadata,
			Embedding: vector,
			Content:   text,
		}
	}

	if err = col.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return indexerr.NewTransportError("upsert", name, 0, err)
	}

	PointsWritten.WithLabelValues(chromemBackend).Add(float64(len(points)))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// GetCollectionInfo returns metadata about a collection.
func (s *ChromemStore) GetCollectionInfo(ctx context.Context, name string) (_ *CollectionInfo, err error) {
	start := time.Now()
	defer func() { observe(chromemBackend, "get_collection_info", start, err) }()

	col := s.db.GetCollection(name, noEmbedding)
	if col == nil || strings.HasPrefix(name, "_") {
		return nil, fmt.Errorf("get_collection_info %s: %w", name, ErrCollectionNotFound)
	}
	dimension, distance, err := s.schema(ctx, name)
	if err != nil {
		return nil, err
	}
	return &CollectionInfo{
		Name:       name,
		PointCount: col.Count(),
		VectorSize: dimension,
		Distance:   distance,
	}, nil
}

// ListCollections returns all collection names except the reserved ones.
func (s *ChromemStore) ListCollections(context.Context) (_ []string, err error) {
	start := time.Now()
	defer func() { observe(chromemBackend, "list_collections", start, err) }()

	cols := s.db.ListCollections()
	names := make([]string, 0, len(cols))
	for name := range cols {
		if strings.HasPrefix(name, "_") {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// DeleteCollection deletes a collection and all its points.
func (s *ChromemStore) DeleteCollection(ctx context.Context, name string) (err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteCollection")
	defer span.End()
	start := time.Now()
	defer func() { observe(chromemBackend, "delete_collection", start, err) }()

	span.SetAttributes(attribute.String("collection", name))

	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.HasPrefix(name, "_") || s.db.GetCollection(name, noEmbedding) == nil {
		return fmt.Errorf("delete_collection %s: %w", name, ErrCollectionNotFound)
	}
	if err = s.db.DeleteCollection(name); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return indexerr.NewTransportError("delete_collection", name, 0, err)
	}
	if err = s.deleteReserved(ctx, schemaCollection, name); err != nil {
		s.logger.Warn("failed to drop collection schema", zap.String("collection", name), zap.Error(err))
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// GetAlias returns the collection an alias points to.
func (s *ChromemStore) GetAlias(ctx context.Context, alias string) (_ string, err error) {
	start := time.Now()
	defer func() { observe(chromemBackend, "get_alias", start, err) }()

	meta, err := s.getReserved(ctx, aliasCollection, alias)
	if err != nil {
		return "", ErrAliasNotFound
	}
	return meta[metaTarget], nil
}

// SwapAlias points alias at target.
func (s *ChromemStore) SwapAlias(ctx context.Context, alias, target string) (err error) {
	start := time.Now()
	defer func() { observe(chromemBackend, "swap_alias", start, err) }()

	if err := ValidateCollectionName(alias); err != nil {
		return indexerr.NewSchemaError("swap_alias", target, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db.GetCollection(target, noEmbedding) == nil {
		return fmt.Errorf("swap_alias %s: %w", target, ErrCollectionNotFound)
	}
	return s.putReserved(ctx, aliasCollection, alias, map[string]string{metaTarget: target})
}

// Query returns the k nearest points to vector.
func (s *ChromemStore) Query(ctx context.Context, name string, vector []float32, k int) (_ []SearchResult, err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Query")
	defer span.End()
	start := time.Now()
	defer func() { observe(chromemBackend, "query", start, err) }()

	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("k", k),
	)

	if k <= 0 {
		return nil, indexerr.NewValidationError("k", fmt.Sprintf("must be positive, got %d", k))
	}

	col := s.db.GetCollection(name, noEmbedding)
	if col == nil {
		return nil, fmt.Errorf("query %s: %w", name, ErrCollectionNotFound)
	}

	count := col.Count()
	if count == 0 {
		return []SearchResult{}, nil
	}
	if k > count {
		k = count
	}

	query, err := normalize(vector)
	if err != nil {
		return nil, indexerr.NewValidationError("vector", err.Error())
	}

	results, err := col.QueryEmbedding(ctx, query, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, indexerr.NewTransportError("query", name, 0, err)
	}

	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{
			ID:      r.ID,
			Score:   r.Similarity,
			Payload: decodePayload(r.Metadata),
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(out)))
	span.SetStatus(codes.Ok, "success")
	return out, nil
}

// schema returns the dimension and distance recorded for a collection.
func (s *ChromemStore) schema(ctx context.Context, name string) (int, Distance, error) {
	meta, err := s.getReserved(ctx, schemaCollection, name)
	if err != nil {
		return 0, "", fmt.Errorf("schema %s: %w", name, ErrCollectionNotFound)
	}
	dim, err := strconv.Atoi(meta[metaDimension])
	if err != nil {
		return 0, "", indexerr.NewSchemaError("schema", name, fmt.Errorf("corrupt dimension %q", meta[metaDimension]))
	}
	return dim, Distance(meta[metaDistance]), nil
}

func (s *ChromemStore) reserved(name string) (*chromem.Collection, error) {
	return s.db.GetOrCreateCollection(name, nil, noEmbedding)
}

func (s *ChromemStore) getReserved(ctx context.Context, collection, id string) (map[string]string, error) {
	col, err := s.reserved(collection)
	if err != nil {
		return nil, err
	}
	doc, err := col.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	meta := make(map[string]string, len(doc.Metadata))
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	return meta, nil
}

func (s *ChromemStore) putReserved(ctx context.Context, collection, id string, meta map[string]string) error {
	col, err := s.reserved(collection)
	if err != nil {
		return err
	}
	return col.AddDocument(ctx, chromem.Document{
		ID:        id,
		Metadata:  meta,
		Embedding: []float32{1},
		Content:   id,
	})
}

func (s *ChromemStore) deleteReserved(ctx context.Context, collection, id string) error {
	col, err := s.reserved(collection)
	if err != nil {
		return err
	}
	return col.Delete(ctx, nil, nil, id)
}

// normalize returns v scaled to unit length, as chromem-go expects.
func normalize(v []float32) ([]float32, error) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil, errors.New("zero-length vector")
	}
	norm := float32(1 / math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * norm
	}
	return out, nil
}

// encodePayload stores each payload value as JSON text.
func encodePayload(payload map[string]any) (map[string]string, error) {
	if payload == nil {
		return nil, nil
	}
	out := make(map[string]string, len(payload))
	for k, v := range payload {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = string(b)
	}
	return out, nil
}

// decodePayload reverses encodePayload. Whole numbers decode as int64 to
// match what Qdrant returns.
func decodePayload(meta map[string]string) map[string]any {
	if meta == nil {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, raw := range meta {
		dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			out[k] = raw
			continue
		}
		out[k] = fromJSONNumber(v)
	}
	return out
}

func fromJSONNumber(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, inner := range val {
			val[k] = fromJSONNumber(inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = fromJSONNumber(inner)
		}
		return val
	default:
		return v
	}
}

// Ensure ChromemStore implements Store interface.
var _ Store = (*ChromemStore)(nil)
