package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/danielfsbarreto/crewai-expert/internal/config"
	"github.com/danielfsbarreto/crewai-expert/internal/indexerr"
)

const qdrantBackend = "qdrant"

var tracer = otel.Tracer("crewai-expert.vectorstore.qdrant")

// QdrantConfig addresses a Qdrant server over gRPC.
type QdrantConfig struct {
	// URL is the Qdrant endpoint, e.g. https://xyz.cloud.qdrant.io:6333.
	// When set, Host and UseTLS are derived from it. The REST port 6333
	// is mapped to the gRPC port 6334.
	URL string

	// Host defaults to localhost.
	Host string

	// Port is the gRPC port, 6334 by default. The REST port 6333 does not
	// speak gRPC.
	Port int

	// APIKey authenticates against Qdrant Cloud.
	APIKey config.Secret

	UseTLS bool

	// MaxMessageSize caps gRPC messages in both directions. A publish
	// batch of 32 large-model vectors with payloads fits well within the
	// 50MB default.
	MaxMessageSize int
}

// ApplyDefaults derives Host, Port and UseTLS from URL and fills the rest.
func (c *QdrantConfig) ApplyDefaults() error {
	if c.URL != "" {
		u, err := url.Parse(c.URL)
		if err != nil {
			return fmt.Errorf("%w: qdrant url: %v", ErrInvalidConfig, err)
		}
		if c.Host == "" {
			c.Host = u.Hostname()
		}
		if u.Scheme == "https" {
			c.UseTLS = true
		}
		if c.Port == 0 && u.Port() != "" && u.Port() != "6333" {
			if p, err := strconv.Atoi(u.Port()); err == nil {
				c.Port = p
			}
		}
	}
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 << 20
	}
	return nil
}

// Validate reports an unusable address.
func (c QdrantConfig) Validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("%w: qdrant host is empty", ErrInvalidConfig)
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("%w: qdrant port %d out of range", ErrInvalidConfig, c.Port)
	}
	return nil
}

// QdrantStore is a Store implementation using Qdrant's native gRPC client.
//
// Every call is a single request; failures are classified and returned
// without retry, leaving retry policy to whoever drives the pipeline.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger
}

// NewQdrantStore creates a new QdrantStore and checks the connection.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if !cfg.UseTLS && cfg.APIKey.IsSet() {
		logger.Warn("qdrant API key sent over plaintext gRPC, enable TLS")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey.Value(),
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{client: client, config: cfg, logger: logger}

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Health(hctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	logger.Info("connected to qdrant",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.Bool("tls", cfg.UseTLS),
	)
	return store, nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Health performs a health check on the Qdrant connection.
func (s *QdrantStore) Health(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Health")
	defer span.End()
	start := time.Now()
	defer func() { observe(qdrantBackend, "health", start, err) }()

	if _, err = s.client.HealthCheck(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return classify("health", "", err, false)
	}
	span.SetStatus(codes.Ok, "healthy")
	return nil
}

// CreateCollection creates a new collection with the specified configuration.
func (s *QdrantStore) CreateCollection(ctx context.Context, name string, dimension int, distance Distance) (err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.CreateCollection")
	defer span.End()
	start := time.Now()
	defer func() { observe(qdrantBackend, "create_collection", start, err) }()

	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("vector_size", dimension),
		attribute.String("distance", string(distance)),
	)

	if err := ValidateCollectionName(name); err != nil {
		return indexerr.NewSchemaError("create_collection", name, err)
	}
	if dimension <= 0 {
		return indexerr.NewSchemaError("create_collection", name, fmt.Errorf("vector size must be positive, got %d", dimension))
	}
	dist, err := qdrantDistance(distance)
	if err != nil {
		return indexerr.NewSchemaError("create_collection", name, err)
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: dist,
		}),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return classify("create_collection", name, err, true)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// CreatePayloadIndex creates a payload field index and waits for it.
func (s *QdrantStore) CreatePayloadIndex(ctx context.Context, name, field string, fieldType FieldType) (err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.CreatePayloadIndex")
	defer span.End()
	start := time.Now()
	defer func() { observe(qdrantBackend, "create_payload_index", start, err) }()

	span.SetAttributes(
		attribute.String("collection", name),
		attribute.String("field", field),
		attribute.String("field_type", string(fieldType)),
	)

	ft, err := qdrantFieldType(fieldType)
	if err != nil {
		return indexerr.NewSchemaError("create_payload_index", name, err)
	}

	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: name,
		FieldName:      field,
		FieldType:      ft.Enum(),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return classify("create_payload_index", name, err, true)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Upsert writes points in a single request and waits until they are applied.
func (s *QdrantStore) Upsert(ctx context.Context, name string, points []Point) (err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Upsert")
	defer span.End()
	start := time.Now()
	defer func() { observe(qdrantBackend, "upsert", start, err) }()

	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("point_count", len(points)),
	)

	if len(points) == 0 {
		return nil
	}

	qpoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		payload, err := qdrant.TryValueMap(p.Payload)
		if err != nil {
			return indexerr.NewSchemaError("upsert", name, fmt.Errorf("point %s payload: %w", p.ID, err))
		}
		qpoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		}
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Wait:           qdrant.PtrOf(true),
		Points:         qpoints,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return classify("upsert", name, err, false)
	}

	PointsWritten.WithLabelValues(qdrantBackend).Add(float64(len(points)))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// GetCollectionInfo returns metadata about a collection.
func (s *QdrantStore) GetCollectionInfo(ctx context.Context, name string) (_ *CollectionInfo, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.GetCollectionInfo")
	defer span.End()
	start := time.Now()
	defer func() { observe(qdrantBackend, "get_collection_info", start, err) }()

	span.SetAttributes(attribute.String("collection", name))

	info, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, classify("get_collection_info", name, err, false)
	}

	// PointsCount in the collection info is approximate while segments are
	// optimized; publish verification and empty checks need the exact number.
	exact, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, classify("count", name, err, false)
	}
	pointCount := int(exact)
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()

	span.SetAttributes(attribute.Int("point_count", pointCount))
	span.SetStatus(codes.Ok, "success")
	return &CollectionInfo{
		Name:       name,
		PointCount: pointCount,
		VectorSize: int(params.GetSize()),
		Distance:   fromQdrantDistance(params.GetDistance()),
	}, nil
}

// ListCollections returns a list of all collection names.
func (s *QdrantStore) ListCollections(ctx context.Context) (_ []string, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.ListCollections")
	defer span.End()
	start := time.Now()
	defer func() { observe(qdrantBackend, "list_collections", start, err) }()

	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, classify("list_collections", "", err, false)
	}

	span.SetAttributes(attribute.Int("collection_count", len(collections)))
	span.SetStatus(codes.Ok, "success")
	return collections, nil
}

// DeleteCollection deletes a collection and all its points.
func (s *QdrantStore) DeleteCollection(ctx context.Context, name string) (err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.DeleteCollection")
	defer span.End()
	start := time.Now()
	defer func() { observe(qdrantBackend, "delete_collection", start, err) }()

	span.SetAttributes(attribute.String("collection", name))

	if err = s.client.DeleteCollection(ctx, name); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return classify("delete_collection", name, err, false)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// GetAlias returns the collection an alias points to.
func (s *QdrantStore) GetAlias(ctx context.Context, alias string) (_ string, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.GetAlias")
	defer span.End()
	start := time.Now()
	defer func() { observe(qdrantBackend, "get_alias", start, err) }()

	span.SetAttributes(attribute.String("alias", alias))

	aliases, err := s.client.ListAliases(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", classify("list_aliases", alias, err, false)
	}
	for _, a := range aliases {
		if a.GetAliasName() == alias {
			span.SetStatus(codes.Ok, "success")
			return a.GetCollectionName(), nil
		}
	}
	return "", ErrAliasNotFound
}

// SwapAlias points alias at target. An existing alias is deleted and
// recreated in the same request, which Qdrant applies atomically.
func (s *QdrantStore) SwapAlias(ctx context.Context, alias, target string) (err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.SwapAlias")
	defer span.End()
	start := time.Now()
	defer func() { observe(qdrantBackend, "swap_alias", start, err) }()

	span.SetAttributes(
		attribute.String("alias", alias),
		attribute.String("target", target),
	)

	if err := ValidateCollectionName(alias); err != nil {
		return indexerr.NewSchemaError("swap_alias", target, err)
	}

	var ops []*qdrant.AliasOperations
	current, err := s.GetAlias(ctx, alias)
	switch {
	case err == nil && current == target:
		return nil
	case err == nil:
		ops = append(ops, qdrant.NewAliasDelete(alias))
	case !errors.Is(err, ErrAliasNotFound):
		return err
	}
	ops = append(ops, qdrant.NewAliasCreate(alias, target))

	if err = s.client.UpdateAliases(ctx, ops); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return classify("swap_alias", target, err, false)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Query returns the k nearest points to vector.
func (s *QdrantStore) Query(ctx context.Context, name string, vector []float32, k int) (_ []SearchResult, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Query")
	defer span.End()
	start := time.Now()
	defer func() { observe(qdrantBackend, "query", start, err) }()

	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("k", k),
	)

	if k <= 0 {
		return nil, indexerr.NewValidationError("k", fmt.Sprintf("must be positive, got %d", k))
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, classify("query", name, err, false)
	}

	results := make([]SearchResult, len(points))
	for i, p := range points {
		results[i] = SearchResult{
			ID:      p.GetId().GetUuid(),
			Score:   p.GetScore(),
			Payload: fromQdrantPayload(p.GetPayload()),
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// classify maps a gRPC failure onto the error taxonomy. NotFound becomes
// ErrCollectionNotFound. For definition calls (schema true), rejections of
// the request itself become SchemaErrors; everything else is transport.
func classify(op, collection string, err error, schema bool) error {
	st, ok := status.FromError(err)
	if ok {
		switch st.Code() {
		case grpccodes.NotFound:
			return fmt.Errorf("%s %s: %w", op, collection, ErrCollectionNotFound)
		case grpccodes.AlreadyExists:
			return indexerr.NewSchemaError(op, collection, fmt.Errorf("%w: %v", ErrCollectionExists, err))
		case grpccodes.InvalidArgument, grpccodes.FailedPrecondition:
			if schema {
				return indexerr.NewSchemaError(op, collection, err)
			}
		}
	}
	return indexerr.NewTransportError(op, collection, 0, err)
}

func qdrantDistance(d Distance) (qdrant.Distance, error) {
	switch d {
	case DistanceCosine, "":
		return qdrant.Distance_Cosine, nil
	case DistanceEuclid:
		return qdrant.Distance_Euclid, nil
	case DistanceDot:
		return qdrant.Distance_Dot, nil
	default:
		return 0, fmt.Errorf("unsupported distance %q", d)
	}
}

func fromQdrantDistance(d qdrant.Distance) Distance {
	switch d {
	case qdrant.Distance_Euclid:
		return DistanceEuclid
	case qdrant.Distance_Dot:
		return DistanceDot
	default:
		return DistanceCosine
	}
}

func qdrantFieldType(t FieldType) (qdrant.FieldType, error) {
	switch t {
	case FieldTypeText:
		return qdrant.FieldType_FieldTypeText, nil
	case FieldTypeKeyword:
		return qdrant.FieldType_FieldTypeKeyword, nil
	case FieldTypeInteger:
		return qdrant.FieldType_FieldTypeInteger, nil
	default:
		return 0, fmt.Errorf("unsupported field type %q", t)
	}
}

// fromQdrantPayload converts a protobuf payload back into plain Go values.
func fromQdrantPayload(payload map[string]*qdrant.Value) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = fromQdrantValue(v)
	}
	return out
}

func fromQdrantValue(v *qdrant.Value) any {
	switch val := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_StructValue:
		return fromQdrantPayload(val.StructValue.GetFields())
	case *qdrant.Value_ListValue:
		items := val.ListValue.GetValues()
		list := make([]any, len(items))
		for i, item := range items {
			list[i] = fromQdrantValue(item)
		}
		return list
	default:
		return nil
	}
}

// Ensure QdrantStore implements Store interface.
var _ Store = (*QdrantStore)(nil)
