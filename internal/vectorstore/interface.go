package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrCollectionExists is returned when attempting to create an existing collection.
	ErrCollectionExists = errors.New("collection already exists")

	// ErrAliasNotFound is returned when an alias does not exist.
	ErrAliasNotFound = errors.New("alias not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to Qdrant")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// collectionNamePattern validates collection and alias names.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,127}$`)

// ValidateCollectionName validates a collection or alias name.
// Pattern: ^[a-z0-9][a-z0-9_-]{0,127}$
// Rejects: uppercase, dots, slashes, spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern %s, got %q", ErrInvalidCollectionName, collectionNamePattern, name)
	}
	return nil
}

// Store is the vector-store collaborator of the indexing pipeline.
//
// A store holds named collections of points, each collection with a fixed
// vector dimension and distance metric. Aliases give readers a stable name
// that can be repointed from one collection to another in a single step.
//
// Implementations:
//   - QdrantStore: external Qdrant over gRPC
//   - ChromemStore: embedded chromem-go, in memory or persisted to disk
//
// Network failures are returned as *indexerr.TransportError; rejected
// collection or index definitions as *indexerr.SchemaError. Implementations
// never retry.
type Store interface {
	// CreateCollection creates an empty collection. Returns ErrCollectionExists
	// (wrapped in a SchemaError) if the name is taken.
	CreateCollection(ctx context.Context, name string, dimension int, distance Distance) error

	// CreatePayloadIndex provisions a secondary index on a payload field.
	CreatePayloadIndex(ctx context.Context, name, field string, fieldType FieldType) error

	// Upsert writes points to a collection in one request.
	Upsert(ctx context.Context, name string, points []Point) error

	// GetCollectionInfo returns the collection's schema and point count, or
	// ErrCollectionNotFound.
	GetCollectionInfo(ctx context.Context, name string) (*CollectionInfo, error)

	// ListCollections returns every collection name, in no particular order.
	ListCollections(ctx context.Context) ([]string, error)

	// DeleteCollection removes a collection and its points. Deleting a
	// missing collection returns ErrCollectionNotFound.
	DeleteCollection(ctx context.Context, name string) error

	// GetAlias returns the collection an alias points to, or ErrAliasNotFound.
	GetAlias(ctx context.Context, alias string) (string, error)

	// SwapAlias atomically points alias at target, creating it if needed.
	SwapAlias(ctx context.Context, alias, target string) error

	// Query returns the k points nearest to vector, best first.
	Query(ctx context.Context, name string, vector []float32, k int) ([]SearchResult, error)

	// Health reports whether the store is reachable.
	Health(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
