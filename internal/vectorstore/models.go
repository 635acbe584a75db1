package vectorstore

// Distance is the similarity metric of a collection.
type Distance string

const (
	// DistanceCosine is cosine similarity (default).
	DistanceCosine Distance = "cosine"
	// DistanceEuclid is Euclidean distance.
	DistanceEuclid Distance = "euclid"
	// DistanceDot is the dot product.
	DistanceDot Distance = "dot"
)

// FieldType is the type of a payload index.
type FieldType string

const (
	// FieldTypeText is a full-text index.
	FieldTypeText FieldType = "text"
	// FieldTypeKeyword is an exact-match index.
	FieldTypeKeyword FieldType = "keyword"
	// FieldTypeInteger is a numeric index.
	FieldTypeInteger FieldType = "integer"
)

// Point is one embedded chunk as stored in a collection.
type Point struct {
	// ID is a UUID string, unique within the collection.
	ID string

	// Vector is the embedding. Its length must equal the collection dimension.
	Vector []float32

	// Payload holds the chunk text and metadata. Values are strings,
	// integers, floats, bools or nested map[string]any.
	Payload map[string]any
}

// CollectionInfo contains metadata about a vector collection.
type CollectionInfo struct {
	// Name is the collection name.
	Name string `json:"name"`

	// PointCount is the number of vectors in the collection.
	PointCount int `json:"point_count"`

	// VectorSize is the dimensionality of vectors in this collection.
	VectorSize int `json:"vector_size"`

	// Distance is the similarity metric.
	Distance Distance `json:"distance"`
}

// SearchResult represents a search result from the vector store.
type SearchResult struct {
	// ID is the point identifier
	ID string

	// Score is the similarity score (higher = more similar)
	Score float32

	// Payload is the stored payload. Integers come back as int64.
	Payload map[string]any
}
