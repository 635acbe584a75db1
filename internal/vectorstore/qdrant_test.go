package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/danielfsbarreto/crewai-expert/internal/indexerr"
)

func TestQdrantConfig_ApplyDefaults(t *testing.T) {
	tests := []struct {
		name     string
		cfg      QdrantConfig
		wantHost string
		wantPort int
		wantTLS  bool
	}{
		{name: "empty", cfg: QdrantConfig{}, wantHost: "localhost", wantPort: 6334},
		{name: "explicit host", cfg: QdrantConfig{Host: "qdrant", Port: 7000}, wantHost: "qdrant", wantPort: 7000},
		{
			name:     "cloud url maps rest port to grpc",
			cfg:      QdrantConfig{URL: "https://xyz.cloud.qdrant.io:6333"},
			wantHost: "xyz.cloud.qdrant.io",
			wantPort: 6334,
			wantTLS:  true,
		},
		{
			name:     "url with custom port",
			cfg:      QdrantConfig{URL: "http://10.0.0.5:7334"},
			wantHost: "10.0.0.5",
			wantPort: 7334,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			require.NoError(t, cfg.ApplyDefaults())
			assert.Equal(t, tt.wantHost, cfg.Host)
			assert.Equal(t, tt.wantPort, cfg.Port)
			assert.Equal(t, tt.wantTLS, cfg.UseTLS)
			assert.Equal(t, 50*1024*1024, cfg.MaxMessageSize)
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestQdrantConfig_Validate(t *testing.T) {
	assert.ErrorIs(t, QdrantConfig{Port: 6334}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, QdrantConfig{Host: "h", Port: 70000}.Validate(), ErrInvalidConfig)

	cfg := QdrantConfig{URL: "://bad"}
	assert.ErrorIs(t, cfg.ApplyDefaults(), ErrInvalidConfig)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		schema bool
		check  func(t *testing.T, err error)
	}{
		{
			name: "not found",
			err:  status.Error(grpccodes.NotFound, "no such collection"),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrCollectionNotFound)
				assert.False(t, indexerr.IsTransport(err))
			},
		},
		{
			name:   "already exists",
			err:    status.Error(grpccodes.AlreadyExists, "exists"),
			schema: true,
			check: func(t *testing.T, err error) {
				assert.True(t, indexerr.IsSchema(err))
				assert.ErrorIs(t, err, ErrCollectionExists)
			},
		},
		{
			name:   "invalid argument on definition",
			err:    status.Error(grpccodes.InvalidArgument, "bad vector size"),
			schema: true,
			check: func(t *testing.T, err error) {
				assert.True(t, indexerr.IsSchema(err))
				assert.False(t, indexerr.Retryable(err))
			},
		},
		{
			name: "invalid argument on data call",
			err:  status.Error(grpccodes.InvalidArgument, "bad point"),
			check: func(t *testing.T, err error) {
				assert.True(t, indexerr.IsTransport(err))
				assert.False(t, indexerr.Retryable(err))
			},
		},
		{
			name: "unavailable",
			err:  status.Error(grpccodes.Unavailable, "connection refused"),
			check: func(t *testing.T, err error) {
				assert.True(t, indexerr.IsTransport(err))
				assert.True(t, indexerr.Retryable(err))
			},
		},
		{
			name: "plain error",
			err:  errors.New("broken pipe"),
			check: func(t *testing.T, err error) {
				assert.True(t, indexerr.IsTransport(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("op", "docs", tt.err, tt.schema)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestQdrantDistanceMapping(t *testing.T) {
	for _, d := range []Distance{DistanceCosine, DistanceEuclid, DistanceDot} {
		qd, err := qdrantDistance(d)
		require.NoError(t, err)
		assert.Equal(t, d, fromQdrantDistance(qd))
	}
	_, err := qdrantDistance("manhattan")
	assert.Error(t, err)

	_, err = qdrantFieldType("geo")
	assert.Error(t, err)
	ft, err := qdrantFieldType(FieldTypeInteger)
	require.NoError(t, err)
	assert.Equal(t, qdrant.FieldType_FieldTypeInteger, ft)
}

func TestFromQdrantPayload(t *testing.T) {
	payload, err := qdrant.TryValueMap(map[string]any{
		"text":  "hello",
		"order": 3,
		"score": 0.25,
		"draft": false,
		"metadata": map[string]any{
			"sourceIdentifier": "docs/en/a.md",
			"order":            3,
		},
	})
	require.NoError(t, err)

	out := fromQdrantPayload(payload)
	assert.Equal(t, "hello", out["text"])
	assert.Equal(t, int64(3), out["order"])
	assert.Equal(t, 0.25, out["score"])
	assert.Equal(t, false, out["draft"])
	assert.Equal(t, map[string]any{"sourceIdentifier": "docs/en/a.md", "order": int64(3)}, out["metadata"])
	assert.Nil(t, fromQdrantPayload(nil))
}

func TestNewStore_UnknownBackend(t *testing.T) {
	_, err := NewStore(context.Background(), "milvus", QdrantConfig{}, ChromemConfig{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	store, err := NewStore(context.Background(), BackendChromem, QdrantConfig{}, ChromemConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &ChromemStore{}, store)
}
