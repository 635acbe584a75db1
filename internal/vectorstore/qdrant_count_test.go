package vectorstore

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/danielfsbarreto/crewai-expert/internal/indexerr"
)

type fakeQdrantHealth struct {
	qdrant.UnimplementedQdrantServer
}

func (fakeQdrantHealth) HealthCheck(context.Context, *qdrant.HealthCheckRequest) (*qdrant.HealthCheckReply, error) {
	return &qdrant.HealthCheckReply{Title: "qdrant", Version: "1.16.0"}, nil
}

// fakeQdrantCollections reports an approximate count that lags the data.
type fakeQdrantCollections struct {
	qdrant.UnimplementedCollectionsServer
	approximate uint64
}

func (f *fakeQdrantCollections) Get(_ context.Context, req *qdrant.GetCollectionInfoRequest) (*qdrant.GetCollectionInfoResponse, error) {
	if req.GetCollectionName() == "missing" {
		return nil, status.Error(grpccodes.NotFound, "collection not found")
	}
	return &qdrant.GetCollectionInfoResponse{Result: &qdrant.CollectionInfo{
		PointsCount: qdrant.PtrOf(f.approximate),
		Config: &qdrant.CollectionConfig{Params: &qdrant.CollectionParams{
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{Size: 4, Distance: qdrant.Distance_Dot}),
		}},
	}}, nil
}

type fakeQdrantPoints struct {
	qdrant.UnimplementedPointsServer
	exact uint64
	fail  bool

	mu       sync.Mutex
	requests []*qdrant.CountPoints
}

func (f *fakeQdrantPoints) Count(_ context.Context, req *qdrant.CountPoints) (*qdrant.CountResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.fail {
		return nil, status.Error(grpccodes.Unavailable, "count unavailable")
	}
	return &qdrant.CountResponse{Result: &qdrant.CountResult{Count: f.exact}}, nil
}

// startFakeQdrant serves the given services on a loopback port and returns a
// store connected to it.
func startFakeQdrant(t *testing.T, cols *fakeQdrantCollections, pts *fakeQdrantPoints) *QdrantStore {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	qdrant.RegisterQdrantServer(srv, fakeQdrantHealth{})
	qdrant.RegisterCollectionsServer(srv, cols)
	qdrant.RegisterPointsServer(srv, pts)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	store, err := NewQdrantStore(context.Background(), QdrantConfig{
		Host: "127.0.0.1",
		Port: lis.Addr().(*net.TCPAddr).Port,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestQdrantStore_GetCollectionInfoCountsExactly(t *testing.T) {
	tests := []struct {
		name        string
		approximate uint64
		exact       uint64
	}{
		{name: "approximate lags behind", approximate: 96, exact: 100},
		{name: "approximate runs ahead", approximate: 7, exact: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pts := &fakeQdrantPoints{exact: tt.exact}
			store := startFakeQdrant(t, &fakeQdrantCollections{approximate: tt.approximate}, pts)

			info, err := store.GetCollectionInfo(context.Background(), "crewai-docs-x")
			require.NoError(t, err)
			assert.Equal(t, int(tt.exact), info.PointCount)
			assert.Equal(t, 4, info.VectorSize)
			assert.Equal(t, DistanceDot, info.Distance)

			pts.mu.Lock()
			defer pts.mu.Unlock()
			require.Len(t, pts.requests, 1)
			assert.Equal(t, "crewai-docs-x", pts.requests[0].GetCollectionName())
			assert.True(t, pts.requests[0].GetExact())
		})
	}
}

func TestQdrantStore_GetCollectionInfoErrors(t *testing.T) {
	t.Run("missing collection", func(t *testing.T) {
		pts := &fakeQdrantPoints{}
		store := startFakeQdrant(t, &fakeQdrantCollections{}, pts)

		_, err := store.GetCollectionInfo(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrCollectionNotFound)
		assert.Empty(t, pts.requests)
	})

	t.Run("count unavailable", func(t *testing.T) {
		store := startFakeQdrant(t, &fakeQdrantCollections{approximate: 5}, &fakeQdrantPoints{fail: true})

		_, err := store.GetCollectionInfo(context.Background(), "crewai-docs-x")
		var te *indexerr.TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "count", te.Op)
	})
}
