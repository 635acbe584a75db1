package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Backend names accepted by NewStore.
const (
	BackendQdrant  = "qdrant"
	BackendChromem = "chromem"
)

// NewStore creates a Store for the named backend:
//   - "qdrant" (default): external Qdrant reached over gRPC
//   - "chromem": embedded chromem-go, used for local runs and tests
//
// Example usage:
//
//	store, err := vectorstore.NewStore(ctx, cfg.VectorStore.Backend, cfg.Qdrant, cfg.Chromem, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func NewStore(ctx context.Context, backend string, qdrantCfg QdrantConfig, chromemCfg ChromemConfig, logger *zap.Logger) (Store, error) {
	switch backend {
	case BackendQdrant, "":
		return NewQdrantStore(ctx, qdrantCfg, logger)
	case BackendChromem:
		return NewChromemStore(chromemCfg, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore backend %q (supported: qdrant, chromem)", ErrInvalidConfig, backend)
	}
}
