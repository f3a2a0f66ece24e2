package index

import (
	"context"
	"fmt"

	"github.com/xponent/shopcore/internal/config"
)

// NewStore creates the configured index backend.
// Parameters:
//   - ctx: used for remote backend setup.
//   - cfg: index configuration.
// Returns:
//   - Store: ready vector index.
//   - error: non-nil on setup failure or unknown backend.
func NewStore(ctx context.Context, cfg *config.IndexConfig) (Store, error) {
	switch cfg.Backend {
	case "local", "":
		return OpenBolt(cfg.Dir, cfg.Dimension, cfg.CompactRatio)
	case "qdrant":
		return NewQdrantStore(ctx, &QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			Collection: cfg.Qdrant.Collection,
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.UseTLS,
			Dimension:  cfg.Dimension,
		})
	default:
		return nil, fmt.Errorf("unsupported index backend: %s", cfg.Backend)
	}
}
