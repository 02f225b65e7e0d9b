package vectorstore

import (
	"fmt"

	"github.com/smallnest/murmur/config"
)

// Open constructs the index backend selected by configuration. The
// returned index still needs Ensure before use.
func Open(cfg *config.Config) (Index, error) {
	switch cfg.Vector.Backend {
	case "", "local":
		indexPath, err := config.LocalIndexPath(cfg)
		if err != nil {
			return nil, err
		}
		return NewLocalIndex(LocalOptions{
			IndexPath: indexPath,
			Dim:       cfg.Vector.Local.Dim,
			SaveEvery: cfg.Vector.Local.SaveEvery,
		})
	case "qdrant":
		return NewQdrantIndex(QdrantConfig{
			URL:        cfg.Vector.Qdrant.URL,
			APIKey:     cfg.Vector.Qdrant.APIKey,
			Collection: cfg.Vector.Qdrant.Collection,
			Dim:        cfg.Vector.Qdrant.Dim,
			Timeout:    cfg.Vector.Qdrant.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown vector backend: %s", cfg.Vector.Backend)
	}
}
