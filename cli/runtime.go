package cli

import (
	"context"
	"fmt"

	"github.com/smallnest/murmur/config"
	"github.com/smallnest/murmur/embeddings"
	"github.com/smallnest/murmur/internal/logger"
	"github.com/smallnest/murmur/jobs"
	"github.com/smallnest/murmur/memory"
	"github.com/smallnest/murmur/vectorstore"
	"go.uber.org/zap"
)

// runtime bundles the wired memory subsystem for one command run.
type runtime struct {
	cfg      *config.Config
	store    *memory.Store
	index    vectorstore.Index
	provider embeddings.Provider
	searcher *memory.Searcher
	vectors  *jobs.VectorJobs
}

// openRuntime wires the store, index and embedding provider from the
// loaded configuration.
func openRuntime(ctx context.Context) (*runtime, error) {
	cfg := config.Get()
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}

	dbPath, err := config.DatabasePath(cfg)
	if err != nil {
		return nil, err
	}
	store, err := memory.NewStore(dbPath)
	if err != nil {
		return nil, err
	}

	index, err := vectorstore.Open(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	if err := index.Ensure(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to prepare vector index: %w", err)
	}

	provider, err := embeddings.New(cfg.Embedding)
	if err != nil {
		index.Close()
		store.Close()
		return nil, err
	}

	return &runtime{
		cfg:      cfg,
		store:    store,
		index:    index,
		provider: provider,
		searcher: memory.NewSearcher(store, index, provider, cfg.Ranking),
		vectors:  jobs.NewVectorJobs(index, provider),
	}, nil
}

func (r *runtime) close() {
	if err := r.index.Close(); err != nil {
		logger.Error("failed to close vector index", zap.Error(err))
	}
	if err := r.provider.Close(); err != nil {
		logger.Error("failed to close embedding provider", zap.Error(err))
	}
	if err := r.store.Close(); err != nil {
		logger.Error("failed to close memory store", zap.Error(err))
	}
}
