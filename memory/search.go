package memory

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/smallnest/murmur/config"
	"github.com/smallnest/murmur/embeddings"
	"github.com/smallnest/murmur/internal/logger"
	"github.com/smallnest/murmur/vectorstore"
	"go.uber.org/zap"
)

// Searcher answers memory queries: it embeds the query, searches the
// vector index inside the requested scope, reranks and joins the hits
// back to their relational rows.
type Searcher struct {
	store    *Store
	index    vectorstore.Index
	provider embeddings.Provider
	ranking  config.RankingConfig
}

// NewSearcher wires the search service.
func NewSearcher(store *Store, index vectorstore.Index, provider embeddings.Provider, ranking config.RankingConfig) *Searcher {
	return &Searcher{
		store:    store,
		index:    index,
		provider: provider,
		ranking:  ranking,
	}
}

// SearchRequest scopes one memory query.
type SearchRequest struct {
	Query     string
	SessionID string
	Kind      string // atom/episode/pin, empty for all
	K         int    // defaults to 8
	Days      int    // defaults to 14, 0 disables the day floor
	Rerank    bool
}

// SearchResult is one scored memory.
type SearchResult struct {
	ID       string
	Kind     string
	Score    float64
	Text     string
	Metadata map[string]any
}

// Search runs the query. Over-fetches twice the requested k so the
// reranker has candidates to reorder, then truncates.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	k := req.K
	if k <= 0 {
		k = 8
	}

	queryVector := s.provider.Embed(ctx, req.Query)

	flt := vectorstore.ScopeFilter(req.SessionID, req.Days, req.SessionID != "", req.Kind)

	hits, err := s.index.Search(ctx, queryVector, k*2, flt)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	if req.Rerank {
		ranked := vectorstore.Rerank(hits, s.ranking, time.Now())
		if len(ranked) > k {
			ranked = ranked[:k]
		}
		for _, rh := range ranked {
			results = append(results, s.toResult(ctx, rh.Hit, rh.HybridScore))
		}
	} else {
		if len(hits) > k {
			hits = hits[:k]
		}
		for _, hit := range hits {
			results = append(results, s.toResult(ctx, hit, hit.Score))
		}
	}

	logger.Debug("memory search completed",
		zap.String("kind", req.Kind), zap.Int("results", len(results)))
	return results, nil
}

// toResult joins one hit back to its relational row. Join failures only
// cost the extra metadata, never the hit.
func (s *Searcher) toResult(ctx context.Context, hit vectorstore.Hit, score float64) SearchResult {
	payload := hit.Payload
	kind, _ := payload["kind"].(string)
	if kind == "" {
		kind = "unknown"
	}

	id := hit.ID
	if pid, ok := payload["id"].(string); ok && pid != "" {
		id = pid
	}

	metadata := make(map[string]any, len(payload)+2)
	for key, value := range payload {
		metadata[key] = value
	}
	s.joinMetadata(ctx, kind, id, metadata)

	return SearchResult{
		ID:       id,
		Kind:     kind,
		Score:    score,
		Text:     vectorstore.DisplayText(payload),
		Metadata: metadata,
	}
}

func (s *Searcher) joinMetadata(ctx context.Context, kind, id string, metadata map[string]any) {
	switch kind {
	case vectorstore.KindAtom:
		rowID, ok := numericID(id, "atom:")
		if !ok {
			return
		}
		atom, err := s.store.AtomByID(ctx, rowID)
		if err != nil || atom == nil {
			return
		}
		metadata["created_at"] = atom.TS.Format(time.RFC3339)
		metadata["author"] = atom.Author

	case vectorstore.KindEpisode:
		rowID, ok := numericID(id, "ep:")
		if !ok {
			return
		}
		ep, err := s.store.EpisodeByID(ctx, rowID)
		if err != nil || ep == nil {
			return
		}
		metadata["created_at"] = ep.TimeStart.Format(time.RFC3339)
		if !ep.TimeEnd.IsZero() {
			metadata["ended_at"] = ep.TimeEnd.Format(time.RFC3339)
		}
	}
}

// numericID strips the kind prefix from a vector id and parses the row
// id.
func numericID(id, prefix string) (int64, bool) {
	raw := strings.TrimPrefix(id, prefix)
	rowID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return rowID, true
}
