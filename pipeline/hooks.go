// Package pipeline exposes the vector memory to the reply pipeline:
// pre-planner highlights, boundary proximity checks and novelty scoring.
// Every hook degrades to a neutral value on failure so the pipeline
// never stalls on memory.
package pipeline

import (
	"context"
	"time"

	"github.com/smallnest/murmur/config"
	"github.com/smallnest/murmur/embeddings"
	"github.com/smallnest/murmur/internal/logger"
	"github.com/smallnest/murmur/vectorstore"
	"go.uber.org/zap"
)

// Hooks binds the memory subsystem into the reply pipeline.
type Hooks struct {
	index    vectorstore.Index
	provider embeddings.Provider
	cfg      *config.Config
}

// NewHooks wires the pipeline hooks.
func NewHooks(index vectorstore.Index, provider embeddings.Provider, cfg *config.Config) *Hooks {
	return &Hooks{index: index, provider: provider, cfg: cfg}
}

// HighlightsForPlanner returns snippets of past atoms similar to the
// user's input, for the planner's extra context. Disabled or failing
// retrieval yields nil, never an error.
func (h *Hooks) HighlightsForPlanner(ctx context.Context, userText, sessionID string) []string {
	pipe := h.cfg.Pipeline
	if !pipe.PreplannerEnabled {
		return nil
	}
	if h.index == nil || h.provider == nil {
		logger.Debug("vector memory disabled, no highlights")
		return nil
	}

	queryVector := h.provider.Embed(ctx, userText)

	scopeSession := ""
	if pipe.SameSessionOnly {
		scopeSession = sessionID
	}
	flt := vectorstore.ScopeFilter(scopeSession, pipe.SearchScopeDays, pipe.SameSessionOnly, vectorstore.KindAtom)

	hits, err := h.index.Search(ctx, queryVector, 5, flt)
	if err != nil {
		logger.Error("highlight retrieval failed", zap.Error(err))
		return nil
	}
	if len(hits) == 0 {
		return nil
	}

	ranked := vectorstore.Rerank(hits, h.cfg.Ranking, time.Now())
	reordered := make([]vectorstore.Hit, len(ranked))
	for i, rh := range ranked {
		reordered[i] = rh.Hit
	}

	snippets := vectorstore.ExtractSnippets(reordered, pipe.HighlightCount, pipe.HighlightMaxLength)
	logger.Info("planner highlights prepared", zap.Int("snippets", len(snippets)))
	return snippets
}

// CheckBoundaryProximity reports whether the user's input lands near a
// boundary pin, returning the closest boundary payload when it does.
// Failures report no proximity.
func (h *Hooks) CheckBoundaryProximity(ctx context.Context, userText, sessionID string) (vectorstore.Payload, bool) {
	if h.index == nil || h.provider == nil {
		return nil, false
	}

	queryVector := h.provider.Embed(ctx, userText)
	flt := vectorstore.ScopeFilter(sessionID, 0, sessionID != "", vectorstore.KindPin)

	hits, err := h.index.Search(ctx, queryVector, 3, flt)
	if err != nil {
		logger.Error("boundary check failed", zap.Error(err))
		return nil, false
	}

	threshold := h.cfg.Pipeline.BoundaryThreshold
	for _, hit := range hits {
		isBoundary, _ := hit.Payload["boundary"].(bool)
		if pinType, ok := hit.Payload["type"].(string); ok && pinType == "boundary" {
			isBoundary = true
		}
		if !isBoundary || hit.Score < threshold {
			continue
		}
		text, _ := hit.Payload["text"].(string)
		logger.Warn("boundary proximity detected",
			zap.String("text", text), zap.Float64("score", hit.Score))
		return hit.Payload, true
	}
	return nil, false
}

// NoveltyBoost scores how novel the user's input is against the recent
// messages: 1.0 for novel input, 0.5 when it repeats something recent.
// Failures report full novelty.
func (h *Hooks) NoveltyBoost(ctx context.Context, userText string, recentMessages []string) float64 {
	if h.provider == nil {
		return 1.0
	}

	threshold := h.cfg.Pipeline.NoveltyThreshold
	queryVector := h.provider.Embed(ctx, userText)

	start := len(recentMessages) - 3
	if start < 0 {
		start = 0
	}
	for _, recent := range recentMessages[start:] {
		if recent == "" {
			continue
		}
		recentVector := h.provider.Embed(ctx, recent)

		similarity, err := vectorstore.CosineSimilarity(queryVector, recentVector)
		if err != nil {
			logger.Debug("novelty comparison skipped", zap.Error(err))
			continue
		}
		if similarity >= threshold {
			logger.Info("repetition detected", zap.Float64("similarity", similarity))
			return 0.5
		}
	}
	return 1.0
}
