package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/smallnest/murmur/config"
	"github.com/smallnest/murmur/embeddings"
	"github.com/smallnest/murmur/vectorstore"
)

func newTestHooks(t *testing.T) (*Hooks, vectorstore.Index, embeddings.Provider) {
	t.Helper()

	index, err := vectorstore.NewLocalIndex(vectorstore.LocalOptions{
		IndexPath: filepath.Join(t.TempDir(), "vectors.index"),
		Dim:       32,
	})
	if err != nil {
		t.Fatalf("NewLocalIndex failed: %v", err)
	}
	if err := index.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	provider := embeddings.NewLocalProvider(32)
	cfg := &config.Config{
		Ranking: config.RankingConfig{
			Alpha: 1.0, Beta: 0.15, Gamma: 0.10, Delta: 0.50, HalflifeHours: 72,
		},
		Pipeline: config.PipelineConfig{
			PreplannerEnabled:  true,
			SearchScopeDays:    14,
			BoundaryThreshold:  0.7,
			NoveltyThreshold:   0.85,
			HighlightCount:     3,
			HighlightMaxLength: 150,
		},
	}
	return NewHooks(index, provider, cfg), index, provider
}

func seedAtom(t *testing.T, index vectorstore.Index, provider embeddings.Provider, id int, text string) {
	t.Helper()
	ctx := context.Background()
	payload := vectorstore.Payload{
		"kind":     vectorstore.KindAtom,
		"text":     text,
		"ts":       time.Now().UTC().Format(time.RFC3339),
		"day":      time.Now().UTC().Format("2006-01-02"),
		"salience": 0.5,
		"boundary": false,
	}
	vid := fmt.Sprintf("atom:%d", id)
	if err := index.Upsert(ctx, vid, provider.Embed(ctx, text), payload); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
}

func TestHighlightsForPlanner(t *testing.T) {
	ctx := context.Background()

	t.Run("ReturnsSnippets", func(t *testing.T) {
		hooks, index, provider := newTestHooks(t)
		seedAtom(t, index, provider, 1, "we talked about the trip to Lisbon")
		seedAtom(t, index, provider, 2, "reminder to water the plants")

		highlights := hooks.HighlightsForPlanner(ctx, "we talked about the trip to Lisbon", "s1")
		if len(highlights) == 0 {
			t.Fatal("Expected highlights for a seeded match")
		}
		if highlights[0] != "we talked about the trip to Lisbon" {
			t.Errorf("Expected the exact match first, got %q", highlights[0])
		}
	})

	t.Run("Disabled", func(t *testing.T) {
		hooks, index, provider := newTestHooks(t)
		seedAtom(t, index, provider, 1, "we talked about the trip to Lisbon")
		hooks.cfg.Pipeline.PreplannerEnabled = false

		if got := hooks.HighlightsForPlanner(ctx, "trip to Lisbon", "s1"); got != nil {
			t.Errorf("Disabled preplanner must return nil, got %v", got)
		}
	})

	t.Run("NoIndex", func(t *testing.T) {
		hooks, _, _ := newTestHooks(t)
		hooks.index = nil
		if got := hooks.HighlightsForPlanner(ctx, "anything", "s1"); got != nil {
			t.Errorf("Missing index must return nil, got %v", got)
		}
	})

	t.Run("EmptyIndex", func(t *testing.T) {
		hooks, _, _ := newTestHooks(t)
		if got := hooks.HighlightsForPlanner(ctx, "anything", "s1"); got != nil {
			t.Errorf("Empty index must return nil, got %v", got)
		}
	})
}

func TestCheckBoundaryProximity(t *testing.T) {
	ctx := context.Background()

	seedPin := func(t *testing.T, index vectorstore.Index, provider embeddings.Provider, text string, boundary bool) {
		t.Helper()
		pinType := "fact"
		if boundary {
			pinType = "boundary"
		}
		payload := vectorstore.Payload{
			"kind":     vectorstore.KindPin,
			"type":     pinType,
			"text":     text,
			"boundary": boundary,
			"ts":       time.Now().UTC().Format(time.RFC3339),
		}
		if err := index.Upsert(ctx, "pin:1", provider.Embed(ctx, text), payload); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	t.Run("Detected", func(t *testing.T) {
		hooks, index, provider := newTestHooks(t)
		seedPin(t, index, provider, "do not mention the divorce", true)

		payload, near := hooks.CheckBoundaryProximity(ctx, "do not mention the divorce", "")
		if !near {
			t.Fatal("Expected boundary proximity for identical text")
		}
		if payload["text"] != "do not mention the divorce" {
			t.Errorf("Unexpected payload: %v", payload)
		}
	})

	t.Run("FactPinIgnored", func(t *testing.T) {
		hooks, index, provider := newTestHooks(t)
		seedPin(t, index, provider, "her birthday is in June", false)

		if _, near := hooks.CheckBoundaryProximity(ctx, "her birthday is in June", ""); near {
			t.Error("Fact pins must never trip the boundary check")
		}
	})

	t.Run("BelowThreshold", func(t *testing.T) {
		hooks, index, provider := newTestHooks(t)
		seedPin(t, index, provider, "do not mention the divorce", true)

		if _, near := hooks.CheckBoundaryProximity(ctx, "what is the weather like today", ""); near {
			t.Error("Unrelated text must stay below the threshold")
		}
	})

	t.Run("NoIndex", func(t *testing.T) {
		hooks, _, _ := newTestHooks(t)
		hooks.index = nil
		if _, near := hooks.CheckBoundaryProximity(ctx, "anything", ""); near {
			t.Error("Missing index must report no proximity")
		}
	})
}

func TestNoveltyBoost(t *testing.T) {
	ctx := context.Background()

	t.Run("Repetition", func(t *testing.T) {
		hooks, _, _ := newTestHooks(t)
		recents := []string{"tell me a joke"}
		if got := hooks.NoveltyBoost(ctx, "tell me a joke", recents); got != 0.5 {
			t.Errorf("Expected 0.5 for a repeat, got %v", got)
		}
	})

	t.Run("Novel", func(t *testing.T) {
		hooks, _, _ := newTestHooks(t)
		recents := []string{"tell me a joke", "what time is it"}
		if got := hooks.NoveltyBoost(ctx, "plan a weekend in the mountains", recents); got != 1.0 {
			t.Errorf("Expected 1.0 for novel input, got %v", got)
		}
	})

	t.Run("OnlyLastThreeChecked", func(t *testing.T) {
		hooks, _, _ := newTestHooks(t)
		recents := []string{"tell me a joke", "a", "b", "c"}
		if got := hooks.NoveltyBoost(ctx, "tell me a joke", recents); got != 1.0 {
			t.Errorf("Old messages beyond the window must not count, got %v", got)
		}
	})

	t.Run("NoProvider", func(t *testing.T) {
		hooks, _, _ := newTestHooks(t)
		hooks.provider = nil
		if got := hooks.NoveltyBoost(ctx, "anything", []string{"anything"}); got != 1.0 {
			t.Errorf("Missing provider must report full novelty, got %v", got)
		}
	})

	t.Run("EmptyRecents", func(t *testing.T) {
		hooks, _, _ := newTestHooks(t)
		if got := hooks.NoveltyBoost(ctx, "anything", nil); got != 1.0 {
			t.Errorf("Expected 1.0 with nothing to compare, got %v", got)
		}
	})
}
