package jobs

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/smallnest/murmur/embeddings"
	"github.com/smallnest/murmur/memory"
	"github.com/smallnest/murmur/vectorstore"
)

func newTestDeps(t *testing.T) (*memory.Store, vectorstore.Index, *VectorJobs) {
	t.Helper()

	store, err := memory.NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

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

	vectors := NewVectorJobs(index, embeddings.NewLocalProvider(32))
	return store, index, vectors
}

func TestVectorJobs(t *testing.T) {
	ctx := context.Background()
	_, index, vectors := newTestDeps(t)

	t.Run("UpsertAtom", func(t *testing.T) {
		atom := &memory.Atom{
			ID:        1,
			TS:        time.Now().UTC(),
			Day:       memory.Day(time.Now()),
			SessionID: "s1",
			Author:    memory.AuthorUser,
			TextRaw:   "remember the garden",
			Salience:  0.7,
		}
		if err := vectors.UpsertAtom(ctx, atom); err != nil {
			t.Fatalf("UpsertAtom failed: %v", err)
		}

		hits := vectors.SearchSimilar(ctx, "remember the garden", "s1", vectorstore.KindAtom, 3, 7)
		if len(hits) == 0 {
			t.Fatal("Expected the upserted atom to be findable")
		}
		if hits[0].ID != "atom:1" {
			t.Errorf("Expected atom:1, got %s", hits[0].ID)
		}
		if hits[0].Payload["salience"] != 0.7 {
			t.Errorf("Salience not carried: %v", hits[0].Payload["salience"])
		}
		if hits[0].Payload["boundary"] != false {
			t.Error("Atoms are never boundaries")
		}
	})

	t.Run("EmptyAtomSkipped", func(t *testing.T) {
		atom := &memory.Atom{ID: 2, Author: memory.AuthorUser}
		if err := vectors.UpsertAtom(ctx, atom); err != nil {
			t.Fatalf("Empty atom should be a silent no-op: %v", err)
		}
		if deleted, _ := index.Delete(ctx, "atom:2"); deleted {
			t.Error("Empty atom must not be indexed")
		}
	})

	t.Run("LongTextPreview", func(t *testing.T) {
		longText := strings.Repeat("word ", 200)
		atom := &memory.Atom{
			ID: 3, TS: time.Now().UTC(), Day: memory.Day(time.Now()),
			SessionID: "s1", Author: memory.AuthorUser, TextRaw: longText,
		}
		if err := vectors.UpsertAtom(ctx, atom); err != nil {
			t.Fatalf("UpsertAtom failed: %v", err)
		}

		hits := vectors.SearchSimilar(ctx, longText, "s1", vectorstore.KindAtom, 5, 7)
		for _, hit := range hits {
			if hit.ID != "atom:3" {
				continue
			}
			preview := hit.Payload["text"].(string)
			if len([]rune(preview)) > textPreviewLen {
				t.Errorf("Preview exceeds cap: %d runes", len([]rune(preview)))
			}
			if hit.Payload["len"] != len(longText) {
				t.Error("Full length not recorded")
			}
		}
	})

	t.Run("UpsertEpisode", func(t *testing.T) {
		ep := &memory.Episode{
			ID: 1, Day: memory.Day(time.Now()), SessionID: "s1",
			TimeStart: time.Now().UTC().Add(-time.Hour),
			Title:     "Garden talk", Summary: "planning the spring beds",
			Tone:   []string{"warm"},
			Topics: []string{"garden"},
		}
		if err := vectors.UpsertEpisode(ctx, ep); err != nil {
			t.Fatalf("UpsertEpisode failed: %v", err)
		}

		hits := vectors.SearchSimilar(ctx, "Garden talk. planning the spring beds", "s1", vectorstore.KindEpisode, 3, 7)
		if len(hits) == 0 || hits[0].ID != "ep:1" {
			t.Fatalf("Expected ep:1, got %+v", hits)
		}
		tone, _ := hits[0].Payload["tone"].([]string)
		topics, _ := hits[0].Payload["topics"].([]string)
		if len(tone) != 1 || tone[0] != "warm" {
			t.Errorf("Tone not carried: %v", hits[0].Payload["tone"])
		}
		if len(topics) != 1 || topics[0] != "garden" {
			t.Errorf("Topics not carried: %v", hits[0].Payload["topics"])
		}
	})

	t.Run("UnlabeledEpisodeLists", func(t *testing.T) {
		ep := &memory.Episode{
			ID: 4, Day: memory.Day(time.Now()), SessionID: "s1",
			TimeStart: time.Now().UTC(), Title: "Quick chat",
		}
		if err := vectors.UpsertEpisode(ctx, ep); err != nil {
			t.Fatalf("UpsertEpisode failed: %v", err)
		}
		hits := vectors.SearchSimilar(ctx, "Quick chat", "s1", vectorstore.KindEpisode, 3, 7)
		for _, hit := range hits {
			if hit.ID != "ep:4" {
				continue
			}
			if tone, ok := hit.Payload["tone"].([]string); !ok || tone == nil {
				t.Errorf("Tone must be an empty list, got %v", hit.Payload["tone"])
			}
		}
	})

	t.Run("UntitledEpisodeSkipped", func(t *testing.T) {
		if err := vectors.UpsertEpisode(ctx, &memory.Episode{ID: 2}); err != nil {
			t.Fatalf("Untitled episode should be a silent no-op: %v", err)
		}
	})

	t.Run("UpsertBoundaryPin", func(t *testing.T) {
		pin := &memory.Pin{
			ID: 1, TS: time.Now().UTC(), Day: memory.Day(time.Now()),
			SessionID: "s1", Type: memory.PinTypeBoundary,
			Text: "never bring up the accident", Priority: 0.9,
		}
		if err := vectors.UpsertPin(ctx, pin); err != nil {
			t.Fatalf("UpsertPin failed: %v", err)
		}

		hits := vectors.SearchSimilar(ctx, "never bring up the accident", "s1", vectorstore.KindPin, 3, 7)
		if len(hits) == 0 || hits[0].ID != "pin:1" {
			t.Fatalf("Expected pin:1, got %+v", hits)
		}
		if hits[0].Payload["boundary"] != true {
			t.Error("Boundary pins must be flagged in the payload")
		}
	})

	t.Run("DeleteVector", func(t *testing.T) {
		if !vectors.DeleteVector(ctx, "pin:1") {
			t.Error("Expected delete of existing vector to succeed")
		}
		if vectors.DeleteVector(ctx, "pin:1") {
			t.Error("Second delete must report false")
		}
	})
}

func TestQueue(t *testing.T) {
	ctx := context.Background()
	store, index, vectors := newTestDeps(t)

	queue := NewQueue(store, vectors, QueueOptions{BufferSize: 16})
	queue.Start(ctx)

	if err := queue.Enqueue(SaveAtomTask{Atom: memory.Atom{
		SessionID: "s1",
		Author:    memory.AuthorUser,
		TextRaw:   "the queue works",
	}}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := queue.Enqueue(UpdateDailyTask{
		Day: "2026-08-30", SessionID: "s1", Text: "U: hello A: hi there",
	}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := queue.Enqueue(LogLedgerTask{Entry: memory.LedgerEntry{
		SessionID: "s1", Operators: []string{"greet"},
	}}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	queue.Stop()

	atoms, err := store.RecentAtoms(ctx, 10)
	if err != nil {
		t.Fatalf("RecentAtoms failed: %v", err)
	}
	if len(atoms) != 1 || atoms[0].TextRaw != "the queue works" {
		t.Errorf("Atom not persisted by queue: %+v", atoms)
	}

	// The saved atom also got its vector.
	hits, err := index.Search(ctx, embeddings.NewLocalProvider(32).Embed(ctx, "the queue works"), 1, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Error("Expected the queued atom to be indexed")
	}

	dc, err := store.GetOrCreateDaily(ctx, "2026-08-30", "s1")
	if err != nil {
		t.Fatalf("GetOrCreateDaily failed: %v", err)
	}
	if !strings.Contains(dc.RollingSummary, "hello") {
		t.Errorf("Rolling summary not updated: %q", dc.RollingSummary)
	}

	entries, err := store.LedgerBySession(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("LedgerBySession failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Ledger entry not persisted: %+v", entries)
	}

	if err := queue.Enqueue(LogLedgerTask{}); err == nil {
		t.Error("Enqueue after stop must fail")
	}
}

func TestRollSummary(t *testing.T) {
	t.Run("Appends", func(t *testing.T) {
		got := rollSummary("earlier", "later", 1000)
		if got != "earlier\nlater" {
			t.Errorf("Unexpected summary: %q", got)
		}
	})

	t.Run("FirstEntry", func(t *testing.T) {
		if got := rollSummary("", "only", 1000); got != "only" {
			t.Errorf("Unexpected summary: %q", got)
		}
	})

	t.Run("ByteCapKeepsNewest", func(t *testing.T) {
		current := strings.Repeat("old ", 100)
		got := rollSummary(current, "newest entry", 64)
		if len(got) > 64 {
			t.Errorf("Summary exceeds byte cap: %d", len(got))
		}
		if !strings.HasSuffix(got, "newest entry") {
			t.Errorf("Newest content must survive the cut: %q", got)
		}
	})

	t.Run("UTF8SafeCut", func(t *testing.T) {
		current := strings.Repeat("한국어 요약 ", 50)
		got := rollSummary(current, "마지막", 100)
		if !utf8.ValidString(got) {
			t.Error("Byte cut must not split a rune")
		}
		if len(got) > 100 {
			t.Errorf("Summary exceeds byte cap: %d", len(got))
		}
	})
}
