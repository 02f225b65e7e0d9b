// Package jobs runs memory maintenance off the conversational path: a
// background queue applies writes, and vector jobs keep the index in
// step with the relational store. Nothing in here is allowed to fail a
// conversation; failures are logged and absorbed.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/smallnest/murmur/embeddings"
	"github.com/smallnest/murmur/internal/logger"
	"github.com/smallnest/murmur/memory"
	"github.com/smallnest/murmur/vectorstore"
	"go.uber.org/zap"
)

// textPreviewLen caps the text stored in vector payloads. The full text
// stays in the relational store.
const textPreviewLen = 500

// VectorJobs maintains the vector index from relational rows.
type VectorJobs struct {
	index    vectorstore.Index
	provider embeddings.Provider
}

// NewVectorJobs wires the maintenance jobs.
func NewVectorJobs(index vectorstore.Index, provider embeddings.Provider) *VectorJobs {
	return &VectorJobs{index: index, provider: provider}
}

// AtomVectorID returns the vector id for an atom row.
func AtomVectorID(id int64) string { return fmt.Sprintf("atom:%d", id) }

// EpisodeVectorID returns the vector id for an episode row.
func EpisodeVectorID(id int64) string { return fmt.Sprintf("ep:%d", id) }

// PinVectorID returns the vector id for a pin row.
func PinVectorID(id int64) string { return fmt.Sprintf("pin:%d", id) }

// UpsertAtom embeds an atom's display text and writes its vector. Atoms
// without text are skipped.
func (j *VectorJobs) UpsertAtom(ctx context.Context, atom *memory.Atom) error {
	text := atom.DisplayText()
	if text == "" {
		return nil
	}

	vector := j.provider.Embed(ctx, text)

	var episodeID any
	if atom.EpisodeID != 0 {
		episodeID = EpisodeVectorID(atom.EpisodeID)
	}
	payload := vectorstore.Payload{
		"kind":       vectorstore.KindAtom,
		"id":         AtomVectorID(atom.ID),
		"session_id": atom.SessionID,
		"day":        atom.Day,
		"ts":         atom.TS.UTC().Format(time.RFC3339),
		"author":     atom.Author,
		"episode_id": episodeID,
		"text":       truncateRunes(text, textPreviewLen),
		"salience":   atom.Salience,
		"boundary":   false,
		"len":        len(text),
	}
	if labels, ok := atom.Affect["labels"]; ok {
		payload["labels"] = labels
	}

	if err := j.index.Upsert(ctx, AtomVectorID(atom.ID), vector, payload); err != nil {
		logger.Error("atom vector upsert failed", zap.Int64("id", atom.ID), zap.Error(err))
		return err
	}
	logger.Debug("atom vector upserted", zap.Int64("id", atom.ID))
	return nil
}

// UpsertEpisode embeds an episode's title and summary. Episodes with
// neither are skipped.
func (j *VectorJobs) UpsertEpisode(ctx context.Context, ep *memory.Episode) error {
	if ep.Title == "" && ep.Summary == "" {
		return nil
	}

	text := ep.Title
	if ep.Summary != "" {
		text = ep.Title + ". " + ep.Summary
	}
	vector := j.provider.Embed(ctx, text)

	timeEnd := ep.TimeEnd
	if timeEnd.IsZero() {
		timeEnd = time.Now().UTC()
	}
	payload := vectorstore.Payload{
		"kind":       vectorstore.KindEpisode,
		"id":         EpisodeVectorID(ep.ID),
		"session_id": ep.SessionID,
		"day":        ep.Day,
		"range": []string{
			ep.TimeStart.UTC().Format(time.RFC3339),
			timeEnd.UTC().Format(time.RFC3339),
		},
		"title":   ep.Title,
		"summary": truncateRunes(ep.Summary, textPreviewLen),
		"tone":    emptyWhenNil(ep.Tone),
		"topics":  emptyWhenNil(ep.Topics),
	}

	if err := j.index.Upsert(ctx, EpisodeVectorID(ep.ID), vector, payload); err != nil {
		logger.Error("episode vector upsert failed", zap.Int64("id", ep.ID), zap.Error(err))
		return err
	}
	logger.Debug("episode vector upserted", zap.Int64("id", ep.ID))
	return nil
}

// UpsertPin embeds a pin's text. Boundary pins are flagged in the
// payload so proximity checks can find them.
func (j *VectorJobs) UpsertPin(ctx context.Context, pin *memory.Pin) error {
	if pin.Text == "" {
		return nil
	}

	vector := j.provider.Embed(ctx, pin.Text)

	payload := vectorstore.Payload{
		"kind":       vectorstore.KindPin,
		"id":         PinVectorID(pin.ID),
		"session_id": pin.SessionID,
		"day":        pin.Day,
		"type":       pin.Type,
		"text":       pin.Text,
		"priority":   pin.Priority,
		"boundary":   pin.Type == memory.PinTypeBoundary,
	}

	if err := j.index.Upsert(ctx, PinVectorID(pin.ID), vector, payload); err != nil {
		logger.Error("pin vector upsert failed", zap.Int64("id", pin.ID), zap.Error(err))
		return err
	}
	logger.Debug("pin vector upserted", zap.Int64("id", pin.ID), zap.String("type", pin.Type))
	return nil
}

// DeleteVector removes one vector, absorbing failures.
func (j *VectorJobs) DeleteVector(ctx context.Context, vid string) bool {
	deleted, err := j.index.Delete(ctx, vid)
	if err != nil {
		logger.Error("vector delete failed", zap.String("id", vid), zap.Error(err))
		return false
	}
	return deleted
}

// SearchSimilar finds vectors similar to text inside the usual scope.
// Any failure degrades to an empty result.
func (j *VectorJobs) SearchSimilar(ctx context.Context, text, sessionID, kind string, k, sinceDays int) []vectorstore.Hit {
	vector := j.provider.Embed(ctx, text)
	flt := vectorstore.ScopeFilter(sessionID, sinceDays, sessionID != "", kind)

	hits, err := j.index.Search(ctx, vector, k, flt)
	if err != nil {
		logger.Error("similarity search failed", zap.Error(err))
		return nil
	}
	return hits
}

// emptyWhenNil keeps list payload fields JSON-friendly as [] rather
// than null.
func emptyWhenNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

// truncateRunes cuts text to at most limit runes.
func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
