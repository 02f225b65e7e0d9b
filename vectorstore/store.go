// Package vectorstore provides the embedding index backends and the
// retrieval primitives built on top of them: input validation, scope
// filtering, hybrid re-ranking and snippet extraction.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
)

// Record kinds stored in the index.
const (
	KindAtom    = "atom"
	KindEpisode = "episode"
	KindPin     = "pin"
)

// Payload is the JSON-serializable metadata stored beside a vector.
type Payload map[string]any

// Hit is a raw similarity match returned by an index.
type Hit struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Payload Payload `json:"payload"`
}

// Filter narrows a similarity search. Zero-valued fields are ignored.
// Conditions combine as a logical AND.
type Filter struct {
	// Kind matches the payload kind exactly.
	Kind string `json:"kind,omitempty"`
	// SessionID matches the payload session exactly.
	SessionID string `json:"session_id,omitempty"`
	// DayGTE is an inclusive ISO-date lower bound on the payload day.
	DayGTE string `json:"day_gte,omitempty"`
}

// Matches reports whether the payload satisfies every set condition.
func (f *Filter) Matches(p Payload) bool {
	if f == nil {
		return true
	}
	if f.Kind != "" {
		if kind, _ := p["kind"].(string); kind != f.Kind {
			return false
		}
	}
	if f.SessionID != "" {
		if sid, _ := p["session_id"].(string); sid != f.SessionID {
			return false
		}
	}
	if f.DayGTE != "" {
		day, _ := p["day"].(string)
		if day < f.DayGTE {
			return false
		}
	}
	return true
}

// Index is the uniform contract over vector index backends. Exactly two
// implementations exist: the in-process LocalIndex and the Qdrant adapter.
// Implementations are safe for concurrent use.
type Index interface {
	// Ensure provisions the backing collection/index if absent. It is
	// idempotent and safe to call at every process start.
	Ensure(ctx context.Context) error
	// Upsert inserts or fully replaces the vector and payload for id.
	Upsert(ctx context.Context, id string, vector []float32, payload Payload) error
	// Delete removes id, reporting whether an entry existed. Absence is
	// not an error.
	Delete(ctx context.Context, id string) (bool, error)
	// Search returns up to k hits ordered by descending similarity.
	Search(ctx context.Context, vector []float32, k int, flt *Filter) ([]Hit, error)
	// Status reports backend statistics for diagnostics.
	Status(ctx context.Context) map[string]any
	// Close releases resources, persisting state where applicable.
	Close() error
}

// Failure classes distinguished by the backends. Callers use errors.Is to
// decide between degrading and propagating.
var (
	// ErrUnavailable marks a connectivity failure (unreachable backend,
	// timeout). Non-recoverable for the failing call.
	ErrUnavailable = errors.New("vector index unavailable")
	// ErrUnauthorized marks an authentication or authorization failure.
	ErrUnauthorized = errors.New("vector index authorization failed")
	// ErrNotFound marks a missing collection or id. Search callers treat
	// it as an empty result.
	ErrNotFound = errors.New("not found")
)

func isUnavailable(err error) bool  { return errors.Is(err, ErrUnavailable) }
func isUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }
func isNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }

// ValidationError rejects input before it reaches a backend. The failed
// operation is a no-op.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// DimensionError reports a vector whose length does not match the index.
type DimensionError struct {
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected=%d, actual=%d", e.Expected, e.Actual)
}
