package memory

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Authors of atoms.
const (
	AuthorUser  = "user"
	AuthorAgent = "agent"
)

// Pin types. Boundary pins mark topics the agent must keep distance
// from; fact pins are durable user facts.
const (
	PinTypeFact     = "fact"
	PinTypeBoundary = "boundary"
)

// Atom is one utterance of the conversation.
type Atom struct {
	ID        int64
	TS        time.Time
	Day       string // YYYY-MM-DD
	SessionID string
	Author    string
	TextRaw   string
	TextFinal string
	Ctx       map[string]any
	Affect    map[string]any
	Style     map[string]any
	Levers    map[string]any
	Salience  float64
	EpisodeID int64 // zero when unassigned
}

// DisplayText returns the text a reader should see: the raw text for
// user atoms, the finalized text (when present) for agent atoms.
func (a *Atom) DisplayText() string {
	if a.Author == AuthorUser {
		return a.TextRaw
	}
	if a.TextFinal != "" {
		return a.TextFinal
	}
	return a.TextRaw
}

// Episode is a titled span of conversation.
type Episode struct {
	ID        int64
	Day       string
	SessionID string
	TimeStart time.Time
	TimeEnd   time.Time // zero while open
	Title     string
	Summary   string
	Tone      []string
	Topics    []string
	Nodes     map[string]any
	Edges     map[string]any
}

// Pin is a durable fact or boundary attached to a session.
type Pin struct {
	ID        int64
	TS        time.Time
	Day       string
	SessionID string
	Type      string
	Text      string
	Priority  float64
}

// DailyContext is the per-day working state of the conversation.
type DailyContext struct {
	Day            string
	SessionID      string
	RollingSummary string
	Highlights     []string
	PinnedFacts    map[string]any
	StyleSnapshot  map[string]any
}

// SemanticEntry is a keyed long-lived fact.
type SemanticEntry struct {
	Key       string
	Value     map[string]any
	UpdatedAt time.Time
}

// LedgerEntry records which operators shaped a reply and how the user
// reacted.
type LedgerEntry struct {
	ID           int64
	TS           time.Time
	SessionID    string
	Operators    []string
	UserReaction map[string]any
	RewardProxy  float64
}

// Day formats t as the canonical day key in UTC.
func Day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// jsonColumn marshals v for a nullable TEXT column; nil and empty maps
// store as NULL.
func jsonColumn(v any) sql.NullString {
	switch val := v.(type) {
	case map[string]any:
		if len(val) == 0 {
			return sql.NullString{}
		}
	case []string:
		if len(val) == 0 {
			return sql.NullString{}
		}
	case nil:
		return sql.NullString{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(data), Valid: true}
}

// jsonMap decodes a nullable TEXT column into a map; NULL and invalid
// JSON decode to nil.
func jsonMap(col sql.NullString) map[string]any {
	if !col.Valid || col.String == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(col.String), &m); err != nil {
		return nil
	}
	return m
}

// jsonStrings decodes a nullable TEXT column into a string slice.
func jsonStrings(col sql.NullString) []string {
	if !col.Valid || col.String == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(col.String), &list); err != nil {
		return nil
	}
	return list
}

// parseTime decodes an RFC3339 column; invalid values decode to zero.
func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
