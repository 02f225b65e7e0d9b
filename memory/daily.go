package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/smallnest/murmur/internal/logger"
	"go.uber.org/zap"
)

// GetOrCreateDaily returns the day's context, creating an empty one on
// first use. Reads are served from an in-process cache; cache entries
// are replaced wholesale on update, never mutated in place.
func (s *Store) GetOrCreateDaily(ctx context.Context, day, sessionID string) (*DailyContext, error) {
	s.dailyMu.Lock()
	if cached, ok := s.dailyCache[day]; ok {
		s.dailyMu.Unlock()
		return cached, nil
	}
	s.dailyMu.Unlock()

	dc, err := s.loadDaily(ctx, day)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	if dc == nil {
		dc = &DailyContext{Day: day, SessionID: sessionID}

		s.mu.Lock()
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO daily_context (day, session_id, rolling_summary, highlights, pinned_facts, style_snapshot)
			VALUES (?, ?, '', '[]', '{}', '{}')`,
			day, sessionID,
		)
		s.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("failed to create daily context: %w", err)
		}
		logger.Info("daily context created", zap.String("day", day))
	}

	s.dailyMu.Lock()
	s.dailyCache[day] = dc
	s.dailyMu.Unlock()
	return dc, nil
}

// DailyUpdate names the fields to change; nil fields are left untouched.
type DailyUpdate struct {
	RollingSummary *string
	Highlights     []string
	PinnedFacts    map[string]any
	StyleSnapshot  map[string]any
}

// UpdateDaily applies upd to an existing day and replaces the cache
// entry with the fresh row.
func (s *Store) UpdateDaily(ctx context.Context, day string, upd DailyUpdate) (*DailyContext, error) {
	current, err := s.loadDaily(ctx, day)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("daily context not found: %s", day)
		}
		return nil, err
	}

	if upd.RollingSummary != nil {
		current.RollingSummary = *upd.RollingSummary
	}
	if upd.Highlights != nil {
		current.Highlights = upd.Highlights
	}
	if upd.PinnedFacts != nil {
		current.PinnedFacts = upd.PinnedFacts
	}
	if upd.StyleSnapshot != nil {
		current.StyleSnapshot = upd.StyleSnapshot
	}

	s.mu.Lock()
	_, err = s.db.ExecContext(ctx, `
		UPDATE daily_context
		SET rolling_summary = ?, highlights = ?, pinned_facts = ?, style_snapshot = ?
		WHERE day = ?`,
		current.RollingSummary,
		jsonColumn(current.Highlights), jsonColumn(current.PinnedFacts),
		jsonColumn(current.StyleSnapshot), day,
	)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to update daily context: %w", err)
	}

	s.dailyMu.Lock()
	s.dailyCache[day] = current
	s.dailyMu.Unlock()

	logger.Debug("daily context updated", zap.String("day", day))
	return current, nil
}

func (s *Store) loadDaily(ctx context.Context, day string) (*DailyContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		dc                       DailyContext
		summary                  sql.NullString
		highlights, facts, style sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT day, session_id, rolling_summary, highlights, pinned_facts, style_snapshot
		FROM daily_context WHERE day = ?`, day).
		Scan(&dc.Day, &dc.SessionID, &summary, &highlights, &facts, &style)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to query daily context: %w", err)
	}

	dc.RollingSummary = summary.String
	dc.Highlights = jsonStrings(highlights)
	dc.PinnedFacts = jsonMap(facts)
	dc.StyleSnapshot = jsonMap(style)
	return &dc, nil
}
