package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/smallnest/murmur/internal/logger"
	"go.uber.org/zap"
)

// LogLedger records which operators shaped one reply.
func (s *Store) LogLedger(ctx context.Context, entry *LedgerEntry) (*LedgerEntry, error) {
	if entry.SessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if entry.TS.IsZero() {
		entry.TS = time.Now().UTC()
	}

	operators, err := json.Marshal(entry.Operators)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal operators: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger (ts, session_id, operators, user_reaction, reward_proxy)
		VALUES (?, ?, ?, ?, ?)`,
		formatTime(entry.TS), entry.SessionID, string(operators),
		jsonColumn(entry.UserReaction), entry.RewardProxy,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	entry.ID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger id: %w", err)
	}

	logger.Debug("ledger entry logged",
		zap.Int64("id", entry.ID), zap.Strings("operators", entry.Operators))
	return entry, nil
}

// LedgerBySession returns a session's entries, newest first.
func (s *Store) LedgerBySession(ctx context.Context, sessionID string, limit int) ([]*LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, session_id, operators, user_reaction, reward_proxy
		FROM ledger WHERE session_id = ? ORDER BY ts DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	return scanLedger(rows)
}

// RecentLedger returns the latest entries across sessions.
func (s *Store) RecentLedger(ctx context.Context, limit int) ([]*LedgerEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, session_id, operators, user_reaction, reward_proxy
		FROM ledger ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	return scanLedger(rows)
}

func scanLedger(rows *sql.Rows) ([]*LedgerEntry, error) {
	var entries []*LedgerEntry
	for rows.Next() {
		var (
			entry     LedgerEntry
			ts        string
			operators sql.NullString
			reaction  sql.NullString
		)
		if err := rows.Scan(&entry.ID, &ts, &entry.SessionID,
			&operators, &reaction, &entry.RewardProxy); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entry.TS = parseTime(ts)
		entry.Operators = jsonStrings(operators)
		entry.UserReaction = jsonMap(reaction)
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
