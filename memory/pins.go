package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/smallnest/murmur/internal/logger"
	"go.uber.org/zap"
)

// CreatePin stores a durable fact or boundary.
func (s *Store) CreatePin(ctx context.Context, pin *Pin) (*Pin, error) {
	if pin.Text == "" {
		return nil, fmt.Errorf("pin text is required")
	}
	if pin.Type == "" {
		pin.Type = PinTypeFact
	}
	if pin.TS.IsZero() {
		pin.TS = time.Now().UTC()
	}
	if pin.Day == "" {
		pin.Day = Day(pin.TS)
	}
	if pin.Priority == 0 {
		pin.Priority = 0.5
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO pins (ts, day, session_id, type, text, priority)
		VALUES (?, ?, ?, ?, ?, ?)`,
		formatTime(pin.TS), pin.Day, pin.SessionID, pin.Type, pin.Text, pin.Priority,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert pin: %w", err)
	}

	pin.ID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get pin id: %w", err)
	}

	logger.Debug("pin created", zap.Int64("id", pin.ID), zap.String("type", pin.Type))
	return pin, nil
}

// PinsBySession returns a session's pins, optionally restricted to one
// type, highest priority first.
func (s *Store) PinsBySession(ctx context.Context, sessionID, pinType string) ([]*Pin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, ts, day, session_id, type, text, priority
		FROM pins WHERE session_id = ?`
	args := []any{sessionID}
	if pinType != "" {
		query += " AND type = ?"
		args = append(args, pinType)
	}
	query += " ORDER BY priority DESC, ts DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pins: %w", err)
	}
	defer rows.Close()

	return scanPins(rows)
}

// DeletePin removes a pin. Returns whether it existed.
func (s *Store) DeletePin(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, "DELETE FROM pins WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete pin: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check delete: %w", err)
	}
	return affected > 0, nil
}

func scanPins(rows *sql.Rows) ([]*Pin, error) {
	var pins []*Pin
	for rows.Next() {
		var (
			pin Pin
			ts  string
		)
		if err := rows.Scan(&pin.ID, &ts, &pin.Day, &pin.SessionID,
			&pin.Type, &pin.Text, &pin.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan pin: %w", err)
		}
		pin.TS = parseTime(ts)
		pins = append(pins, &pin)
	}
	return pins, rows.Err()
}
