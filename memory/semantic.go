package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/smallnest/murmur/internal/logger"
	"go.uber.org/zap"
)

// SetSemantic stores or replaces a keyed long-lived fact.
func (s *Store) SetSemantic(ctx context.Context, key string, value map[string]any) error {
	if key == "" {
		return fmt.Errorf("semantic key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO semantic (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, jsonColumn(value), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to set semantic entry: %w", err)
	}

	logger.Debug("semantic entry set", zap.String("key", key))
	return nil
}

// GetSemantic returns the value for key, or nil when absent.
func (s *Store) GetSemantic(ctx context.Context, key string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM semantic WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query semantic entry: %w", err)
	}
	return jsonMap(value), nil
}

// DeleteSemantic removes a keyed fact. Returns whether it existed.
func (s *Store) DeleteSemantic(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, "DELETE FROM semantic WHERE key = ?", key)
	if err != nil {
		return false, fmt.Errorf("failed to delete semantic entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check delete: %w", err)
	}
	if affected > 0 {
		logger.Debug("semantic entry deleted", zap.String("key", key))
	}
	return affected > 0, nil
}
