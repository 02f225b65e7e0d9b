package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/smallnest/murmur/internal/logger"
	"go.uber.org/zap"
)

// CreateEpisode opens a new episode and returns it with its assigned id.
func (s *Store) CreateEpisode(ctx context.Context, ep *Episode) (*Episode, error) {
	if ep.TimeStart.IsZero() {
		ep.TimeStart = time.Now().UTC()
	}
	if ep.Day == "" {
		ep.Day = Day(ep.TimeStart)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO episodes (day, session_id, time_start, title, summary, tone, topics, nodes, edges)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.Day, ep.SessionID, formatTime(ep.TimeStart), ep.Title, ep.Summary,
		jsonColumn(ep.Tone), jsonColumn(ep.Topics),
		jsonColumn(ep.Nodes), jsonColumn(ep.Edges),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert episode: %w", err)
	}

	ep.ID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get episode id: %w", err)
	}

	logger.Debug("episode created", zap.Int64("id", ep.ID), zap.String("title", ep.Title))
	return ep, nil
}

// CloseEpisode stamps the end time of an open episode.
func (s *Store) CloseEpisode(ctx context.Context, id int64, end time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		"UPDATE episodes SET time_end = ? WHERE id = ?", formatTime(end), id)
	if err != nil {
		return fmt.Errorf("failed to close episode: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("episode not found: %d", id)
	}

	logger.Debug("episode closed", zap.Int64("id", id))
	return nil
}

// RecentEpisodes returns the latest episodes by start time.
func (s *Store) RecentEpisodes(ctx context.Context, limit int) ([]*Episode, error) {
	if limit <= 0 {
		limit = 3
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, day, session_id, time_start, time_end, title, summary, tone, topics, nodes, edges
		FROM episodes ORDER BY time_start DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query episodes: %w", err)
	}
	defer rows.Close()

	return scanEpisodes(rows)
}

// EpisodesByDay returns the day's episodes in start order.
func (s *Store) EpisodesByDay(ctx context.Context, day string) ([]*Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, day, session_id, time_start, time_end, title, summary, tone, topics, nodes, edges
		FROM episodes WHERE day = ? ORDER BY time_start`, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query episodes: %w", err)
	}
	defer rows.Close()

	return scanEpisodes(rows)
}

// EpisodeByID fetches one episode.
func (s *Store) EpisodeByID(ctx context.Context, id int64) (*Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, day, session_id, time_start, time_end, title, summary, tone, topics, nodes, edges
		FROM episodes WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query episode: %w", err)
	}
	defer rows.Close()

	episodes, err := scanEpisodes(rows)
	if err != nil {
		return nil, err
	}
	if len(episodes) == 0 {
		return nil, nil
	}
	return episodes[0], nil
}

func scanEpisodes(rows *sql.Rows) ([]*Episode, error) {
	var episodes []*Episode
	for rows.Next() {
		var (
			ep             Episode
			start          string
			end            sql.NullString
			title, summary sql.NullString
			tone, topics   sql.NullString
			nodes, edges   sql.NullString
		)
		if err := rows.Scan(&ep.ID, &ep.Day, &ep.SessionID, &start, &end,
			&title, &summary, &tone, &topics, &nodes, &edges); err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		ep.TimeStart = parseTime(start)
		if end.Valid {
			ep.TimeEnd = parseTime(end.String)
		}
		ep.Title = title.String
		ep.Summary = summary.String
		ep.Tone = jsonStrings(tone)
		ep.Topics = jsonStrings(topics)
		ep.Nodes = jsonMap(nodes)
		ep.Edges = jsonMap(edges)
		episodes = append(episodes, &ep)
	}
	return episodes, rows.Err()
}
