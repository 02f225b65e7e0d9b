package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/smallnest/murmur/internal/logger"
	"go.uber.org/zap"
)

// CreateAtom inserts one utterance and returns it with its assigned id.
// A zero TS defaults to now.
func (s *Store) CreateAtom(ctx context.Context, atom *Atom) (*Atom, error) {
	if atom.TextRaw == "" {
		return nil, fmt.Errorf("atom text is required")
	}
	if atom.TS.IsZero() {
		atom.TS = time.Now().UTC()
	}
	if atom.Day == "" {
		atom.Day = Day(atom.TS)
	}
	if atom.Salience == 0 {
		atom.Salience = 0.5
	}

	var episodeID any
	if atom.EpisodeID != 0 {
		episodeID = atom.EpisodeID
	}
	var textFinal any
	if atom.TextFinal != "" {
		textFinal = atom.TextFinal
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO atoms (ts, day, session_id, author, text_raw, text_final,
			ctx, affect, style, levers, salience, episode_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		formatTime(atom.TS), atom.Day, atom.SessionID, atom.Author,
		atom.TextRaw, textFinal,
		jsonColumn(atom.Ctx), jsonColumn(atom.Affect),
		jsonColumn(atom.Style), jsonColumn(atom.Levers),
		atom.Salience, episodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert atom: %w", err)
	}

	atom.ID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get atom id: %w", err)
	}

	logger.Debug("atom created", zap.Int64("id", atom.ID), zap.String("author", atom.Author))
	return atom, nil
}

// AtomsByDay returns the day's atoms, newest first.
func (s *Store) AtomsByDay(ctx context.Context, day string, limit int) ([]*Atom, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, day, session_id, author, text_raw, text_final,
			ctx, affect, style, levers, salience, episode_id
		FROM atoms WHERE day = ? ORDER BY ts DESC LIMIT ?`, day, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query atoms: %w", err)
	}
	defer rows.Close()

	return scanAtoms(rows)
}

// RecentAtoms returns the most recent atoms across all days.
func (s *Store) RecentAtoms(ctx context.Context, limit int) ([]*Atom, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, day, session_id, author, text_raw, text_final,
			ctx, affect, style, levers, salience, episode_id
		FROM atoms ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query atoms: %w", err)
	}
	defer rows.Close()

	return scanAtoms(rows)
}

// AtomByID fetches one atom.
func (s *Store) AtomByID(ctx context.Context, id int64) (*Atom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, day, session_id, author, text_raw, text_final,
			ctx, affect, style, levers, salience, episode_id
		FROM atoms WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query atom: %w", err)
	}
	defer rows.Close()

	atoms, err := scanAtoms(rows)
	if err != nil {
		return nil, err
	}
	if len(atoms) == 0 {
		return nil, nil
	}
	return atoms[0], nil
}

func scanAtoms(rows *sql.Rows) ([]*Atom, error) {
	var atoms []*Atom
	for rows.Next() {
		var (
			atom           Atom
			ts             string
			textFinal      sql.NullString
			ctxCol, affect sql.NullString
			style, levers  sql.NullString
			episodeID      sql.NullInt64
		)
		if err := rows.Scan(&atom.ID, &ts, &atom.Day, &atom.SessionID, &atom.Author,
			&atom.TextRaw, &textFinal, &ctxCol, &affect, &style, &levers,
			&atom.Salience, &episodeID); err != nil {
			return nil, fmt.Errorf("failed to scan atom: %w", err)
		}
		atom.TS = parseTime(ts)
		atom.TextFinal = textFinal.String
		atom.Ctx = jsonMap(ctxCol)
		atom.Affect = jsonMap(affect)
		atom.Style = jsonMap(style)
		atom.Levers = jsonMap(levers)
		atom.EpisodeID = episodeID.Int64
		atoms = append(atoms, &atom)
	}
	return atoms, rows.Err()
}
