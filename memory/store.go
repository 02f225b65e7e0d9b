// Package memory persists the conversational record: atoms, episodes,
// pins, daily contexts, semantic facts and the influence ledger. The
// relational store is the source of truth; the vector index only ever
// holds derived previews of rows that live here.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/glebarez/go-sqlite"

	"github.com/smallnest/murmur/internal/logger"
	"go.uber.org/zap"
)

// Store is the SQLite-backed relational memory store.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex

	dailyMu    sync.Mutex
	dailyCache map[string]*DailyContext
}

// NewStore opens the database at dbPath and initializes the schema.
func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{
		db:         db,
		dbPath:     dbPath,
		dailyCache: make(map[string]*DailyContext),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("memory store opened", zap.String("path", dbPath))
	return store, nil
}

func (s *Store) initSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := s.db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS atoms (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			day TEXT NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL,
			text_raw TEXT NOT NULL,
			text_final TEXT,
			ctx TEXT,
			affect TEXT,
			style TEXT,
			levers TEXT,
			salience REAL NOT NULL DEFAULT 0.5,
			episode_id INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_atoms_day ON atoms(day)`,
		`CREATE INDEX IF NOT EXISTS idx_atoms_ts ON atoms(ts)`,

		`CREATE TABLE IF NOT EXISTS episodes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			day TEXT NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			time_start TEXT NOT NULL,
			time_end TEXT,
			title TEXT,
			summary TEXT,
			tone TEXT,
			topics TEXT,
			nodes TEXT,
			edges TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_episodes_day ON episodes(day)`,

		`CREATE TABLE IF NOT EXISTS pins (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			day TEXT NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT 'fact',
			text TEXT NOT NULL,
			priority REAL NOT NULL DEFAULT 0.5
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pins_session ON pins(session_id)`,

		`CREATE TABLE IF NOT EXISTS daily_context (
			day TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			rolling_summary TEXT,
			highlights TEXT,
			pinned_facts TEXT,
			style_snapshot TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS semantic (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			session_id TEXT NOT NULL,
			operators TEXT,
			user_reaction TEXT,
			reward_proxy REAL NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_session ON ledger(session_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Stats returns row counts per table.
func (s *Store) Stats(ctx context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)
	for _, table := range []string{"atoms", "episodes", "pins", "daily_context", "semantic", "ledger"} {
		var count int64
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats[table] = count
	}
	return stats, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
