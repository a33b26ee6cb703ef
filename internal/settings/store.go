// Package settings persists reader preferences in SQLite and serves them from memory.
package settings

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/dastan/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Storage keys.
const (
	KeyHeritageMode     = "isHeritageMode"
	KeyShowTranslations = "showEnglishTranslations"
)

// Defaults returns the settings used before anything was saved.
func Defaults() models.Settings {
	return models.Settings{HeritageMode: false, ShowTranslations: true}
}

// Store keeps the current settings in memory and writes every change through to SQLite.
// Concurrent writers are serialised; the last write wins.
type Store struct {
	conn *sql.DB

	mu  sync.RWMutex
	cur models.Settings
}

// Open opens (or creates) the settings database and loads the saved values.
func Open(ctx context.Context, dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("settings: open db: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("settings: ping: %w", err)
	}
	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("settings: apply schema: %w", err)
	}
	s := &Store{conn: conn, cur: Defaults()}
	if err := s.load(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Get returns the current settings.
func (s *Store) Get() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update applies patch, persists the changed keys and returns the new settings.
func (s *Store) Update(ctx context.Context, patch models.SettingsPatch) (models.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if patch.Empty() {
		return s.cur, nil
	}
	next := patch.Apply(s.cur)
	next.UpdatedAt = time.Now().UTC()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return s.cur, fmt.Errorf("settings: begin tx: %w", err)
	}
	defer tx.Rollback()

	const upsert = `INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	if patch.HeritageMode != nil {
		if _, err := tx.ExecContext(ctx, upsert, KeyHeritageMode, strconv.FormatBool(next.HeritageMode), next.UpdatedAt); err != nil {
			return s.cur, fmt.Errorf("settings: save %s: %w", KeyHeritageMode, err)
		}
	}
	if patch.ShowTranslations != nil {
		if _, err := tx.ExecContext(ctx, upsert, KeyShowTranslations, strconv.FormatBool(next.ShowTranslations), next.UpdatedAt); err != nil {
			return s.cur, fmt.Errorf("settings: save %s: %w", KeyShowTranslations, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return s.cur, fmt.Errorf("settings: commit: %w", err)
	}

	s.cur = next
	return next, nil
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.conn.QueryContext(ctx, `SELECT key, value, updated_at FROM settings`)
	if err != nil {
		return fmt.Errorf("settings: load: %w", err)
	}
	defer rows.Close()

	cur := Defaults()
	for rows.Next() {
		var (
			key, value string
			updated    time.Time
		)
		if err := rows.Scan(&key, &value, &updated); err != nil {
			return fmt.Errorf("settings: scan: %w", err)
		}
		b, err := strconv.ParseBool(value)
		if err != nil {
			continue
		}
		switch key {
		case KeyHeritageMode:
			cur.HeritageMode = b
		case KeyShowTranslations:
			cur.ShowTranslations = b
		default:
			continue
		}
		if updated.After(cur.UpdatedAt) {
			cur.UpdatedAt = updated
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("settings: load: %w", err)
	}
	s.cur = cur
	return nil
}
