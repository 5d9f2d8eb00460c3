// Package store persists reconciler state in SQLite so the projection has
// data before the first backend refresh lands after a restart. Uses WAL
// mode for crash-safe writes; the pure-Go driver keeps the build CGO-free.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"modelsyncd/pkg/types"
)

const (
	keyModels = "models"
	keyActive = "active_model"
)

// Store wraps a SQLite connection holding the last accepted snapshot and
// the download history.
type Store struct {
	db *sql.DB
}

// HistoryEntry is one recorded terminal download outcome.
type HistoryEntry struct {
	ModelID string    `json:"model_id"`
	Outcome string    `json:"outcome"`
	At      time.Time `json:"at"`
}

// Open creates or opens dir/sync.db, enabling WAL mode and a busy timeout.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	// modernc's driver takes pragmas in _pragma=name(value) form; the
	// mattn-style _journal_mode params are silently ignored.
	dsn := filepath.Join(dir, "sync.db") + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close cleanly shuts down the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sync_state (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS download_history (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			model_id TEXT NOT NULL,
			outcome  TEXT NOT NULL,
			at       INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_at ON download_history(at)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// SaveSnapshot stores the model list and active id, replacing any previous
// snapshot.
func (s *Store) SaveSnapshot(models []types.Model, activeID string) error {
	blob, err := json.Marshal(models)
	if err != nil {
		return fmt.Errorf("encode models: %w", err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	const upsert = `INSERT INTO sync_state(key, value) VALUES(?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := tx.Exec(upsert, keyModels, string(blob)); err != nil {
		return err
	}
	if _, err := tx.Exec(upsert, keyActive, activeID); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadSnapshot returns the persisted model list and active id. A fresh
// database yields an empty list and no error.
func (s *Store) LoadSnapshot() ([]types.Model, string, error) {
	var models []types.Model
	var blob string
	err := s.db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, keyModels).Scan(&blob)
	switch {
	case err == sql.ErrNoRows:
		return nil, "", nil
	case err != nil:
		return nil, "", err
	}
	if err := json.Unmarshal([]byte(blob), &models); err != nil {
		return nil, "", fmt.Errorf("decode models: %w", err)
	}
	var active string
	err = s.db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, keyActive).Scan(&active)
	if err != nil && err != sql.ErrNoRows {
		return nil, "", err
	}
	return models, active, nil
}

// AppendHistory records a terminal download outcome.
func (s *Store) AppendHistory(modelID, outcome string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO download_history(model_id, outcome, at) VALUES(?, ?, ?)`,
		modelID, outcome, at.Unix(),
	)
	return err
}

// History returns the most recent terminal outcomes, newest first.
func (s *Store) History(limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT model_id, outcome, at FROM download_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var at int64
		if err := rows.Scan(&e.ModelID, &e.Outcome, &at); err != nil {
			return nil, err
		}
		e.At = time.Unix(at, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}
