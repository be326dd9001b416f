// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/difychat/internal/util"
)

// Well-known keys.
const (
	KeyUserID           = "user_id"
	KeyLastConversation = "last_conversation"
)

// DefaultHistoryLimit bounds the stored input history.
const DefaultHistoryLimit = 500

// ErrClosed is returned after Close.
var ErrClosed = errors.New("state store is closed")

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS input_history (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	line       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
`

// =============================================================================
// STORE
// =============================================================================

// Store is the SQLite-backed local state. It is safe for concurrent use.
type Store struct {
	db           *sql.DB
	path         string
	historyLimit int
}

// DefaultPath returns ~/.difychat/state.db.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".difychat", "state.db")
	}
	return filepath.Join(home, ".difychat", "state.db")
}

// Open opens or creates the state database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), util.PrivateDirMode); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, path: path, historyLimit: DefaultHistoryLimit}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close releases the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// =============================================================================
// KEY/VALUE
// =============================================================================

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if s.db == nil {
		return "", false, ErrClosed
	}
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if s.db == nil {
		return ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// =============================================================================
// INPUT HISTORY
// =============================================================================

// AppendHistory records one input line. Blank lines and immediate repeats are
// skipped, and the oldest lines are dropped beyond the history limit.
func (s *Store) AppendHistory(ctx context.Context, line string) error {
	if s.db == nil {
		return ErrClosed
	}
	if strings.TrimSpace(line) == "" {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	defer tx.Rollback()

	var last string
	err = tx.QueryRowContext(ctx, "SELECT line FROM input_history ORDER BY id DESC LIMIT 1").Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("append history: %w", err)
	}
	if last == line {
		return nil
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO input_history (line, created_at) VALUES (?, ?)", line, time.Now().Unix()); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM input_history WHERE id NOT IN
		 (SELECT id FROM input_history ORDER BY id DESC LIMIT ?)`, s.historyLimit); err != nil {
		return fmt.Errorf("trim history: %w", err)
	}
	return tx.Commit()
}

// History returns up to limit recent input lines, oldest first. A limit of
// zero or less returns everything kept.
func (s *Store) History(ctx context.Context, limit int) ([]string, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = s.historyLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT line FROM (SELECT id, line FROM input_history ORDER BY id DESC LIMIT ?) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("read history: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}
