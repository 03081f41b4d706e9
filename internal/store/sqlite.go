package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite stores pointers in a local SQLite database
type SQLite struct {
	db  *sql.DB
	key string
}

// OpenSQLite opens (creating if needed) the database at path
func OpenSQLite(path, key string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createPointersTable := `
	CREATE TABLE IF NOT EXISTS session_pointers (
		key TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		updated_at DATETIME
	);`

	if _, err := db.Exec(createPointersTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create session_pointers table: %w", err)
	}

	return &SQLite{db: db, key: key}, nil
}

func (s *SQLite) Get(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, "SELECT session_id FROM session_pointers WHERE key = ?", s.key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load session pointer: %w", err)
	}
	return id, nil
}

func (s *SQLite) Set(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO session_pointers (key, session_id, updated_at) VALUES (?, ?, ?)",
		s.key, id, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session pointer: %w", err)
	}
	return nil
}

func (s *SQLite) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM session_pointers WHERE key = ?", s.key); err != nil {
		return fmt.Errorf("failed to clear session pointer: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
