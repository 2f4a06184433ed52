// Package store archives finalized analysis sessions in SQLite.
//
// Archived sessions are immutable: saving a session id twice fails with
// ErrAlreadyArchived instead of overwriting the stored record.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

var (
	// ErrAlreadyArchived is returned when a session id is already stored
	ErrAlreadyArchived = errors.New("session already archived")
	// ErrNotFinalized is returned when saving a session that is still running
	ErrNotFinalized = errors.New("session not finalized")
	// ErrNotFound is returned when no stored session matches an id
	ErrNotFound = errors.New("session not found")
	// ErrAmbiguousID is returned when an id prefix matches several sessions
	ErrAmbiguousID = errors.New("ambiguous session id")
)

// Store is a SQLite-backed session archive
type Store struct {
	db *sql.DB
}

// Open creates or opens the archive at path, creating parent directories.
// The database runs in WAL mode with a single connection, since SQLite
// allows one writer at a time.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		db.Close()
		return nil, fmt.Errorf("set user_version: %w", err)
	}

	return &Store{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SchemaVersion reports the stored schema version
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return v, nil
}
