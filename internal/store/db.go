// Package store persists module installation state and the audit log.
// It is the single source of truth for "is module X installed" — state is
// never inferred by probing the filesystem, only written as a side effect
// of a completed lifecycle action.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// ErrNotInitialized indicates the database exists but the schema has not
// been created yet.
var ErrNotInitialized = errors.New("state store not initialized")

// Store provides SQLite-backed state for the lifecycle manager.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath without creating the
// schema. Use ":memory:" for in-memory databases (useful for testing).
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only allows one writer at a time; serialize through one conn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// WAL keeps readers responsive while a lifecycle action commits.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return &Store{db: db}, nil
}

// Open is New followed by CreateSchema.
func Open(dbPath string) (*Store, error) {
	s, err := New(dbPath)
	if err != nil {
		return nil, err
	}
	if err := s.CreateSchema(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CreateSchema creates all tables and indexes. Safe to call repeatedly.
func (s *Store) CreateSchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// wrapQueryErr maps "missing table" failures onto ErrNotInitialized so
// callers can distinguish an empty store from an uncreated one.
func wrapQueryErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("%s: %w", op, ErrNotInitialized)
	}
	return fmt.Errorf("%s: %w", op, err)
}
