// Package sqlite provides a SQLite implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jwulff/guardian-go/internal/health"
	"github.com/jwulff/guardian-go/internal/storage"

	_ "modernc.org/sqlite"
)

// Store is a SQLite implementation of storage.Store.
type Store struct {
	db *sql.DB
}

// NewMemoryStore creates an in-memory SQLite store.
func NewMemoryStore() (*Store, error) {
	return newStore(":memory:")
}

// NewFileStore creates a file-based SQLite store.
func NewFileStore(path string) (*Store, error) {
	return newStore(path)
}

func newStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Key-value methods

func (s *Store) Load(ctx context.Context, key string, v any) (bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(value), v); err != nil {
		return true, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) Save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO kv (key, value, updated_at)
		VALUES (?, ?, ?)
	`, key, string(data), time.Now().UTC())
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key)
	return err
}

// Reading methods

// Readings returns the repository of one reading kind.
func (s *Store) Readings(kind health.Kind) storage.Repository {
	return &readingRepo{db: s.db, kind: kind}
}

type readingRepo struct {
	db   *sql.DB
	kind health.Kind
}

func (r *readingRepo) List(ctx context.Context) ([]health.Reading, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT payload FROM readings WHERE kind = ? ORDER BY id ASC
	`, string(r.kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []health.Reading
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var stored health.StoredReading
		if err := json.Unmarshal([]byte(payload), &stored); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reading: %w", err)
		}
		rd, err := stored.Reading()
		if err != nil {
			return nil, err
		}
		out = append(out, rd)
	}
	return out, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertReading(ctx context.Context, db execer, kind health.Kind, rd health.Reading) error {
	if rd.Kind() != kind {
		return fmt.Errorf("cannot store %s reading in %s repository", rd.Kind(), kind)
	}
	payload, err := json.Marshal(health.Store(rd))
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO readings (kind, taken_at, payload)
		VALUES (?, ?, ?)
	`, string(kind), rd.Time().UnixNano(), string(payload))
	return err
}

func (r *readingRepo) Append(ctx context.Context, rd health.Reading) error {
	return insertReading(ctx, r.db, r.kind, rd)
}

func (r *readingRepo) ReplaceAll(ctx context.Context, rs []health.Reading) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM readings WHERE kind = ?", string(r.kind)); err != nil {
		return err
	}
	for _, rd := range rs {
		if err := insertReading(ctx, tx, r.kind, rd); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Verify interface compliance
var (
	_ storage.Store      = (*Store)(nil)
	_ storage.Repository = (*readingRepo)(nil)
)
