// Package store persists projects and sessions in SQLite. Every query runs on
// a handle checked out of a bounded pool.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iksnae/tempo/internal"
	"github.com/iksnae/tempo/internal/pool"
)

// timeLayout is fixed width so timestamps sort correctly as TEXT
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is the durable record of projects and sessions
type Store struct {
	path string
	pool *pool.Pool[*sql.DB]
}

// Open opens (creating if needed) the database at path and brings its schema
// up to date.
func Open(ctx context.Context, path string, cfg pool.Config) (*Store, error) {
	factory := func(ctx context.Context) (*sql.DB, error) {
		return internal.OpenDatabase(ctx, path)
	}
	p, err := pool.New(ctx, cfg, factory)
	if err != nil {
		return nil, &internal.StorageError{Op: "open", Entity: "database", Err: err}
	}

	s := &Store{path: path, pool: p}
	if err := p.With(ctx, func(db *sql.DB) error { return migrate(ctx, db) }); err != nil {
		_ = p.Close()
		return nil, &internal.StorageError{Op: "migrate", Entity: "database", Err: err}
	}
	internal.LogDebug("store: opened %s", path)
	return s, nil
}

// Path returns the database file
func (s *Store) Path() string {
	return s.path
}

// PoolStats exposes the pool counters
func (s *Store) PoolStats() pool.Stats {
	return s.pool.Stats()
}

// Close closes every pooled handle
func (s *Store) Close() error {
	return s.pool.Close()
}

func (s *Store) withDB(ctx context.Context, op, entity string, fn func(*sql.DB) error) error {
	if err := s.pool.With(ctx, fn); err != nil {
		if isNotFound(err) {
			return err
		}
		return &internal.StorageError{Op: op, Entity: entity, Err: err}
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, op, entity string, fn func(*sql.Tx) error) error {
	return s.withDB(ctx, op, entity, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

type rowScanner interface {
	Scan(dest ...any) error
}
