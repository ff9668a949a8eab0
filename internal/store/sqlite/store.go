// Package sqlite is the default record store, backed by a local SQLite file.
// Every bulk call runs in one transaction and writes event log rows.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/onsitehq/leadq/internal/db"
	"github.com/onsitehq/leadq/internal/events"
	"github.com/onsitehq/leadq/internal/store"
)

// Store implements store.Store on SQLite.
type Store struct {
	db  *db.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New creates a new Store wrapping the given database connection.
func New(database *db.DB) *Store {
	return &Store{db: database, now: time.Now}
}

// Open opens the database at path and refuses to continue while
// migrations are pending.
func Open(path string) (*Store, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := database.RequiresMigrationError(); err != nil {
		database.Close()
		return nil, err
	}
	return New(database), nil
}

// DB returns the underlying database connection (for read-only queries).
func (s *Store) DB() *db.DB {
	return s.db
}

// Events returns a reader/writer over the event log.
func (s *Store) Events() *events.Writer {
	return events.NewWriter(s.db.DB)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx executes fn within a transaction. If fn returns nil, the transaction
// is committed; otherwise it is rolled back.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx, ew *events.Writer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ew := events.NewWriter(s.db.DB)
	if err := fn(tx, ew); err != nil {
		return err
	}

	return tx.Commit()
}

// stamp returns t, or the current time when t is zero.
func (s *Store) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return s.now()
	}
	return t
}
