// Package store implements the persistent key-value store shared by all
// script invocations. Values are model values (see internal/value) serialized
// to binary blobs; every mutation goes through Put (single entry, committed
// immediately) or Update (multi entry, atomic). Serialization between writers
// is scoped to the keys a call touches, so operations on disjoint keys run
// concurrently.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lumahq/luma/internal/value"
)

const (
	sqlGetValue = `SELECT value FROM store WHERE name = ?`
	sqlUpsert   = `
		INSERT INTO store (name, value, size, type) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			value = excluded.value,
			size = excluded.size,
			type = excluded.type,
			updated_at = unixepoch()`
	sqlDelete = `DELETE FROM store WHERE name = ?`
	sqlList   = `SELECT name, size, type, created_at, updated_at FROM store ORDER BY name`
)

// UpdateFunc receives the ordered current-or-default values for the names an
// Update call touches and returns the values to write back. Returning an
// error aborts the update; nothing is written.
type UpdateFunc func(values []any) ([]any, error)

// Metadata describes a stored entry without its value.
type Metadata struct {
	Name      string
	Size      int64
	Type      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is a SQLite-backed key-value store safe for concurrent use.
type Store struct {
	db     *sql.DB
	locks  keyLocks
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// discardHandler is a no-op slog handler used as the default logger.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }

var nopLogger = slog.New(discardHandler{})

// New opens a store at path. An empty path opens an in-memory store whose
// contents are lost when the process ends. The schema is not created here;
// call Migrate before first use.
func New(path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// A single pooled connection keeps the in-memory variant coherent and
	// sidesteps SQLITE_BUSY churn on file stores. Writer serialization is
	// handled above SQL by the per-key stripes, so this bounds only the
	// statements themselves, never update callbacks.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: nopLogger}
	for _, opt := range opts {
		opt(s)
	}

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = OFF",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma: %w", err)
		}
	}

	s.logger.Debug("open store", "path", path)
	return s, nil
}

// Migrate creates the schema. It is idempotent and must run before the first
// Get, Put or Update.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS store (
			name       TEXT NOT NULL UNIQUE,
			value      BLOB NOT NULL,
			size       INTEGER NOT NULL,
			type       TEXT NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (unixepoch()),
			updated_at INTEGER NOT NULL DEFAULT (unixepoch())
		)
	`)
	if err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}
	s.logger.Debug("migrated store")
	return nil
}

// Get returns the current committed value for name, or nil when absent. It
// takes no locks; readers never wait on writers of other keys.
func (s *Store) Get(ctx context.Context, name string) (any, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, sqlGetValue, name).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get value: %w", err)
	}
	v, err := value.DecodeBlob(blob)
	if err != nil {
		return nil, fmt.Errorf("get value: %w", err)
	}
	return v, nil
}

// Put unconditionally writes value under name and returns the previous value,
// or nil if the entry was absent. The write commits immediately.
func (s *Store) Put(ctx context.Context, name string, v any) (any, error) {
	release := s.locks.acquire([]string{name})
	defer release()

	blob, err := value.EncodeBlob(v)
	if err != nil {
		return nil, fmt.Errorf("put value: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("put value: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var prev any
	var prevBlob []byte
	err = tx.QueryRowContext(ctx, sqlGetValue, name).Scan(&prevBlob)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("put value: %w", err)
	default:
		if prev, err = value.DecodeBlob(prevBlob); err != nil {
			return nil, fmt.Errorf("put value: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, sqlUpsert, name, blob, value.Size(v), value.TypeHint(v)); err != nil {
		return nil, fmt.Errorf("put value: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("put value: %w", err)
	}

	s.logger.Debug("put value", "name", name, "type", value.TypeHint(v))
	return prev, nil
}

// Update atomically reads the current values for names (substituting defaults
// for absent entries), hands them to fn, and writes the returned values back
// in one transaction. If fn returns an error, no entry changes and the error
// propagates unchanged. Calls whose name sets overlap serialize; disjoint
// calls proceed concurrently.
func (s *Store) Update(ctx context.Context, names []string, fn UpdateFunc, defaults []any) ([]any, error) {
	release := s.locks.acquire(names)
	defer release()

	values := make([]any, len(names))
	for i, name := range names {
		var blob []byte
		err := s.db.QueryRowContext(ctx, sqlGetValue, name).Scan(&blob)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if i < len(defaults) {
				values[i] = defaults[i]
			}
		case err != nil:
			return nil, fmt.Errorf("read value: %w", err)
		default:
			if values[i], err = value.DecodeBlob(blob); err != nil {
				return nil, fmt.Errorf("read value: %w", err)
			}
		}
	}

	updated, err := fn(values)
	if err != nil {
		s.logger.Debug("update aborted", "names", names, "error", err)
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("update values: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for i, name := range names {
		if i >= len(updated) {
			break
		}
		blob, err := value.EncodeBlob(updated[i])
		if err != nil {
			return nil, fmt.Errorf("update values: %w", err)
		}
		if _, err := tx.ExecContext(ctx, sqlUpsert, name, blob, value.Size(updated[i]), value.TypeHint(updated[i])); err != nil {
			return nil, fmt.Errorf("update values: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("update values: %w", err)
	}

	s.logger.Debug("updated values", "names", names)
	return updated, nil
}

// Delete removes the entry for name. Deleting an absent entry is not an
// error.
func (s *Store) Delete(ctx context.Context, name string) error {
	release := s.locks.acquire([]string{name})
	defer release()

	if _, err := s.db.ExecContext(ctx, sqlDelete, name); err != nil {
		return fmt.Errorf("delete value: %w", err)
	}
	s.logger.Debug("deleted value", "name", name)
	return nil
}

// List returns metadata for every stored entry, ordered by name. Values are
// intentionally not included.
func (s *Store) List(ctx context.Context) ([]Metadata, error) {
	rows, err := s.db.QueryContext(ctx, sqlList)
	if err != nil {
		return nil, fmt.Errorf("list values: %w", err)
	}
	defer rows.Close()

	var entries []Metadata
	for rows.Next() {
		var m Metadata
		var created, updated int64
		if err := rows.Scan(&m.Name, &m.Size, &m.Type, &created, &updated); err != nil {
			return nil, fmt.Errorf("list values: %w", err)
		}
		m.CreatedAt = time.Unix(created, 0).UTC()
		m.UpdatedAt = time.Unix(updated, 0).UTC()
		entries = append(entries, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list values: %w", err)
	}
	return entries, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
