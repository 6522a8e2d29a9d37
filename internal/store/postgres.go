package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresStore keeps each collection as a single row in a collections table,
// with the serialized record array in a jsonb column. The store's own lock
// manager still serializes access, so the contract is identical to the file
// backend: one opaque blob per collection, no row-per-record querying.
type PostgresStore struct {
	db    *sql.DB
	locks *LockManager
}

// NewPostgresStore creates a Postgres-backed store.
func NewPostgresStore(db *sql.DB, locks *LockManager) *PostgresStore {
	return &PostgresStore{db: db, locks: locks}
}

// EnsureSchema creates the collections table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS collections (
			name       TEXT PRIMARY KEY,
			records    JSONB NOT NULL DEFAULT '[]',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// Collection returns the collection stored in the row keyed by name.
func (s *PostgresStore) Collection(name string) Collection {
	return &pgCollection{name: name, store: s}
}

type pgCollection struct {
	name  string
	store *PostgresStore
}

func (c *pgCollection) Name() string { return c.name }

func (c *pgCollection) ReadAll(ctx context.Context) ([]json.RawMessage, error) {
	token := c.store.locks.Acquire(c.name)
	defer c.store.locks.Release(c.name, token)
	return c.readLocked(ctx)
}

func (c *pgCollection) WriteAll(ctx context.Context, records []json.RawMessage) error {
	token := c.store.locks.Acquire(c.name)
	defer c.store.locks.Release(c.name, token)
	return c.writeLocked(ctx, records)
}

func (c *pgCollection) Update(ctx context.Context, fn UpdateFunc) error {
	token := c.store.locks.Acquire(c.name)
	defer c.store.locks.Release(c.name, token)

	records, err := c.readLocked(ctx)
	if err != nil {
		return err
	}
	updated, err := fn(records)
	if err != nil {
		if errors.Is(err, ErrUnchanged) {
			return nil
		}
		return err
	}
	return c.writeLocked(ctx, updated)
}

func (c *pgCollection) readLocked(ctx context.Context) ([]json.RawMessage, error) {
	var data []byte
	err := c.store.db.QueryRowContext(ctx,
		`SELECT records FROM collections WHERE name=$1`, c.name).Scan(&data)
	if err == sql.ErrNoRows {
		return []json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", c.name, err)
	}
	records, err := decodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("store: %s: %w", c.name, err)
	}
	return records, nil
}

func (c *pgCollection) writeLocked(ctx context.Context, records []json.RawMessage) error {
	data, err := encodeRecords(records)
	if err != nil {
		return err
	}
	_, err = c.store.db.ExecContext(ctx, `
		INSERT INTO collections (name, records, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET records=EXCLUDED.records, updated_at=now()`,
		c.name, data)
	if err != nil {
		return fmt.Errorf("store: write %s: %w", c.name, err)
	}
	return nil
}
