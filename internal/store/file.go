package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FileStore persists each collection as one JSON-array file under a data
// directory, with a sibling ".backup" file holding the previous generation
// and a transient ".tmp" file used for atomic replacement.
type FileStore struct {
	dir   string
	locks *LockManager
	log   *slog.Logger
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string, locks *LockManager, log *slog.Logger) *FileStore {
	if log == nil {
		log = slog.Default()
	}
	return &FileStore{dir: dir, locks: locks, log: log}
}

// Collection returns the collection persisted at <dir>/<name>.json.
func (s *FileStore) Collection(name string) Collection {
	return &fileCollection{name: name, store: s}
}

type fileCollection struct {
	name  string
	store *FileStore
}

func (c *fileCollection) Name() string { return c.name }

func (c *fileCollection) path() string {
	return filepath.Join(c.store.dir, c.name+".json")
}

func (c *fileCollection) ReadAll(ctx context.Context) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	token := c.store.locks.Acquire(c.name)
	defer c.store.locks.Release(c.name, token)
	return c.readLocked()
}

func (c *fileCollection) WriteAll(ctx context.Context, records []json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	token := c.store.locks.Acquire(c.name)
	defer c.store.locks.Release(c.name, token)
	return c.writeLocked(records)
}

// Update holds the collection lock across read, mutate, and write, so the
// whole logical operation is serialized against any other access to the same
// collection. Lost updates from interleaved read-then-write sequences cannot
// happen through this path.
func (c *fileCollection) Update(ctx context.Context, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	token := c.store.locks.Acquire(c.name)
	defer c.store.locks.Release(c.name, token)

	records, err := c.readLocked()
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
	return c.writeLocked(updated)
}

// readLocked reads and validates the collection file. The caller must hold
// the collection lock.
func (c *fileCollection) readLocked() ([]json.RawMessage, error) {
	if err := os.MkdirAll(c.store.dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}
	path := c.path()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if werr := os.WriteFile(path, []byte("[]"), 0o644); werr != nil {
			return nil, fmt.Errorf("store: initialize %s: %w", c.name, werr)
		}
		return []json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", c.name, err)
	}

	records, derr := decodeRecords(data)
	if derr == nil {
		return records, nil
	}

	// Corrupt content: try the previous generation, then fall back to an
	// empty collection rather than failing every caller.
	if restored, ok := c.restoreBackupLocked(); ok {
		c.store.log.Warn("collection recovered from backup",
			"collection", c.name, "error", derr)
		return restored, nil
	}
	c.store.log.Warn("collection corrupt with no usable backup, resetting to empty",
		"collection", c.name, "error", derr)
	if werr := os.WriteFile(path, []byte("[]"), 0o644); werr != nil {
		return nil, fmt.Errorf("store: reset %s: %w", c.name, werr)
	}
	return []json.RawMessage{}, nil
}

// restoreBackupLocked copies <name>.json.backup over the collection file if
// the backup exists and validates.
func (c *fileCollection) restoreBackupLocked() ([]json.RawMessage, bool) {
	backup, err := os.ReadFile(c.path() + ".backup")
	if err != nil {
		return nil, false
	}
	records, err := decodeRecords(backup)
	if err != nil {
		return nil, false
	}
	if err := os.WriteFile(c.path(), backup, 0o644); err != nil {
		return nil, false
	}
	return records, true
}

// writeLocked persists records with the backup-then-atomic-replace sequence:
// copy the current file to .backup, serialize to a temp file, re-read and
// re-validate the temp file, then rename it over the target. The target file
// is always either the old complete content or the new complete content,
// even if the process dies mid-write. The caller must hold the collection
// lock.
func (c *fileCollection) writeLocked(records []json.RawMessage) error {
	if err := os.MkdirAll(c.store.dir, 0o755); err != nil {
		return fmt.Errorf("store: create data dir: %w", err)
	}
	path := c.path()

	// Backup the previous generation. Absence of a prior file is not an
	// error, and a failed backup must not block the write.
	if current, err := os.ReadFile(path); err == nil {
		if err := os.WriteFile(path+".backup", current, 0o644); err != nil {
			c.store.log.Warn("collection backup failed",
				"collection", c.name, "error", err)
		}
	}

	data, err := encodeRecords(records)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("store: write temp file for %s: %w", c.name, err)
	}

	// Re-read and validate what actually hit the disk before committing.
	written, err := os.ReadFile(tmp)
	if err == nil {
		_, err = decodeRecords(written)
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: verify temp file for %s: %w", c.name, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: commit %s: %w", c.name, err)
	}
	return nil
}
