package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tmkandawire/shopa-backend/internal/store"
)

// Repository provides typed CRUD over one store collection. T must be a
// pointer to a struct embedding Meta.
//
// Absence is never an error at this layer: FindByID and Update report a
// found flag, Delete reports whether anything was removed. Store-level
// errors propagate unchanged.
type Repository[T Record] struct {
	col  store.Collection
	ttl  time.Duration
	newT func() T

	mu    sync.Mutex
	cache *snapshot[T]
}

// New creates a repository over col. newT allocates an empty record for
// decoding. ttl <= 0 uses DefaultCacheTTL.
func New[T Record](col store.Collection, ttl time.Duration, newT func() T) *Repository[T] {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Repository[T]{col: col, ttl: ttl, newT: newT}
}

// FindAll returns every record in the collection. With useCache, a snapshot
// younger than the TTL is served without touching the store; otherwise the
// collection is read through and the cache refreshed. Returned records are
// always defensive copies, so callers cannot corrupt the cache by mutating
// results.
func (r *Repository[T]) FindAll(ctx context.Context, useCache bool) ([]T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if useCache && r.cache.fresh(now) {
		return r.cloneAll(r.cache.records)
	}

	raws, err := r.col.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	records, err := r.decodeAll(raws)
	if err != nil {
		return nil, err
	}
	r.cache = newSnapshot(records, now, r.ttl)
	return r.cloneAll(records)
}

// FindByID returns the record with the given id, or found=false.
func (r *Repository[T]) FindByID(ctx context.Context, id string) (T, bool, error) {
	return r.FindOne(ctx, func(rec T) bool { return rec.RecordID() == id })
}

// FindWhere returns every record matching pred.
func (r *Repository[T]) FindWhere(ctx context.Context, pred func(T) bool) ([]T, error) {
	all, err := r.FindAll(ctx, true)
	if err != nil {
		return nil, err
	}
	matched := make([]T, 0)
	for _, rec := range all {
		if pred(rec) {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}

// FindOne returns the first record matching pred, or found=false.
func (r *Repository[T]) FindOne(ctx context.Context, pred func(T) bool) (T, bool, error) {
	var zero T
	all, err := r.FindAll(ctx, true)
	if err != nil {
		return zero, false, err
	}
	for _, rec := range all {
		if pred(rec) {
			return rec, true, nil
		}
	}
	return zero, false, nil
}

// Create assigns a fresh id and timestamps to rec, appends it to the full
// (non-cached) collection under one lock, and refreshes the cache with the
// post-write state.
func (r *Repository[T]) Create(ctx context.Context, rec T) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	now := time.Now().UTC()
	rec.initRecord(now)

	var all []T
	err := r.col.Update(ctx, func(raws []json.RawMessage) ([]json.RawMessage, error) {
		records, err := r.decodeAll(raws)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("repository: encode record: %w", err)
		}
		stored, err := r.clone(rec)
		if err != nil {
			return nil, err
		}
		all = append(records, stored)
		return append(raws, data), nil
	})
	if err != nil {
		return zero, err
	}
	r.cache = newSnapshot(all, now, r.ttl)
	return rec, nil
}

// Update applies mutate to the record with the given id under the collection
// lock, refreshes updatedAt, and persists. A missing id is a no-op reported
// as found=false, not an error. An error returned by mutate aborts the write
// and propagates.
func (r *Repository[T]) Update(ctx context.Context, id string, mutate func(T) error) (T, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	now := time.Now().UTC()

	var updated T
	found := false
	var all []T
	err := r.col.Update(ctx, func(raws []json.RawMessage) ([]json.RawMessage, error) {
		records, err := r.decodeAll(raws)
		if err != nil {
			return nil, err
		}
		for i, rec := range records {
			if rec.RecordID() != id {
				continue
			}
			if err := mutate(rec); err != nil {
				return nil, err
			}
			rec.touch(now)
			data, merr := json.Marshal(rec)
			if merr != nil {
				return nil, fmt.Errorf("repository: encode record: %w", merr)
			}
			raws[i] = data
			updated = rec
			found = true
			break
		}
		if !found {
			return nil, store.ErrUnchanged
		}
		all = records
		return raws, nil
	})
	if err != nil {
		return zero, false, err
	}
	if !found {
		return zero, false, nil
	}
	r.cache = newSnapshot(all, now, r.ttl)
	return r.mustClone(updated), true, nil
}

// Delete removes the record with the given id and reports whether it
// existed.
func (r *Repository[T]) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	found := false
	var all []T
	err := r.col.Update(ctx, func(raws []json.RawMessage) ([]json.RawMessage, error) {
		records, err := r.decodeAll(raws)
		if err != nil {
			return nil, err
		}
		kept := make([]json.RawMessage, 0, len(raws))
		keptRecords := make([]T, 0, len(records))
		for i, rec := range records {
			if rec.RecordID() == id {
				found = true
				continue
			}
			kept = append(kept, raws[i])
			keptRecords = append(keptRecords, rec)
		}
		if !found {
			return nil, store.ErrUnchanged
		}
		all = keptRecords
		return kept, nil
	})
	if err != nil {
		return false, err
	}
	if found {
		r.cache = newSnapshot(all, now, r.ttl)
	}
	return found, nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func (r *Repository[T]) decodeAll(raws []json.RawMessage) ([]T, error) {
	records := make([]T, 0, len(raws))
	for _, raw := range raws {
		rec := r.newT()
		if err := json.Unmarshal(raw, rec); err != nil {
			return nil, fmt.Errorf("repository: decode record in %s: %w", r.col.Name(), err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *Repository[T]) clone(rec T) (T, error) {
	var zero T
	data, err := json.Marshal(rec)
	if err != nil {
		return zero, fmt.Errorf("repository: clone record: %w", err)
	}
	out := r.newT()
	if err := json.Unmarshal(data, out); err != nil {
		return zero, fmt.Errorf("repository: clone record: %w", err)
	}
	return out, nil
}

func (r *Repository[T]) mustClone(rec T) T {
	out, err := r.clone(rec)
	if err != nil {
		// A record that round-tripped through the store always re-encodes.
		panic(err)
	}
	return out
}

func (r *Repository[T]) cloneAll(records []T) ([]T, error) {
	out := make([]T, 0, len(records))
	for _, rec := range records {
		c, err := r.clone(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
