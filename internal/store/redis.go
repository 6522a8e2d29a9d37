package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps each collection under one key as a serialized JSON array.
// Redis gives no durability guarantees beyond its own persistence config;
// the backend exists for deployments that already run Redis and accept that
// trade, behind the same read/write/lock contract as the file store.
type RedisStore struct {
	client *redis.Client
	locks  *LockManager
	prefix string
}

// NewRedisStore creates a Redis-backed store. Keys are "<prefix>:<name>".
func NewRedisStore(client *redis.Client, locks *LockManager, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "collections"
	}
	return &RedisStore{client: client, locks: locks, prefix: prefix}
}

// Collection returns the collection stored under the prefixed key for name.
func (s *RedisStore) Collection(name string) Collection {
	return &redisCollection{name: name, store: s}
}

type redisCollection struct {
	name  string
	store *RedisStore
}

func (c *redisCollection) Name() string { return c.name }

func (c *redisCollection) key() string {
	return c.store.prefix + ":" + c.name
}

func (c *redisCollection) ReadAll(ctx context.Context) ([]json.RawMessage, error) {
	token := c.store.locks.Acquire(c.name)
	defer c.store.locks.Release(c.name, token)
	return c.readLocked(ctx)
}

func (c *redisCollection) WriteAll(ctx context.Context, records []json.RawMessage) error {
	token := c.store.locks.Acquire(c.name)
	defer c.store.locks.Release(c.name, token)
	return c.writeLocked(ctx, records)
}

func (c *redisCollection) Update(ctx context.Context, fn UpdateFunc) error {
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

func (c *redisCollection) readLocked(ctx context.Context) ([]json.RawMessage, error) {
	val, err := c.store.client.Get(ctx, c.key()).Result()
	if err == redis.Nil {
		return []json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", c.name, err)
	}
	records, err := decodeRecords([]byte(val))
	if err != nil {
		return nil, fmt.Errorf("store: %s: %w", c.name, err)
	}
	return records, nil
}

func (c *redisCollection) writeLocked(ctx context.Context, records []json.RawMessage) error {
	data, err := encodeRecords(records)
	if err != nil {
		return err
	}
	if err := c.store.client.Set(ctx, c.key(), data, 0).Err(); err != nil {
		return fmt.Errorf("store: write %s: %w", c.name, err)
	}
	return nil
}
