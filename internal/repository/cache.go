package repository

import "time"

// DefaultCacheTTL is the read-cache window used when no TTL is configured.
const DefaultCacheTTL = 5 * time.Minute

// snapshot is one cached generation of a collection: the decoded records
// plus the instant the cache stops being trusted. Invalidation is pure time
// arithmetic, so it is testable without any I/O.
type snapshot[T any] struct {
	records   []T
	expiresAt time.Time
}

func newSnapshot[T any](records []T, now time.Time, ttl time.Duration) *snapshot[T] {
	return &snapshot[T]{records: records, expiresAt: now.Add(ttl)}
}

// fresh reports whether the snapshot is still inside its TTL window. A nil
// snapshot is never fresh.
func (s *snapshot[T]) fresh(now time.Time) bool {
	return s != nil && now.Before(s.expiresAt)
}
