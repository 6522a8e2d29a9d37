package store

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// LockManager serializes access to named collections. Each collection is an
// independent lock domain: holding the lock for "products" does not block
// "carts". A lock is claimed with an opaque token and can only be released by
// presenting the same token, so a stale caller cannot release a lock it no
// longer holds.
//
// The manager is injected into every store backend rather than living as a
// package-level singleton, which keeps its lifetime and scope testable.
type LockManager struct {
	mu      sync.Mutex
	holders map[string]string // collection name -> holder token
	poll    time.Duration
}

// DefaultLockPoll is the interval at which Acquire re-checks a contended lock.
const DefaultLockPoll = 5 * time.Millisecond

// NewLockManager creates a lock manager. poll <= 0 uses DefaultLockPoll.
func NewLockManager(poll time.Duration) *LockManager {
	if poll <= 0 {
		poll = DefaultLockPoll
	}
	return &LockManager{
		holders: make(map[string]string),
		poll:    poll,
	}
}

// Acquire blocks until no other operation holds the lock for name, then
// claims it and returns the holder token. Acquisition never fails; it waits.
func (m *LockManager) Acquire(name string) string {
	for {
		m.mu.Lock()
		if _, held := m.holders[name]; !held {
			token := uuid.New().String()
			m.holders[name] = token
			m.mu.Unlock()
			return token
		}
		m.mu.Unlock()
		time.Sleep(m.poll)
	}
}

// Release frees the lock for name, but only if token matches the current
// holder. It reports whether the lock was actually released.
func (m *LockManager) Release(name, token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holders[name] != token {
		return false
	}
	delete(m.holders, name)
	return true
}

// Held reports whether any operation currently holds the lock for name.
func (m *LockManager) Held(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, held := m.holders[name]
	return held
}
