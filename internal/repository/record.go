// Package repository turns a raw store collection into typed CRUD semantics:
// generated identity and timestamps on create, a short-lived read cache
// invalidated on every write, and read-modify-write mutations that run under
// a single collection lock acquisition.
package repository

import (
	"time"

	"github.com/google/uuid"
)

// Meta carries the identity and timestamps every stored record has. Embed it
// (by value) in a domain model; the repository owns all three fields and
// callers never set them.
type Meta struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RecordID returns the record's opaque unique identifier.
func (m *Meta) RecordID() string { return m.ID }

func (m *Meta) initRecord(now time.Time) {
	m.ID = uuid.New().String()
	m.CreatedAt = now
	m.UpdatedAt = now
}

func (m *Meta) touch(now time.Time) {
	m.UpdatedAt = now
}

// Record is satisfied by a pointer to any struct embedding Meta.
type Record interface {
	RecordID() string
	initRecord(now time.Time)
	touch(now time.Time)
}
