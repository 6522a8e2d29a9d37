// Package store implements durable persistence of named collections of
// records. A collection is an ordered sequence of JSON documents; backends
// persist each collection as one unit (a file, a database row, a Redis key)
// behind a shared read/write/lock contract. Records travel through this layer
// untyped, as raw JSON; the repository layer above owns typing.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnchanged may be returned by an UpdateFunc to abort an Update without
// writing. Update treats it as success and leaves the collection as-is.
var ErrUnchanged = errors.New("store: collection unchanged")

// UpdateFunc takes the current records of a collection and returns the
// records to persist in their place. It runs while the collection lock is
// held, so the whole read-modify-write is one atomic logical operation
// relative to other collection access.
type UpdateFunc func(records []json.RawMessage) ([]json.RawMessage, error)

// Collection is one named, durably persisted sequence of records.
//
// ReadAll returns every record in insertion order; a collection that has
// never been written reads as empty, not as an error. WriteAll replaces the
// full contents. Update performs a read-modify-write while holding the
// collection lock for the entire sequence, which is the only safe way to
// derive a new state from the current one under concurrent access.
type Collection interface {
	Name() string
	ReadAll(ctx context.Context) ([]json.RawMessage, error)
	WriteAll(ctx context.Context, records []json.RawMessage) error
	Update(ctx context.Context, fn UpdateFunc) error
}

// Store hands out collections by name. All collections from one Store share
// its lock manager but are independent lock domains.
type Store interface {
	Collection(name string) Collection
}

// decodeRecords structurally validates serialized collection content. A JSON
// array is the canonical shape; a single JSON object is tolerated and read as
// a one-record collection. Anything else is corrupt.
func decodeRecords(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []json.RawMessage{}, nil
	}
	var records []json.RawMessage
	if err := json.Unmarshal(trimmed, &records); err == nil {
		return records, nil
	}
	var single map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &single); err == nil {
		return []json.RawMessage{json.RawMessage(trimmed)}, nil
	}
	return nil, fmt.Errorf("store: content is not a JSON array or object")
}

// encodeRecords serializes records as an indented JSON array, validating each
// record on the way out so a malformed record can never reach disk.
func encodeRecords(records []json.RawMessage) ([]byte, error) {
	if records == nil {
		records = []json.RawMessage{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("store: serialize records: %w", err)
	}
	return data, nil
}
