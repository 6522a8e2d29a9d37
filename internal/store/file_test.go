package store

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewFileStore(dir, NewLockManager(time.Millisecond), logger), dir
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func TestFileCollectionRoundTrip(t *testing.T) {
	st, _ := newTestFileStore(t)
	col := st.Collection("products")
	ctx := context.Background()

	records := []json.RawMessage{
		raw(`{"id":"a","name":"Mug"}`),
		raw(`{"id":"b","name":"Shirt"}`),
	}
	require.NoError(t, col.WriteAll(ctx, records))

	got, err := col.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.JSONEq(t, string(records[0]), string(got[0]))
	assert.JSONEq(t, string(records[1]), string(got[1]))
}

func TestFileCollectionMissingFileReadsEmptyAndCreates(t *testing.T) {
	st, dir := newTestFileStore(t)
	col := st.Collection("carts")

	got, err := col.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)

	// The file now exists, holding an empty collection.
	data, err := os.ReadFile(filepath.Join(dir, "carts.json"))
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestFileCollectionEmptyFileReadsEmpty(t *testing.T) {
	st, dir := newTestFileStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orders.json"), nil, 0o644))

	got, err := st.Collection("orders").ReadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFileCollectionCorruptionRecoversFromBackup(t *testing.T) {
	st, dir := newTestFileStore(t)
	col := st.Collection("products")
	ctx := context.Background()

	good := []json.RawMessage{raw(`{"id":"a"}`)}
	require.NoError(t, col.WriteAll(ctx, good))
	backup, err := os.ReadFile(filepath.Join(dir, "products.json"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "products.json.backup"), backup, 0o644))

	// Corrupt the live file.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "products.json"), []byte("{{{not json"), 0o644))

	got, err := col.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"id":"a"}`, string(got[0]))

	// The live file was healed in place.
	healed, err := os.ReadFile(filepath.Join(dir, "products.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a"}]`, string(healed))
}

func TestFileCollectionCorruptionWithoutBackupResetsEmpty(t *testing.T) {
	st, dir := newTestFileStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "products.json"), []byte("garbage"), 0o644))

	got, err := st.Collection("products").ReadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)

	data, err := os.ReadFile(filepath.Join(dir, "products.json"))
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestFileCollectionWriteKeepsBackupGeneration(t *testing.T) {
	st, dir := newTestFileStore(t)
	col := st.Collection("products")
	ctx := context.Background()

	require.NoError(t, col.WriteAll(ctx, []json.RawMessage{raw(`{"gen":1}`)}))
	require.NoError(t, col.WriteAll(ctx, []json.RawMessage{raw(`{"gen":2}`)}))

	backup, err := os.ReadFile(filepath.Join(dir, "products.json.backup"))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"gen":1}]`, string(backup))

	current, err := os.ReadFile(filepath.Join(dir, "products.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"gen":2}]`, string(current))
}

func TestFileCollectionFailedWriteLeavesTargetIntact(t *testing.T) {
	st, dir := newTestFileStore(t)
	col := st.Collection("products")
	ctx := context.Background()

	require.NoError(t, col.WriteAll(ctx, []json.RawMessage{raw(`{"id":"a"}`)}))

	// A record that cannot be serialized fails the write before anything
	// reaches the target file.
	err := col.WriteAll(ctx, []json.RawMessage{raw(`{{{broken`)})
	require.Error(t, err)

	current, rerr := os.ReadFile(filepath.Join(dir, "products.json"))
	require.NoError(t, rerr)
	assert.JSONEq(t, `[{"id":"a"}]`, string(current))

	_, terr := os.Stat(filepath.Join(dir, "products.json.tmp"))
	assert.True(t, os.IsNotExist(terr), "temp file must be removed on failure")
}

func TestFileCollectionUpdateReadModifyWrite(t *testing.T) {
	st, _ := newTestFileStore(t)
	col := st.Collection("products")
	ctx := context.Background()

	require.NoError(t, col.WriteAll(ctx, []json.RawMessage{raw(`{"id":"a"}`)}))

	err := col.Update(ctx, func(records []json.RawMessage) ([]json.RawMessage, error) {
		return append(records, raw(`{"id":"b"}`)), nil
	})
	require.NoError(t, err)

	got, err := col.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFileCollectionUpdateUnchangedSkipsWrite(t *testing.T) {
	st, dir := newTestFileStore(t)
	col := st.Collection("products")
	ctx := context.Background()

	require.NoError(t, col.WriteAll(ctx, []json.RawMessage{raw(`{"id":"a"}`)}))
	before, err := os.ReadFile(filepath.Join(dir, "products.json"))
	require.NoError(t, err)

	err = col.Update(ctx, func(records []json.RawMessage) ([]json.RawMessage, error) {
		return nil, ErrUnchanged
	})
	require.NoError(t, err)

	after, err := os.ReadFile(filepath.Join(dir, "products.json"))
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestFileCollectionLockReleasedAfterError(t *testing.T) {
	st, _ := newTestFileStore(t)
	col := st.Collection("products")
	ctx := context.Background()

	require.Error(t, col.WriteAll(ctx, []json.RawMessage{raw(`broken`)}))

	// The collection must still be usable: the lock was released despite
	// the failed write.
	done := make(chan error, 1)
	go func() {
		_, err := col.ReadAll(ctx)
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("collection lock was not released after a failed write")
	}
}

func TestDecodeRecordsShapes(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int
		wantErr bool
	}{
		{"array", `[{"a":1},{"b":2}]`, 2, false},
		{"empty array", `[]`, 0, false},
		{"blank", "   ", 0, false},
		{"single object", `{"a":1}`, 1, false},
		{"scalar", `42`, 0, true},
		{"truncated", `[{"a":1}`, 0, true},
		{"garbage", `not json at all`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeRecords([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.wantLen)
		})
	}
}
