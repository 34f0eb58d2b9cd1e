package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glassdesk/relay/storage"
)

func newStore(t *testing.T) *ChunkStore {
	t.Helper()
	store, err := NewChunkStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestChunkStore_PutAndRead(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	err := store.Put(ctx, "c1", 1, []byte("frame-1"))
	require.NoError(t, err)

	data, err := store.Read(ctx, "c1", 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("frame-1"), data)
}

func TestChunkStore_ReadMissing(t *testing.T) {
	store := newStore(t)

	_, err := store.Read(context.Background(), "c1", 99)
	assert.ErrorIs(t, err, storage.ErrChunkNotFound)
}

func TestChunkStore_ListSortedAscending(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for _, seq := range []int64{10, 2, 7} {
		require.NoError(t, store.Put(ctx, "c1", seq, []byte("x")))
	}

	sequences, err := store.List(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 7, 10}, sequences)
}

func TestChunkStore_ListEmptyClient(t *testing.T) {
	store := newStore(t)

	sequences, err := store.List(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Empty(t, sequences)
}

func TestChunkStore_ListSkipsForeignFiles(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "c1", 1, []byte("x")))

	dir := filepath.Join(store.BaseDir(), chunkDirName, "c1")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.chunk"), []byte("hi"), 0600))

	sequences, err := store.List(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, sequences)
}

func TestChunkStore_ReadAndDelete(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "c1", 3, []byte("frame-3")))

	data, err := store.ReadAndDelete(ctx, "c1", 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("frame-3"), data)

	// Consume-once: a second read finds nothing.
	_, err = store.Read(ctx, "c1", 3)
	assert.ErrorIs(t, err, storage.ErrChunkNotFound)
}

func TestChunkStore_DeleteAbsent(t *testing.T) {
	store := newStore(t)

	assert.NoError(t, store.Delete(context.Background(), "c1", 5))
}

func TestChunkStore_OverwriteSameSequence(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "c1", 1, []byte("old")))
	require.NoError(t, store.Put(ctx, "c1", 1, []byte("new")))

	data, err := store.Read(ctx, "c1", 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), data)
}

func TestChunkStore_HostileClientID(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	// Traversal attempts are neutralized rather than escaping the root.
	require.NoError(t, store.Put(ctx, "../../etc", 1, []byte("x")))

	entries, err := os.ReadDir(filepath.Join(store.BaseDir(), chunkDirName))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Name(), "..")
}

func TestChunkStore_WriteAndReadFile(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	err := store.WriteFile(ctx, "screenshots/c1/shot.png", []byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)

	data, err := store.ReadFile(ctx, "screenshots/c1/shot.png")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)
}

func TestChunkStore_ReadFileEscapeRejected(t *testing.T) {
	store := newStore(t)

	_, err := store.ReadFile(context.Background(), "../outside.txt")
	assert.ErrorIs(t, err, storage.ErrInvalidPath)
}

func TestChunkStore_ReadFileMissing(t *testing.T) {
	store := newStore(t)

	_, err := store.ReadFile(context.Background(), "screenshots/none.png")
	assert.ErrorIs(t, err, storage.ErrChunkNotFound)
}
