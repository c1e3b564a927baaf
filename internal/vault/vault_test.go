package vault

import (
	"context"
	"testing"

	"github.com/openmined/vaultsync/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...Option) *VaultStore {
	t.Helper()

	sqldb, err := db.NewSqliteDB()
	require.NoError(t, err)
	t.Cleanup(func() { sqldb.Close() })

	backend, err := NewFSBackend(t.TempDir())
	require.NoError(t, err)

	store, err := New(sqldb, backend, opts...)
	require.NoError(t, err)
	return store
}

func created(path, fp string, mtime int64) *FileMetadata {
	return &FileMetadata{Path: path, Kind: KindFile, Action: ActionCreated, Fingerprint: fp, MTime: mtime}
}

func TestVaultWriteRead(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.WriteMetadata(ctx, "a.md", created("a.md", "h1", 100)))
	out, err := store.Write(ctx, "a.md", []byte("hi"), false)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), out)

	content, err := store.Read(ctx, "a.md")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(content))

	meta, err := store.ReadMetadata(ctx, "a.md")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, ActionCreated, meta.Action)
	assert.Equal(t, int64(100), meta.MTime)
}

func TestVaultWriteRequiresMetadata(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Write(context.Background(), "nope.md", []byte("x"), false)
	assert.ErrorIs(t, err, ErrNoMetadata)
}

func TestVaultReadMissing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	meta, err := store.ReadMetadata(ctx, "missing.md")
	assert.NoError(t, err)
	assert.Nil(t, meta)

	_, err = store.Read(ctx, "missing.md")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVaultReadTombstone(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.WriteMetadata(ctx, "a.md", created("a.md", "h1", 100)))
	_, err := store.Write(ctx, "a.md", []byte("hi"), false)
	require.NoError(t, err)

	require.NoError(t, store.WriteMetadata(ctx, "a.md", &FileMetadata{Action: ActionDeleted, MTime: 200}))

	_, err = store.Read(ctx, "a.md")
	assert.ErrorIs(t, err, ErrNotFound)

	// history survives the tombstone
	old, err := store.ReadVersion(ctx, "a.md", 100)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(old))

	meta, err := store.ReadMetadata(ctx, "a.md")
	require.NoError(t, err)
	assert.True(t, meta.IsDeleted())
	assert.Empty(t, meta.Fingerprint)
}

func TestVaultReadFolder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.WriteMetadata(ctx, "docs", &FileMetadata{Kind: KindFolder, Action: ActionCreated, MTime: 10}))

	content, err := store.Read(ctx, "docs")
	require.NoError(t, err)
	assert.NotNil(t, content)
	assert.Empty(t, content)
}

func TestVaultVersionHistory(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i, body := range []string{"one", "two", "three"} {
		mtime := int64(100 * (i + 1))
		require.NoError(t, store.WriteMetadata(ctx, "a.md", created("a.md", Fingerprint([]byte(body)), mtime)))
		_, err := store.Write(ctx, "a.md", []byte(body), false)
		require.NoError(t, err)
	}

	versions, err := store.ListVersions(ctx, "a.md")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, int64(300), versions[0].MTime)
	assert.Equal(t, int64(200), versions[1].MTime)
	assert.Equal(t, int64(100), versions[2].MTime)

	content, err := store.ReadVersion(ctx, "a.md", 200)
	require.NoError(t, err)
	assert.Equal(t, "two", string(content))

	_, err = store.ReadVersion(ctx, "a.md", 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVaultBinaryWriteKeepsOneVersion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i := range 4 {
		mtime := int64(10 * (i + 1))
		require.NoError(t, store.WriteMetadata(ctx, "img.png", created("img.png", "fp", mtime)))
		_, err := store.Write(ctx, "img.png", []byte{byte(i), 0xff}, true)
		require.NoError(t, err)

		versions, err := store.ListVersions(ctx, "img.png")
		require.NoError(t, err)
		require.Len(t, versions, 1)
		assert.Equal(t, mtime, versions[0].MTime)
	}

	_, err := store.ReadVersion(ctx, "img.png", 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVaultDeleteSubtree(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, p := range []string{"dir/a.md", "dir/sub/b.md", "dir2/c.md"} {
		require.NoError(t, store.WriteMetadata(ctx, p, created(p, "fp", 1)))
		_, err := store.Write(ctx, p, []byte(p), false)
		require.NoError(t, err)
	}
	require.NoError(t, store.WriteMetadata(ctx, "dir", &FileMetadata{Kind: KindFolder, Action: ActionCreated, MTime: 1}))

	require.NoError(t, store.Delete(ctx, "dir"))

	paths, err := store.ListPaths(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"dir2/c.md"}, paths)

	meta, err := store.ReadMetadata(ctx, "dir/sub/b.md")
	require.NoError(t, err)
	assert.Nil(t, meta)

	_, err = store.ReadVersion(ctx, "dir/a.md", 1)
	assert.ErrorIs(t, err, ErrNotFound)

	content, err := store.Read(ctx, "dir2/c.md")
	require.NoError(t, err)
	assert.Equal(t, "dir2/c.md", string(content))
}

func TestVaultListPaths(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.WriteMetadata(ctx, "a.md", created("a.md", "x", 1)))
	require.NoError(t, store.WriteMetadata(ctx, "b/c.md", &FileMetadata{Action: ActionDeleted, MTime: 2}))
	require.NoError(t, store.WriteMetadata(ctx, "b", &FileMetadata{Kind: KindFolder, Action: ActionCreated, MTime: 1}))

	paths, err := store.ListPaths(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.md", "b", "b/c.md"}, paths)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestVaultWithoutCache(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, WithCacheSize(0))

	require.NoError(t, store.WriteMetadata(ctx, "a.md", created("a.md", "h1", 1)))
	require.NoError(t, store.WriteMetadata(ctx, "a.md", created("a.md", "h2", 2)))

	meta, err := store.ReadMetadata(ctx, "a.md")
	require.NoError(t, err)
	assert.Equal(t, "h2", meta.Fingerprint)
}

func TestVaultCacheReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.WriteMetadata(ctx, "a.md", created("a.md", "h1", 1)))

	meta, err := store.ReadMetadata(ctx, "a.md")
	require.NoError(t, err)
	meta.Fingerprint = "mutated"

	again, err := store.ReadMetadata(ctx, "a.md")
	require.NoError(t, err)
	assert.Equal(t, "h1", again.Fingerprint)
}

func TestVaultInvalidPath(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, p := range []string{"", "/abs", "../escape", "a/../../b"} {
		err := store.WriteMetadata(ctx, p, created(p, "x", 1))
		assert.ErrorIs(t, err, ErrInvalidPath, p)
	}
}
