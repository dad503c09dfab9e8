package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webspoilt/code-janitor/internal/types"
)

func TestRoundTripAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := New(Config{Path: dir})
	require.NoError(t, err)

	first, err := store.PutBackup(ctx, "/src/a.py", []byte("original"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Revision)
	require.NoError(t, store.Close())

	reopened, err := New(Config{Path: dir})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, err := reopened.GetBackup(ctx, first.Revision)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got.Content)
	assert.Equal(t, first.SHA256, got.SHA256)

	second, err := reopened.PutBackup(ctx, "/src/a.py", []byte("again"))
	require.NoError(t, err)
	assert.Greater(t, second.Revision, first.Revision, "revisions keep increasing after reopen")
}

func TestListNewestFirstAndPurge(t *testing.T) {
	ctx := context.Background()
	store, err := New(Config{InMemory: true})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	var revs []int64
	for _, unit := range []string{"/a.py", "/b.py", "/a.py", "/a.py"} {
		rec, err := store.PutBackup(ctx, unit, []byte(unit))
		require.NoError(t, err)
		revs = append(revs, rec.Revision)
	}

	all, err := store.ListBackups(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, revs[3], all[0].Revision)
	assert.Equal(t, revs[0], all[3].Revision)
	assert.Nil(t, all[0].Content)

	onlyA, err := store.ListBackups(ctx, "/a.py")
	require.NoError(t, err)
	require.Len(t, onlyA, 3)
	assert.Equal(t, []int64{revs[3], revs[2], revs[0]},
		[]int64{onlyA[0].Revision, onlyA[1].Revision, onlyA[2].Revision})

	n, err := store.DeleteBackups(ctx, types.BackupFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = store.DeleteBackups(ctx, types.BackupFilter{Unit: "/a.py", Before: time.Now().Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, store.DeleteBackup(ctx, revs[1]))
	require.NoError(t, store.DeleteBackup(ctx, revs[1]), "deleting twice is fine")

	all, err = store.ListBackups(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = store.GetBackup(ctx, revs[1])
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestUnitPrefixesDoNotOverlap(t *testing.T) {
	ctx := context.Background()
	store, err := New(Config{InMemory: true})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, err = store.PutBackup(ctx, "/src/a.py", []byte("a"))
	require.NoError(t, err)
	_, err = store.PutBackup(ctx, "/src/a.pyc", []byte("b"))
	require.NoError(t, err)

	recs, err := store.ListBackups(ctx, "/src/a.py")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "/src/a.py", recs[0].Unit)
}
