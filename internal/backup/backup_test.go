package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webspoilt/code-janitor/internal/storage"
	"github.com/webspoilt/code-janitor/internal/storage/memory"
	"github.com/webspoilt/code-janitor/internal/storage/sqlite"
	"github.com/webspoilt/code-janitor/internal/types"
)

func stores(t *testing.T) map[string]storage.BackupStore {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "janitor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return map[string]storage.BackupStore{
		"memory": memory.New(),
		"sqlite": db,
	}
}

func writeUnit(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "unit.py")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestSnapshotAndRestore(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m := NewManager(store, nil)
			original := "def f():\n    return eval('1')\n"
			path := writeUnit(t, original)

			rev, err := m.Snapshot(ctx, path, []byte(original))
			require.NoError(t, err)

			// Restoring an untouched unit writes nothing
			wrote, err := m.Restore(ctx, rev)
			require.NoError(t, err)
			assert.False(t, wrote)

			require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))

			wrote, err = m.Restore(ctx, rev)
			require.NoError(t, err)
			assert.True(t, wrote)
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, original, string(data))

			// Restore is idempotent
			wrote, err = m.Restore(ctx, rev)
			require.NoError(t, err)
			assert.False(t, wrote)
		})
	}
}

func TestRestoreRecreatesDeletedUnit(t *testing.T) {
	ctx := context.Background()
	m := NewManager(memory.New(), nil)
	path := writeUnit(t, "x = 1\n")

	rev, err := m.Snapshot(ctx, path, []byte("x = 1\n"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	wrote, err := m.Restore(ctx, rev)
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.FileExists(t, path)
}

func TestSnapshotFailureIsBackupError(t *testing.T) {
	store := memory.New()
	store.FailPut = errors.New("disk full")
	m := NewManager(store, nil)

	_, err := m.Snapshot(context.Background(), "/src/a.py", []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrBackup)

	var be *types.BackupError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "snapshot", be.Op)
	assert.Equal(t, "/src/a.py", be.Unit)
}

func TestRestoreFailures(t *testing.T) {
	ctx := context.Background()
	m := NewManager(memory.New(), nil)

	_, err := m.Restore(ctx, 99)
	assert.ErrorIs(t, err, types.ErrBackup)
	assert.ErrorIs(t, err, types.ErrNotFound)

	path := writeUnit(t, "original\n")
	rev, err := m.Snapshot(ctx, path, []byte("original\n"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("candidate\n"), 0644))

	m.writeFile = func(string, []byte) error { return errors.New("read-only file system") }
	_, err = m.Restore(ctx, rev)
	assert.ErrorIs(t, err, types.ErrBackup)
}

func TestPruneAndPurge(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m := NewManager(store, nil)

			var revs []int64
			for i := 0; i < 4; i++ {
				rev, err := m.Snapshot(ctx, "/src/a.py", []byte{byte('0' + i)})
				require.NoError(t, err)
				revs = append(revs, rev)
			}
			_, err := m.Snapshot(ctx, "/src/b.py", []byte("b"))
			require.NoError(t, err)

			_, err = m.Prune(ctx, "/src/a.py", 0)
			assert.Error(t, err)

			deleted, err := m.Prune(ctx, "/src/a.py", 2)
			require.NoError(t, err)
			assert.Equal(t, 2, deleted)

			kept, err := m.List(ctx, "/src/a.py")
			require.NoError(t, err)
			require.Len(t, kept, 2)
			assert.Equal(t, revs[3], kept[0].Revision)
			assert.Equal(t, revs[2], kept[1].Revision)

			deleted, err = m.Prune(ctx, "/src/a.py", 5)
			require.NoError(t, err)
			assert.Zero(t, deleted)

			require.NoError(t, m.Discard(ctx, revs[3]))
			_, err = m.Get(ctx, revs[3])
			assert.ErrorIs(t, err, types.ErrNotFound)

			n, err := m.Purge(ctx, types.BackupFilter{All: true})
			require.NoError(t, err)
			assert.Equal(t, 2, n)
		})
	}
}
