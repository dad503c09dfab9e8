package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webspoilt/code-janitor/internal/storage/sqlite"
)

func TestDiscoverDatabaseFromDir(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "pkg", "sub")
	require.NoError(t, os.MkdirAll(nested, 0755))

	_, ok := discoverDatabaseFromDir(nested)
	assert.False(t, ok)

	db := filepath.Join(root, DefaultPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(db), 0755))
	require.NoError(t, os.WriteFile(db, nil, 0644))

	found, ok := discoverDatabaseFromDir(nested)
	require.True(t, ok)
	assert.Equal(t, db, found)
}

func TestDiscoverDatabaseExplicit(t *testing.T) {
	path, err := DiscoverDatabase(sqlite.MemoryPath)
	require.NoError(t, err)
	assert.Equal(t, sqlite.MemoryPath, path)

	path, err = DiscoverDatabase("rel/janitor.db")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path))
	assert.Equal(t, "janitor.db", filepath.Base(path))
}

func TestGetProjectRoot(t *testing.T) {
	root, err := GetProjectRoot("/home/user/project/.janitor/janitor.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("/home/user/project"), root)

	_, err = GetProjectRoot("/home/user/project/janitor.db")
	assert.Error(t, err)
}

func TestNewBackupStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	history, err := NewStorage(ctx, &Config{Path: filepath.Join(dir, "janitor.db")})
	require.NoError(t, err)
	defer func() { _ = history.Close() }()

	tests := []struct {
		backend string
		wantErr bool
	}{
		{BackendSQLite, false},
		{BackendBadger, false},
		{BackendMemory, false},
		{"s3", true},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := &Config{BackupBackend: tt.backend, BackupDir: filepath.Join(dir, "backups")}
			store, closeFn, err := NewBackupStore(ctx, cfg, history)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer func() { _ = closeFn() }()

			rec, err := store.PutBackup(ctx, "/src/a.py", []byte("x = 1\n"))
			require.NoError(t, err)
			got, err := store.GetBackup(ctx, rec.Revision)
			require.NoError(t, err)
			assert.Equal(t, []byte("x = 1\n"), got.Content)
		})
	}
}
