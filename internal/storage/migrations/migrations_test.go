package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var exampleMigration = Migration{
	Version:     1,
	Description: "Add example test table",
	Up: `
		CREATE TABLE IF NOT EXISTS test_table (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL
		)
	`,
	Down: `
		DROP TABLE IF EXISTS test_table
	`,
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestApplyAndRollback(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	manager := NewManager()
	manager.Register(exampleMigration)
	require.NoError(t, manager.Apply(ctx, db))

	version, err := Version(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	_, err = db.Exec("INSERT INTO test_table (id, name) VALUES (1, 'test')")
	require.NoError(t, err)

	// Applying again is a no-op
	require.NoError(t, manager.Apply(ctx, db))

	require.NoError(t, manager.Rollback(ctx, db))
	version, err = Version(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 0, version)

	_, err = db.Exec("INSERT INTO test_table (id, name) VALUES (1, 'test')")
	assert.Error(t, err, "test table should have been dropped")

	assert.Error(t, manager.Rollback(ctx, db), "nothing left to roll back")
}

func TestJanitorSchema(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	m := Janitor()
	require.NoError(t, m.Apply(ctx, db))

	version, err := Version(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, m.Latest(), version)

	for _, table := range []string{"backups", "runs", "refactor_attempts", "analysis_records"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", table).Scan(&name)
		assert.NoError(t, err, table)
	}
}

func TestMigrationOrdering(t *testing.T) {
	manager := NewManager()
	manager.Register(Migration{Version: 3, Description: "Third"})
	manager.Register(Migration{Version: 1, Description: "First"})
	manager.Register(Migration{Version: 2, Description: "Second"})

	manager.sortMigrations()

	require.Len(t, manager.migrations, 3)
	for i, want := range []int{1, 2, 3} {
		assert.Equal(t, want, manager.migrations[i].Version)
	}
	assert.Equal(t, 3, manager.Latest())
}
