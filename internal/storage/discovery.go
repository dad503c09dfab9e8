package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/webspoilt/code-janitor/internal/storage/sqlite"
)

// DefaultPath is where the history database lives relative to a project
const DefaultPath = ".janitor/janitor.db"

// DiscoverDatabase resolves the database path. An explicit path (from
// --db, JANITOR_DB or the config file) wins. Otherwise the nearest
// .janitor/janitor.db from the current directory upward is used, and
// failing that a new one in the current directory.
func DiscoverDatabase(explicit string) (string, error) {
	if explicit != "" {
		if explicit == sqlite.MemoryPath {
			return explicit, nil
		}
		abs, err := filepath.Abs(explicit)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		return abs, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	if found, ok := discoverDatabaseFromDir(dir); ok {
		return found, nil
	}
	return filepath.Join(dir, DefaultPath), nil
}

// discoverDatabaseFromDir walks up from startDir looking for an existing
// database
func discoverDatabaseFromDir(startDir string) (string, bool) {
	dir := startDir
	for {
		candidate := filepath.Join(dir, DefaultPath)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// GetProjectRoot returns the directory containing the .janitor/ directory
// for a database path
func GetProjectRoot(dbPath string) (string, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	dbDir := filepath.Dir(absPath)
	if filepath.Base(dbDir) != ".janitor" {
		return "", fmt.Errorf("database is not in a .janitor/ directory: %s", dbPath)
	}
	return filepath.Dir(dbDir), nil
}
