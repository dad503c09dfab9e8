// Package storage defines the janitor's persistence interfaces and opens
// the configured backends.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/webspoilt/code-janitor/internal/storage/badger"
	"github.com/webspoilt/code-janitor/internal/storage/memory"
	"github.com/webspoilt/code-janitor/internal/storage/sqlite"
	"github.com/webspoilt/code-janitor/internal/types"
)

// BackupStore persists immutable backup records. PutBackup must not return
// until the record is durable.
type BackupStore interface {
	PutBackup(ctx context.Context, unit string, content []byte) (*types.BackupRecord, error)
	GetBackup(ctx context.Context, revision int64) (*types.BackupRecord, error)
	ListBackups(ctx context.Context, unit string) ([]*types.BackupRecord, error)
	DeleteBackup(ctx context.Context, revision int64) error
	DeleteBackups(ctx context.Context, filter types.BackupFilter) (int, error)
	Close() error
}

// HistoryStore records runs, refactor attempts and analyses
type HistoryStore interface {
	// Runs
	CreateRun(ctx context.Context, run *types.RunRecord) error
	FinishRun(ctx context.Context, run *types.RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]*types.RunRecord, error)

	// Refactor attempts
	RecordAttempt(ctx context.Context, attempt *types.AttemptRecord) error
	ListAttempts(ctx context.Context, filter types.HistoryFilter) ([]*types.AttemptRecord, error)

	// Analyses
	RecordAnalysis(ctx context.Context, rec *types.AnalysisRecord) error
	ListAnalyses(ctx context.Context, filter types.HistoryFilter) ([]*types.AnalysisRecord, error)

	Close() error
}

// Storage is a backend that serves both roles
type Storage interface {
	BackupStore
	HistoryStore
	Ping(ctx context.Context) error
}

var (
	_ Storage     = (*sqlite.SQLiteStorage)(nil)
	_ BackupStore = (*badger.Store)(nil)
	_ BackupStore = (*memory.Store)(nil)
)

// Backup backends
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: ".janitor/janitor.db"
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path string

	// BackupBackend selects where backups live: sqlite, badger or memory
	BackupBackend string

	// BackupDir is the Badger directory parent (badger backend only)
	BackupDir string

	Logger *slog.Logger
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path:          DefaultPath,
		BackupBackend: BackendSQLite,
		BackupDir:     ".janitor_backups",
	}
}

// NewStorage opens the SQLite history database
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	return sqlite.New(path)
}

// NewBackupStore opens the configured backup backend. The sqlite backend
// shares history (which the caller still owns); the returned closer is a
// no-op in that case.
func NewBackupStore(ctx context.Context, cfg *Config, history Storage) (BackupStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.BackupBackend {
	case "", BackendSQLite:
		if history == nil {
			return nil, nil, fmt.Errorf("sqlite backup backend requires the history database")
		}
		return history, noop, nil
	case BackendBadger:
		dir := cfg.BackupDir
		if dir == "" {
			dir = DefaultConfig().BackupDir
		}
		store, err := badger.New(badger.Config{Path: filepath.Join(dir, "badger"), Logger: cfg.Logger})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case BackendMemory:
		store := memory.New()
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown backup backend %q (want sqlite, badger or memory)", cfg.BackupBackend)
	}
}
