// Package backup snapshots a unit's original content before it is touched
// and restores it on rollback.
//
// Records are immutable once written. The manager never keeps content in
// memory on behalf of callers: Snapshot hands back a revision id, and
// Restore reads the record again from the store.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/webspoilt/code-janitor/internal/storage"
	"github.com/webspoilt/code-janitor/internal/types"
	"github.com/webspoilt/code-janitor/internal/workspace"
)

// Manager snapshots and restores units through a durable store
type Manager struct {
	store  storage.BackupStore
	logger *slog.Logger

	// writeFile replaces a unit's content; tests inject failures
	writeFile func(path string, data []byte) error
}

// NewManager creates a manager over store
func NewManager(store storage.BackupStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, logger: logger, writeFile: workspace.WriteFileAtomic}
}

// Snapshot durably records content as the original of unit and returns
// the new revision. Failures are *types.BackupError.
func (m *Manager) Snapshot(ctx context.Context, unit string, content []byte) (int64, error) {
	rec, err := m.store.PutBackup(ctx, unit, content)
	if err != nil {
		return 0, &types.BackupError{Unit: unit, Op: "snapshot", Err: err}
	}

	// Read back so a store that silently dropped or mangled the write is
	// caught before anything is mutated
	check, err := m.store.GetBackup(ctx, rec.Revision)
	if err != nil {
		return 0, &types.BackupError{Unit: unit, Op: "snapshot", Err: fmt.Errorf("verify revision %d: %w", rec.Revision, err)}
	}
	if !bytes.Equal(check.Content, content) {
		return 0, &types.BackupError{Unit: unit, Op: "snapshot", Err: fmt.Errorf("revision %d does not match the original", rec.Revision)}
	}

	m.logger.Debug("snapshot taken", "unit", unit, "revision", rec.Revision, "size", rec.Size)
	return rec.Revision, nil
}

// Restore writes the recorded content back to the unit's path. It is
// idempotent: when the working copy already matches, nothing is written.
// Returns whether a write happened.
func (m *Manager) Restore(ctx context.Context, revision int64) (bool, error) {
	rec, err := m.store.GetBackup(ctx, revision)
	if err != nil {
		return false, &types.BackupError{Op: "restore", Unit: fmt.Sprintf("revision %d", revision), Err: err}
	}

	current, err := os.ReadFile(rec.Unit)
	if err == nil && bytes.Equal(current, rec.Content) {
		m.logger.Debug("restore skipped, working copy unchanged", "unit", rec.Unit, "revision", revision)
		return false, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, &types.BackupError{Unit: rec.Unit, Op: "restore", Err: err}
	}

	if err := m.writeFile(rec.Unit, rec.Content); err != nil {
		return false, &types.BackupError{Unit: rec.Unit, Op: "restore", Err: err}
	}
	m.logger.Info("restored unit from backup", "unit", rec.Unit, "revision", revision)
	return true, nil
}

// List returns the records for unit (all units when empty), newest first
func (m *Manager) List(ctx context.Context, unit string) ([]*types.BackupRecord, error) {
	return m.store.ListBackups(ctx, unit)
}

// Get returns one record with its content
func (m *Manager) Get(ctx context.Context, revision int64) (*types.BackupRecord, error) {
	return m.store.GetBackup(ctx, revision)
}

// Purge deletes every record matching filter
func (m *Manager) Purge(ctx context.Context, filter types.BackupFilter) (int, error) {
	n, err := m.store.DeleteBackups(ctx, filter)
	if err != nil {
		return 0, err
	}
	m.logger.Info("purged backups", "unit", filter.Unit, "before", filter.Before, "deleted", n)
	return n, nil
}

// Prune keeps the newest keep records of unit and deletes the rest
func (m *Manager) Prune(ctx context.Context, unit string, keep int) (int, error) {
	if unit == "" {
		return 0, fmt.Errorf("prune requires a unit")
	}
	if keep < 1 {
		return 0, fmt.Errorf("keep must be at least 1 (got %d)", keep)
	}

	records, err := m.store.ListBackups(ctx, unit)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, rec := range records[min(keep, len(records)):] {
		if err := m.store.DeleteBackup(ctx, rec.Revision); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// Discard deletes one revision after a rollback
func (m *Manager) Discard(ctx context.Context, revision int64) error {
	return m.store.DeleteBackup(ctx, revision)
}
