package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/webspoilt/code-janitor/internal/types"
)

// PutBackup stores a new immutable backup record. The insert is committed
// (and synced, given synchronous=FULL) before PutBackup returns.
func (s *SQLiteStorage) PutBackup(ctx context.Context, unit string, content []byte) (*types.BackupRecord, error) {
	if unit == "" {
		return nil, fmt.Errorf("unit is required")
	}
	sum := sha256.Sum256(content)
	blob := make([]byte, len(content))
	copy(blob, content)
	rec := &types.BackupRecord{
		Unit:      unit,
		Content:   blob,
		SHA256:    hex.EncodeToString(sum[:]),
		Size:      int64(len(content)),
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO backups (unit, content, sha256, size, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.Unit, rec.Content, rec.SHA256, rec.Size, formatTime(rec.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to insert backup: %w", err)
	}

	rec.Revision, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit backup: %w", err)
	}
	return rec, nil
}

// GetBackup returns the record for a revision, including its content
func (s *SQLiteStorage) GetBackup(ctx context.Context, revision int64) (*types.BackupRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT revision, unit, content, sha256, size, created_at
		FROM backups
		WHERE revision = ?
	`, revision)

	rec, err := scanBackup(row.Scan, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("backup revision %d: %w", revision, types.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListBackups returns records newest first, without content. An empty
// unit lists every unit.
func (s *SQLiteStorage) ListBackups(ctx context.Context, unit string) ([]*types.BackupRecord, error) {
	query := `SELECT revision, unit, NULL, sha256, size, created_at FROM backups`
	var args []any
	if unit != "" {
		query += ` WHERE unit = ?`
		args = append(args, unit)
	}
	query += ` ORDER BY revision DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query backups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*types.BackupRecord
	for rows.Next() {
		rec, err := scanBackup(rows.Scan, false)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backup rows: %w", err)
	}
	return records, nil
}

// DeleteBackup removes one revision. Deleting a missing revision is not
// an error.
func (s *SQLiteStorage) DeleteBackup(ctx context.Context, revision int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM backups WHERE revision = ?`, revision); err != nil {
		return fmt.Errorf("failed to delete backup %d: %w", revision, err)
	}
	return nil
}

// DeleteBackups removes every record matching filter and returns how many
// were removed. An empty filter deletes nothing.
func (s *SQLiteStorage) DeleteBackups(ctx context.Context, filter types.BackupFilter) (int, error) {
	if filter.IsEmpty() {
		return 0, nil
	}

	var where []string
	var args []any
	if filter.Unit != "" {
		where = append(where, "unit = ?")
		args = append(args, filter.Unit)
	}
	if !filter.Before.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, formatTime(filter.Before))
	}

	query := `DELETE FROM backups`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to purge backups: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

func scanBackup(scan func(dest ...any) error, withContent bool) (*types.BackupRecord, error) {
	rec := &types.BackupRecord{}
	var content []byte
	var created string
	if err := scan(&rec.Revision, &rec.Unit, &content, &rec.SHA256, &rec.Size, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan backup: %w", err)
	}
	if withContent {
		rec.Content = content
		if rec.Content == nil {
			rec.Content = []byte{}
		}
	}
	var err error
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return rec, nil
}
