package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/webspoilt/code-janitor/internal/types"
)

// CreateRun inserts a run row. StartedAt defaults to now.
func (s *SQLiteStorage) CreateRun(ctx context.Context, run *types.RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, command, started_at, finished_at, dry_run, units, accepted, rolled_back, clean, aborted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Command, formatTime(run.StartedAt), nullTime(run.FinishedAt), run.DryRun,
		run.Units, run.Accepted, run.RolledBack, run.Clean, run.Aborted)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// FinishRun stores the run's final tallies. FinishedAt defaults to now.
func (s *SQLiteStorage) FinishRun(ctx context.Context, run *types.RunRecord) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?,
		    units = ?,
		    accepted = ?,
		    rolled_back = ?,
		    clean = ?,
		    aborted = ?
		WHERE id = ?
	`, nullTime(run.FinishedAt), run.Units, run.Accepted, run.RolledBack, run.Clean, run.Aborted, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("run %s: %w", run.ID, types.ErrNotFound)
	}
	return nil
}

// ListRuns returns runs newest first
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]*types.RunRecord, error) {
	query := `
		SELECT id, command, started_at, finished_at, dry_run, units, accepted, rolled_back, clean, aborted
		FROM runs
		ORDER BY started_at DESC
	`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*types.RunRecord
	for rows.Next() {
		run := &types.RunRecord{}
		var started string
		var finished sql.NullString
		if err := rows.Scan(&run.ID, &run.Command, &started, &finished, &run.DryRun,
			&run.Units, &run.Accepted, &run.RolledBack, &run.Clean, &run.Aborted); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if run.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if finished.Valid {
			t, err := parseTime(finished.String)
			if err != nil {
				return nil, err
			}
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return runs, nil
}

// RecordAttempt stores one refactor attempt. If AttemptNumber is 0 it is
// assigned as max+1 for the (run, unit) pair inside the same transaction.
// The record's ID is populated.
func (s *SQLiteStorage) RecordAttempt(ctx context.Context, attempt *types.AttemptRecord) error {
	if attempt.StartedAt.IsZero() {
		attempt.StartedAt = time.Now().UTC()
	}
	violations, err := json.Marshal(nonNil(attempt.Violations))
	if err != nil {
		return fmt.Errorf("failed to marshal violations: %w", err)
	}

	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		if attempt.AttemptNumber == 0 {
			var maxAttempt int
			err := conn.QueryRowContext(ctx, `
				SELECT COALESCE(MAX(attempt_number), 0)
				FROM refactor_attempts
				WHERE run_id = ? AND unit = ?
			`, attempt.RunID, attempt.Unit).Scan(&maxAttempt)
			if err != nil {
				return fmt.Errorf("failed to query max attempt number: %w", err)
			}
			attempt.AttemptNumber = maxAttempt + 1
		}

		// Validate after auto-assigning fields
		if err := attempt.Validate(); err != nil {
			return fmt.Errorf("invalid refactor attempt: %w", err)
		}

		result, err := conn.ExecContext(ctx, `
			INSERT INTO refactor_attempts (
				run_id, unit, attempt_number, verdict,
				resolved_weight, introduced_weight, violations, error,
				started_at, duration_ms
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			attempt.RunID,
			attempt.Unit,
			attempt.AttemptNumber,
			string(attempt.Verdict),
			attempt.ResolvedWeight,
			attempt.IntroducedWeight,
			string(violations),
			attempt.Error,
			formatTime(attempt.StartedAt),
			attempt.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert refactor attempt: %w", err)
		}

		attempt.ID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert ID: %w", err)
		}
		return nil
	})
}

// ListAttempts returns attempts oldest first, filtered by unit and/or run
func (s *SQLiteStorage) ListAttempts(ctx context.Context, filter types.HistoryFilter) ([]*types.AttemptRecord, error) {
	query := `
		SELECT id, run_id, unit, attempt_number, verdict,
		       resolved_weight, introduced_weight, violations, error,
		       started_at, duration_ms
		FROM refactor_attempts
	`
	where, args := historyWhere(filter)
	query += where + ` ORDER BY started_at ASC, id ASC`
	query, args = withLimit(query, args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query refactor attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var attempts []*types.AttemptRecord
	for rows.Next() {
		a := &types.AttemptRecord{}
		var verdict, violations, started string
		var durationMS int64
		if err := rows.Scan(&a.ID, &a.RunID, &a.Unit, &a.AttemptNumber, &verdict,
			&a.ResolvedWeight, &a.IntroducedWeight, &violations, &a.Error,
			&started, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan refactor attempt: %w", err)
		}
		a.Verdict = types.Verdict(verdict)
		a.Duration = time.Duration(durationMS) * time.Millisecond
		if err := json.Unmarshal([]byte(violations), &a.Violations); err != nil {
			return nil, fmt.Errorf("failed to decode violations for attempt %d: %w", a.ID, err)
		}
		if a.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating refactor attempt rows: %w", err)
	}
	return attempts, nil
}

// RecordAnalysis stores one analysis of a unit and populates its ID
func (s *SQLiteStorage) RecordAnalysis(ctx context.Context, rec *types.AnalysisRecord) error {
	if rec.Unit == "" {
		return fmt.Errorf("unit is required")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	byCategory, err := json.Marshal(rec.ByCategory)
	if err != nil {
		return fmt.Errorf("failed to marshal category counts: %w", err)
	}
	bySeverity, err := json.Marshal(rec.BySeverity)
	if err != nil {
		return fmt.Errorf("failed to marshal severity counts: %w", err)
	}
	issues, err := json.Marshal(nonNil(rec.Issues))
	if err != nil {
		return fmt.Errorf("failed to marshal issues: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_records (run_id, unit, timestamp, total, by_category, by_severity, issues, was_refactored)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.RunID, rec.Unit, formatTime(rec.Timestamp), rec.Total,
		string(byCategory), string(bySeverity), string(issues), rec.WasRefactored)
	if err != nil {
		return fmt.Errorf("failed to insert analysis record: %w", err)
	}

	rec.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return nil
}

// ListAnalyses returns analysis records newest first
func (s *SQLiteStorage) ListAnalyses(ctx context.Context, filter types.HistoryFilter) ([]*types.AnalysisRecord, error) {
	query := `
		SELECT id, run_id, unit, timestamp, total, by_category, by_severity, issues, was_refactored
		FROM analysis_records
	`
	where, args := historyWhere(filter)
	query += where + ` ORDER BY timestamp DESC, id DESC`
	query, args = withLimit(query, args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*types.AnalysisRecord
	for rows.Next() {
		rec := &types.AnalysisRecord{}
		var ts, byCategory, bySeverity, issues string
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Unit, &ts, &rec.Total,
			&byCategory, &bySeverity, &issues, &rec.WasRefactored); err != nil {
			return nil, fmt.Errorf("failed to scan analysis record: %w", err)
		}
		if rec.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		if err := errors.Join(
			json.Unmarshal([]byte(byCategory), &rec.ByCategory),
			json.Unmarshal([]byte(bySeverity), &rec.BySeverity),
			json.Unmarshal([]byte(issues), &rec.Issues),
		); err != nil {
			return nil, fmt.Errorf("failed to decode analysis record %d: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analysis rows: %w", err)
	}
	return records, nil
}

func historyWhere(filter types.HistoryFilter) (string, []any) {
	var where []string
	var args []any
	if filter.Unit != "" {
		where = append(where, "unit = ?")
		args = append(args, filter.Unit)
	}
	if filter.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func withLimit(query string, args []any, limit int) (string, []any) {
	if limit <= 0 {
		return query, args
	}
	return query + ` LIMIT ?`, append(args, limit)
}

// nonNil keeps empty slices encoding as [] rather than null
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
