package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webspoilt/code-janitor/internal/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), ".janitor", "janitor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBackupRoundTripSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "janitor.db")

	store, err := New(path)
	require.NoError(t, err)

	original := []byte("def f():\n    return 1\n")
	rec, err := store.PutBackup(ctx, "/src/a.py", original)
	require.NoError(t, err)
	assert.Positive(t, rec.Revision)
	assert.Equal(t, int64(len(original)), rec.Size)
	assert.Len(t, rec.SHA256, 64)
	require.NoError(t, store.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, err := reopened.GetBackup(ctx, rec.Revision)
	require.NoError(t, err)
	assert.Equal(t, original, got.Content)
	assert.Equal(t, "/src/a.py", got.Unit)
	assert.Equal(t, rec.SHA256, got.SHA256)
	assert.WithinDuration(t, rec.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestBackupEmptyContent(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	rec, err := store.PutBackup(ctx, "/src/empty.py", []byte{})
	require.NoError(t, err)

	got, err := store.GetBackup(ctx, rec.Revision)
	require.NoError(t, err)
	assert.NotNil(t, got.Content)
	assert.Empty(t, got.Content)
}

func TestBackupRevisionsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	var last int64
	for i, unit := range []string{"/a.py", "/b.py", "/a.py"} {
		rec, err := store.PutBackup(ctx, unit, []byte{byte('a' + i)})
		require.NoError(t, err)
		assert.Greater(t, rec.Revision, last)
		last = rec.Revision
	}

	// Deleting the newest never lets its revision be reused
	require.NoError(t, store.DeleteBackup(ctx, last))
	rec, err := store.PutBackup(ctx, "/c.py", []byte("c"))
	require.NoError(t, err)
	assert.Greater(t, rec.Revision, last)
}

func TestListAndPurgeBackups(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	for _, unit := range []string{"/a.py", "/b.py", "/a.py"} {
		_, err := store.PutBackup(ctx, unit, []byte(unit))
		require.NoError(t, err)
	}

	all, err := store.ListBackups(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Greater(t, all[0].Revision, all[1].Revision, "newest first")
	assert.Nil(t, all[0].Content, "listing omits content")

	onlyA, err := store.ListBackups(ctx, "/a.py")
	require.NoError(t, err)
	assert.Len(t, onlyA, 2)

	n, err := store.DeleteBackups(ctx, types.BackupFilter{})
	require.NoError(t, err)
	assert.Zero(t, n, "empty filter deletes nothing")

	n, err = store.DeleteBackups(ctx, types.BackupFilter{Before: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = store.DeleteBackups(ctx, types.BackupFilter{Unit: "/a.py"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.DeleteBackups(ctx, types.BackupFilter{All: true})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetMissingBackup(t *testing.T) {
	store := setupTestDB(t)
	_, err := store.GetBackup(context.Background(), 42)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRunsAndAttempts(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	run := &types.RunRecord{ID: "run-1", Command: "clean"}
	require.NoError(t, store.CreateRun(ctx, run))

	first := &types.AttemptRecord{
		RunID:            "run-1",
		Unit:             "/src/a.py",
		Verdict:          types.VerdictRejected,
		ResolvedWeight:   25,
		IntroducedWeight: 30,
		Violations:       []string{"protected-symbols: protected symbol `f` was removed"},
		Duration:         1500 * time.Millisecond,
	}
	require.NoError(t, store.RecordAttempt(ctx, first))
	assert.Equal(t, 1, first.AttemptNumber, "attempt number is auto-assigned")
	assert.NotZero(t, first.ID)

	second := &types.AttemptRecord{RunID: "run-1", Unit: "/src/a.py", Verdict: types.VerdictAccepted}
	require.NoError(t, store.RecordAttempt(ctx, second))
	assert.Equal(t, 2, second.AttemptNumber)

	other := &types.AttemptRecord{RunID: "run-1", Unit: "/src/b.py", Verdict: types.VerdictProviderError, Error: "timeout"}
	require.NoError(t, store.RecordAttempt(ctx, other))
	assert.Equal(t, 1, other.AttemptNumber, "numbering is per unit")

	bad := &types.AttemptRecord{RunID: "run-1", Unit: "/src/a.py", Verdict: "maybe"}
	assert.Error(t, store.RecordAttempt(ctx, bad))

	attempts, err := store.ListAttempts(ctx, types.HistoryFilter{Unit: "/src/a.py"})
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, types.VerdictRejected, attempts[0].Verdict)
	assert.Equal(t, first.Violations, attempts[0].Violations)
	assert.Equal(t, 1500*time.Millisecond, attempts[0].Duration)
	assert.Equal(t, 30.0, attempts[0].IntroducedWeight)
	assert.Empty(t, attempts[1].Violations)

	run.Tally(&types.Outcome{State: types.StateAccepted})
	run.Tally(&types.Outcome{State: types.StateRolledBack})
	require.NoError(t, store.FinishRun(ctx, run))

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].Units)
	assert.Equal(t, 1, runs[0].Accepted)
	assert.Equal(t, 1, runs[0].RolledBack)
	require.NotNil(t, runs[0].FinishedAt)

	assert.ErrorIs(t, store.FinishRun(ctx, &types.RunRecord{ID: "missing"}), types.ErrNotFound)
}

func TestAnalysisRecords(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	issue := types.NewIssue(types.CategorySecurity, types.SeverityCritical,
		types.Location{Unit: "/src/a.py", StartLine: 3, EndLine: 3}, "dangerous use of eval()", "security").
		WithRule("eval-call")
	report := types.NewReport("/src/a.py", []types.Issue{issue}, nil)

	rec := types.NewAnalysisRecord("", report, false)
	require.NoError(t, store.RecordAnalysis(ctx, rec))
	assert.NotZero(t, rec.ID)

	later := types.NewAnalysisRecord("", types.NewReport("/src/a.py", nil, nil), true)
	later.Timestamp = rec.Timestamp.Add(time.Second)
	require.NoError(t, store.RecordAnalysis(ctx, later))

	records, err := store.ListAnalyses(ctx, types.HistoryFilter{Unit: "/src/a.py"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.True(t, records[0].WasRefactored, "newest first")
	assert.Equal(t, 0, records[0].Total)

	assert.Equal(t, 1, records[1].Total)
	assert.Equal(t, 1, records[1].BySeverity["critical"])
	require.Len(t, records[1].Issues, 1)
	assert.Equal(t, "eval-call", records[1].Issues[0].Rule)
	assert.Equal(t, types.SeverityCritical, records[1].Issues[0].Severity)

	limited, err := store.ListAnalyses(ctx, types.HistoryFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestInMemoryDatabase(t *testing.T) {
	store, err := New(MemoryPath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	require.NoError(t, store.CreateRun(ctx, &types.RunRecord{ID: "r", Command: "check"}))
	require.NoError(t, store.RecordAttempt(ctx, &types.AttemptRecord{RunID: "r", Unit: "/u", Verdict: types.VerdictPending}))
	require.NoError(t, store.Ping(ctx))
}
