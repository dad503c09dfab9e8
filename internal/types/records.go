package types

import (
	"fmt"
	"time"
)

// BackupRecord is an immutable copy of a unit's original content. Revision
// is assigned by the store and is monotonic across the whole store.
type BackupRecord struct {
	Revision  int64     `json:"revision"`
	Unit      string    `json:"unit"` // absolute path
	Content   []byte    `json:"content,omitempty"`
	SHA256    string    `json:"sha256"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// BackupFilter selects backups for deletion. The zero value matches
// nothing; set All to match every record.
type BackupFilter struct {
	Unit   string    // Only this unit (absolute path)
	Before time.Time // Only records created before this time
	All    bool
}

// IsEmpty reports whether the filter would match nothing
func (f BackupFilter) IsEmpty() bool {
	return f.Unit == "" && f.Before.IsZero() && !f.All
}

// Matches reports whether rec is selected by the filter
func (f BackupFilter) Matches(rec *BackupRecord) bool {
	if f.IsEmpty() {
		return false
	}
	if f.Unit != "" && rec.Unit != f.Unit {
		return false
	}
	if !f.Before.IsZero() && !rec.CreatedAt.Before(f.Before) {
		return false
	}
	return true
}

// RunRecord summarizes one janitor invocation (check or clean)
type RunRecord struct {
	ID         string     `json:"id"`
	Command    string     `json:"command"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DryRun     bool       `json:"dry_run"`
	Units      int        `json:"units"`
	Accepted   int        `json:"accepted"`
	RolledBack int        `json:"rolled_back"`
	Clean      int        `json:"clean"`
	Aborted    int        `json:"aborted"`
}

// Tally counts an outcome into the run summary
func (r *RunRecord) Tally(o *Outcome) {
	r.Units++
	switch o.State {
	case StateAccepted:
		r.Accepted++
	case StateRolledBack:
		r.RolledBack++
	case StateClean:
		r.Clean++
	case StateAborted:
		r.Aborted++
	}
}

// AttemptRecord is the persisted form of one refactor attempt
type AttemptRecord struct {
	ID               int64         `json:"id"`
	RunID            string        `json:"run_id"`
	Unit             string        `json:"unit"`
	AttemptNumber    int           `json:"attempt_number"` // auto-assigned when 0
	Verdict          Verdict       `json:"verdict"`
	ResolvedWeight   float64       `json:"resolved_weight"`
	IntroducedWeight float64       `json:"introduced_weight"`
	Violations       []string      `json:"violations,omitempty"`
	Error            string        `json:"error,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration"`
}

// Validate checks the record before it is stored
func (a *AttemptRecord) Validate() error {
	if a.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	if a.Unit == "" {
		return fmt.Errorf("unit is required")
	}
	if a.AttemptNumber < 1 {
		return fmt.Errorf("attempt_number must be positive (got %d)", a.AttemptNumber)
	}
	if !a.Verdict.IsValid() {
		return fmt.Errorf("invalid verdict: %q", a.Verdict)
	}
	return nil
}

// NewAttemptRecord flattens an in-memory attempt for storage
func NewAttemptRecord(runID, unit string, at *Attempt, w Weights) *AttemptRecord {
	rec := &AttemptRecord{
		RunID:         runID,
		Unit:          unit,
		AttemptNumber: at.Number,
		Verdict:       at.Verdict,
		Error:         at.Error,
		StartedAt:     at.StartedAt,
		Duration:      at.Duration,
	}
	if at.Delta != nil {
		rec.ResolvedWeight = at.Delta.ResolvedWeight(w)
		rec.IntroducedWeight = at.Delta.IntroducedWeight(w)
	}
	for _, v := range at.Violations {
		rec.Violations = append(rec.Violations, v.String())
	}
	return rec
}

// AnalysisRecord is one stored analysis of a unit
type AnalysisRecord struct {
	ID            int64          `json:"id"`
	RunID         string         `json:"run_id,omitempty"`
	Unit          string         `json:"unit"`
	Timestamp     time.Time      `json:"timestamp"`
	Total         int            `json:"total"`
	ByCategory    map[string]int `json:"by_category"`
	BySeverity    map[string]int `json:"by_severity"`
	Issues        []Issue        `json:"issues"`
	WasRefactored bool           `json:"was_refactored"`
}

// NewAnalysisRecord captures a report for the history store
func NewAnalysisRecord(runID string, r *Report, refactored bool) *AnalysisRecord {
	byCat := make(map[string]int, len(r.ByCategory))
	for cat, n := range r.ByCategory {
		byCat[string(cat)] = n
	}
	bySev := make(map[string]int, len(r.BySeverity))
	for sev, n := range r.BySeverity {
		bySev[sev] = n
	}
	return &AnalysisRecord{
		RunID:         runID,
		Unit:          r.Unit,
		Timestamp:     r.CreatedAt,
		Total:         r.Total(),
		ByCategory:    byCat,
		BySeverity:    bySev,
		Issues:        r.Issues,
		WasRefactored: refactored,
	}
}

// HistoryFilter narrows history queries
type HistoryFilter struct {
	Unit  string
	RunID string
	Limit int // 0 means no limit
}
