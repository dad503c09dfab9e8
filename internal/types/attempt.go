package types

import (
	"fmt"
	"time"
)

// Verdict is the result of one refactor attempt
type Verdict string

const (
	VerdictPending       Verdict = "pending"
	VerdictAccepted      Verdict = "accepted"
	VerdictRejected      Verdict = "rejected"
	VerdictProviderError Verdict = "provider-error"
)

// IsValid checks if the verdict value is valid
func (v Verdict) IsValid() bool {
	switch v {
	case VerdictPending, VerdictAccepted, VerdictRejected, VerdictProviderError:
		return true
	}
	return false
}

// UnitState is the retry controller's state for one unit
type UnitState string

const (
	StateInit       UnitState = "INIT"
	StateGenerating UnitState = "GENERATING"
	StateValidating UnitState = "VALIDATING"
	StateRetrying   UnitState = "RETRYING"
	StateAccepted   UnitState = "ACCEPTED"
	StateRolledBack UnitState = "ROLLED_BACK"

	// StateClean and StateAborted end a unit before any attempt is made:
	// nothing to fix, or the baseline could not be parsed/backed up.
	StateClean   UnitState = "CLEAN"
	StateAborted UnitState = "ABORTED"
)

// transitions is the complete table of legal state changes. GENERATING may
// loop on itself after a provider error when attempts remain.
var transitions = map[UnitState][]UnitState{
	StateInit:       {StateGenerating, StateClean, StateAborted},
	StateGenerating: {StateValidating, StateGenerating, StateRolledBack},
	StateValidating: {StateAccepted, StateRetrying, StateRolledBack},
	StateRetrying:   {StateGenerating, StateRolledBack},
}

// IsTerminal reports whether no further transition is possible
func (s UnitState) IsTerminal() bool {
	switch s {
	case StateAccepted, StateRolledBack, StateClean, StateAborted:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal state change
func CanTransition(from, to UnitState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Attempt is one round of the retry loop. Prompt is kept in memory only and
// never persisted.
type Attempt struct {
	Number     int           `json:"attempt_number"`
	Prompt     string        `json:"-"`
	Candidate  *string       `json:"candidate_source,omitempty"`
	Report     *Report       `json:"validation_report,omitempty"`
	Verdict    Verdict       `json:"verdict"`
	Delta      *Delta        `json:"delta,omitempty"`
	Violations []Violation   `json:"violations,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}

// Outcome is the terminal result for one unit, with its full attempt history
type Outcome struct {
	RunID     string        `json:"run_id"`
	Unit      string        `json:"unit"`
	Path      string        `json:"path"`
	State     UnitState     `json:"state"`
	Revision  int64         `json:"revision,omitempty"`
	Baseline  *Report       `json:"baseline,omitempty"`
	Final     *Report       `json:"final,omitempty"`
	Attempts  []*Attempt    `json:"attempts"`
	Original  string        `json:"-"`
	Candidate string        `json:"-"` // accepted candidate, or the last rejected one
	DryRun    bool          `json:"dry_run"`
	Err       error         `json:"-"`
	Duration  time.Duration `json:"duration"`
}

// Accepted reports whether the unit ended in ACCEPTED
func (o *Outcome) Accepted() bool { return o != nil && o.State == StateAccepted }

// LastAttempt returns the most recent attempt, or nil
func (o *Outcome) LastAttempt() *Attempt {
	if o == nil || len(o.Attempts) == 0 {
		return nil
	}
	return o.Attempts[len(o.Attempts)-1]
}

// Describe renders a one-line summary for CLI output
func (o *Outcome) Describe() string {
	switch o.State {
	case StateAccepted:
		return fmt.Sprintf("accepted after %d attempt(s)", len(o.Attempts))
	case StateRolledBack:
		if o.Err != nil {
			return fmt.Sprintf("rolled back after %d attempt(s): %v", len(o.Attempts), o.Err)
		}
		return fmt.Sprintf("rolled back after %d attempt(s)", len(o.Attempts))
	case StateClean:
		return "no issues to fix"
	case StateAborted:
		return fmt.Sprintf("aborted: %v", o.Err)
	default:
		return string(o.State)
	}
}
