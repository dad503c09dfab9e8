// Package refactor drives the bounded analyze, generate, validate loop for
// each unit and guarantees that a unit ends either with an accepted,
// validated rewrite on disk or with its original content restored.
//
// Each unit moves through an explicit state machine:
//
//	INIT -> GENERATING -> VALIDATING -> ACCEPTED
//	                   \            \-> RETRYING -> GENERATING
//	                    \-> ROLLED_BACK (provider errors or rejections exhausted, cancellation)
//
// INIT may also end the unit as CLEAN (nothing to fix) or ABORTED (the
// original cannot be read, does not parse, or could not be backed up). A
// panic in any state aborts the unit after restoring its backup.
package refactor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/webspoilt/code-janitor/internal/prompt"
	"github.com/webspoilt/code-janitor/internal/source"
	"github.com/webspoilt/code-janitor/internal/storage"
	"github.com/webspoilt/code-janitor/internal/types"
	"github.com/webspoilt/code-janitor/internal/validate"
	"github.com/webspoilt/code-janitor/internal/workspace"
)

// Attempt cap limits
const (
	DefaultMaxAttempts = 3
	MinAttempts        = 1
	MaxAttempts        = 10
)

// Generator produces candidate source; *ai.Client satisfies it
type Generator interface {
	Refactor(ctx context.Context, req *prompt.Request) (string, error)
	Provider() string
}

// Judge validates candidates; *validate.Validator satisfies it
type Judge interface {
	ProtectedSymbols(ctx context.Context, original *source.Unit) ([]string, error)
	Validate(ctx context.Context, original *source.Unit, baseline *types.Report, candidate []byte, protected []string) (*validate.Verdict, error)
	Weights() types.Weights
}

// Backups snapshots and restores units; *backup.Manager satisfies it
type Backups interface {
	Snapshot(ctx context.Context, unit string, content []byte) (int64, error)
	Restore(ctx context.Context, revision int64) (bool, error)
	Discard(ctx context.Context, revision int64) error
}

// Observer receives attempt and outcome events (e.g. for metrics)
type Observer interface {
	ObserveAttempt(provider string, verdict types.Verdict, duration time.Duration)
	ObserveOutcome(state types.UnitState, duration time.Duration)
}

// Config holds controller configuration
type Config struct {
	Analyzer  validate.Analyzer // Required
	Validator Judge             // Required
	Client    Generator         // Required
	Backups   Backups           // Required

	// ClientFor returns the generator used for one unit. Set it when the
	// client keeps per-call state (a circuit breaker) that one unit's
	// failures must not leak into another's. Default: Client for every unit.
	ClientFor func(unit string) Generator
	Prompts   *prompt.Builder   // Optional (default: prompt.NewBuilder())

	History storage.HistoryStore // Optional: attempts and runs are recorded when set
	Locks   *workspace.UnitLocks // Optional: shared per-unit locks

	MaxAttempts       int           // 1..10 (default: 3)
	RetryBackoff      time.Duration // Wait after a provider error before the next attempt
	Workers           int           // Units processed concurrently by Run (default: 1)
	DryRun            bool          // Never write candidates
	DiscardOnRollback bool          // Delete the backup after a successful rollback restore
	Command           string        // Recorded with the run (default: "clean")

	Logger   *slog.Logger
	Observer Observer

	// WriteFile replaces a unit's content (default: workspace.WriteFileAtomic)
	WriteFile func(path string, data []byte) error
}

// Controller runs the retry loop
type Controller struct {
	analyzer  validate.Analyzer
	validator Judge
	client    Generator
	clientFor func(unit string) Generator
	backups   Backups
	prompts   *prompt.Builder
	history   storage.HistoryStore
	locks     *workspace.UnitLocks

	maxAttempts       int
	retryBackoff      time.Duration
	workers           int
	dryRun            bool
	discardOnRollback bool
	command           string

	logger    *slog.Logger
	observer  Observer
	writeFile func(path string, data []byte) error
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewController validates cfg and creates a controller
func NewController(cfg *Config) (*Controller, error) {
	switch {
	case cfg.Analyzer == nil:
		return nil, fmt.Errorf("analyzer is required")
	case cfg.Validator == nil:
		return nil, fmt.Errorf("validator is required")
	case cfg.Client == nil:
		return nil, fmt.Errorf("refactor client is required")
	case cfg.Backups == nil:
		return nil, fmt.Errorf("backup manager is required")
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if maxAttempts < MinAttempts || maxAttempts > MaxAttempts {
		return nil, fmt.Errorf("max attempts must be between %d and %d (got %d)", MinAttempts, MaxAttempts, maxAttempts)
	}
	if cfg.RetryBackoff < 0 {
		return nil, fmt.Errorf("retry backoff cannot be negative: %v", cfg.RetryBackoff)
	}

	prompts := cfg.Prompts
	if prompts == nil {
		var err error
		if prompts, err = prompt.NewBuilder(); err != nil {
			return nil, err
		}
	}
	locks := cfg.Locks
	if locks == nil {
		locks = workspace.NewUnitLocks()
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	command := cfg.Command
	if command == "" {
		command = "clean"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clientFor := cfg.ClientFor
	if clientFor == nil {
		clientFor = func(string) Generator { return cfg.Client }
	}
	writeFile := cfg.WriteFile
	if writeFile == nil {
		writeFile = workspace.WriteFileAtomic
	}

	return &Controller{
		analyzer:          cfg.Analyzer,
		validator:         cfg.Validator,
		client:            cfg.Client,
		clientFor:         clientFor,
		backups:           cfg.Backups,
		prompts:           prompts,
		history:           cfg.History,
		locks:             locks,
		maxAttempts:       maxAttempts,
		retryBackoff:      cfg.RetryBackoff,
		workers:           workers,
		dryRun:            cfg.DryRun,
		discardOnRollback: cfg.DiscardOnRollback,
		command:           command,
		logger:            logger,
		observer:          cfg.Observer,
		writeFile:         writeFile,
		sleep:             sleepCtx,
	}, nil
}

// MaxAttempts returns the attempt cap
func (c *Controller) MaxAttempts() int {
	return c.maxAttempts
}

// Process drives one unit to a terminal state. It never returns an error:
// every failure is recorded in the outcome. When history is configured,
// runID must already exist as a run.
func (c *Controller) Process(ctx context.Context, runID string, unit *source.Unit) (out *types.Outcome) {
	start := time.Now()
	out = &types.Outcome{
		RunID:    runID,
		Unit:     unit.ID,
		Path:     unit.Path,
		State:    types.StateInit,
		Original: string(unit.Content),
		DryRun:   c.dryRun,
	}
	m := newMachine(unit.ID, c.logger)

	defer func() {
		out.State = m.state
		out.Duration = time.Since(start)
		c.recordAnalysis(ctx, runID, unit, out)
		if c.observer != nil {
			c.observer.ObserveOutcome(out.State, out.Duration)
		}
		c.logOutcome(out)
	}()

	unlock, err := c.locks.Lock(ctx, unit.Path)
	if err != nil {
		out.Err = err
		m.must(types.StateAborted)
		return out
	}
	defer unlock()
	defer c.recoverUnit(ctx, m, out)

	// The file may have changed since it was loaded; the backup and every
	// comparison use what is on disk now
	current, err := os.ReadFile(unit.Path)
	if err != nil {
		out.Err = fmt.Errorf("failed to read %s: %w", unit.ID, err)
		m.must(types.StateAborted)
		return out
	}
	if !bytes.Equal(current, unit.Content) {
		c.logger.Info("unit changed on disk since it was loaded", "unit", unit.ID)
		unit = unit.WithContent(current)
		out.Original = string(current)
	}

	// INIT: baseline first, so unparseable or clean units are never backed up
	baseline, err := c.analyzer.Analyze(ctx, unit)
	if err != nil {
		out.Err = err
		m.must(types.StateAborted)
		return out
	}
	out.Baseline = baseline
	out.Final = baseline
	if baseline.Total() == 0 {
		m.must(types.StateClean)
		return out
	}

	protected, err := c.validator.ProtectedSymbols(ctx, unit)
	if err != nil {
		out.Err = fmt.Errorf("failed to compute protected symbols: %w", err)
		m.must(types.StateAborted)
		return out
	}

	rev, err := c.backups.Snapshot(ctx, unit.Path, unit.Content)
	if err != nil {
		out.Err = err
		m.must(types.StateAborted)
		return out
	}
	out.Revision = rev

	m.must(types.StateGenerating)
	c.loop(ctx, c.clientFor(unit.Path), unit, baseline, protected, m, out)
	return out
}

// loop runs attempts until the unit is accepted or rolled back. The unit is
// in GENERATING on entry.
func (c *Controller) loop(ctx context.Context, client Generator, unit *source.Unit, baseline *types.Report, protected []string, m *machine, out *types.Outcome) {
	var feedback *prompt.Feedback

	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			c.rollback(ctx, m, out, err)
			return
		}

		attempt := &types.Attempt{Number: n, Verdict: types.VerdictPending, StartedAt: time.Now()}
		out.Attempts = append(out.Attempts, attempt)

		req, err := c.prompts.Build(&prompt.Input{
			Unit:        unit,
			Report:      baseline,
			Protected:   protected,
			Attempt:     n,
			MaxAttempts: c.maxAttempts,
			Feedback:    feedback,
		})
		if err != nil {
			attempt.Verdict = types.VerdictRejected
			attempt.Error = err.Error()
			c.finishAttempt(ctx, out, attempt)
			c.rollback(ctx, m, out, err)
			return
		}
		attempt.Prompt = req.User

		// GENERATING
		candidate, err := client.Refactor(ctx, req)
		if err != nil {
			attempt.Verdict = types.VerdictProviderError
			attempt.Error = err.Error()
			c.finishAttempt(ctx, out, attempt)

			if ctx.Err() != nil {
				c.rollback(ctx, m, out, ctx.Err())
				return
			}
			if n >= c.maxAttempts {
				c.rollback(ctx, m, out, &types.MaxRetriesError{Unit: unit.ID, Attempts: n, Last: err})
				return
			}
			feedback = prompt.FeedbackFrom(attempt)
			m.must(types.StateGenerating)
			if err := c.sleep(ctx, c.retryBackoff); err != nil {
				c.rollback(ctx, m, out, err)
				return
			}
			continue
		}
		attempt.Candidate = &candidate
		out.Candidate = candidate

		// VALIDATING
		m.must(types.StateValidating)
		verdict, err := c.validator.Validate(ctx, unit, baseline, []byte(candidate), protected)
		if err != nil {
			attempt.Verdict = types.VerdictRejected
			attempt.Error = err.Error()
			c.finishAttempt(ctx, out, attempt)
			c.rollback(ctx, m, out, err)
			return
		}
		attempt.Report = verdict.Report
		attempt.Delta = verdict.Delta
		attempt.Violations = verdict.Violations
		if verdict.Report != nil {
			out.Final = verdict.Report
		}

		if verdict.Accepted {
			if err := c.accept(ctx, unit, candidate); err != nil {
				attempt.Verdict = types.VerdictRejected
				attempt.Error = err.Error()
				c.finishAttempt(ctx, out, attempt)
				c.rollback(ctx, m, out, err)
				return
			}
			attempt.Verdict = types.VerdictAccepted
			c.finishAttempt(ctx, out, attempt)
			m.must(types.StateAccepted)
			return
		}

		attempt.Verdict = types.VerdictRejected
		c.finishAttempt(ctx, out, attempt)
		rejection := verdict.Err(unit.ID)
		if n >= c.maxAttempts {
			c.rollback(ctx, m, out, &types.MaxRetriesError{Unit: unit.ID, Attempts: n, Last: rejection})
			return
		}

		feedback = prompt.FeedbackFrom(attempt)
		m.must(types.StateRetrying)
		m.must(types.StateGenerating)
	}
}

// accept writes an accepted candidate, unless this is a dry run. A canceled
// context wins over the write.
func (c *Controller) accept(ctx context.Context, unit *source.Unit, candidate string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("canceled before the candidate was written: %w", err)
	}
	if c.dryRun {
		return nil
	}
	if err := c.writeFile(unit.Path, []byte(candidate)); err != nil {
		return fmt.Errorf("failed to write accepted candidate to %s: %w", unit.Path, err)
	}
	return nil
}

// rollback restores the original unconditionally. The restore runs on a
// context detached from cancellation so an interrupted run still cleans up.
func (c *Controller) rollback(ctx context.Context, m *machine, out *types.Outcome, cause error) {
	m.must(types.StateRolledBack)
	out.Err = cause
	if !c.restore(ctx, out) {
		return
	}

	if c.discardOnRollback {
		rctx := context.WithoutCancel(ctx)
		if err := c.backups.Discard(rctx, out.Revision); err != nil {
			c.logger.Warn("failed to discard backup", "unit", out.Unit, "revision", out.Revision, "error", err)
		}
	}
}

// recoverUnit aborts a unit whose processing panicked before it settled,
// restoring the original first if it was backed up. It runs under the unit
// lock.
func (c *Controller) recoverUnit(ctx context.Context, m *machine, out *types.Outcome) {
	r := recover()
	if r == nil {
		return
	}
	c.logger.Error("unit processing panicked", "unit", out.Unit, "state", m.state, "panic", r)
	out.Err = errors.Join(out.Err, fmt.Errorf("internal error: %v", r))
	if m.state.IsTerminal() {
		return
	}
	if out.Revision != 0 {
		c.restore(ctx, out)
	}
	m.abort()
}

// restore writes the backed up original back and reports whether it
// succeeded; a failure is joined into out.Err
func (c *Controller) restore(ctx context.Context, out *types.Outcome) bool {
	wrote, err := c.backups.Restore(context.WithoutCancel(ctx), out.Revision)
	if err != nil {
		c.logger.Error("failed to restore unit", "unit", out.Unit, "revision", out.Revision, "error", err)
		out.Err = errors.Join(out.Err, err)
		return false
	}
	if wrote {
		c.logger.Info("restored original from backup", "unit", out.Unit, "revision", out.Revision)
	}
	return true
}

// finishAttempt stamps the duration, notifies the observer and appends the
// attempt to history
func (c *Controller) finishAttempt(ctx context.Context, out *types.Outcome, at *types.Attempt) {
	at.Duration = time.Since(at.StartedAt)
	if c.observer != nil {
		c.observer.ObserveAttempt(c.client.Provider(), at.Verdict, at.Duration)
	}
	c.logger.Info("refactor attempt finished", "unit", out.Unit, "attempt", at.Number,
		"max_attempts", c.maxAttempts, "verdict", at.Verdict, "violations", len(at.Violations), "error", at.Error)

	if c.history == nil || out.RunID == "" {
		return
	}
	rec := types.NewAttemptRecord(out.RunID, out.Path, at, c.validator.Weights())
	if err := c.history.RecordAttempt(context.WithoutCancel(ctx), rec); err != nil {
		c.logger.Warn("failed to record attempt", "unit", out.Unit, "attempt", at.Number, "error", err)
	}
}

// recordAnalysis stores the baseline report of a unit that got that far
func (c *Controller) recordAnalysis(ctx context.Context, runID string, unit *source.Unit, out *types.Outcome) {
	if c.history == nil || runID == "" || out.Baseline == nil {
		return
	}
	rec := types.NewAnalysisRecord(runID, out.Baseline, out.State == types.StateAccepted && !c.dryRun)
	rec.Unit = unit.Path
	if err := c.history.RecordAnalysis(context.WithoutCancel(ctx), rec); err != nil {
		c.logger.Warn("failed to record analysis", "unit", unit.ID, "error", err)
	}
}

func (c *Controller) logOutcome(out *types.Outcome) {
	attrs := []any{"unit", out.Unit, "state", out.State, "attempts", len(out.Attempts), "duration", out.Duration}
	switch out.State {
	case types.StateAccepted, types.StateClean:
		c.logger.Info("unit finished", attrs...)
	default:
		c.logger.Warn("unit finished", append(attrs, "error", out.Err)...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
