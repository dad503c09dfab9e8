package refactor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/webspoilt/code-janitor/internal/source"
	"github.com/webspoilt/code-janitor/internal/types"
)

// RunResult is the summary of a batch plus every unit's outcome, in input
// order
type RunResult struct {
	Run      *types.RunRecord
	Outcomes []*types.Outcome
}

// Failed reports whether any unit was rolled back or aborted
func (r *RunResult) Failed() bool {
	return r.Run.RolledBack > 0 || r.Run.Aborted > 0
}

// Run processes units concurrently (bounded by Workers). A failing unit
// never stops the others; cancellation rolls back units in flight and
// skips the rest.
func (c *Controller) Run(ctx context.Context, units []*source.Unit) (*RunResult, error) {
	run := &types.RunRecord{
		ID:        uuid.NewString(),
		Command:   c.command,
		StartedAt: time.Now().UTC(),
		DryRun:    c.dryRun,
	}
	if c.history != nil {
		if err := c.history.CreateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to create run: %w", err)
		}
	}
	c.logger.Info("refactor run started", "run_id", run.ID, "units", len(units),
		"workers", c.workers, "max_attempts", c.maxAttempts, "dry_run", c.dryRun)

	outcomes := make([]*types.Outcome, len(units))
	g := new(errgroup.Group)
	g.SetLimit(c.workers)
	for i, unit := range units {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcomes[i] = c.processSafe(ctx, run.ID, unit)
			return nil
		})
	}
	_ = g.Wait()

	result := &RunResult{Run: run}
	for _, o := range outcomes {
		if o == nil {
			continue
		}
		run.Tally(o)
		result.Outcomes = append(result.Outcomes, o)
	}
	finished := time.Now().UTC()
	run.FinishedAt = &finished

	if c.history != nil {
		if err := c.history.FinishRun(context.WithoutCancel(ctx), run); err != nil {
			c.logger.Warn("failed to finish run", "run_id", run.ID, "error", err)
		}
	}
	c.logger.Info("refactor run finished", "run_id", run.ID, "accepted", run.Accepted,
		"rolled_back", run.RolledBack, "clean", run.Clean, "aborted", run.Aborted)

	return result, ctx.Err()
}

// processSafe turns a panic that escapes Process (its own recovery restores
// the backup) into an aborted outcome so the batch keeps going
func (c *Controller) processSafe(ctx context.Context, runID string, unit *source.Unit) (out *types.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("unit processing panicked", "unit", unit.ID, "panic", r)
			out = &types.Outcome{
				RunID: runID,
				Unit:  unit.ID,
				Path:  unit.Path,
				State: types.StateAborted,
				Err:   fmt.Errorf("internal error: %v", r),
			}
		}
	}()
	return c.Process(ctx, runID, unit)
}
