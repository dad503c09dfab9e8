package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/webspoilt/code-janitor/internal/backup"
	"github.com/webspoilt/code-janitor/internal/diff"
	"github.com/webspoilt/code-janitor/internal/metrics"
	"github.com/webspoilt/code-janitor/internal/refactor"
	"github.com/webspoilt/code-janitor/internal/types"
	"github.com/webspoilt/code-janitor/internal/validate"
	"github.com/webspoilt/code-janitor/internal/workspace"
)

var cleanCmd = &cobra.Command{
	Use:   "clean [paths...]",
	Short: "Refactor source files with the configured AI provider",
	Long: `Back up each file, ask the provider for a rewrite that fixes its issues and
keep the rewrite only if it validates. A rejected rewrite is fed back into
the next attempt; when attempts run out the file is restored from backup.

With --dry-run nothing is written: candidates are validated and, with
--diff, shown.

Exit codes:
  0 - Every file was accepted or had nothing to fix
  1 - At least one file was rolled back or aborted`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		showDiff, _ := cmd.Flags().GetBool("diff")
		recursive, _ := cmd.Flags().GetBool("recursive")
		metricsOut, _ := cmd.Flags().GetString("metrics-out")

		if cmd.Flags().Changed("max-attempts") {
			cfg.Refactor.MaxAttempts, _ = cmd.Flags().GetInt("max-attempts")
		}
		if cmd.Flags().Changed("provider") {
			cfg.AI.Provider, _ = cmd.Flags().GetString("provider")
			cfg.AI.Model = ""
		}
		if cmd.Flags().Changed("model") {
			cfg.AI.Model, _ = cmd.Flags().GetString("model")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		units, err := loadUnits(args, recursive)
		if err != nil {
			return err
		}
		if len(units) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No supported source files found")
			return nil
		}

		m := metrics.New(false)
		agg, err := newAggregator(cfg, m)
		if err != nil {
			return err
		}
		client, err := newClient(cfg, m)
		if err != nil {
			return err
		}
		judge, err := validate.New(&validate.Config{
			Analyzer:      agg,
			Weights:       cfg.EffectiveWeights(),
			Protected:     cfg.Validator.Protected,
			ProtectPublic: cfg.Validator.ProtectPublic,
			Logger:        slog.Default(),
		})
		if err != nil {
			return err
		}

		history, err := openStorage(ctx, cfg)
		if err != nil {
			return err
		}
		defer history.Close()

		store, closeStore, err := openBackups(ctx, cfg, history, dryRun)
		if err != nil {
			return err
		}
		defer closeStore()

		if !dryRun {
			lockPath, err := workspace.AcquireExclusiveLock(cfg.Backup.Dir, "janitor clean", version)
			if err != nil {
				return err
			}
			defer func() {
				if err := workspace.ReleaseExclusiveLock(lockPath); err != nil {
					slog.Warn("failed to release lock", "path", lockPath, "error", err)
				}
			}()
		}

		ctrl, err := refactor.NewController(&refactor.Config{
			Analyzer:          agg,
			Validator:         judge,
			Client:            client,
			ClientFor:         func(string) refactor.Generator { return client.ForUnit() },
			Backups:           backup.NewManager(store, slog.Default()),
			History:           history,
			MaxAttempts:       cfg.Refactor.MaxAttempts,
			RetryBackoff:      cfg.Refactor.RetryBackoff,
			Workers:           cfg.Refactor.Workers,
			DryRun:            dryRun,
			DiscardOnRollback: cfg.Backup.DiscardOnRollback,
			Logger:            slog.Default(),
			Observer:          m,
		})
		if err != nil {
			return err
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		out := cmd.OutOrStdout()
		mode := ""
		if dryRun {
			mode = " (dry run)"
		}
		fmt.Fprintf(out, "%s Cleaning %d file(s) with %s/%s%s\n\n", cyan("→"), len(units), client.Provider(), client.Model(), mode)

		result, runErr := ctrl.Run(ctx, units)
		if result == nil {
			return runErr
		}

		renderer := diff.NewRenderer("monokai", color.NoColor)
		for _, o := range result.Outcomes {
			printOutcome(out, o)
			if showDiff {
				if err := printOutcomeDiff(out, renderer, o); err != nil {
					return err
				}
			}
		}
		printRunSummary(out, result.Run)

		if metricsOut != "" {
			if err := m.WriteTextfile(metricsOut); err != nil {
				slog.Warn("failed to write metrics", "path", metricsOut, "error", err)
			}
		}

		if runErr != nil && !errors.Is(runErr, ctx.Err()) {
			return runErr
		}
		if result.Failed() || runErr != nil {
			return &exitError{code: 1}
		}
		return nil
	},
}

func init() {
	cleanCmd.Flags().Bool("dry-run", false, "Validate candidates without writing them")
	cleanCmd.Flags().Bool("diff", false, "Show the diff of each accepted candidate, or of the last rejected one when rolled back")
	cleanCmd.Flags().BoolP("recursive", "r", false, "Descend into subdirectories")
	cleanCmd.Flags().Int("max-attempts", refactor.DefaultMaxAttempts, fmt.Sprintf("Attempts per file (%d-%d)", refactor.MinAttempts, refactor.MaxAttempts))
	cleanCmd.Flags().String("provider", "", "AI provider (anthropic, openai, groq, ollama)")
	cleanCmd.Flags().String("model", "", "Model name (default depends on the provider)")
	cleanCmd.Flags().String("metrics-out", "", "Write Prometheus metrics to this textfile when done")
	rootCmd.AddCommand(cleanCmd)
}

func printOutcome(w io.Writer, o *types.Outcome) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	var mark string
	switch o.State {
	case types.StateAccepted, types.StateClean:
		mark = green("✓")
	case types.StateRolledBack:
		mark = yellow("↺")
	default:
		mark = red("✗")
	}
	fmt.Fprintf(w, "%s %s  %s\n", mark, o.Path, o.Describe())
	if o.Baseline != nil && o.Final != nil {
		fmt.Fprintf(w, "  %s\n", gray(fmt.Sprintf("before: %s  after: %s", o.Baseline.Summary(), o.Final.Summary())))
	}
	if last := o.LastAttempt(); last != nil && o.State == types.StateRolledBack {
		for _, v := range last.Violations {
			fmt.Fprintf(w, "  %s %s\n", gray("-"), v.String())
		}
	}
}

// printOutcomeDiff shows the original against the candidate the outcome
// carries: the accepted rewrite, or the last rejected one for a rolled back
// unit. Outcomes without a candidate print nothing.
func printOutcomeDiff(w io.Writer, r *diff.Renderer, o *types.Outcome) error {
	if o.Candidate == "" {
		return nil
	}
	d, err := diff.Compute(filepath.Base(o.Path), o.Original, o.Candidate)
	if err != nil {
		slog.Warn("failed to compute diff", "unit", o.Path, "error", err)
		return nil
	}
	if !o.Accepted() {
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Fprintf(w, "  %s\n", gray("rejected candidate (not written):"))
	}
	return r.Render(w, d)
}

func printRunSummary(w io.Writer, run *types.RunRecord) {
	fmt.Fprintf(w, "\n%d file(s): %d accepted, %d rolled back, %d clean, %d aborted\n",
		run.Units, run.Accepted, run.RolledBack, run.Clean, run.Aborted)
}
