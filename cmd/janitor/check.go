package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/webspoilt/code-janitor/internal/analyzers"
	"github.com/webspoilt/code-janitor/internal/source"
	"github.com/webspoilt/code-janitor/internal/storage"
	"github.com/webspoilt/code-janitor/internal/types"
	"github.com/webspoilt/code-janitor/internal/workspace"
)

// Exit codes for janitor check
const (
	exitClean    = 0
	exitErrors   = 1
	exitCritical = 2
)

// checkResult is one unit's analysis, or the reason it has none
type checkResult struct {
	Path   string        `json:"path"`
	Report *types.Report `json:"report,omitempty"`
	Error  string        `json:"error,omitempty"`
	Lines  []int         `json:"lines,omitempty"`

	err error
}

var checkCmd = &cobra.Command{
	Use:   "check [paths...]",
	Short: "Analyze source files and report issues",
	Long: `Run the enabled analyzers over each supported file and print the merged
report. Nothing is modified.

Exit codes:
  0 - No critical issues
  1 - A file could not be parsed or analyzed
  2 - At least one critical issue was found`,
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, _ := cmd.Flags().GetBool("recursive")
		asJSON, _ := cmd.Flags().GetBool("json")
		watch, _ := cmd.Flags().GetBool("watch")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		agg, err := newAggregator(cfg, nil)
		if err != nil {
			return err
		}

		history, err := openStorage(ctx, cfg)
		if err != nil {
			slog.Warn("history disabled", "error", err)
		} else {
			defer history.Close()
		}

		units, err := loadUnits(args, recursive)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		results := runCheck(ctx, agg, history, units)
		if err := printResults(out, results, asJSON); err != nil {
			return err
		}

		if !watch {
			if code := checkExitCode(results); code != exitClean {
				return &exitError{code: code}
			}
			return nil
		}

		root := "."
		if len(args) > 0 {
			root = args[0]
		}
		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Fprintf(out, "\n%s Watching %s for changes (Ctrl+C to stop)\n", cyan("→"), root)
		return workspace.Watch(ctx, root, workspace.WatchOptions{Recursive: recursive}, func(paths []string) {
			var changed []*source.Unit
			for _, p := range paths {
				unit, err := source.Load(p)
				if err != nil {
					// Deleted between the event and the read
					slog.Debug("skipping changed file", "path", p, "error", err)
					continue
				}
				changed = append(changed, unit)
			}
			if len(changed) == 0 {
				return
			}
			fmt.Fprintf(out, "\n%s %s\n", cyan("→"), time.Now().Format("15:04:05"))
			if err := printResults(out, runCheck(ctx, agg, history, changed), asJSON); err != nil {
				slog.Warn("failed to print results", "error", err)
			}
		})
	},
}

func init() {
	checkCmd.Flags().BoolP("recursive", "r", false, "Descend into subdirectories")
	checkCmd.Flags().Bool("json", false, "Print reports as JSON")
	checkCmd.Flags().BoolP("watch", "w", false, "Re-check files as they change")
	rootCmd.AddCommand(checkCmd)
}

// runCheck analyzes every unit and records the run when history is set
func runCheck(ctx context.Context, agg *analyzers.Aggregator, history storage.HistoryStore, units []*source.Unit) []*checkResult {
	run := &types.RunRecord{ID: uuid.NewString(), Command: "check", StartedAt: time.Now().UTC()}
	if history != nil {
		if err := history.CreateRun(ctx, run); err != nil {
			slog.Warn("failed to record run", "error", err)
			history = nil
		}
	}

	results := make([]*checkResult, 0, len(units))
	for _, unit := range units {
		res := &checkResult{Path: unit.Path}
		report, err := agg.Analyze(ctx, unit)
		if err != nil {
			res.err = err
			res.Error = err.Error()
			var parseErr *types.ParseError
			if errors.As(err, &parseErr) {
				res.Lines = parseErr.Lines
			}
			results = append(results, res)
			continue
		}
		res.Report = report
		results = append(results, res)
		run.Units++

		if history != nil {
			rec := types.NewAnalysisRecord(run.ID, report, false)
			rec.Unit = unit.Path
			if err := history.RecordAnalysis(ctx, rec); err != nil {
				slog.Warn("failed to record analysis", "unit", unit.Path, "error", err)
			}
		}
	}

	if history != nil {
		finished := time.Now().UTC()
		run.FinishedAt = &finished
		if err := history.FinishRun(context.WithoutCancel(ctx), run); err != nil {
			slog.Warn("failed to finish run", "run_id", run.ID, "error", err)
		}
	}
	return results
}

// checkExitCode is 2 when any report has a critical issue, otherwise 1 when
// any unit failed, otherwise 0
func checkExitCode(results []*checkResult) int {
	code := exitClean
	for _, r := range results {
		switch {
		case r.Report != nil && r.Report.HasCritical():
			return exitCritical
		case r.err != nil:
			code = exitErrors
		}
	}
	return code
}

func printResults(w io.Writer, results []*checkResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	for _, r := range results {
		switch {
		case r.err != nil:
			fmt.Fprintf(w, "%s %s\n", red("✗"), bold(r.Path))
			fmt.Fprintf(w, "  %s\n", r.Error)
			continue
		case r.Report.Total() == 0:
			fmt.Fprintf(w, "%s %s\n", green("✓"), bold(r.Path))
			continue
		}

		mark := yellow("!")
		if r.Report.HasCritical() {
			mark = red("✗")
		}
		fmt.Fprintf(w, "%s %s  %s\n", mark, bold(r.Path), r.Report.Summary())
		for _, issue := range r.Report.Issues {
			sev := issue.Severity.String()
			switch issue.Severity {
			case types.SeverityCritical:
				sev = red(sev)
			case types.SeverityWarning:
				sev = yellow(sev)
			}
			fmt.Fprintf(w, "  %4d  %-8s  %-11s  %s", issue.Location.StartLine, sev, issue.Category, issue.Message)
			if issue.Rule != "" {
				fmt.Fprintf(w, " (%s)", issue.Rule)
			}
			fmt.Fprintln(w)
		}
		for _, u := range r.Report.Unavailable {
			fmt.Fprintf(w, "  %s %s unavailable: %s\n", yellow("!"), u.Category, u.Reason)
		}
	}
	return nil
}
