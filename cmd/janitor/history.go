package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/webspoilt/code-janitor/internal/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs and refactor attempts",
	Long: `Show the most recent check and clean runs. With --unit, show the attempt
and analysis history of one file instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		unitFlag, _ := cmd.Flags().GetString("unit")
		asJSON, _ := cmd.Flags().GetBool("json")
		if limit < 1 {
			return fmt.Errorf("limit must be at least 1 (got %d)", limit)
		}

		ctx := cmd.Context()
		store, err := openStorage(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		if unitFlag == "" {
			runs, err := store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, runs)
			}
			printRuns(out, runs)
			return nil
		}

		unit, err := filepath.Abs(unitFlag)
		if err != nil {
			return err
		}
		filter := types.HistoryFilter{Unit: unit, Limit: limit}
		attempts, err := store.ListAttempts(ctx, filter)
		if err != nil {
			return err
		}
		analyses, err := store.ListAnalyses(ctx, filter)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(out, map[string]any{"attempts": attempts, "analyses": analyses})
		}
		printUnitHistory(out, unit, attempts, analyses)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of entries")
	historyCmd.Flags().String("unit", "", "Show the history of one file")
	historyCmd.Flags().Bool("json", false, "Print as JSON")
	rootCmd.AddCommand(historyCmd)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRuns(w io.Writer, runs []*types.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}
	gray := color.New(color.FgHiBlack).SprintFunc()
	for _, r := range runs {
		status := "running"
		if r.FinishedAt != nil {
			status = r.FinishedAt.Sub(r.StartedAt).Round(1e6).String()
		}
		dry := ""
		if r.DryRun {
			dry = " (dry run)"
		}
		fmt.Fprintf(w, "%s  %-5s%s  %d file(s): %d accepted, %d rolled back, %d clean, %d aborted  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Command, dry,
			r.Units, r.Accepted, r.RolledBack, r.Clean, r.Aborted, gray(status))
	}
}

func printUnitHistory(w io.Writer, unit string, attempts []*types.AttemptRecord, analyses []*types.AnalysisRecord) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintln(w, bold(unit))
	fmt.Fprintf(w, "\nAttempts:\n")
	if len(attempts) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, a := range attempts {
		verdict := string(a.Verdict)
		switch a.Verdict {
		case types.VerdictAccepted:
			verdict = green(verdict)
		case types.VerdictRejected:
			verdict = yellow(verdict)
		case types.VerdictProviderError:
			verdict = red(verdict)
		}
		fmt.Fprintf(w, "  %s  #%d  %-14s  resolved %.0f  introduced %.0f\n",
			a.StartedAt.Local().Format("2006-01-02 15:04:05"), a.AttemptNumber, verdict,
			a.ResolvedWeight, a.IntroducedWeight)
		for _, v := range a.Violations {
			fmt.Fprintf(w, "      - %s\n", v)
		}
		if a.Error != "" {
			fmt.Fprintf(w, "      - %s\n", a.Error)
		}
	}

	fmt.Fprintf(w, "\nAnalyses:\n")
	if len(analyses) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, a := range analyses {
		refactored := ""
		if a.WasRefactored {
			refactored = " (after refactor)"
		}
		fmt.Fprintf(w, "  %s  %d issue(s): %d critical, %d warning, %d info%s\n",
			a.Timestamp.Local().Format("2006-01-02 15:04:05"), a.Total,
			a.BySeverity["critical"], a.BySeverity["warning"], a.BySeverity["info"], refactored)
	}
}
