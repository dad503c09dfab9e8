package main

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/webspoilt/code-janitor/internal/workspace"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check janitor configuration and environment health",
	Long: `Run health checks to diagnose common configuration and environment issues.

This command checks for:
- Configuration file and validity
- History database accessibility
- Provider credentials and reachability
- Optional external analyzers (ruff, bandit)
- A lock left behind by another janitor process

Exit codes:
  0 - All checks passed
  1 - One or more checks failed (but not critical)
  2 - Critical failures that prevent janitor clean from running`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()

		out := cmd.OutOrStdout()
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		fmt.Fprintf(out, "Running janitor health checks...\n\n")

		var warnings, criticalFailures []string

		// Check 1: configuration
		fmt.Fprintf(out, "%s Configuration\n", cyan("→"))
		if cfg.Source == "" {
			fmt.Fprintf(out, "  %s No config file, using defaults\n", yellow("⚠"))
		} else {
			fmt.Fprintf(out, "  %s %s\n", green("✓"), cfg.Source)
		}
		if err := cfg.Validate(); err != nil {
			criticalFailures = append(criticalFailures, err.Error())
			fmt.Fprintf(out, "  %s %v\n", red("✗"), err)
		}

		// Check 2: history database
		fmt.Fprintf(out, "\n%s History database\n", cyan("→"))
		if store, err := openStorage(ctx, cfg); err != nil {
			criticalFailures = append(criticalFailures, err.Error())
			fmt.Fprintf(out, "  %s %v\n", red("✗"), err)
		} else {
			if err := store.Ping(ctx); err != nil {
				criticalFailures = append(criticalFailures, fmt.Sprintf("database ping failed: %v", err))
				fmt.Fprintf(out, "  %s Ping failed: %v\n", red("✗"), err)
			} else {
				fmt.Fprintf(out, "  %s Reachable\n", green("✓"))
			}
			_ = store.Close()
		}

		// Check 3: provider
		fmt.Fprintf(out, "\n%s Provider %s\n", cyan("→"), cfg.AI.Provider)
		if client, err := newClient(cfg, nil); err != nil {
			criticalFailures = append(criticalFailures, err.Error())
			fmt.Fprintf(out, "  %s %v\n", red("✗"), err)
		} else if err := client.HealthCheck(ctx); err != nil {
			criticalFailures = append(criticalFailures, fmt.Sprintf("%s health check failed: %v", client.Provider(), err))
			fmt.Fprintf(out, "  %s %v\n", red("✗"), err)
		} else {
			fmt.Fprintf(out, "  %s %s is reachable\n", green("✓"), client.Model())
		}

		// Check 4: external analyzers
		fmt.Fprintf(out, "\n%s External analyzers\n", cyan("→"))
		for _, tool := range [][2]string{{"ruff", cfg.Analysis.Tools.RuffPath}, {"bandit", cfg.Analysis.Tools.BanditPath}} {
			name := tool[0]
			if path, err := exec.LookPath(tool[1]); err != nil {
				warnings = append(warnings, fmt.Sprintf("%s not found; its categories are reported unavailable", name))
				fmt.Fprintf(out, "  %s %s not found\n", yellow("⚠"), name)
			} else {
				fmt.Fprintf(out, "  %s %s (%s)\n", green("✓"), name, path)
			}
		}

		// Check 5: stale lock
		fmt.Fprintf(out, "\n%s Backup lock\n", cyan("→"))
		lockPath := filepath.Join(cfg.Backup.Dir, workspace.LockFileName)
		if lock, err := workspace.ReadExclusiveLock(lockPath); err == nil {
			warnings = append(warnings, fmt.Sprintf("lock held by PID %d since %s", lock.PID, lock.StartedAt.Format(time.RFC3339)))
			fmt.Fprintf(out, "  %s Held by %s (PID %d on %s)\n", yellow("⚠"), lock.Holder, lock.PID, lock.Hostname)
		} else {
			fmt.Fprintf(out, "  %s Not held\n", green("✓"))
		}

		fmt.Fprintln(out)
		switch {
		case len(criticalFailures) > 0:
			fmt.Fprintf(out, "%s %d critical failure(s)\n", red("✗"), len(criticalFailures))
			return &exitError{code: 2}
		case len(warnings) > 0:
			fmt.Fprintf(out, "%s %d warning(s)\n", yellow("⚠"), len(warnings))
			return &exitError{code: 1}
		}
		fmt.Fprintf(out, "%s All checks passed\n", green("✓"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
