package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/webspoilt/code-janitor/internal/backup"
	"github.com/webspoilt/code-janitor/internal/types"
	"github.com/webspoilt/code-janitor/internal/workspace"
)

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List, restore and delete backups",
	Long: `Every file janitor touches is backed up first. Backups are kept until you
delete them here (or, with backup.discard_on_rollback, right after a
successful rollback).`,
}

var backupsListCmd = &cobra.Command{
	Use:   "list [path]",
	Short: "List backups, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		unit, err := unitArg(args)
		if err != nil {
			return err
		}
		return withBackups(cmd.Context(), func(m *backup.Manager) error {
			records, err := m.List(cmd.Context(), unit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No backups")
				return nil
			}
			gray := color.New(color.FgHiBlack).SprintFunc()
			for _, rec := range records {
				fmt.Fprintf(out, "%6d  %s  %8s  %s  %s\n", rec.Revision,
					rec.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					formatSize(rec.Size), gray(shortHash(rec.SHA256)), rec.Unit)
			}
			return nil
		})
	},
}

var backupsRestoreCmd = &cobra.Command{
	Use:   "restore <revision>",
	Short: "Write a backup back to its file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		revision, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid revision %q", args[0])
		}
		lockPath, err := workspace.AcquireExclusiveLock(cfg.Backup.Dir, "janitor backups restore", version)
		if err != nil {
			return err
		}
		defer func() { _ = workspace.ReleaseExclusiveLock(lockPath) }()

		return withBackups(cmd.Context(), func(m *backup.Manager) error {
			rec, err := m.Get(cmd.Context(), revision)
			if err != nil {
				return err
			}
			wrote, err := m.Restore(cmd.Context(), revision)
			if err != nil {
				return err
			}
			green := color.New(color.FgGreen).SprintFunc()
			if !wrote {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s already matches revision %d\n", green("✓"), rec.Unit, revision)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Restored %s from revision %d\n", green("✓"), rec.Unit, revision)
			return nil
		})
	},
}

var backupsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete backups by file and/or age",
	Long: `Delete every backup matching the filters. At least one of --unit,
--older-than or --all is required.

Example:
  janitor backups purge --older-than 30d
  janitor backups purge --unit src/calc.py --yes`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		unitFlag, _ := cmd.Flags().GetString("unit")
		olderThan, _ := cmd.Flags().GetString("older-than")
		all, _ := cmd.Flags().GetBool("all")
		yes, _ := cmd.Flags().GetBool("yes")

		filter := types.BackupFilter{All: all}
		if unitFlag != "" {
			abs, err := filepath.Abs(unitFlag)
			if err != nil {
				return err
			}
			filter.Unit = abs
		}
		if olderThan != "" {
			age, err := parseAge(olderThan)
			if err != nil {
				return err
			}
			filter.Before = time.Now().Add(-age)
		}
		if filter.IsEmpty() {
			return fmt.Errorf("refusing to purge without a filter (use --unit, --older-than or --all)")
		}

		return withBackups(cmd.Context(), func(m *backup.Manager) error {
			records, err := m.List(cmd.Context(), filter.Unit)
			if err != nil {
				return err
			}
			matched := 0
			for _, rec := range records {
				if filter.Matches(rec) {
					matched++
				}
			}
			out := cmd.OutOrStdout()
			if matched == 0 {
				fmt.Fprintln(out, "No backups match")
				return nil
			}
			if !yes {
				ok, err := confirm(fmt.Sprintf("Delete %d backup(s)? [y/N] ", matched))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, "Aborted")
					return nil
				}
			}
			n, err := m.Purge(cmd.Context(), filter)
			if err != nil {
				return err
			}
			green := color.New(color.FgGreen).SprintFunc()
			fmt.Fprintf(out, "%s Deleted %d backup(s)\n", green("✓"), n)
			return nil
		})
	},
}

var backupsPruneCmd = &cobra.Command{
	Use:   "prune <path>",
	Short: "Keep only the newest backups of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keep, _ := cmd.Flags().GetInt("keep")
		if !cmd.Flags().Changed("keep") {
			keep = cfg.Backup.MaxRevisions
		}
		unit, err := unitArg(args)
		if err != nil {
			return err
		}
		return withBackups(cmd.Context(), func(m *backup.Manager) error {
			n, err := m.Prune(cmd.Context(), unit, keep)
			if err != nil {
				return err
			}
			green := color.New(color.FgGreen).SprintFunc()
			fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted %d backup(s) of %s, kept up to %d\n", green("✓"), n, unit, keep)
			return nil
		})
	},
}

func init() {
	backupsPurgeCmd.Flags().String("unit", "", "Only backups of this file")
	backupsPurgeCmd.Flags().String("older-than", "", "Only backups older than this age (e.g. 72h, 30d)")
	backupsPurgeCmd.Flags().Bool("all", false, "Match every backup")
	backupsPurgeCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	backupsPruneCmd.Flags().Int("keep", 5, "Number of newest backups to keep (default: backup.max_revisions)")

	backupsCmd.AddCommand(backupsListCmd, backupsRestoreCmd, backupsPurgeCmd, backupsPruneCmd)
	rootCmd.AddCommand(backupsCmd)
}

// withBackups opens the configured backup store for fn
func withBackups(ctx context.Context, fn func(m *backup.Manager) error) error {
	history, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer history.Close()

	store, closeStore, err := openBackups(ctx, cfg, history, false)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(backup.NewManager(store, slog.Default()))
}

// unitArg resolves an optional path argument to the absolute unit key
func unitArg(args []string) (string, error) {
	if len(args) == 0 {
		return "", nil
	}
	return filepath.Abs(args[0])
}

// parseAge accepts Go durations plus a whole-day suffix ("30d")
func parseAge(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid age %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid age %q", s)
	}
	return d, nil
}

// confirm asks a yes/no question on the terminal; anything but y/yes is no
func confirm(question string) (bool, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          question,
		InterruptPrompt: "^C",
		EOFPrompt:       "",
	})
	if err != nil {
		return false, fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	line, err := rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fM", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fK", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%dB", n)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
