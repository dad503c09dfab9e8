// Command janitor analyzes source files and refactors them with an AI
// provider, keeping only rewrites that validate and restoring everything
// else from backup.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/webspoilt/code-janitor/internal/config"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	configPath string
	dbPath     string
	verbosity  int

	// cfg is loaded before every command except init
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "janitor",
	Short: "Analyze and safely refactor source code",
	Long: `janitor finds code-quality issues with static analysis and asks an AI
provider to fix them. A rewrite is kept only when it parses, introduces no
critical issue, keeps every protected symbol and does not make the weighted
score worse. Anything else is rolled back from a backup taken before the
file was touched.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		slog.SetDefault(newLogger(cmd.ErrOrStderr(), verbosity))
		if cmd.Annotations["skipConfig"] == "true" {
			return nil
		}
		return loadConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: janitor.yaml, .janitor.yaml, then ~/.config/code-janitor/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "History database path (default: nearest .janitor/janitor.db)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
}

func loadConfig() error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}
	loaded, err := config.Load(configPath, wd)
	if err != nil {
		return err
	}
	if dbPath != "" {
		loaded.Storage.DB = dbPath
	}
	cfg = loaded
	slog.Debug("configuration loaded", "source", cfg.Source, "provider", cfg.AI.Provider, "db", cfg.Storage.DB)
	return nil
}

// newLogger writes text logs to w: warnings by default, info with -v,
// debug with -vv
func newLogger(w io.Writer, verbosity int) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbosity >= 2:
		level = slog.LevelDebug
	case verbosity == 1:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// exitError carries a process exit code through cobra
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error { return e.err }

// exitCode maps a command error to the process exit code
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		var ee *exitError
		if !errors.As(err, &ee) || ee.err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
	os.Exit(exitCode(err))
}
