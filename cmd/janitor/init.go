package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/webspoilt/code-janitor/internal/ai"
	"github.com/webspoilt/code-janitor/internal/config"
	"github.com/webspoilt/code-janitor/internal/storage"
	"github.com/webspoilt/code-janitor/internal/workspace"
)

const ollamaProbeTimeout = 2 * time.Second

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a janitor.yaml with defaults in the current directory",
	Long: `Create janitor.yaml with the default settings and the .janitor/ directory
holding the history database.

If no cloud API key is set and a local Ollama server answers, the config
selects the ollama provider and its first pulled model.

Example:
  cd ~/myproject
  janitor init
  janitor init --force   # Overwrite an existing janitor.yaml`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{"skipConfig": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		path := filepath.Join(cwd, config.FileNames[0])
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		c := config.Default()
		c.AI.Model = ai.DefaultModel(c.AI.Provider)
		detected := detectOllama(cmd.Context(), c)

		data, err := config.Marshal(c)
		if err != nil {
			return err
		}
		if err := workspace.WriteFileAtomic(path, data); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}

		dbPath := filepath.Join(cwd, storage.DefaultPath)
		db, err := storage.NewStorage(cmd.Context(), &storage.Config{Path: dbPath})
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		_ = db.Close()

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "\n%s Initialized code janitor\n\n", green("✓"))
		fmt.Fprintf(out, "  Config:   %s\n", cyan(path))
		fmt.Fprintf(out, "  Database: %s\n", cyan(dbPath))
		fmt.Fprintf(out, "  Provider: %s (%s)\n", cyan(c.AI.Provider), c.AI.Model)
		if detected {
			fmt.Fprintf(out, "  %s\n", gray("Local Ollama server detected"))
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "%s Next steps:\n", gray("→"))
		if ai.NeedsAPIKey(c.AI.Provider) {
			fmt.Fprintf(out, "  %s\n", gray(fmt.Sprintf("export %s=...", apiKeyEnv[c.AI.Provider])))
		}
		fmt.Fprintf(out, "  %s\n", gray("janitor check -r ."))
		fmt.Fprintf(out, "  %s\n", gray("janitor clean --dry-run --diff ."))
		fmt.Fprintln(out)
		return nil
	},
}

func init() {
	initCmd.Flags().Bool("force", false, "Overwrite an existing janitor.yaml")
	rootCmd.AddCommand(initCmd)
}

// detectOllama switches c to a local Ollama server when no cloud key is set
// and the server has at least one model pulled
func detectOllama(ctx context.Context, c *config.Config) bool {
	for _, env := range apiKeyEnv {
		if os.Getenv(env) != "" {
			return false
		}
	}
	ctx, cancel := context.WithTimeout(ctx, ollamaProbeTimeout)
	defer cancel()
	models, err := ai.ListOllamaModels(ctx, nil, ai.OllamaBaseURL)
	if err != nil || len(models) == 0 {
		return false
	}
	c.AI.Provider = ai.ProviderOllama
	c.AI.Model = models[0]
	return true
}
