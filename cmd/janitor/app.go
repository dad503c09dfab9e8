package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/webspoilt/code-janitor/internal/ai"
	"github.com/webspoilt/code-janitor/internal/analyzers"
	"github.com/webspoilt/code-janitor/internal/config"
	"github.com/webspoilt/code-janitor/internal/metrics"
	"github.com/webspoilt/code-janitor/internal/source"
	"github.com/webspoilt/code-janitor/internal/storage"
	"github.com/webspoilt/code-janitor/internal/workspace"
)

// apiKeyEnv names the environment variable holding each provider's key
var apiKeyEnv = map[string]string{
	ai.ProviderAnthropic: "ANTHROPIC_API_KEY",
	ai.ProviderOpenAI:    "OPENAI_API_KEY",
	ai.ProviderGroq:      "GROQ_API_KEY",
}

// openStorage opens the history database named by the configuration, or the
// nearest one above the working directory
func openStorage(ctx context.Context, c *config.Config) (storage.Storage, error) {
	path, err := storage.DiscoverDatabase(c.Storage.DB)
	if err != nil {
		return nil, err
	}
	slog.Debug("opening history database", "path", path)
	store, err := storage.NewStorage(ctx, &storage.Config{Path: path, Logger: slog.Default()})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return store, nil
}

// openBackups opens the configured backup backend. Dry runs never touch
// disk, so they always use the in-memory store.
func openBackups(ctx context.Context, c *config.Config, history storage.Storage, dryRun bool) (storage.BackupStore, func() error, error) {
	backend := c.Backup.Backend
	if dryRun {
		backend = storage.BackendMemory
	}
	return storage.NewBackupStore(ctx, &storage.Config{
		BackupBackend: backend,
		BackupDir:     c.Backup.Dir,
		Logger:        slog.Default(),
	}, history)
}

// newAggregator builds the analyzer pipeline; m may be nil
func newAggregator(c *config.Config, m *metrics.Metrics) (*analyzers.Aggregator, error) {
	cfg := &analyzers.Config{
		Registry:   analyzers.NewDefaultRegistry(c.Analysis.Tools),
		Enabled:    c.Analysis.Analyzers,
		Thresholds: c.Analysis.Thresholds,
		Logger:     slog.Default(),
	}
	if m != nil {
		cfg.Observer = m
	}
	return analyzers.NewAggregator(cfg)
}

// resolveAPIKey prefers the configured key, then the provider's
// environment variable
func resolveAPIKey(c *config.Config) string {
	if c.AI.APIKey != "" {
		return c.AI.APIKey
	}
	if name, ok := apiKeyEnv[c.AI.Provider]; ok {
		return os.Getenv(name)
	}
	return ""
}

// newClient builds the provider client; m may be nil
func newClient(c *config.Config, m *metrics.Metrics) (*ai.Client, error) {
	apiKey := resolveAPIKey(c)
	if ai.NeedsAPIKey(c.AI.Provider) && apiKey == "" {
		return nil, fmt.Errorf("no API key for %s: set %s or ai.api_key", c.AI.Provider, apiKeyEnv[c.AI.Provider])
	}
	pc := c.ProviderConfig(apiKey)
	pc.Logger = slog.Default()
	provider, err := ai.NewProvider(pc)
	if err != nil {
		return nil, err
	}
	client := ai.NewClient(provider, pc)
	if m != nil {
		client.SetObserver(m)
	}
	return client, nil
}

// loadUnits discovers and loads every supported file under the given
// paths (the working directory when none are given). Duplicate paths are
// loaded once.
func loadUnits(paths []string, recursive bool) ([]*source.Unit, error) {
	if len(paths) == 0 {
		paths = []string{"."}
	}
	seen := make(map[string]bool)
	var units []*source.Unit
	for _, root := range paths {
		files, err := workspace.Discover(root, workspace.DiscoverOptions{Recursive: recursive})
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if seen[f] {
				continue
			}
			seen[f] = true
			unit, err := source.Load(f)
			if err != nil {
				return nil, err
			}
			units = append(units, unit)
		}
	}
	return units, nil
}
