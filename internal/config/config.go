// Package config loads janitor settings from YAML, applies environment
// overrides and validates the result.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/webspoilt/code-janitor/internal/ai"
	"github.com/webspoilt/code-janitor/internal/analyzers"
	"github.com/webspoilt/code-janitor/internal/refactor"
	"github.com/webspoilt/code-janitor/internal/storage"
	"github.com/webspoilt/code-janitor/internal/types"
)

// Config is the complete janitor configuration
type Config struct {
	AI        AIConfig        `yaml:"ai" validate:"required"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Validator ValidatorConfig `yaml:"validator"`
	Refactor  RefactorConfig  `yaml:"refactor"`
	Backup    BackupConfig    `yaml:"backup"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`

	// Source is the file the configuration was read from; empty when only
	// defaults apply
	Source string `yaml:"-"`
}

// AIConfig selects and tunes the refactoring model
type AIConfig struct {
	// Provider is one of anthropic, openai, groq, ollama
	// Default: anthropic
	Provider string `yaml:"provider" validate:"oneof=anthropic openai groq ollama"`

	// Model defaults per provider when empty
	Model string `yaml:"model"`

	// APIKey is normally left empty and taken from the environment
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider endpoint (e.g. a remote Ollama)
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`

	// Default: 0.2, Range: 0-2
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`

	// Default: 4000, Range: 256-200000
	MaxTokens int `yaml:"max_tokens" validate:"gte=256,lte=200000"`

	// Timeout bounds one provider request
	// Default: 60s
	Timeout time.Duration `yaml:"timeout" validate:"gte=1000000000"`

	// MaxRetries is the number of transport retries for transient errors
	// Default: 3, Range: 0-10
	MaxRetries int `yaml:"max_retries" validate:"gte=0,lte=10"`

	// RequestsPerMinute limits provider calls; 0 is unlimited
	RequestsPerMinute float64 `yaml:"requests_per_minute" validate:"gte=0"`

	// MaxConcurrentCalls bounds in-flight provider calls; 0 is unlimited
	// Default: 3
	MaxConcurrentCalls int `yaml:"max_concurrent_calls" validate:"gte=0,lte=64"`
}

// AnalysisConfig configures the analyzers
type AnalysisConfig struct {
	Thresholds analyzers.Thresholds `yaml:",inline"`

	// Analyzers lists the enabled analyzers by registry name
	// Default: complexity, lint, security, smells
	Analyzers []string `yaml:"analyzers" validate:"min=1,dive,required"`

	// Tools locates the optional external analyzers
	Tools analyzers.ToolConfig `yaml:"tools"`
}

// ValidatorConfig configures candidate acceptance
type ValidatorConfig struct {
	Weights types.Weights `yaml:"weights"`

	// CountInfo weighs info issues; when false they weigh 0
	// Default: true
	CountInfo bool `yaml:"count_info"`

	// Protected names must survive every rewrite
	Protected []string `yaml:"protected" validate:"dive,required"`

	// ProtectPublic also protects every public top-level symbol
	// Default: true
	ProtectPublic bool `yaml:"protect_public"`
}

// RefactorConfig configures the retry loop
type RefactorConfig struct {
	// Default: 3, Range: 1-10
	MaxAttempts int `yaml:"max_attempts" validate:"gte=1,lte=10"`

	// RetryBackoff is the wait after a provider error before the next attempt
	// Default: 2s
	RetryBackoff time.Duration `yaml:"retry_backoff" validate:"gte=0"`

	// Workers is the number of units processed concurrently
	// Default: 1, Range: 1-32
	Workers int `yaml:"workers" validate:"gte=1,lte=32"`
}

// BackupConfig selects the backup store and its retention
type BackupConfig struct {
	// Backend is sqlite, badger or memory
	// Default: sqlite
	Backend string `yaml:"backend" validate:"oneof=sqlite badger memory"`

	// Dir is the badger directory parent
	// Default: .janitor
	Dir string `yaml:"dir"`

	// MaxRevisions is the default for backups prune --keep
	// Default: 5, Range: 1-1000
	MaxRevisions int `yaml:"max_revisions" validate:"gte=1,lte=1000"`

	// DiscardOnRollback deletes a backup once its rollback restore succeeded
	// Default: false
	DiscardOnRollback bool `yaml:"discard_on_rollback"`
}

// StorageConfig locates the janitor database
type StorageConfig struct {
	// DB is the SQLite path
	// Default: .janitor/janitor.db
	DB string `yaml:"db" validate:"required"`
}

// ServerConfig configures janitor serve
type ServerConfig struct {
	// Default: 127.0.0.1:8080
	Addr string `yaml:"addr" validate:"required,hostname_port"`
}

// Default returns the configuration used when no file is found
func Default() *Config {
	aiCfg := ai.DefaultConfig()
	retry := ai.DefaultRetryConfig()
	weights := types.DefaultWeights()
	return &Config{
		AI: AIConfig{
			Provider:           aiCfg.Provider,
			Temperature:        aiCfg.Temperature,
			MaxTokens:          aiCfg.MaxTokens,
			Timeout:            retry.Timeout,
			MaxRetries:         retry.MaxRetries,
			MaxConcurrentCalls: retry.MaxConcurrentCalls,
		},
		Analysis: AnalysisConfig{
			Thresholds: analyzers.DefaultThresholds(),
			Analyzers:  analyzers.DefaultEnabled(),
			Tools:      analyzers.DefaultToolConfig(),
		},
		Validator: ValidatorConfig{
			Weights:       weights,
			CountInfo:     true,
			ProtectPublic: true,
		},
		Refactor: RefactorConfig{
			MaxAttempts:  refactor.DefaultMaxAttempts,
			RetryBackoff: 2 * time.Second,
			Workers:      1,
		},
		Backup: BackupConfig{
			Backend:      storage.BackendSQLite,
			Dir:          ".janitor",
			MaxRevisions: 5,
		},
		Storage: StorageConfig{DB: storage.DefaultPath},
		Server:  ServerConfig{Addr: "127.0.0.1:8080"},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := c.Validator.Weights.Validate(); err != nil {
		return fmt.Errorf("invalid validator.weights: %w", err)
	}
	registry := analyzers.NewDefaultRegistry(c.Analysis.Tools)
	for _, name := range c.Analysis.Analyzers {
		if _, ok := registry.Get(name); !ok {
			return fmt.Errorf("unknown analyzer %q in analysis.analyzers", name)
		}
	}
	if c.Backup.Backend == storage.BackendBadger && c.Backup.Dir == "" {
		return fmt.Errorf("backup.dir is required for the badger backend")
	}
	return nil
}

// EffectiveWeights returns the weights the validator uses: info weighs 0
// when count_info is off
func (c *Config) EffectiveWeights() types.Weights {
	w := c.Validator.Weights
	if !c.Validator.CountInfo {
		w.Info = 0
	}
	return w
}

// ProviderConfig builds the refactor client configuration. apiKey is the
// key the caller resolved (config, then environment); model falls back to
// the provider default.
func (c *Config) ProviderConfig(apiKey string) ai.Config {
	retry := ai.DefaultRetryConfig()
	retry.Timeout = c.AI.Timeout
	retry.MaxRetries = c.AI.MaxRetries
	retry.RequestsPerMinute = c.AI.RequestsPerMinute
	retry.MaxConcurrentCalls = c.AI.MaxConcurrentCalls

	model := c.AI.Model
	if model == "" {
		model = ai.DefaultModel(c.AI.Provider)
	}
	return ai.Config{
		Provider:    c.AI.Provider,
		Model:       model,
		APIKey:      apiKey,
		BaseURL:     c.AI.BaseURL,
		Temperature: c.AI.Temperature,
		MaxTokens:   c.AI.MaxTokens,
		Retry:       retry,
	}
}
