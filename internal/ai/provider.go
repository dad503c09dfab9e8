// Package ai talks to language-model providers on behalf of the refactor
// loop.
//
// Every backend implements Provider. Client wraps a Provider with the
// operational concerns (per-request timeout, transport retries, circuit
// breaker, concurrency and rate limits) and turns responses into candidate
// source. Configuration is always passed in; nothing in this package reads
// the environment.
package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Provider names
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGroq      = "groq"
	ProviderOllama    = "ollama"
)

// Default endpoints
const (
	GroqBaseURL   = "https://api.groq.com/openai/v1"
	OllamaBaseURL = "http://localhost:11434"
)

// Providers lists the supported provider names
var Providers = []string{ProviderAnthropic, ProviderOpenAI, ProviderGroq, ProviderOllama}

// GenerateRequest is one completion request
type GenerateRequest struct {
	System      string
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Provider is one language-model backend
type Provider interface {
	// Name is the provider's registry name ("anthropic", "ollama", ...)
	Name() string

	// Generate returns the raw response text
	Generate(ctx context.Context, req GenerateRequest) (string, error)

	// HealthCheck verifies credentials and reachability
	HealthCheck(ctx context.Context) error
}

// Config selects and parameterizes a provider
type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Retry       RetryConfig
	Logger      *slog.Logger
}

// DefaultConfig returns the provider defaults
func DefaultConfig() Config {
	return Config{
		Provider:    ProviderAnthropic,
		Model:       DefaultModel(ProviderAnthropic),
		Temperature: 0.2,
		MaxTokens:   4000,
		Retry:       DefaultRetryConfig(),
	}
}

// DefaultModel returns the model used when none is configured
func DefaultModel(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return "claude-sonnet-4-20250514"
	case ProviderOpenAI:
		return "gpt-4o"
	case ProviderGroq:
		return "llama3-70b-8192"
	case ProviderOllama:
		return "llama3"
	}
	return ""
}

// NeedsAPIKey reports whether the provider authenticates with a key
func NeedsAPIKey(provider string) bool {
	return provider != ProviderOllama
}

// NewProvider constructs the configured provider. This is the only place
// that maps a provider name to an implementation.
func NewProvider(cfg Config) (Provider, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultModel(cfg.Provider)
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderAnthropic:
		return NewAnthropicProvider(cfg.APIKey, cfg.BaseURL, model)
	case ProviderOpenAI:
		return NewOpenAIProvider(ProviderOpenAI, cfg.APIKey, cfg.BaseURL, model)
	case ProviderGroq:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = GroqBaseURL
		}
		return NewOpenAIProvider(ProviderGroq, cfg.APIKey, baseURL, model)
	case ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = OllamaBaseURL
		}
		return NewOllamaProvider(baseURL, model, cfg.Retry.Timeout)
	default:
		return nil, fmt.Errorf("unknown provider %q (want one of %s)", cfg.Provider, strings.Join(Providers, ", "))
	}
}

// healthTimeout bounds HealthCheck calls that have no deadline of their own
const healthTimeout = 10 * time.Second
