package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/webspoilt/code-janitor/internal/prompt"
	"github.com/webspoilt/code-janitor/internal/types"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Observer receives one call per provider request (e.g. for metrics).
// err is nil on success and a *types.ProviderError otherwise.
type Observer interface {
	ObserveProviderCall(provider string, duration time.Duration, err *types.ProviderError)
}

// Client wraps a Provider with timeouts, retries, a circuit breaker and
// concurrency/rate limits. The semaphore and rate limiter only bound load on
// the provider and are shared by every client derived with ForUnit; the
// breaker is not.
type Client struct {
	provider    Provider
	model       string
	temperature float64
	maxTokens   int
	retry       RetryConfig

	breaker  *CircuitBreaker
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	logger   *slog.Logger
	observer Observer

	// sleep waits between transport retries; tests replace it
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient wraps provider with the policies in cfg
func NewClient(provider Provider, cfg Config) *Client {
	retry := cfg.Retry
	if retry == (RetryConfig{}) {
		retry = DefaultRetryConfig()
	}
	if retry.BackoffMultiplier < 1 {
		retry.BackoffMultiplier = 1
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		provider:    provider,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		retry:       retry,
		logger:      logger.With("provider", provider.Name()),
		sleep:       sleepCtx,
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultConfig().MaxTokens
	}
	if retry.CircuitBreakerEnabled {
		c.breaker = NewCircuitBreaker(retry.FailureThreshold, retry.SuccessThreshold, retry.OpenTimeout, c.logger)
	}
	if retry.MaxConcurrentCalls > 0 {
		c.sem = semaphore.NewWeighted(int64(retry.MaxConcurrentCalls))
	}
	if retry.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(retry.RequestsPerMinute/60), 1)
	}
	return c
}

// ForUnit returns a client for one unit's calls. It shares the provider,
// observer, semaphore and rate limiter but gets a fresh circuit breaker, so
// failures on one unit never fail another unit's calls fast.
func (c *Client) ForUnit() *Client {
	u := *c
	if c.breaker != nil {
		u.breaker = NewCircuitBreaker(c.retry.FailureThreshold, c.retry.SuccessThreshold, c.retry.OpenTimeout, c.logger)
	}
	return &u
}

// SetObserver installs a call observer
func (c *Client) SetObserver(o Observer) {
	c.observer = o
}

// Provider returns the wrapped provider's name
func (c *Client) Provider() string {
	return c.provider.Name()
}

// Model returns the configured model
func (c *Client) Model() string {
	return c.model
}

// CircuitState exposes the breaker state (CircuitClosed when disabled)
func (c *Client) CircuitState() CircuitState {
	if c.breaker == nil {
		return CircuitClosed
	}
	return c.breaker.State()
}

// Refactor sends the request and returns the candidate source extracted
// from the response. Every failure is a *types.ProviderError.
func (c *Client) Refactor(ctx context.Context, req *prompt.Request) (string, error) {
	raw, err := c.Generate(ctx, GenerateRequest{
		System:      req.System,
		Prompt:      req.User,
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", err
	}

	code := ExtractCode(raw)
	if strings.TrimSpace(code) == "" {
		return "", &types.ProviderError{Provider: c.provider.Name(), Kind: types.ProviderEmpty, Err: ErrEmptyResponse}
	}
	return code, nil
}

// Generate calls the provider with transport retries. Only transient
// failures (rate limits, timeouts, transport errors) are retried, with
// exponential backoff.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	name := c.provider.Name()

	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return "", classify(name, err)
		}
		defer c.sem.Release(1)
	}

	backoff := c.retry.InitialBackoff
	var lastErr *types.ProviderError

	for try := 0; try <= c.retry.MaxRetries; try++ {
		if c.breaker != nil {
			if err := c.breaker.Allow(); err != nil {
				c.logger.Warn("provider call blocked by circuit breaker", "state", c.breaker.State().String())
				return "", classify(name, err)
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", classify(name, err)
			}
		}

		text, err := c.call(ctx, req)
		if err == nil {
			if c.breaker != nil {
				c.breaker.RecordSuccess()
			}
			if try > 0 {
				c.logger.Info("provider call succeeded after retries", "retries", try)
			}
			return text, nil
		}

		lastErr = err
		if c.breaker != nil && err.Retriable() {
			c.breaker.RecordFailure()
		}
		if !err.Retriable() {
			c.logger.Warn("provider call failed", "kind", err.Kind, "error", err.Err)
			return "", err
		}
		if try == c.retry.MaxRetries {
			break
		}

		c.logger.Info("provider call failed, retrying", "kind", err.Kind, "try", try+1,
			"max_tries", c.retry.MaxRetries+1, "backoff", backoff, "error", err.Err)
		if serr := c.sleep(ctx, backoff); serr != nil {
			return "", classify(name, serr)
		}
		backoff = c.retry.nextBackoff(backoff)
	}

	c.logger.Warn("provider call failed after retries", "tries", c.retry.MaxRetries+1, "kind", lastErr.Kind)
	return "", lastErr
}

// call makes one provider request under the per-request timeout
func (c *Client) call(ctx context.Context, req GenerateRequest) (string, *types.ProviderError) {
	callCtx := ctx
	if c.retry.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.retry.Timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := c.provider.Generate(callCtx, req)
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptyResponse
	}

	var perr *types.ProviderError
	if err != nil {
		perr = classify(c.provider.Name(), err)
		// The SDKs surface a parent cancellation in many shapes
		if ctx.Err() != nil {
			perr = &types.ProviderError{Provider: c.provider.Name(), Kind: types.ProviderCanceled, Err: fmt.Errorf("%w: %v", ctx.Err(), err)}
		}
	}
	if c.observer != nil {
		c.observer.ObserveProviderCall(c.provider.Name(), time.Since(start), perr)
	}
	if perr != nil {
		return "", perr
	}
	return text, nil
}

// HealthCheck delegates to the provider
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.provider.HealthCheck(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
