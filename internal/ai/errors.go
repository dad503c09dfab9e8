package ai

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sashabaranov/go-openai"
	"github.com/webspoilt/code-janitor/internal/types"
)

// ErrEmptyResponse is returned when a provider answers with no usable text
var ErrEmptyResponse = errors.New("provider returned an empty response")

// classify converts any provider failure into a *types.ProviderError.
// Typed SDK errors are inspected first; the error text is only a fallback
// for transports that do not expose a status code (e.g. Ollama).
func classify(provider string, err error) *types.ProviderError {
	if err == nil {
		return nil
	}

	var perr *types.ProviderError
	if errors.As(err, &perr) {
		return perr
	}

	out := &types.ProviderError{Provider: provider, Err: err}

	switch {
	case errors.Is(err, context.Canceled):
		out.Kind = types.ProviderCanceled
		return out
	case errors.Is(err, context.DeadlineExceeded):
		out.Kind = types.ProviderTimeout
		return out
	case errors.Is(err, ErrEmptyResponse):
		out.Kind = types.ProviderEmpty
		return out
	case errors.Is(err, ErrCircuitOpen):
		out.Kind = types.ProviderTransport
		return out
	}

	if status := statusCode(err); status != 0 {
		out.Status = status
		out.Kind = kindForStatus(status)
		return out
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			out.Kind = types.ProviderTimeout
		} else {
			out.Kind = types.ProviderTransport
		}
		return out
	}

	out.Kind = kindFromMessage(err.Error())
	return out
}

// statusCode extracts the HTTP status from typed SDK errors
func statusCode(err error) int {
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func kindForStatus(status int) types.ProviderErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return types.ProviderAuth
	case status == http.StatusTooManyRequests:
		return types.ProviderRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return types.ProviderTimeout
	case status >= 500:
		return types.ProviderTransport
	default:
		return types.ProviderMalformed
	}
}

// kindFromMessage classifies untyped errors by their text
func kindFromMessage(msg string) types.ProviderErrorKind {
	msg = strings.ToLower(msg)
	switch {
	case containsAny(msg, "401", "403", "unauthorized", "forbidden", "invalid api key", "invalid x-api-key", "authentication"):
		return types.ProviderAuth
	case containsAny(msg, "429", "rate limit", "rate_limit", "too many requests", "quota"):
		return types.ProviderRateLimit
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return types.ProviderTimeout
	case containsAny(msg, "500", "502", "503", "504", "internal server error", "bad gateway",
		"service unavailable", "overloaded", "connection refused", "connection reset",
		"no such host", "broken pipe", "eof", "temporary failure", "network"):
		return types.ProviderTransport
	}
	return types.ProviderMalformed
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
