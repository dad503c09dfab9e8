package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the failure taxonomy. Typed errors below match these
// through errors.Is so callers can branch on the class without caring about
// the details.
var (
	ErrAnalyzerUnavailable = errors.New("analyzer unavailable")
	ErrParse               = errors.New("parse error")
	ErrProvider            = errors.New("provider error")
	ErrValidation          = errors.New("validation failure")
	ErrBackup              = errors.New("backup failure")
	ErrMaxRetries          = errors.New("max retries exceeded")

	// ErrNotFound is returned by stores for a missing record
	ErrNotFound = errors.New("not found")
)

// AnalyzerError reports that one analyzer failed on one unit. It degrades
// the report but never aborts aggregation.
type AnalyzerError struct {
	Analyzer string
	Unit     string
	Err      error
}

func (e *AnalyzerError) Error() string {
	return fmt.Sprintf("analyzer %s unavailable for %s: %v", e.Analyzer, e.Unit, e.Err)
}

func (e *AnalyzerError) Unwrap() error { return e.Err }

func (e *AnalyzerError) Is(target error) bool { return target == ErrAnalyzerUnavailable }

// ParseError reports that a unit does not parse. Lines lists the 1-based
// lines containing syntax errors.
type ParseError struct {
	Unit     string
	Language string
	Lines    []int
}

func (e *ParseError) Error() string {
	if len(e.Lines) == 0 {
		return fmt.Sprintf("%s: %s source does not parse", e.Unit, e.Language)
	}
	lines := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		lines = append(lines, fmt.Sprint(l))
	}
	return fmt.Sprintf("%s: syntax error at line(s) %s", e.Unit, strings.Join(lines, ", "))
}

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// ProviderErrorKind distinguishes provider failures
type ProviderErrorKind string

const (
	ProviderAuth      ProviderErrorKind = "auth"
	ProviderRateLimit ProviderErrorKind = "rate_limit"
	ProviderTimeout   ProviderErrorKind = "timeout"
	ProviderMalformed ProviderErrorKind = "malformed"
	ProviderEmpty     ProviderErrorKind = "empty"
	ProviderTransport ProviderErrorKind = "transport"
	ProviderCanceled  ProviderErrorKind = "canceled"
)

// Retriable reports whether the kind is transient at the transport layer
func (k ProviderErrorKind) Retriable() bool {
	switch k {
	case ProviderRateLimit, ProviderTimeout, ProviderTransport:
		return true
	}
	return false
}

// ProviderError is a transport or semantic failure from an AI backend
type ProviderError struct {
	Provider string
	Kind     ProviderErrorKind
	Status   int // HTTP status when known
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s provider error (%s, status %d): %v", e.Provider, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s provider error (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// Retriable reports whether the transport layer may retry this error
func (e *ProviderError) Retriable() bool { return e.Kind.Retriable() }

// Violation is one broken safety rule
type Violation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Rule, v.Message)
}

// ValidationFailure reports a rejected candidate
type ValidationFailure struct {
	Unit       string
	Violations []Violation
	Delta      *Delta
}

func (e *ValidationFailure) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("candidate for %s rejected: %s", e.Unit, strings.Join(parts, "; "))
}

func (e *ValidationFailure) Is(target error) bool { return target == ErrValidation }

// BackupError reports that a unit could not be durably snapshotted or restored
type BackupError struct {
	Unit string
	Op   string // "snapshot", "restore", ...
	Err  error
}

func (e *BackupError) Error() string {
	return fmt.Sprintf("backup %s failed for %s: %v", e.Op, e.Unit, e.Err)
}

func (e *BackupError) Unwrap() error { return e.Err }

func (e *BackupError) Is(target error) bool { return target == ErrBackup }

// MaxRetriesError is the terminal failure after the attempt cap is reached
type MaxRetriesError struct {
	Unit     string
	Attempts int
	Last     error
}

func (e *MaxRetriesError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("%s: gave up after %d attempt(s): %v", e.Unit, e.Attempts, e.Last)
	}
	return fmt.Sprintf("%s: gave up after %d attempt(s)", e.Unit, e.Attempts)
}

func (e *MaxRetriesError) Unwrap() error { return e.Last }

func (e *MaxRetriesError) Is(target error) bool { return target == ErrMaxRetries }
