// Package validate decides whether a refactoring candidate may replace the
// original source.
//
// A candidate is re-analyzed with the same aggregator as the baseline and
// then checked against a fixed list of safety rules, in order: it must parse,
// it must not introduce critical issues, it must keep every protected symbol
// and its weighted score must not get worse. The candidate is accepted only
// when every rule passes.
package validate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/webspoilt/code-janitor/internal/source"
	"github.com/webspoilt/code-janitor/internal/types"
)

// Rule names a safety rule
type Rule string

const (
	RuleSyntax           Rule = "syntax"
	RuleNoNewCritical    Rule = "no-new-critical"
	RuleProtectedSymbols Rule = "protected-symbols"
	RuleNonWorsening     Rule = "non-worsening"
)

// Rules lists the safety rules in evaluation order
var Rules = []Rule{RuleSyntax, RuleNoNewCritical, RuleProtectedSymbols, RuleNonWorsening}

// Analyzer produces a report for a unit; *analyzers.Aggregator satisfies it
type Analyzer interface {
	Analyze(ctx context.Context, unit *source.Unit) (*types.Report, error)
}

// Result is the outcome of one rule
type Result struct {
	Rule       Rule
	Passed     bool
	Skipped    bool // Not evaluated because the candidate does not parse
	Violations []types.Violation
}

// Verdict is the validator's judgment of one candidate
type Verdict struct {
	Accepted   bool
	Report     *types.Report // Candidate report; nil when it does not parse
	Delta      *types.Delta
	Violations []types.Violation
	Results    []*Result
}

// Err returns a *types.ValidationFailure for a rejected verdict, nil otherwise
func (v *Verdict) Err(unit string) error {
	if v == nil || v.Accepted {
		return nil
	}
	return &types.ValidationFailure{Unit: unit, Violations: v.Violations, Delta: v.Delta}
}

// Config holds validator configuration
type Config struct {
	Analyzer      Analyzer
	Weights       types.Weights // Effective weights (info already zeroed when info is not counted)
	Protected     []string      // Always-protected names
	ProtectPublic bool          // Also protect every public top-level symbol of the original
	Logger        *slog.Logger
}

// Validator judges candidates
type Validator struct {
	analyzer      Analyzer
	weights       types.Weights
	protected     []string
	protectPublic bool
	logger        *slog.Logger
}

// New creates a validator
func New(cfg *Config) (*Validator, error) {
	if cfg.Analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}
	weights := cfg.Weights
	if weights == (types.Weights{}) {
		weights = types.DefaultWeights()
	}
	if err := weights.Validate(); err != nil {
		return nil, fmt.Errorf("invalid weights: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		analyzer:      cfg.Analyzer,
		weights:       weights,
		protected:     append([]string(nil), cfg.Protected...),
		protectPublic: cfg.ProtectPublic,
		logger:        logger,
	}, nil
}

// Weights returns the effective weight table
func (v *Validator) Weights() types.Weights {
	return v.weights
}

// ProtectedSymbols computes the protected set for an original unit: the
// configured names the original actually defines, plus its public symbols
// when public protection is on.
func (v *Validator) ProtectedSymbols(ctx context.Context, original *source.Unit) ([]string, error) {
	tree, err := source.Parse(ctx, original)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	defined := tree.DefinedNames()
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, name := range v.protected {
		if source.HasSymbol(defined, name) {
			add(name)
		}
	}
	if v.protectPublic {
		for _, name := range tree.PublicSymbols() {
			add(name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Validate judges candidate as a replacement for original. baseline is the
// original's report and protected the set from ProtectedSymbols. A rejected
// candidate is not an error; errors are reserved for cancellation and
// analysis infrastructure failures.
func (v *Validator) Validate(ctx context.Context, original *source.Unit, baseline *types.Report, candidate []byte, protected []string) (*Verdict, error) {
	unit := original.WithContent(candidate)
	verdict := &Verdict{}

	report, err := v.analyzer.Analyze(ctx, unit)
	var parseErr *types.ParseError
	switch {
	case errors.As(err, &parseErr):
		verdict.Results = append(verdict.Results, &Result{Rule: RuleSyntax, Violations: syntaxViolations(parseErr, unit.Language)})
		for _, rule := range Rules[1:] {
			verdict.Results = append(verdict.Results, &Result{Rule: rule, Skipped: true})
		}
		verdict.finish()
		v.logger.Debug("candidate rejected", "unit", original.ID, "rule", RuleSyntax, "lines", parseErr.Lines)
		return verdict, nil
	case err != nil:
		return nil, fmt.Errorf("failed to analyze candidate for %s: %w", original.ID, err)
	}

	verdict.Report = report
	verdict.Delta = compare(baseline, report)
	verdict.Results = append(verdict.Results, &Result{Rule: RuleSyntax, Passed: true})

	// no-new-critical
	res := &Result{Rule: RuleNoNewCritical}
	for _, issue := range verdict.Delta.NewCritical() {
		res.Violations = append(res.Violations, types.Violation{
			Rule:    string(RuleNoNewCritical),
			Message: fmt.Sprintf("new critical issue at line %d: %s (%s)", issue.Location.StartLine, issue.Message, issue.SourceTool),
		})
	}
	verdict.Results = append(verdict.Results, res)

	// protected-symbols
	res = &Result{Rule: RuleProtectedSymbols}
	if len(protected) > 0 {
		tree, err := source.Parse(ctx, unit)
		if err != nil {
			return nil, fmt.Errorf("failed to parse candidate for %s: %w", original.ID, err)
		}
		names := tree.DefinedNames()
		tree.Close()
		for _, name := range protected {
			if !source.HasSymbol(names, name) {
				res.Violations = append(res.Violations, types.Violation{
					Rule:    string(RuleProtectedSymbols),
					Message: fmt.Sprintf("protected symbol `%s` was removed", name),
				})
			}
		}
	}
	verdict.Results = append(verdict.Results, res)

	// non-worsening
	res = &Result{Rule: RuleNonWorsening}
	resolved, introduced := verdict.Delta.ResolvedWeight(v.weights), verdict.Delta.IntroducedWeight(v.weights)
	if resolved < introduced {
		res.Violations = append(res.Violations, types.Violation{
			Rule:    string(RuleNonWorsening),
			Message: fmt.Sprintf("weighted score got worse: resolved %s < introduced %s", formatWeight(resolved), formatWeight(introduced)),
		})
	}
	verdict.Results = append(verdict.Results, res)

	verdict.finish()
	v.logger.Debug("candidate validated", "unit", original.ID, "accepted", verdict.Accepted,
		"delta", verdict.Delta.String(), "violations", len(verdict.Violations))
	return verdict, nil
}

// finish derives pass/fail and collects violations in rule order
func (v *Verdict) finish() {
	v.Accepted = true
	v.Violations = nil
	for _, r := range v.Results {
		if r.Skipped {
			v.Accepted = false
			continue
		}
		r.Passed = len(r.Violations) == 0
		if !r.Passed {
			v.Accepted = false
			v.Violations = append(v.Violations, r.Violations...)
		}
	}
}

// compare computes the delta, except that baseline issues in categories the
// candidate analysis could not cover are not counted as resolved
func compare(baseline, candidate *types.Report) *types.Delta {
	d := types.Compare(baseline, candidate)
	if candidate == nil || len(candidate.Unavailable) == 0 {
		return d
	}
	var resolved []types.Issue
	for _, issue := range d.Resolved {
		if candidate.IsUnavailable(issue.Category) {
			d.Unchanged = append(d.Unchanged, issue)
			continue
		}
		resolved = append(resolved, issue)
	}
	d.Resolved = resolved
	types.SortIssues(d.Unchanged)
	return d
}

func syntaxViolations(err *types.ParseError, lang source.Language) []types.Violation {
	if len(err.Lines) == 0 {
		return []types.Violation{{Rule: string(RuleSyntax), Message: fmt.Sprintf("candidate is not valid %s", lang.Title())}}
	}
	out := make([]types.Violation, 0, len(err.Lines))
	for _, line := range err.Lines {
		out = append(out, types.Violation{Rule: string(RuleSyntax), Message: fmt.Sprintf("syntax error at line %d", line)})
	}
	return out
}

func formatWeight(w float64) string {
	s := fmt.Sprintf("%.2f", w)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return s
}
