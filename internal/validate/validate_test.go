package validate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webspoilt/code-janitor/internal/analyzers"
	"github.com/webspoilt/code-janitor/internal/source"
	"github.com/webspoilt/code-janitor/internal/types"
)

func newAggregator(t *testing.T) *analyzers.Aggregator {
	t.Helper()
	agg, err := analyzers.NewAggregator(&analyzers.Config{
		Registry: analyzers.NewDefaultRegistry(analyzers.DefaultToolConfig()),
		Enabled:  analyzers.DefaultEnabled(),
	})
	require.NoError(t, err)
	return agg
}

func newValidator(t *testing.T, an Analyzer, protected ...string) *Validator {
	t.Helper()
	v, err := New(&Config{Analyzer: an, Protected: protected, ProtectPublic: true})
	require.NoError(t, err)
	return v
}

// baseline analyzes the original and computes its protected set
func baseline(t *testing.T, v *Validator, an Analyzer, unit *source.Unit) (*types.Report, []string) {
	t.Helper()
	report, err := an.Analyze(context.Background(), unit)
	require.NoError(t, err)
	protected, err := v.ProtectedSymbols(context.Background(), unit)
	require.NoError(t, err)
	return report, protected
}

const original = `def run(expr):
    return eval(expr)


def _helper():
    return 1
`

func TestResolvedCriticalOutweighsNewWarning(t *testing.T) {
	agg := newAggregator(t)
	v := newValidator(t, agg)
	unit := source.FromBytes("calc.py", source.LanguageUnknown, []byte(original))
	base, protected := baseline(t, v, agg, unit)
	require.Equal(t, 1, base.Count(types.SeverityCritical))

	candidate := "import ast\n\n\ndef run(expr):\n    return ast.literal_eval(expr)  # " + strings.Repeat("x", 120) +
		"\n\n\ndef _helper():\n    return 1\n"

	verdict, err := v.Validate(context.Background(), unit, base, []byte(candidate), protected)
	require.NoError(t, err)
	assert.True(t, verdict.Accepted, "violations: %v", verdict.Violations)
	assert.Empty(t, verdict.Violations)
	require.Len(t, verdict.Delta.Resolved, 1)
	assert.Equal(t, types.SeverityCritical, verdict.Delta.Resolved[0].Severity)
	require.Len(t, verdict.Delta.Introduced, 1)
	assert.Equal(t, types.SeverityWarning, verdict.Delta.Introduced[0].Severity)
	assert.NoError(t, verdict.Err("calc.py"))
	require.Len(t, verdict.Results, len(Rules))
	for _, r := range verdict.Results {
		assert.True(t, r.Passed, r.Rule)
	}
}

// branchy returns a Python function with n sequential if statements, so its
// cyclomatic complexity is n+1 while nesting stays at one level
func branchy(n int) string {
	var b strings.Builder
	b.WriteString("def f(x):\n    y = 0\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "    if x == %d:\n        y += %d\n", i, i)
	}
	b.WriteString("    return y\n")
	return b.String()
}

func hasViolation(verdict *Verdict, rule Rule) bool {
	for _, v := range verdict.Violations {
		if v.Rule == string(rule) {
			return true
		}
	}
	return false
}

func TestEscalatedSeverityIsNewCritical(t *testing.T) {
	agg := newAggregator(t)
	v := newValidator(t, agg)
	unit := source.FromBytes("branchy.py", source.LanguageUnknown, []byte(branchy(11)))
	base, protected := baseline(t, v, agg, unit)
	require.Equal(t, 1, base.Count(types.SeverityWarning))
	require.Equal(t, 0, base.Count(types.SeverityCritical))

	verdict, err := v.Validate(context.Background(), unit, base, []byte(branchy(22)), protected)
	require.NoError(t, err)
	require.NotNil(t, verdict.Report)
	require.Equal(t, 1, verdict.Report.Count(types.SeverityCritical))

	assert.False(t, verdict.Accepted)
	assert.True(t, hasViolation(verdict, RuleNoNewCritical), "violations: %v", verdict.Violations)
	assert.True(t, hasViolation(verdict, RuleNonWorsening), "violations: %v", verdict.Violations)
	assert.Empty(t, verdict.Delta.Unchanged)
	require.Len(t, verdict.Delta.NewCritical(), 1)
	assert.Equal(t, types.CategoryComplexity, verdict.Delta.NewCritical()[0].Category)
}

const injectable = `def lookup(cursor, name):
    cursor.execute("SELECT * FROM users WHERE name = '" + name + "'")
    return cursor.fetchall()
`

func TestResolvedInjectionOutweighsDeeperNesting(t *testing.T) {
	agg := newAggregator(t)
	v := newValidator(t, agg)
	unit := source.FromBytes("users.py", source.LanguageUnknown, []byte(injectable))
	base, protected := baseline(t, v, agg, unit)
	require.Equal(t, 1, base.Count(types.SeverityCritical))
	require.Equal(t, types.CategorySecurity, base.Issues[0].Category)

	candidate := `def lookup(cursor, name):
    if name:
        for attempt in range(3):
            while attempt >= 0:
                if cursor is not None:
                    if len(name) < 256:
                        cursor.execute("SELECT * FROM users WHERE name = ?", (name,))
                        return cursor.fetchall()
                attempt -= 1
    return []
`
	verdict, err := v.Validate(context.Background(), unit, base, []byte(candidate), protected)
	require.NoError(t, err)
	assert.True(t, verdict.Accepted, "violations: %v", verdict.Violations)
	require.Len(t, verdict.Delta.Resolved, 1)
	assert.Equal(t, "sql-injection", verdict.Delta.Resolved[0].Rule)
	require.Len(t, verdict.Delta.Introduced, 1)
	assert.Equal(t, types.CategoryNesting, verdict.Delta.Introduced[0].Category)
	assert.Equal(t, types.SeverityWarning, verdict.Delta.Introduced[0].Severity)
}

func TestDeletedPublicFunctionRejected(t *testing.T) {
	agg := newAggregator(t)
	v := newValidator(t, agg)
	unit := source.FromBytes("calc.py", source.LanguageUnknown, []byte(original))
	base, protected := baseline(t, v, agg, unit)
	assert.Equal(t, []string{"run"}, protected)

	candidate := "def _helper():\n    return 1\n"
	verdict, err := v.Validate(context.Background(), unit, base, []byte(candidate), protected)
	require.NoError(t, err)
	assert.False(t, verdict.Accepted)
	require.Len(t, verdict.Violations, 1)
	assert.Equal(t, string(RuleProtectedSymbols), verdict.Violations[0].Rule)
	assert.Equal(t, "protected symbol `run` was removed", verdict.Violations[0].Message)

	err = verdict.Err("calc.py")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestConfiguredPrivateSymbolProtected(t *testing.T) {
	agg := newAggregator(t)
	v := newValidator(t, agg, "_helper", "not_in_original")
	unit := source.FromBytes("calc.py", source.LanguageUnknown, []byte(original))
	base, protected := baseline(t, v, agg, unit)
	assert.Equal(t, []string{"_helper", "run"}, protected)

	candidate := "import ast\n\n\ndef run(expr):\n    return ast.literal_eval(expr)\n"
	verdict, err := v.Validate(context.Background(), unit, base, []byte(candidate), protected)
	require.NoError(t, err)
	assert.False(t, verdict.Accepted)
	require.Len(t, verdict.Violations, 1)
	assert.Contains(t, verdict.Violations[0].Message, "`_helper`")
}

func TestSyntaxErrorRejectsAndSkipsRemainingRules(t *testing.T) {
	agg := newAggregator(t)
	v := newValidator(t, agg)
	unit := source.FromBytes("calc.py", source.LanguageUnknown, []byte(original))
	base, protected := baseline(t, v, agg, unit)

	verdict, err := v.Validate(context.Background(), unit, base, []byte("def run(expr:\n    return 1\n"), protected)
	require.NoError(t, err)
	assert.False(t, verdict.Accepted)
	assert.Nil(t, verdict.Report)
	require.NotEmpty(t, verdict.Violations)
	assert.Equal(t, string(RuleSyntax), verdict.Violations[0].Rule)
	assert.Contains(t, verdict.Violations[0].Message, "syntax error at line")

	require.Len(t, verdict.Results, len(Rules))
	assert.False(t, verdict.Results[0].Passed)
	for _, r := range verdict.Results[1:] {
		assert.True(t, r.Skipped, r.Rule)
	}
}

// fakeAnalyzer returns a scripted report for any unit
type fakeAnalyzer struct {
	report *types.Report
	err    error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, unit *source.Unit) (*types.Report, error) {
	return f.report, f.err
}

func issue(sev types.Severity, cat types.Category, line int, msg string) types.Issue {
	return types.NewIssue(cat, sev, types.Location{Unit: "a.py", StartLine: line}, msg, "fake")
}

func TestRules(t *testing.T) {
	warning := issue(types.SeverityWarning, types.CategoryNesting, 3, "nesting depth 5 exceeds 4")
	info := issue(types.SeverityInfo, types.CategoryStyle, 1, "trailing whitespace")
	critical := issue(types.SeverityCritical, types.CategorySecurity, 2, "dangerous use of eval()")

	tests := []struct {
		name      string
		weights   types.Weights
		baseline  []types.Issue
		candidate []types.Issue
		accepted  bool
		rules     []string
	}{
		{
			name:      "unchanged is accepted",
			baseline:  []types.Issue{warning},
			candidate: []types.Issue{warning},
			accepted:  true,
		},
		{
			name:      "new critical rejected even when weights balance",
			weights:   types.Weights{Info: 1, Warning: 25, Critical: 25},
			baseline:  []types.Issue{warning},
			candidate: []types.Issue{critical},
			rules:     []string{string(RuleNoNewCritical)},
		},
		{
			name:      "worse score rejected",
			baseline:  []types.Issue{info},
			candidate: []types.Issue{warning},
			rules:     []string{string(RuleNonWorsening)},
		},
		{
			name:      "info ignored when weighted zero",
			weights:   types.Weights{Info: 0, Warning: 5, Critical: 25},
			baseline:  nil,
			candidate: []types.Issue{info},
			accepted:  true,
		},
		{
			name:      "info counts by default",
			baseline:  nil,
			candidate: []types.Issue{info},
			rules:     []string{string(RuleNonWorsening)},
		},
		{
			name:      "escalation to critical is a new critical issue",
			baseline:  []types.Issue{issue(types.SeverityWarning, types.CategoryComplexity, 1, "function 'f' has cyclomatic complexity 12 (max 10)")},
			candidate: []types.Issue{issue(types.SeverityCritical, types.CategoryComplexity, 1, "function 'f' has cyclomatic complexity 23 (max 10)")},
			rules:     []string{string(RuleNoNewCritical), string(RuleNonWorsening)},
		},
		{
			name:      "line shift alone is unchanged",
			baseline:  []types.Issue{warning},
			candidate: []types.Issue{issue(types.SeverityWarning, types.CategoryNesting, 9, "nesting depth 6 exceeds 4")},
			accepted:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			an := &fakeAnalyzer{report: types.NewReport("a.py", tt.candidate, nil)}
			v, err := New(&Config{Analyzer: an, Weights: tt.weights})
			require.NoError(t, err)

			unit := source.FromBytes("a.py", source.LanguageUnknown, []byte("x = 1\n"))
			verdict, err := v.Validate(context.Background(), unit, types.NewReport("a.py", tt.baseline, nil), []byte("x = 2\n"), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.accepted, verdict.Accepted)

			var rules []string
			for _, viol := range verdict.Violations {
				rules = append(rules, viol.Rule)
			}
			assert.Equal(t, tt.rules, rules)
		})
	}
}

func TestUnavailableCategoryIsNotResolved(t *testing.T) {
	warning := issue(types.SeverityWarning, types.CategorySecurity, 3, "os.system() runs a shell command")
	candidate := types.NewReport("a.py", nil, []types.Unavailable{
		{Category: types.CategorySecurity, Analyzer: "security", Reason: "panic"},
	})
	v, err := New(&Config{Analyzer: &fakeAnalyzer{report: candidate}})
	require.NoError(t, err)

	unit := source.FromBytes("a.py", source.LanguageUnknown, []byte("x = 1\n"))
	verdict, err := v.Validate(context.Background(), unit, types.NewReport("a.py", []types.Issue{warning}, nil), []byte("x = 2\n"), nil)
	require.NoError(t, err)
	assert.Empty(t, verdict.Delta.Resolved)
	assert.Len(t, verdict.Delta.Unchanged, 1)
}

func TestAnalyzerFailureIsError(t *testing.T) {
	v, err := New(&Config{Analyzer: &fakeAnalyzer{err: context.Canceled}})
	require.NoError(t, err)

	unit := source.FromBytes("a.py", source.LanguageUnknown, []byte("x = 1\n"))
	_, err = v.Validate(context.Background(), unit, nil, []byte("x = 2\n"), nil)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(&Config{})
	assert.Error(t, err)

	_, err = New(&Config{Analyzer: &fakeAnalyzer{}, Weights: types.Weights{Info: 5, Warning: 1, Critical: 25}})
	assert.Error(t, err)
}
