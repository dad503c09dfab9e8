package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issueAt(cat Category, sev Severity, line int, msg string) Issue {
	return NewIssue(cat, sev, Location{Unit: "app.py", StartLine: line, EndLine: line}, msg, "test")
}

func TestNewIssueClampsLocation(t *testing.T) {
	issue := NewIssue(Category("bogus"), SeverityWarning, Location{Unit: "a.py", StartLine: 0, EndLine: -3}, "m", "lint")

	assert.Equal(t, CategoryOther, issue.Category)
	assert.Equal(t, 1, issue.Location.StartLine)
	assert.Equal(t, 1, issue.Location.EndLine)
}

func TestIssueWithHelpersReturnCopies(t *testing.T) {
	base := issueAt(CategoryComplexity, SeverityWarning, 3, "too complex")
	withMetric := base.WithMetric(12).WithSymbol("handler").WithRule("cc")

	_, ok := base.MetricValue()
	assert.False(t, ok, "original issue must not gain a metric")
	assert.Empty(t, base.Symbol)

	v, ok := withMetric.MetricValue()
	require.True(t, ok)
	assert.Equal(t, 12.0, v)
	assert.Equal(t, "handler", withMetric.Symbol)
}

func TestSeverityOrderingAndText(t *testing.T) {
	assert.True(t, SeverityInfo < SeverityWarning)
	assert.True(t, SeverityWarning < SeverityCritical)

	data, err := json.Marshal(struct {
		S Severity `json:"s"`
	}{SeverityCritical})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"critical"}`, string(data))

	tests := []struct {
		in      string
		want    Severity
		wantErr bool
	}{
		{"info", SeverityInfo, false},
		{"LOW", SeverityInfo, false},
		{"warning", SeverityWarning, false},
		{"medium", SeverityWarning, false},
		{"high", SeverityCritical, false},
		{"critical", SeverityCritical, false},
		{"fatal", SeverityInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSeverity(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewReportSortsAndDedupes(t *testing.T) {
	issues := []Issue{
		issueAt(CategoryStyle, SeverityInfo, 1, "trailing whitespace"),
		issueAt(CategoryNesting, SeverityWarning, 10, "deep"),
		issueAt(CategorySecurity, SeverityCritical, 20, "eval"),
		issueAt(CategoryLength, SeverityWarning, 10, "long"),
		issueAt(CategoryStyle, SeverityInfo, 1, "trailing whitespace"),
		issueAt(CategoryComplexity, SeverityWarning, 5, "complex"),
	}

	report := NewReport("app.py", issues, nil)

	require.Len(t, report.Issues, 5)
	got := make([]string, 0, len(report.Issues))
	for _, issue := range report.Issues {
		got = append(got, fmt.Sprintf("%s:%d:%s", issue.Severity, issue.Location.StartLine, issue.Category))
	}
	assert.Equal(t, []string{
		"critical:20:security",
		"warning:5:complexity",
		"warning:10:length",
		"warning:10:nesting",
		"info:1:style",
	}, got)

	assert.Equal(t, 1, report.Count(SeverityCritical))
	assert.Equal(t, 3, report.Count(SeverityWarning))
	assert.Equal(t, 1, report.ByCategory[CategoryStyle])
	assert.True(t, report.HasCritical())
	assert.Equal(t, "1 critical, 3 warning, 1 info", report.Summary())
}

func TestReportOrderIsIndependentOfInputOrder(t *testing.T) {
	a := []Issue{
		issueAt(CategoryStyle, SeverityWarning, 4, "b"),
		issueAt(CategoryStyle, SeverityWarning, 4, "a"),
		issueAt(CategoryDeadCode, SeverityInfo, 2, "x"),
	}
	b := []Issue{a[2], a[0], a[1]}

	assert.Equal(t, NewReport("u", a, nil).Issues, NewReport("u", b, nil).Issues)
}

func TestReportUnavailable(t *testing.T) {
	report := NewReport("u", nil, []Unavailable{
		{Category: CategorySecurity, Analyzer: "bandit", Reason: "not installed"},
		{Category: CategoryComplexity, Analyzer: "complexity", Reason: "panic"},
	})

	assert.True(t, report.IsUnavailable(CategorySecurity))
	assert.False(t, report.IsUnavailable(CategoryStyle))
	assert.Equal(t, []Category{CategoryComplexity, CategorySecurity}, report.UnavailableCategories())
}

func TestCompareMultiset(t *testing.T) {
	before := NewReport("u", []Issue{
		issueAt(CategoryStyle, SeverityInfo, 1, "trailing whitespace"),
		issueAt(CategoryStyle, SeverityInfo, 7, "trailing whitespace"),
		issueAt(CategorySecurity, SeverityCritical, 3, "eval call"),
	}, nil)
	after := NewReport("u", []Issue{
		// Same finding moved to another line is unchanged, not resolved+introduced.
		issueAt(CategoryStyle, SeverityInfo, 2, "trailing whitespace"),
		issueAt(CategoryNesting, SeverityWarning, 9, "function f nests 6 levels (max 4)"),
	}, nil)

	d := Compare(before, after)

	assert.Len(t, d.Unchanged, 1)
	require.Len(t, d.Resolved, 2)
	assert.Equal(t, SeverityCritical, d.Resolved[0].Severity)
	require.Len(t, d.Introduced, 1)
	assert.Equal(t, CategoryNesting, d.Introduced[0].Category)
	assert.Empty(t, d.NewCritical())
}

func TestFingerprintIgnoresDigits(t *testing.T) {
	a := issueAt(CategoryNesting, SeverityWarning, 3, "function f nests 5 levels (max 4)").WithSymbol("f")
	b := issueAt(CategoryNesting, SeverityWarning, 30, "function f nests 6 levels (max 4)").WithSymbol("f")
	c := issueAt(CategoryNesting, SeverityWarning, 3, "function f nests 5 levels (max 4)").WithSymbol("g")

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestCompareSeverityEscalation(t *testing.T) {
	msg := "function 'f' has cyclomatic complexity 12 (max 10)"
	before := NewReport("u", []Issue{issueAt(CategoryComplexity, SeverityWarning, 1, msg).WithSymbol("f")}, nil)
	after := NewReport("u", []Issue{
		issueAt(CategoryComplexity, SeverityCritical, 1, "function 'f' has cyclomatic complexity 23 (max 10)").WithSymbol("f"),
	}, nil)

	d := Compare(before, after)
	assert.Empty(t, d.Unchanged)
	require.Len(t, d.Resolved, 1)
	require.Len(t, d.Introduced, 1)
	require.Len(t, d.NewCritical(), 1)
	assert.False(t, d.NonWorsening(DefaultWeights()))

	// De-escalation is an improvement
	d = Compare(after, before)
	assert.Empty(t, d.NewCritical())
	assert.True(t, d.NonWorsening(DefaultWeights()))
}

func TestWeightedNonWorsening(t *testing.T) {
	w := DefaultWeights()
	require.NoError(t, w.Validate())

	// -1 critical, +1 warning: accepted under any table where critical dominates.
	d := &Delta{
		Resolved:   []Issue{issueAt(CategorySecurity, SeverityCritical, 1, "sql injection")},
		Introduced: []Issue{issueAt(CategoryNesting, SeverityWarning, 1, "deep")},
	}
	assert.True(t, d.NonWorsening(w))
	assert.Equal(t, 25.0, d.ResolvedWeight(w))
	assert.Equal(t, 5.0, d.IntroducedWeight(w))

	// -1 info, +1 warning is worse.
	d = &Delta{
		Resolved:   []Issue{issueAt(CategoryStyle, SeverityInfo, 1, "ws")},
		Introduced: []Issue{issueAt(CategoryLength, SeverityWarning, 1, "long")},
	}
	assert.False(t, d.NonWorsening(w))

	// Nothing changed is non-worsening.
	assert.True(t, (&Delta{}).NonWorsening(w))
}

func TestWeightsValidate(t *testing.T) {
	tests := []struct {
		name    string
		w       Weights
		wantErr bool
	}{
		{"default", DefaultWeights(), false},
		{"info ignored", Weights{Info: 0, Warning: 1, Critical: 10}, false},
		{"negative", Weights{Info: -1, Warning: 1, Critical: 2}, true},
		{"warning below info", Weights{Info: 5, Warning: 1, Critical: 10}, true},
		{"critical below warning", Weights{Info: 1, Warning: 10, Critical: 5}, true},
		{"all zero", Weights{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.w.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTransitions(t *testing.T) {
	legal := [][2]UnitState{
		{StateInit, StateGenerating},
		{StateInit, StateAborted},
		{StateInit, StateClean},
		{StateGenerating, StateValidating},
		{StateGenerating, StateGenerating},
		{StateGenerating, StateRolledBack},
		{StateValidating, StateAccepted},
		{StateValidating, StateRetrying},
		{StateValidating, StateRolledBack},
		{StateRetrying, StateGenerating},
		{StateRetrying, StateRolledBack},
	}
	for _, tr := range legal {
		assert.True(t, CanTransition(tr[0], tr[1]), "%s -> %s should be legal", tr[0], tr[1])
	}

	illegal := [][2]UnitState{
		{StateInit, StateAccepted},
		{StateGenerating, StateAccepted},
		{StateAccepted, StateRolledBack},
		{StateRolledBack, StateGenerating},
		{StateRetrying, StateValidating},
	}
	for _, tr := range illegal {
		assert.False(t, CanTransition(tr[0], tr[1]), "%s -> %s should be illegal", tr[0], tr[1])
	}

	for _, s := range []UnitState{StateAccepted, StateRolledBack, StateClean, StateAborted} {
		assert.True(t, s.IsTerminal())
		assert.Empty(t, transitions[s], "terminal state %s must have no outgoing transitions", s)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"analyzer", &AnalyzerError{Analyzer: "ruff", Unit: "a.py", Err: cause}, ErrAnalyzerUnavailable},
		{"parse", &ParseError{Unit: "a.py", Language: "python", Lines: []int{3}}, ErrParse},
		{"provider", &ProviderError{Provider: "openai", Kind: ProviderAuth, Err: cause}, ErrProvider},
		{"validation", &ValidationFailure{Unit: "a.py"}, ErrValidation},
		{"backup", &BackupError{Unit: "a.py", Op: "snapshot", Err: cause}, ErrBackup},
		{"max retries", &MaxRetriesError{Unit: "a.py", Attempts: 3}, ErrMaxRetries},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("processing: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.target)
		})
	}

	var perr *ProviderError
	wrapped := fmt.Errorf("outer: %w", &ProviderError{Provider: "anthropic", Kind: ProviderRateLimit, Status: 429, Err: cause})
	require.ErrorAs(t, wrapped, &perr)
	assert.True(t, perr.Retriable())
	assert.ErrorIs(t, wrapped, cause)

	assert.Contains(t, (&ParseError{Unit: "a.py", Lines: []int{3, 9}}).Error(), "line(s) 3, 9")
}
