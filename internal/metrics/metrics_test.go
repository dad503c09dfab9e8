package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webspoilt/code-janitor/internal/types"
)

func TestObservers(t *testing.T) {
	m := New(false)

	m.ObserveAttempt("anthropic", types.VerdictRejected, time.Second)
	m.ObserveAttempt("anthropic", types.VerdictAccepted, time.Second)
	m.ObserveAttempt("anthropic", types.VerdictAccepted, time.Second)
	m.ObserveOutcome(types.StateAccepted, 3*time.Second)
	m.ObserveProviderCall("anthropic", time.Second, nil)
	m.ObserveProviderCall("anthropic", time.Second, &types.ProviderError{Kind: types.ProviderTimeout})
	m.ObserveAnalyzer("lint", time.Millisecond, nil)
	m.ObserveAnalyzer("ruff", time.Millisecond, errors.New("not installed"))

	report := types.NewReport("a.py", []types.Issue{
		types.NewIssue(types.CategorySecurity, types.SeverityCritical, types.Location{Unit: "a.py", StartLine: 1}, "eval", "security"),
		types.NewIssue(types.CategoryStyle, types.SeverityInfo, types.Location{Unit: "a.py", StartLine: 2}, "trailing whitespace", "lint"),
	}, nil)
	m.ObserveReport(report)
	m.ObserveReport(nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.attempts.WithLabelValues("anthropic", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("anthropic", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("ACCEPTED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.issuesFound.WithLabelValues("critical", "security")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.providerDuration))
	assert.Equal(t, 2, testutil.CollectAndCount(m.analyzerDuration))
}

func TestWriteTextfile(t *testing.T) {
	m := New(false)
	m.ObserveOutcome(types.StateRolledBack, time.Second)

	path := filepath.Join(t.TempDir(), "janitor.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `janitor_refactor_units_total{state="ROLLED_BACK"} 1`)

	assert.Error(t, m.WriteTextfile(""))
}
