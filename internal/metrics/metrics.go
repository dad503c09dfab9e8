// Package metrics exposes janitor activity as Prometheus metrics. A Metrics
// value plugs into the aggregator, the refactor client and the controller
// as their observer.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/webspoilt/code-janitor/internal/types"
)

const namespace = "janitor"

// Metrics holds every collector on its own registry
type Metrics struct {
	registry *prometheus.Registry

	// analyzerDuration measures one analyzer run.
	// Labels: analyzer, status (ok, error)
	analyzerDuration *prometheus.HistogramVec

	// issuesFound counts issues in reports.
	// Labels: severity, category
	issuesFound *prometheus.CounterVec

	// providerDuration measures one provider request.
	// Labels: provider, status (ok or a provider error kind)
	providerDuration *prometheus.HistogramVec

	// attempts counts refactor attempts.
	// Labels: provider, verdict
	attempts *prometheus.CounterVec

	// outcomes counts terminal unit states.
	// Labels: state
	outcomes *prometheus.CounterVec

	// unitDuration measures a unit from baseline to terminal state
	unitDuration prometheus.Histogram
}

// New creates the collectors. withRuntime adds the Go and process
// collectors, used by the HTTP server.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		analyzerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analyzer",
			Name:      "duration_seconds",
			Help:      "Analyzer run latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"analyzer", "status"}),
		issuesFound: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analyzer",
			Name:      "issues_total",
			Help:      "Issues reported by analysis",
		}, []string{"severity", "category"}),
		providerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "AI provider request latency in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"provider", "status"}),
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refactor",
			Name:      "attempts_total",
			Help:      "Refactor attempts by verdict",
		}, []string{"provider", "verdict"}),
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refactor",
			Name:      "units_total",
			Help:      "Units by terminal state",
		}, []string{"state"}),
		unitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refactor",
			Name:      "unit_duration_seconds",
			Help:      "Time from baseline analysis to terminal state",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
}

// Registry returns the registry for HTTP exposition
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveAnalyzer implements analyzers.Observer
func (m *Metrics) ObserveAnalyzer(name string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.analyzerDuration.WithLabelValues(name, status).Observe(d.Seconds())
}

// ObserveReport counts a report's issues
func (m *Metrics) ObserveReport(r *types.Report) {
	if r == nil {
		return
	}
	for _, issue := range r.Issues {
		m.issuesFound.WithLabelValues(issue.Severity.String(), string(issue.Category)).Inc()
	}
}

// ObserveProviderCall implements ai.Observer
func (m *Metrics) ObserveProviderCall(provider string, d time.Duration, err *types.ProviderError) {
	status := "ok"
	if err != nil {
		status = string(err.Kind)
	}
	m.providerDuration.WithLabelValues(provider, status).Observe(d.Seconds())
}

// ObserveAttempt implements refactor.Observer
func (m *Metrics) ObserveAttempt(provider string, verdict types.Verdict, d time.Duration) {
	m.attempts.WithLabelValues(provider, string(verdict)).Inc()
}

// ObserveOutcome implements refactor.Observer
func (m *Metrics) ObserveOutcome(state types.UnitState, d time.Duration) {
	m.outcomes.WithLabelValues(string(state)).Inc()
	m.unitDuration.Observe(d.Seconds())
}

// WriteTextfile writes the current values in the text exposition format,
// for node_exporter's textfile collector
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return errors.New("metrics output path is required")
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
