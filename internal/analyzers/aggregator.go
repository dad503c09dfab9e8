package analyzers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/webspoilt/code-janitor/internal/source"
	"github.com/webspoilt/code-janitor/internal/types"
	"golang.org/x/sync/errgroup"
)

// Observer receives per-analyzer timing and failures (e.g. for metrics)
type Observer interface {
	ObserveAnalyzer(name string, duration time.Duration, err error)
}

// Config holds aggregator configuration
type Config struct {
	Registry   *Registry
	Enabled    []string // Analyzer names; empty means DefaultEnabled()
	Thresholds Thresholds
	Logger     *slog.Logger // Optional (default: slog.Default())
	Observer   Observer     // Optional
}

// Aggregator runs the enabled analyzers over a unit and merges their output
type Aggregator struct {
	analyzers  []Analyzer
	thresholds Thresholds
	logger     *slog.Logger
	observer   Observer
}

// NewAggregator creates an aggregator over the enabled analyzers
func NewAggregator(cfg *Config) (*Aggregator, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("analyzer registry is required")
	}
	enabled := cfg.Enabled
	if len(enabled) == 0 {
		enabled = DefaultEnabled()
	}
	selected, err := cfg.Registry.Select(enabled)
	if err != nil {
		return nil, err
	}

	thresholds := cfg.Thresholds
	if thresholds == (Thresholds{}) {
		thresholds = DefaultThresholds()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Aggregator{
		analyzers:  selected,
		thresholds: thresholds,
		logger:     logger,
		observer:   cfg.Observer,
	}, nil
}

// Analyzers returns the names of the enabled analyzers
func (a *Aggregator) Analyzers() []string {
	names := make([]string, 0, len(a.analyzers))
	for _, an := range a.analyzers {
		names = append(names, an.Name())
	}
	return names
}

// Analyze parses the unit and runs every enabled analyzer over it.
//
// A unit that does not parse returns a *types.ParseError and no report.
// An analyzer that errors or panics is isolated: its categories are marked
// unavailable and the other analyzers' findings are kept.
func (a *Aggregator) Analyze(ctx context.Context, unit *source.Unit) (*types.Report, error) {
	if err := source.Check(ctx, unit); err != nil {
		return nil, err
	}

	type result struct {
		issues []types.Issue
		err    error
	}
	results := make([]result, len(a.analyzers))

	// Tree-sitter trees are not safe for concurrent use, so each analyzer
	// parses its own copy. The group never cancels siblings: each goroutine
	// records its own failure and returns nil.
	var g errgroup.Group
	for i, an := range a.analyzers {
		g.Go(func() error {
			start := time.Now()
			issues, err := a.run(ctx, an, unit)
			if a.observer != nil {
				a.observer.ObserveAnalyzer(an.Name(), time.Since(start), err)
			}
			results[i] = result{issues: issues, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis of %s canceled: %w", unit.ID, err)
	}

	var issues []types.Issue
	var unavailable []types.Unavailable
	var ran []string
	for i, an := range a.analyzers {
		res := results[i]
		if res.err != nil {
			a.logger.Warn("analyzer unavailable", "analyzer", an.Name(), "unit", unit.ID, "error", res.err)
			for _, cat := range an.Categories() {
				unavailable = append(unavailable, types.Unavailable{
					Category: cat,
					Analyzer: an.Name(),
					Reason:   res.err.Error(),
				})
			}
			continue
		}
		ran = append(ran, an.Name())
		issues = append(issues, res.issues...)
	}

	report := types.NewReport(unit.ID, issues, unavailable)
	report.Language = string(unit.Language)
	report.Analyzers = ran

	a.logger.Debug("analysis complete", "unit", unit.ID, "issues", report.Total(),
		"summary", report.Summary(), "unavailable", len(unavailable))
	return report, nil
}

// run parses the unit and invokes one analyzer, converting errors and
// panics into *types.AnalyzerError
func (a *Aggregator) run(ctx context.Context, an Analyzer, unit *source.Unit) (issues []types.Issue, err error) {
	defer func() {
		if r := recover(); r != nil {
			issues = nil
			err = &types.AnalyzerError{Analyzer: an.Name(), Unit: unit.ID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	tree, err := source.Parse(ctx, unit)
	if err != nil {
		return nil, &types.AnalyzerError{Analyzer: an.Name(), Unit: unit.ID, Err: err}
	}
	defer tree.Close()

	issues, err = an.Analyze(ctx, &Input{Unit: unit, Tree: tree, Thresholds: a.thresholds})
	if err != nil {
		return nil, &types.AnalyzerError{Analyzer: an.Name(), Unit: unit.ID, Err: err}
	}
	return issues, nil
}
