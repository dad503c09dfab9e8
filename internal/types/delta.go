package types

import "fmt"

// Weights maps each severity to its weight in the non-worsening check.
// Zero-valued weights are legal (e.g. to ignore info issues entirely).
type Weights struct {
	Info     float64 `yaml:"info" json:"info" validate:"gte=0"`
	Warning  float64 `yaml:"warning" json:"warning" validate:"gte=0"`
	Critical float64 `yaml:"critical" json:"critical" validate:"gte=0"`
}

// DefaultWeights returns a table where critical dominates warning which
// dominates info.
func DefaultWeights() Weights {
	return Weights{Info: 1, Warning: 5, Critical: 25}
}

// Of returns the weight of one severity
func (w Weights) Of(s Severity) float64 {
	switch s {
	case SeverityCritical:
		return w.Critical
	case SeverityWarning:
		return w.Warning
	default:
		return w.Info
	}
}

// Sum returns the weighted sum of the issues
func (w Weights) Sum(issues []Issue) float64 {
	var total float64
	for _, issue := range issues {
		total += w.Of(issue.Severity)
	}
	return total
}

// Validate checks that the table keeps critical >= warning >= info
func (w Weights) Validate() error {
	if w.Info < 0 || w.Warning < 0 || w.Critical < 0 {
		return fmt.Errorf("severity weights cannot be negative (info=%v, warning=%v, critical=%v)", w.Info, w.Warning, w.Critical)
	}
	if w.Warning < w.Info {
		return fmt.Errorf("warning weight (%v) must be >= info weight (%v)", w.Warning, w.Info)
	}
	if w.Critical < w.Warning {
		return fmt.Errorf("critical weight (%v) must be >= warning weight (%v)", w.Critical, w.Warning)
	}
	if w.Critical == 0 {
		return fmt.Errorf("critical weight must be positive")
	}
	return nil
}

// Delta is the difference between a baseline report and a later one
type Delta struct {
	Resolved   []Issue `json:"resolved"`
	Introduced []Issue `json:"introduced"`
	Unchanged  []Issue `json:"unchanged"`
}

// Compare computes the delta from before to after. Issues are matched by
// fingerprint as a multiset: two identical findings before and one after
// means one resolved and one unchanged.
func Compare(before, after *Report) *Delta {
	d := &Delta{}

	remaining := make(map[string][]Issue)
	var order []string
	if before != nil {
		for _, issue := range before.Issues {
			fp := issue.Fingerprint()
			if _, ok := remaining[fp]; !ok {
				order = append(order, fp)
			}
			remaining[fp] = append(remaining[fp], issue)
		}
	}

	if after != nil {
		for _, issue := range after.Issues {
			fp := issue.Fingerprint()
			if pool := remaining[fp]; len(pool) > 0 {
				d.Unchanged = append(d.Unchanged, issue)
				remaining[fp] = pool[1:]
				continue
			}
			d.Introduced = append(d.Introduced, issue)
		}
	}

	for _, fp := range order {
		d.Resolved = append(d.Resolved, remaining[fp]...)
	}

	SortIssues(d.Resolved)
	SortIssues(d.Introduced)
	SortIssues(d.Unchanged)
	return d
}

// NewCritical returns introduced issues with critical severity
func (d *Delta) NewCritical() []Issue {
	if d == nil {
		return nil
	}
	var out []Issue
	for _, issue := range d.Introduced {
		if issue.Severity == SeverityCritical {
			out = append(out, issue)
		}
	}
	return out
}

// ResolvedWeight returns the weighted sum of resolved issues
func (d *Delta) ResolvedWeight(w Weights) float64 {
	if d == nil {
		return 0
	}
	return w.Sum(d.Resolved)
}

// IntroducedWeight returns the weighted sum of introduced issues
func (d *Delta) IntroducedWeight(w Weights) float64 {
	if d == nil {
		return 0
	}
	return w.Sum(d.Introduced)
}

// NonWorsening reports whether resolved >= introduced by weighted sum
func (d *Delta) NonWorsening(w Weights) bool {
	return d.ResolvedWeight(w) >= d.IntroducedWeight(w)
}

func (d *Delta) String() string {
	if d == nil {
		return "no delta"
	}
	return fmt.Sprintf("%d resolved, %d introduced, %d unchanged", len(d.Resolved), len(d.Introduced), len(d.Unchanged))
}
