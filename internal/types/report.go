package types

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Unavailable records a category that could not be analyzed because an
// analyzer covering it failed.
type Unavailable struct {
	Category Category `json:"category"`
	Analyzer string   `json:"analyzer"`
	Reason   string   `json:"reason"`
}

// Report is the merged, deduplicated set of issues for one unit at one
// point in time.
type Report struct {
	Unit        string           `json:"unit"`
	Language    string           `json:"language,omitempty"`
	Issues      []Issue          `json:"issues"`
	ByCategory  map[Category]int `json:"by_category"`
	BySeverity  map[string]int   `json:"by_severity"`
	Unavailable []Unavailable    `json:"unavailable,omitempty"`
	Analyzers   []string         `json:"analyzers"`
	CreatedAt   time.Time        `json:"created_at"`
}

// NewReport builds a report from raw issues: duplicates are dropped, the
// remaining issues are sorted and counts are derived.
func NewReport(unit string, issues []Issue, unavailable []Unavailable) *Report {
	seen := make(map[string]bool, len(issues))
	merged := make([]Issue, 0, len(issues))
	for _, issue := range issues {
		key := issue.dedupeKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, issue)
	}
	SortIssues(merged)

	unavail := append([]Unavailable(nil), unavailable...)
	sort.Slice(unavail, func(i, j int) bool {
		if unavail[i].Category != unavail[j].Category {
			return unavail[i].Category < unavail[j].Category
		}
		return unavail[i].Analyzer < unavail[j].Analyzer
	})

	r := &Report{
		Unit:        unit,
		Issues:      merged,
		ByCategory:  make(map[Category]int),
		BySeverity:  make(map[string]int),
		Unavailable: unavail,
		CreatedAt:   time.Now(),
	}
	for _, issue := range merged {
		r.ByCategory[issue.Category]++
		r.BySeverity[issue.Severity.String()]++
	}
	return r
}

// SortIssues orders issues by severity descending, then location, then
// category name. Message and tool break remaining ties so output is stable.
func SortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if c := a.Location.Compare(b.Location); c != 0 {
			return c < 0
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Message != b.Message {
			return a.Message < b.Message
		}
		return a.SourceTool < b.SourceTool
	})
}

// Total returns the number of issues in the report
func (r *Report) Total() int {
	if r == nil {
		return 0
	}
	return len(r.Issues)
}

// Count returns the number of issues with the given severity
func (r *Report) Count(s Severity) int {
	if r == nil {
		return 0
	}
	return r.BySeverity[s.String()]
}

// HasCritical reports whether any critical issue is present
func (r *Report) HasCritical() bool {
	return r.Count(SeverityCritical) > 0
}

// IsUnavailable reports whether the category could not be analyzed
func (r *Report) IsUnavailable(c Category) bool {
	if r == nil {
		return false
	}
	for _, u := range r.Unavailable {
		if u.Category == c {
			return true
		}
	}
	return false
}

// UnavailableCategories returns the distinct unavailable categories in sorted order
func (r *Report) UnavailableCategories() []Category {
	if r == nil {
		return nil
	}
	seen := make(map[Category]bool)
	var out []Category
	for _, u := range r.Unavailable {
		if !seen[u.Category] {
			seen[u.Category] = true
			out = append(out, u.Category)
		}
	}
	return out
}

// Filter returns the issues matching the predicate, preserving order
func (r *Report) Filter(keep func(Issue) bool) []Issue {
	if r == nil {
		return nil
	}
	var out []Issue
	for _, issue := range r.Issues {
		if keep(issue) {
			out = append(out, issue)
		}
	}
	return out
}

// Summary renders the severity counts as "2 critical, 1 warning, 0 info"
func (r *Report) Summary() string {
	parts := make([]string, 0, len(AllSeverities))
	for _, s := range AllSeverities {
		parts = append(parts, strconv.Itoa(r.Count(s))+" "+s.String())
	}
	return strings.Join(parts, ", ")
}
