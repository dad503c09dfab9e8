package types

import (
	"fmt"
	"strings"
	"unicode"
)

// Category classifies what kind of problem an Issue describes
type Category string

const (
	CategoryStyle      Category = "style"
	CategorySecurity   Category = "security"
	CategoryComplexity Category = "complexity"
	CategoryDeadCode   Category = "dead-code"
	CategoryNesting    Category = "nesting"
	CategoryLength     Category = "length"
	CategoryOther      Category = "other"
)

// AllCategories lists every category in display order
var AllCategories = []Category{
	CategoryStyle,
	CategorySecurity,
	CategoryComplexity,
	CategoryDeadCode,
	CategoryNesting,
	CategoryLength,
	CategoryOther,
}

// IsValid checks if the category value is valid
func (c Category) IsValid() bool {
	switch c {
	case CategoryStyle, CategorySecurity, CategoryComplexity, CategoryDeadCode,
		CategoryNesting, CategoryLength, CategoryOther:
		return true
	}
	return false
}

// Severity is ordered: SeverityInfo < SeverityWarning < SeverityCritical
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

// AllSeverities lists severities from most to least severe
var AllSeverities = []Severity{SeverityCritical, SeverityWarning, SeverityInfo}

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	return s >= SeverityInfo && s <= SeverityCritical
}

// ParseSeverity converts a severity name into a Severity
func ParseSeverity(name string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "info", "low":
		return SeverityInfo, nil
	case "warning", "warn", "medium":
		return SeverityWarning, nil
	case "critical", "error", "high":
		return SeverityCritical, nil
	}
	return SeverityInfo, fmt.Errorf("unknown severity: %q", name)
}

// MarshalText renders the severity by name so reports and configs stay readable
func (s Severity) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid severity: %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText parses a severity name
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Location identifies a line range within a source unit (1-based, inclusive)
type Location struct {
	Unit      string `json:"unit"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

func (l Location) String() string {
	if l.EndLine > l.StartLine {
		return fmt.Sprintf("%s:%d-%d", l.Unit, l.StartLine, l.EndLine)
	}
	return fmt.Sprintf("%s:%d", l.Unit, l.StartLine)
}

// Compare orders locations by unit, then start line, then end line
func (l Location) Compare(other Location) int {
	if c := strings.Compare(l.Unit, other.Unit); c != 0 {
		return c
	}
	if l.StartLine != other.StartLine {
		if l.StartLine < other.StartLine {
			return -1
		}
		return 1
	}
	if l.EndLine != other.EndLine {
		if l.EndLine < other.EndLine {
			return -1
		}
		return 1
	}
	return 0
}

// Issue is one normalized finding from any analyzer. Issues are values and
// are never modified after NewIssue returns them; the With* helpers return
// copies.
type Issue struct {
	Category   Category `json:"category"`
	Severity   Severity `json:"severity"`
	Location   Location `json:"location"`
	Message    string   `json:"message"`
	SourceTool string   `json:"source_tool"`
	Rule       string   `json:"rule,omitempty"`   // Tool rule code (e.g. "F401", "sql-injection")
	Symbol     string   `json:"symbol,omitempty"` // Enclosing function or class, if known
	Metric     *float64 `json:"metric,omitempty"` // e.g. cyclomatic complexity score
}

// NewIssue creates an issue, clamping the line range so that EndLine >= StartLine >= 1
func NewIssue(category Category, severity Severity, loc Location, message, sourceTool string) Issue {
	if loc.StartLine < 1 {
		loc.StartLine = 1
	}
	if loc.EndLine < loc.StartLine {
		loc.EndLine = loc.StartLine
	}
	if !category.IsValid() {
		category = CategoryOther
	}
	return Issue{
		Category:   category,
		Severity:   severity,
		Location:   loc,
		Message:    message,
		SourceTool: sourceTool,
	}
}

// WithRule returns a copy of the issue carrying a rule code
func (i Issue) WithRule(rule string) Issue {
	i.Rule = rule
	return i
}

// WithSymbol returns a copy of the issue carrying its enclosing symbol
func (i Issue) WithSymbol(symbol string) Issue {
	i.Symbol = symbol
	return i
}

// WithMetric returns a copy of the issue carrying a numeric metric
func (i Issue) WithMetric(value float64) Issue {
	v := value
	i.Metric = &v
	return i
}

// MetricValue returns the metric and whether one is set
func (i Issue) MetricValue() (float64, bool) {
	if i.Metric == nil {
		return 0, false
	}
	return *i.Metric, true
}

// Fingerprint identifies "the same problem" across two versions of a unit.
// Line numbers are deliberately excluded since a rewrite shifts them, and
// digits are stripped from the message so "depth 5" and "depth 6" of the
// same function still match. Severity is part of the identity: an issue that
// escalates from warning to critical is the old one resolved and a new one
// introduced.
func (i Issue) Fingerprint() string {
	msg := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return '#'
		}
		return r
	}, i.Message)
	return strings.Join([]string{string(i.Category), i.Severity.String(), i.SourceTool, i.Rule, i.Symbol, msg}, "|")
}

// dedupeKey identifies exact duplicates within one report
func (i Issue) dedupeKey() string {
	return fmt.Sprintf("%s|%s|%d|%d|%s", i.Category, i.Location.Unit, i.Location.StartLine, i.Location.EndLine, i.Message)
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s] %s %s: %s (%s)", i.Severity, i.Category, i.Location, i.Message, i.SourceTool)
}
