// Package analyzers runs independent code analyzers over a source unit and
// merges their findings into one report.
//
// Every analyzer implements the same small interface and is looked up by
// name in a Registry. The Aggregator never knows concrete analyzer types:
// it fans out over whatever the configuration enables, isolates failures,
// and normalizes the results into a types.Report.
package analyzers

import (
	"context"
	"fmt"
	"sort"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/webspoilt/code-janitor/internal/source"
	"github.com/webspoilt/code-janitor/internal/types"
)

// Thresholds are the limits analyzers compare against
type Thresholds struct {
	MaxNesting       int `yaml:"max_nesting" json:"max_nesting" validate:"gte=1,lte=20"`
	MaxFunctionLines int `yaml:"max_function_lines" json:"max_function_lines" validate:"gte=5,lte=2000"`
	MaxComplexity    int `yaml:"max_complexity" json:"max_complexity" validate:"gte=1,lte=100"`
	MaxLineLength    int `yaml:"max_line_length" json:"max_line_length" validate:"gte=40,lte=500"`
}

// DefaultThresholds returns the default analyzer limits
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxNesting:       4,
		MaxFunctionLines: 50,
		MaxComplexity:    10,
		MaxLineLength:    120,
	}
}

// Input is what every analyzer receives. Tree belongs to the analyzer for
// the duration of the call.
type Input struct {
	Unit       *source.Unit
	Tree       *source.Tree
	Thresholds Thresholds
}

// Analyzer is one independent source of findings. Implementations must not
// depend on other analyzers' output and must be safe for concurrent use.
type Analyzer interface {
	// Name is the registry key (e.g. "lint", "ruff")
	Name() string

	// Categories lists what the analyzer covers; these are marked
	// unavailable in the report when the analyzer fails.
	Categories() []types.Category

	// Analyze returns findings already normalized into the Issue model
	Analyze(ctx context.Context, in *Input) ([]types.Issue, error)
}

// Registry holds analyzers by name
type Registry struct {
	mu        sync.RWMutex
	analyzers map[string]Analyzer
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{analyzers: make(map[string]Analyzer)}
}

// Register adds an analyzer. Names must be unique.
func (r *Registry) Register(a Analyzer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	if name == "" {
		return fmt.Errorf("analyzer name cannot be empty")
	}
	if _, exists := r.analyzers[name]; exists {
		return fmt.Errorf("analyzer %q already registered", name)
	}
	r.analyzers[name] = a
	return nil
}

// Get returns the analyzer registered under name
func (r *Registry) Get(name string) (Analyzer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.analyzers[name]
	return a, ok
}

// Names returns registered analyzer names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.analyzers))
	for name := range r.analyzers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select returns the analyzers for the given names, in sorted name order.
// An empty list selects everything registered.
func (r *Registry) Select(names []string) ([]Analyzer, error) {
	if len(names) == 0 {
		names = r.Names()
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Analyzer, 0, len(sorted))
	seen := make(map[string]bool)
	for _, name := range sorted {
		if seen[name] {
			continue
		}
		seen[name] = true
		a, ok := r.analyzers[name]
		if !ok {
			return nil, fmt.Errorf("unknown analyzer %q (available: %v)", name, r.namesLocked())
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.analyzers))
	for name := range r.analyzers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewDefaultRegistry returns a registry with every built-in analyzer and
// external tool adapter registered.
func NewDefaultRegistry(tools ToolConfig) *Registry {
	r := NewRegistry()
	for _, a := range []Analyzer{
		&LintAnalyzer{},
		&SmellAnalyzer{},
		&ComplexityAnalyzer{},
		NewSecurityAnalyzer(),
		NewRuffAnalyzer(tools),
		NewBanditAnalyzer(tools),
	} {
		// Built-in names are distinct; a failure here is a programming error.
		if err := r.Register(a); err != nil {
			panic(err)
		}
	}
	return r
}

// DefaultEnabled lists the analyzers enabled when configuration is silent.
// External tools are opt-in.
func DefaultEnabled() []string {
	return []string{"complexity", "lint", "security", "smells"}
}

// newIssue builds an issue spanning a node
func newIssue(in *Input, n *sitter.Node, cat types.Category, sev types.Severity, tool, msg string) types.Issue {
	return types.NewIssue(cat, sev, types.Location{
		Unit:      in.Unit.ID,
		StartLine: source.StartLine(n),
		EndLine:   source.EndLine(n),
	}, msg, tool)
}

// lineIssue builds an issue on a single line
func lineIssue(in *Input, line int, cat types.Category, sev types.Severity, tool, msg string) types.Issue {
	return types.NewIssue(cat, sev, types.Location{Unit: in.Unit.ID, StartLine: line, EndLine: line}, msg, tool)
}
