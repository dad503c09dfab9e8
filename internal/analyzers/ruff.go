package analyzers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/webspoilt/code-janitor/internal/source"
	"github.com/webspoilt/code-janitor/internal/types"
)

// ruffFinding is one entry of `ruff check --output-format json`
type ruffFinding struct {
	Code     *string `json:"code"`
	Message  string  `json:"message"`
	Filename string  `json:"filename"`
	Location struct {
		Row    int `json:"row"`
		Column int `json:"column"`
	} `json:"location"`
	EndLocation struct {
		Row    int `json:"row"`
		Column int `json:"column"`
	} `json:"end_location"`
}

// RuffAnalyzer runs the ruff linter on Python units over stdin
type RuffAnalyzer struct {
	path string
	cfg  ToolConfig
	run  commandRunner
}

// NewRuffAnalyzer creates the ruff adapter
func NewRuffAnalyzer(cfg ToolConfig) *RuffAnalyzer {
	path := cfg.RuffPath
	if path == "" {
		path = "ruff"
	}
	return &RuffAnalyzer{path: path, cfg: cfg, run: runCommand}
}

func (a *RuffAnalyzer) Name() string { return "ruff" }

func (a *RuffAnalyzer) Categories() []types.Category {
	return []types.Category{types.CategoryStyle, types.CategoryDeadCode}
}

func (a *RuffAnalyzer) Analyze(ctx context.Context, in *Input) ([]types.Issue, error) {
	if in.Unit.Language != source.LanguagePython {
		return nil, nil
	}

	ctx, cancel := withTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	out, code, err := a.run(ctx, in.Unit.Content, a.path,
		"check", "--output-format", "json", "--exit-zero", "--stdin-filename", in.Unit.ID, "-")
	if err != nil {
		return nil, err
	}
	if code > 1 {
		return nil, fmt.Errorf("ruff exited with status %d", code)
	}

	var findings []ruffFinding
	if err := json.Unmarshal(out, &findings); err != nil {
		return nil, fmt.Errorf("failed to parse ruff output: %w", err)
	}
	return normalizeRuff(in.Unit.ID, a.Name(), findings), nil
}

// normalizeRuff maps ruff's native findings into the Issue model
func normalizeRuff(unit, tool string, findings []ruffFinding) []types.Issue {
	issues := make([]types.Issue, 0, len(findings))
	for _, f := range findings {
		code := ""
		if f.Code != nil {
			code = *f.Code
		}
		cat, sev := classifyRuff(code)
		loc := types.Location{Unit: unit, StartLine: f.Location.Row, EndLine: f.EndLocation.Row}
		msg := f.Message
		if code != "" {
			msg = fmt.Sprintf("%s %s", code, f.Message)
		}
		issues = append(issues, types.NewIssue(cat, sev, loc, msg, tool).WithRule(code))
	}
	return issues
}

// classifyRuff assigns category and severity from a ruff rule code
func classifyRuff(code string) (types.Category, types.Severity) {
	switch {
	case code == "":
		// Syntax errors carry no code.
		return types.CategoryOther, types.SeverityCritical
	case strings.HasPrefix(code, "E9"), strings.HasPrefix(code, "F82"):
		return types.CategoryOther, types.SeverityCritical
	case code == "F401", code == "F841", code == "F811":
		return types.CategoryDeadCode, types.SeverityInfo
	case code == "C901":
		return types.CategoryComplexity, types.SeverityWarning
	case strings.HasPrefix(code, "S"):
		return types.CategorySecurity, types.SeverityWarning
	case strings.HasPrefix(code, "F"), strings.HasPrefix(code, "B"):
		return types.CategoryOther, types.SeverityWarning
	default:
		return types.CategoryStyle, types.SeverityInfo
	}
}
