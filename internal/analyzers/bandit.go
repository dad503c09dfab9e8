package analyzers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/webspoilt/code-janitor/internal/source"
	"github.com/webspoilt/code-janitor/internal/types"
)

// banditOutput is the document printed by `bandit -f json`
type banditOutput struct {
	Results []banditResult `json:"results"`
	Errors  []struct {
		Filename string `json:"filename"`
		Reason   string `json:"reason"`
	} `json:"errors"`
}

type banditResult struct {
	TestID          string `json:"test_id"`
	TestName        string `json:"test_name"`
	IssueSeverity   string `json:"issue_severity"`
	IssueConfidence string `json:"issue_confidence"`
	IssueText       string `json:"issue_text"`
	LineNumber      int    `json:"line_number"`
	LineRange       []int  `json:"line_range"`
}

// BanditAnalyzer runs the bandit security scanner on Python units
type BanditAnalyzer struct {
	path string
	cfg  ToolConfig
	run  commandRunner
}

// NewBanditAnalyzer creates the bandit adapter
func NewBanditAnalyzer(cfg ToolConfig) *BanditAnalyzer {
	path := cfg.BanditPath
	if path == "" {
		path = "bandit"
	}
	return &BanditAnalyzer{path: path, cfg: cfg, run: runCommand}
}

func (a *BanditAnalyzer) Name() string { return "bandit" }

func (a *BanditAnalyzer) Categories() []types.Category {
	return []types.Category{types.CategorySecurity}
}

func (a *BanditAnalyzer) Analyze(ctx context.Context, in *Input) ([]types.Issue, error) {
	if in.Unit.Language != source.LanguagePython {
		return nil, nil
	}

	ctx, cancel := withTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	out, code, err := a.run(ctx, in.Unit.Content, a.path, "-f", "json", "-q", "-")
	if err != nil {
		return nil, err
	}
	if code > 1 {
		return nil, fmt.Errorf("bandit exited with status %d", code)
	}

	var doc banditOutput
	if err := json.Unmarshal(out, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse bandit output: %w", err)
	}
	if len(doc.Errors) > 0 && len(doc.Results) == 0 {
		return nil, fmt.Errorf("bandit could not scan %s: %s", in.Unit.ID, doc.Errors[0].Reason)
	}
	return normalizeBandit(in.Unit.ID, a.Name(), doc.Results), nil
}

// normalizeBandit maps bandit results into the Issue model
func normalizeBandit(unit, tool string, results []banditResult) []types.Issue {
	issues := make([]types.Issue, 0, len(results))
	for _, r := range results {
		sev, err := types.ParseSeverity(r.IssueSeverity)
		if err != nil {
			sev = types.SeverityWarning
		}
		loc := types.Location{Unit: unit, StartLine: r.LineNumber, EndLine: r.LineNumber}
		if n := len(r.LineRange); n > 0 {
			loc.StartLine = r.LineRange[0]
			loc.EndLine = r.LineRange[n-1]
		}
		msg := strings.TrimSpace(r.IssueText)
		if r.TestName != "" {
			msg = fmt.Sprintf("%s (%s)", msg, r.TestName)
		}
		issues = append(issues, types.NewIssue(types.CategorySecurity, sev, loc, msg, tool).WithRule(r.TestID))
	}
	return issues
}
