package analyzers

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/webspoilt/code-janitor/internal/types"
)

// LintAnalyzer applies language-independent line rules: line length,
// trailing whitespace and a missing final newline.
type LintAnalyzer struct{}

func (a *LintAnalyzer) Name() string { return "lint" }

func (a *LintAnalyzer) Categories() []types.Category {
	return []types.Category{types.CategoryStyle}
}

func (a *LintAnalyzer) Analyze(ctx context.Context, in *Input) ([]types.Issue, error) {
	content := in.Unit.Content
	if len(content) == 0 {
		return nil, nil
	}

	lines := strings.Split(string(content), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	var issues []types.Issue
	maxLen := in.Thresholds.MaxLineLength
	for i, raw := range lines {
		if i%500 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		line := strings.TrimSuffix(raw, "\r")
		lineNo := i + 1

		if width := utf8.RuneCountInString(line); maxLen > 0 && width > maxLen {
			issues = append(issues, lineIssue(in, lineNo, types.CategoryStyle, types.SeverityWarning, a.Name(),
				fmt.Sprintf("line too long (%d > %d characters)", width, maxLen)).WithRule("line-too-long"))
		}
		if trimmed := strings.TrimRight(line, " \t"); trimmed != line {
			issues = append(issues, lineIssue(in, lineNo, types.CategoryStyle, types.SeverityInfo, a.Name(),
				"trailing whitespace").WithRule("trailing-whitespace"))
		}
	}

	if !bytes.HasSuffix(content, []byte("\n")) {
		issues = append(issues, lineIssue(in, len(lines), types.CategoryStyle, types.SeverityInfo, a.Name(),
			"no newline at end of file").WithRule("missing-final-newline"))
	}
	return issues, nil
}
