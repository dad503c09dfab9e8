// Package prompt renders refactoring requests for the AI provider.
//
// Rendering is a pure function of its Input: issues are taken in report
// order, lists are pre-sorted and nothing time-dependent is included, so the
// same input always yields byte-identical output.
package prompt

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/webspoilt/code-janitor/internal/source"
	"github.com/webspoilt/code-janitor/internal/types"
)

// Request is a rendered prompt pair
type Request struct {
	System string
	User   string
}

// Feedback describes what was wrong with the previous attempt
type Feedback struct {
	Candidate     string            // Previous candidate source; empty after a provider error
	Violations    []types.Violation // Safety rules the candidate broke
	Introduced    []types.Issue     // Issues the candidate added
	Unresolved    []types.Issue     // Baseline issues the candidate left in place
	ProviderError string            // Set when the previous attempt never produced a candidate
}

// Empty reports whether there is nothing to tell the model
func (f *Feedback) Empty() bool {
	return f == nil || (f.Candidate == "" && len(f.Violations) == 0 &&
		len(f.Introduced) == 0 && len(f.Unresolved) == 0 && f.ProviderError == "")
}

// FeedbackFrom derives feedback from a finished attempt
func FeedbackFrom(a *types.Attempt) *Feedback {
	if a == nil {
		return nil
	}
	f := &Feedback{Violations: a.Violations}
	if a.Candidate != nil {
		f.Candidate = *a.Candidate
	}
	if a.Delta != nil {
		f.Introduced = a.Delta.Introduced
		f.Unresolved = a.Delta.Unchanged
	}
	if a.Verdict == types.VerdictProviderError {
		f.ProviderError = a.Error
	}
	return f
}

// Input is everything a prompt is rendered from
type Input struct {
	Unit        *source.Unit
	Report      *types.Report // Baseline report for the unit
	Protected   []string      // Symbols the candidate must keep
	Attempt     int           // 1-based
	MaxAttempts int
	Feedback    *Feedback // nil on the first attempt
}

const systemTemplate = `You are an expert {{.Language}} engineer and code quality specialist. Refactor the file you are given.

Goals:
1. Fix the security problems listed in the report (injection, hardcoded secrets, dangerous calls).
2. Reduce deep nesting, long functions and high cyclomatic complexity.
3. Remove dead code and unused imports.

Constraints:
- Return the complete file in one ` + "```" + `{{.Tag}} code block. No explanations outside the block.
- Preserve behavior and keep the existing imports unless they are unused.
- Do not remove or rename public functions, classes or methods.
{{- if .Protected}}
- These symbols must still be defined: {{join .Protected ", "}}
{{- end}}
- Never introduce new issues. A rewrite that adds a critical finding is rejected.
- If the intent of a piece of code is unclear, leave it unchanged.
`

const userTemplate = `## Static Analysis Report

{{.UnitID}}: {{.Summary}}
{{range .Issues}}
- {{issue .}}
{{- else}}
No issues detected.
{{- end}}
{{- if .Unavailable}}

Not analyzed: {{join .Unavailable ", "}}
{{- end}}

## Original Code

{{.Fence}}{{.Tag}}
{{.Code}}
{{.Fence}}
{{- if .Feedback}}
{{- if .Feedback.Candidate}}

## Previous Attempt

{{.PrevFence}}{{.Tag}}
{{.Feedback.Candidate | trimNewline}}
{{.PrevFence}}
{{- end}}

## Validation Errors
{{if .Feedback.ProviderError}}
- the previous request failed before producing code: {{.Feedback.ProviderError}}
{{- end}}
{{- range .Feedback.Violations}}
- {{.Message}}
{{- end}}
{{- range .Feedback.Introduced}}
- introduced: {{issue .}}
{{- end}}
{{- range .Feedback.Unresolved}}
- still present: {{issue .}}
{{- end}}
{{- end}}

## Task

{{if gt .Attempt 1 -}}
This is attempt {{.Attempt}} of {{.MaxAttempts}}. Fix every validation error above, starting again from the original code.
{{else -}}
Refactor the code above to address the reported issues while preserving all functionality.
{{end -}}
Return the complete, runnable file.
`

// Builder renders prompts from parsed templates
type Builder struct {
	system *template.Template
	user   *template.Template
}

// NewBuilder parses the prompt templates
func NewBuilder() (*Builder, error) {
	funcs := template.FuncMap{
		"join":        strings.Join,
		"issue":       formatIssue,
		"trimNewline": trimNewline,
	}

	system, err := template.New("system").Funcs(funcs).Parse(systemTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse system template: %w", err)
	}
	user, err := template.New("user").Funcs(funcs).Parse(userTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user template: %w", err)
	}
	return &Builder{system: system, user: user}, nil
}

// Build renders the request for one attempt
func (b *Builder) Build(in *Input) (*Request, error) {
	if in == nil || in.Unit == nil {
		return nil, fmt.Errorf("prompt input requires a unit")
	}

	protected := append([]string(nil), in.Protected...)
	sort.Strings(protected)

	code := trimNewline(string(in.Unit.Content))
	data := struct {
		Language    string
		Tag         string
		Protected   []string
		UnitID      string
		Summary     string
		Issues      []types.Issue
		Unavailable []string
		Fence       string
		PrevFence   string
		Code        string
		Attempt     int
		MaxAttempts int
		Feedback    *Feedback
	}{
		Language:    in.Unit.Language.Title(),
		Tag:         in.Unit.Language.FenceTag(),
		Protected:   protected,
		UnitID:      in.Unit.ID,
		Fence:       fenceFor(code),
		Code:        code,
		Attempt:     max(in.Attempt, 1),
		MaxAttempts: max(in.MaxAttempts, in.Attempt, 1),
	}
	if in.Report != nil {
		data.Summary = in.Report.Summary()
		data.Issues = in.Report.Issues
		for _, cat := range in.Report.UnavailableCategories() {
			data.Unavailable = append(data.Unavailable, string(cat))
		}
	} else {
		data.Summary = "no report"
	}
	if data.Attempt > 1 && !in.Feedback.Empty() {
		data.Feedback = in.Feedback
		data.PrevFence = fenceFor(in.Feedback.Candidate)
	}

	var sys, user bytes.Buffer
	if err := b.system.Execute(&sys, data); err != nil {
		return nil, fmt.Errorf("failed to render system prompt: %w", err)
	}
	if err := b.user.Execute(&user, data); err != nil {
		return nil, fmt.Errorf("failed to render user prompt: %w", err)
	}
	return &Request{System: sys.String(), User: user.String()}, nil
}

// formatIssue renders one issue on a single line
func formatIssue(i types.Issue) string {
	var b strings.Builder
	if i.Location.EndLine > i.Location.StartLine {
		fmt.Fprintf(&b, "Lines %d-%d", i.Location.StartLine, i.Location.EndLine)
	} else {
		fmt.Fprintf(&b, "Line %d", i.Location.StartLine)
	}
	fmt.Fprintf(&b, " [%s] %s: %s", i.Severity, i.Category, i.Message)
	if i.Symbol != "" {
		fmt.Fprintf(&b, " in %s", i.Symbol)
	}
	if i.Rule != "" {
		fmt.Fprintf(&b, " (%s %s)", i.SourceTool, i.Rule)
	} else {
		fmt.Fprintf(&b, " (%s)", i.SourceTool)
	}
	return b.String()
}

// fenceFor returns a backtick fence longer than any run inside code
func fenceFor(code string) string {
	longest, run := 0, 0
	for _, r := range code {
		if r == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	return strings.Repeat("`", max(3, longest+1))
}

func trimNewline(s string) string {
	return strings.TrimRight(s, "\r\n")
}
