package analyzers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/webspoilt/code-janitor/internal/types"
)

// SecretPattern recognizes one kind of hardcoded credential
type SecretPattern struct {
	Kind    string
	Pattern *regexp.Regexp
}

// DefaultSecretPatterns returns the built-in credential patterns
func DefaultSecretPatterns() []SecretPattern {
	assign := `\s*(?::=|[:=])\s*`
	return []SecretPattern{
		{Kind: "api key", Pattern: regexp.MustCompile(`(?i)api[_-]?key["']?` + assign + `["'][A-Za-z0-9_\-]{20,}["']`)},
		{Kind: "secret key", Pattern: regexp.MustCompile(`(?i)secret[_-]?key["']?` + assign + `["'][A-Za-z0-9_\-]{20,}["']`)},
		{Kind: "password", Pattern: regexp.MustCompile(`(?i)passw(?:or)?d["']?` + assign + `["'][^"'\s]{8,}["']`)},
		{Kind: "bearer token", Pattern: regexp.MustCompile(`Bearer\s+[A-Za-z0-9_\-\.=]{16,}`)},
		{Kind: "AWS access key", Pattern: regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
		{Kind: "private key", Pattern: regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`)},
	}
}

// ScanSecrets reports lines that look like they embed credentials. The
// matched value is never included in the message.
func ScanSecrets(in *Input, patterns []SecretPattern, tool string) []types.Issue {
	var issues []types.Issue
	for i, line := range strings.Split(string(in.Unit.Content), "\n") {
		for _, p := range patterns {
			if !p.Pattern.MatchString(line) {
				continue
			}
			issue := lineIssue(in, i+1, types.CategorySecurity, types.SeverityCritical, tool,
				fmt.Sprintf("possible hardcoded %s", p.Kind))
			issues = append(issues, issue.WithRule("hardcoded-secret"))
			break
		}
	}
	return issues
}
