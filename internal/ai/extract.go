package ai

import (
	"strings"
)

// ExtractCode pulls the candidate source out of a model response: the
// contents of the last fenced code block, or the trimmed text when the
// response has no fences. A block left open at the end of the response
// (truncated output) still counts. The result ends with a newline unless it
// is empty.
func ExtractCode(response string) string {
	lines := strings.Split(strings.ReplaceAll(response, "\r\n", "\n"), "\n")

	var last []string
	found := false

	var block []string
	open := "" // fence of the block being read
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if open == "" {
			if fence := openingFence(trimmed); fence != "" {
				open = fence
				block = block[:0:0]
			}
			continue
		}
		if isClosingFence(trimmed, open) {
			last, found = block, true
			open = ""
			continue
		}
		block = append(block, line)
	}
	if open != "" && len(block) > 0 {
		last, found = block, true
	}

	if !found {
		return withNewline(strings.TrimSpace(response))
	}
	return withNewline(strings.TrimRight(strings.Join(last, "\n"), " \t\n"))
}

// openingFence returns the backtick run opening a code block, or ""
func openingFence(line string) string {
	n := 0
	for n < len(line) && line[n] == '`' {
		n++
	}
	if n < 3 {
		return ""
	}
	// The info string must not contain backticks
	if strings.Contains(line[n:], "`") {
		return ""
	}
	return line[:n]
}

// isClosingFence reports whether line closes a block opened with fence
func isClosingFence(line, fence string) bool {
	if len(line) < len(fence) {
		return false
	}
	return strings.Trim(line, "`") == ""
}

func withNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
