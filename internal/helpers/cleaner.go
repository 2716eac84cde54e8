package helpers

import "strings"

// StripCodeFences removes markdown fence lines (``` or ~~~, with an optional
// language tag) that models tend to wrap structured output in.
func StripCodeFences(s string) string {
	s = TrimBOM(strings.TrimSpace(s))
	if !strings.Contains(s, "```") && !strings.Contains(s, "~~~") {
		return s
	}
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			continue
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// BraceSpan returns the substring from the first '{' to the last '}'.
func BraceSpan(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// TrimBOM removes an optional UTF-8 BOM.
func TrimBOM(s string) string {
	return strings.TrimPrefix(s, "\ufeff")
}
