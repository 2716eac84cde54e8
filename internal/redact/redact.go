// Package redact scrubs personal and health data out of free text before it
// leaves the process. Every pass is local and pure.
package redact

import "regexp"

// Sentinel tokens, one per category.
const (
	EmailToken = "<REDACTED_EMAIL>"
	PhoneToken = "<REDACTED_PHONE>"
	SSNToken   = "<REDACTED_SSN>"
	DOBToken   = "<REDACTED_DOB>"
	MRNToken   = "<REDACTED_MRN>"
	NameToken  = "<REDACTED_NAME>"
)

type rule struct {
	re    *regexp.Regexp
	token string
}

// Order matters: SSNs, dates and labelled record numbers go before phones so
// the phone pattern never consumes them. None of the tokens can match any pattern.
var rules = []rule{
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), EmailToken},
	{regexp.MustCompile(`\d{3}-\d{2}-\d{4}`), SSNToken},
	{regexp.MustCompile(`(?i)\b(?:dob|date of birth)[:\s]*\d{4}-\d{2}-\d{2}\b|\b\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}\b`), DOBToken},
	{regexp.MustCompile(`(?i)\bMRN[:#\s]*\d+\b`), MRNToken},
	{regexp.MustCompile(`(?:\+?1[-.\s]?)?(?:\(\d{3}\)[-.\s]?|\b\d{3}[-.\s]?)?\b\d{3}[-.\s]?\d{4}\b`), PhoneToken},
	{regexp.MustCompile(`\b\d{7,10}\b`), MRNToken},
	{regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`), NameToken},
}

// maxPasses bounds the fixed-point loop in Scrub.
const maxPasses = 4

// Scrub replaces sensitive spans with sentinel tokens. It never fails and
// Scrub(Scrub(x)) == Scrub(x).
func Scrub(text string) string {
	if text == "" {
		return text
	}
	for i := 0; i < maxPasses; i++ {
		next := scrubOnce(text)
		if next == text {
			break
		}
		text = next
	}
	return text
}

func scrubOnce(text string) string {
	for _, r := range rules {
		text = r.re.ReplaceAllLiteralString(text, r.token)
	}
	return text
}

// ScrubAll scrubs each value in order.
func ScrubAll(values ...string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = Scrub(v)
	}
	return out
}
