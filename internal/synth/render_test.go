package synth

import (
	"strings"
	"testing"
)

func TestRenderMarkdownLayout(t *testing.T) {
	md := RenderMarkdown(Result{
		Title:      "Reset MFA",
		Summary:    "Users lose their second factor.",
		Steps:      []string{"Verify identity", "Reset the factor", "Confirm login"},
		References: []string{"Identity portal", "MFA guide"},
	})
	if !strings.HasPrefix(md, "# Reset MFA\n") {
		t.Fatalf("missing title heading: %q", md)
	}
	for _, want := range []string{"1. Verify identity\n", "2. Reset the factor\n", "3. Confirm login\n", "- Identity portal\n", "- MFA guide\n"} {
		if strings.Count(md, want) != 1 {
			t.Fatalf("expected exactly one %q in:\n%s", want, md)
		}
	}
	if strings.Contains(md, noStepsText) || strings.Contains(md, noReferencesText) {
		t.Fatalf("placeholders rendered for non-empty lists:\n%s", md)
	}
}

func TestRenderMarkdownPlaceholders(t *testing.T) {
	md := RenderMarkdown(Result{Title: "Runbook for other", Steps: []string{}, References: []string{}})
	for _, want := range []string{noSummaryText, noStepsText, noReferencesText} {
		if !strings.Contains(md, want) {
			t.Fatalf("missing placeholder %q in:\n%s", want, md)
		}
	}
}

func TestRenderHTMLSanitizes(t *testing.T) {
	html, err := RenderHTML("# Title\n\n1. one\n\n<script>alert(1)</script>\n")
	if err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	if !strings.Contains(html, "<h1>Title</h1>") || !strings.Contains(html, "<li>one</li>") {
		t.Fatalf("unexpected html: %s", html)
	}
	if strings.Contains(html, "<script") {
		t.Fatalf("script survived: %s", html)
	}
}
