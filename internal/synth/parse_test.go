package synth

import (
	"strings"
	"testing"

	"github.com/mohammad-safakhou/runbooker/models"
)

const wellFormed = `{"title":"Reset VPN tokens","summary":"Users cannot connect.","steps":["Check the client version","Reset the token"],"references":["VPN console"]}`

func TestParseResultStrict(t *testing.T) {
	res := ParseResult(wellFormed, models.TopicVPNIssue, 100)
	if res.Outcome != OutcomeParsed {
		t.Fatalf("expected parsed, got %s", res.Outcome)
	}
	if res.Title != "Reset VPN tokens" || len(res.Steps) != 2 || len(res.References) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestParseResultStripsCodeFences(t *testing.T) {
	res := ParseResult("```json\n"+wellFormed+"\n```", models.TopicVPNIssue, 100)
	if res.Outcome != OutcomeParsed || res.Title != "Reset VPN tokens" {
		t.Fatalf("fenced output should parse: %+v", res)
	}
}

func TestParseResultRepairsSurroundingProse(t *testing.T) {
	raw := "Sure! Here is your runbook:\n" + wellFormed + "\nLet me know if you need more."
	res := ParseResult(raw, models.TopicVPNIssue, 100)
	if res.Outcome != OutcomeRepaired {
		t.Fatalf("expected repaired, got %s", res.Outcome)
	}
	strict := ParseResult(wellFormed, models.TopicVPNIssue, 100)
	if res.Title != strict.Title || strings.Join(res.Steps, "|") != strings.Join(strict.Steps, "|") {
		t.Fatalf("repair should recover the same content: %+v vs %+v", res, strict)
	}
}

func TestParseResultFallbackRedactsAndTruncates(t *testing.T) {
	raw := "I could not do it. Contact jane.doe@example.com about this. " + strings.Repeat("x", 200)
	res := ParseResult(raw, models.TopicEmailIssue, 80)
	if res.Outcome != OutcomeFallback {
		t.Fatalf("expected fallback, got %s", res.Outcome)
	}
	if res.Title != "Runbook for email_issue" {
		t.Fatalf("unexpected title %q", res.Title)
	}
	if strings.Contains(res.Summary, "jane.doe@example.com") {
		t.Fatalf("summary not redacted: %q", res.Summary)
	}
	if n := len([]rune(res.Summary)); n == 0 || n > 80 {
		t.Fatalf("summary length %d out of range", n)
	}
	if res.Steps == nil || res.References == nil || len(res.Steps) != 0 || len(res.References) != 0 {
		t.Fatalf("fallback lists must be empty and non-nil: %+v", res)
	}
}

func TestParseResultEmptyOutput(t *testing.T) {
	res := ParseResult("", models.TopicOther, 100)
	if res.Outcome != OutcomeFallback || res.Summary == "" {
		t.Fatalf("empty output should fall back with a summary: %+v", res)
	}
}

func TestParseResultNormalizesMissingFields(t *testing.T) {
	res := ParseResult(`{"title":"Only a title"}`, models.TopicMalware, 100)
	if res.Outcome != OutcomeParsed {
		t.Fatalf("expected parsed, got %s", res.Outcome)
	}
	if res.Summary != "" || res.Steps == nil || res.References == nil {
		t.Fatalf("missing fields should default: %+v", res)
	}
}

func TestParseResultMissingTitleKeepsSteps(t *testing.T) {
	for _, raw := range []string{
		`{"summary":"VPN drops.","steps":["Restart client","Reset token"],"references":["VPN console"]}`,
		`{"title":"","summary":"VPN drops.","steps":["Restart client","Reset token"],"references":["VPN console"]}`,
		`{"title":null,"summary":"VPN drops.","steps":["Restart client","Reset token"],"references":["VPN console"]}`,
	} {
		res := ParseResult(raw, models.TopicVPNIssue, 100)
		if res.Outcome != OutcomeParsed {
			t.Fatalf("%s: expected parsed, got %s", raw, res.Outcome)
		}
		if res.Title != "Runbook for vpn_issue" {
			t.Fatalf("%s: expected default title, got %q", raw, res.Title)
		}
		if strings.Join(res.Steps, "|") != "Restart client|Reset token" || len(res.References) != 1 || res.Summary != "VPN drops." {
			t.Fatalf("%s: parsed fields lost: %+v", raw, res)
		}
	}
}

func TestParseResultSchemaViolationFallsBack(t *testing.T) {
	res := ParseResult(`{"title": 42, "steps": "not a list"}`, models.TopicMalware, 100)
	if res.Outcome != OutcomeFallback {
		t.Fatalf("schema violation should fall back, got %s", res.Outcome)
	}
}

func TestParseResultFlattensObjectSteps(t *testing.T) {
	raw := `{"title":"T","steps":[{"step":"Isolate the host"},"Run a scan",{"action":"Reimage","detail":"if persistent"}]}`
	res := ParseResult(raw, models.TopicMalware, 100)
	want := []string{"Isolate the host", "Run a scan", "Reimage: if persistent"}
	if strings.Join(res.Steps, "|") != strings.Join(want, "|") {
		t.Fatalf("steps = %q, want %q", res.Steps, want)
	}
}
