package synth

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/runbooker/internal/redact"
	"github.com/mohammad-safakhou/runbooker/models"
)

const fieldChars = 600

type evidenceTicket struct {
	Number           string `json:"number"`
	ShortDescription string `json:"short_description"`
	Description      string `json:"description,omitempty"`
	ResolutionNotes  string `json:"resolution_notes,omitempty"`
	WorkNotes        string `json:"work_notes,omitempty"`
	OpenedAt         string `json:"opened_at,omitempty"`
}

// evidence redacts every free-text field before it can reach a prompt.
func evidence(tickets []models.Ticket) []evidenceTicket {
	out := make([]evidenceTicket, 0, len(tickets))
	for _, t := range tickets {
		e := evidenceTicket{
			Number:           t.Number,
			ShortDescription: truncateRunes(redact.Scrub(t.ShortDescription), fieldChars),
			Description:      truncateRunes(redact.Scrub(t.Description), fieldChars),
			ResolutionNotes:  truncateRunes(redact.Scrub(t.ResolutionNotes), fieldChars),
			WorkNotes:        truncateRunes(redact.Scrub(t.WorkNotes), fieldChars),
		}
		if t.OpenedAt != nil {
			e.OpenedAt = t.OpenedAt.UTC().Format("2006-01-02 15:04")
		}
		out = append(out, e)
	}
	return out
}

func evidenceJSON(topic models.Topic, tickets []models.Ticket) string {
	payload := map[string]interface{}{
		"topic":   string(topic),
		"tickets": evidence(tickets),
	}
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}

func batchPrompt(topic models.Topic, tickets []models.Ticket) string {
	return fmt.Sprintf(`You are analysing a batch of IT support tickets about %q.

TICKETS:
%s

Write a short pattern analysis in plain text covering:
- common symptoms
- likely root causes
- systems and tools touched
- typical fixes that resolved the tickets
- escalation path when Tier 1 could not resolve

Keep it under 200 words. Do not repeat ticket numbers.`, string(topic), evidenceJSON(topic, tickets))
}

func mergePrompt(topic models.Topic, summaries []string) string {
	var b strings.Builder
	for i, s := range summaries {
		fmt.Fprintf(&b, "Batch %d:\n%s\n\n", i+1, strings.TrimSpace(s))
	}
	return fmt.Sprintf(`The following are pattern analyses of separate batches of %q tickets.

%s
Merge them into ONE cohesive summary of symptoms, causes, tools, fixes and escalation.
Remove duplication. Plain text only, under 300 words.`, string(topic), b.String())
}

func runbookPrompt(topic models.Topic, body string, summarized bool) string {
	label := "INPUT TICKETS"
	if summarized {
		label = "SUMMARY OF TICKETS"
	}
	return fmt.Sprintf(`You are writing a runbook for Tier 1/Tier 2 IT support on the topic %q.

%s:
%s

Your output must be ONLY valid JSON with EXACTLY these keys:

{
  "title": "",
  "summary": "",
  "steps": [],
  "references": []
}

Rules:
- "title" is a short runbook title.
- "summary" is 2-4 sentences explaining the problem.
- "steps" is an ordered list of 5-12 imperative remediation actions, each a string.
- "references" lists tools, consoles or documents as short strings.
- No markdown, no code fences, no extra keys.

Return the JSON object and NOTHING else.`, string(topic), label, body)
}
