package synth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mohammad-safakhou/runbooker/internal/helpers"
	"github.com/mohammad-safakhou/runbooker/internal/redact"
	"github.com/mohammad-safakhou/runbooker/models"
)

// Outcome records which parse stage produced a Result.
type Outcome string

const (
	OutcomeParsed   Outcome = "parsed"
	OutcomeRepaired Outcome = "repaired"
	OutcomeFallback Outcome = "fallback"
)

const emptyOutputSummary = "The model returned no usable output for this topic."

// Result is the structured runbook content. Steps and References are never nil.
type Result struct {
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	Steps      []string `json:"steps"`
	References []string `json:"references"`
	Outcome    Outcome  `json:"-"`
}

// ParseResult turns raw model output into a Result. It never fails: text that
// is not the expected object, even after brace-span repair, becomes a minimal
// fallback carrying the redacted response as its summary.
func ParseResult(raw string, topic models.Topic, summaryChars int) Result {
	cleaned := strings.TrimSpace(helpers.StripCodeFences(raw))

	if res, err := decodeStrict(cleaned); err == nil {
		res.Outcome = OutcomeParsed
		return normalize(res, topic)
	}
	if span, ok := helpers.BraceSpan(cleaned); ok && span != cleaned {
		if res, err := decodeStrict(span); err == nil {
			res.Outcome = OutcomeRepaired
			return normalize(res, topic)
		}
	}

	summary := truncateRunes(redact.Scrub(cleaned), summaryChars)
	if strings.TrimSpace(summary) == "" {
		summary = emptyOutputSummary
	}
	return normalize(Result{Summary: summary, Outcome: OutcomeFallback}, topic)
}

type rawResult struct {
	Title      string            `json:"title"`
	Summary    *string           `json:"summary"`
	Steps      []json.RawMessage `json:"steps"`
	References []json.RawMessage `json:"references"`
}

func decodeStrict(text string) (Result, error) {
	if text == "" {
		return Result{}, fmt.Errorf("empty output")
	}
	schema, err := ResultSchema()
	if err != nil {
		return Result{}, err
	}
	var doc interface{}
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Result{}, fmt.Errorf("output is not valid JSON: %w", err)
	}
	if dec.More() {
		return Result{}, fmt.Errorf("trailing data after JSON object")
	}
	if err := schema.Validate(doc); err != nil {
		return Result{}, fmt.Errorf("output does not match schema: %w", err)
	}

	var rr rawResult
	if err := json.Unmarshal([]byte(text), &rr); err != nil {
		return Result{}, err
	}
	res := Result{Title: rr.Title, Steps: flattenItems(rr.Steps), References: flattenItems(rr.References)}
	if rr.Summary != nil {
		res.Summary = *rr.Summary
	}
	return res, nil
}

// flattenItems accepts plain strings and the object-shaped items some models
// emit ({"step": "..."} or {"action": "...", "detail": "..."}).
func flattenItems(items []json.RawMessage) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = bytes.TrimSpace(item)
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		var obj map[string]interface{}
		if err := json.Unmarshal(item, &obj); err == nil {
			out = append(out, objectText(obj))
			continue
		}
		out = append(out, string(item))
	}
	return out
}

var preferredKeys = []string{"step", "action", "text", "title", "name", "description", "detail", "url"}

func objectText(obj map[string]interface{}) string {
	parts := make([]string, 0, len(obj))
	used := map[string]bool{}
	for _, k := range preferredKeys {
		if v, ok := obj[k]; ok {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				parts = append(parts, s)
			}
			used[k] = true
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, ": ")
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprint(obj[k]))
	}
	return strings.Join(parts, " ")
}

func normalize(r Result, topic models.Topic) Result {
	r.Title = oneLine(r.Title)
	if r.Title == "" {
		r.Title = DefaultTitle(topic)
	}
	r.Summary = strings.TrimSpace(helpers.StripCodeFences(r.Summary))
	r.Steps = cleanList(r.Steps)
	r.References = cleanList(r.References)
	return r
}

// DefaultTitle is used whenever the model gives no usable title.
func DefaultTitle(topic models.Topic) string {
	return "Runbook for " + string(topic)
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = oneLine(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
