package synth

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/mohammad-safakhou/runbooker/internal/helpers"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const (
	noSummaryText    = "_No summary was returned._"
	noStepsText      = "_No remediation steps were returned for this topic._"
	noReferencesText = "_No references were returned for this topic._"
)

var markdownTemplate = template.Must(template.New("runbook").
	Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
	Parse(`# {{.Title}}

## Summary

{{if .Summary}}{{.Summary}}{{else}}` + noSummaryText + `{{end}}

## Steps

{{if .Steps}}{{range $i, $s := .Steps}}{{inc $i}}. {{$s}}
{{end}}{{else}}` + noStepsText + `
{{end}}
## References

{{if .References}}{{range .References}}- {{.}}
{{end}}{{else}}` + noReferencesText + `
{{end}}`))

// RenderMarkdown renders a normalized Result. Each step and reference takes
// exactly one line; empty lists render a placeholder instead.
func RenderMarkdown(r Result) string {
	var buf bytes.Buffer
	if err := markdownTemplate.Execute(&buf, r); err != nil {
		// Template and data are fixed shapes; keep something readable regardless.
		return "# " + r.Title + "\n\n" + r.Summary + "\n"
	}
	return buf.String()
}

var markdownEngine = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderHTML converts a stored markdown body into sanitized HTML.
func RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(helpers.SanitizeHTMLRichText(buf.String())), nil
}
