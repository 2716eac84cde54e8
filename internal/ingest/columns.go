package ingest

import (
	"strings"

	"github.com/mohammad-safakhou/runbooker/internal/helpers"
)

type field int

const (
	fieldNumber field = iota
	fieldShortDescription
	fieldDescription
	fieldWorkNotes
	fieldResolutionNotes
	fieldCategory
	fieldSubcategory
	fieldAssignmentGroup
	fieldCI
	fieldOpenedAt
	fieldClosedAt
)

// aliases lists accepted header names per field, most specific first.
// Headers are compared after normalizeHeader.
var aliases = map[field][]string{
	fieldNumber:           {"number", "ticket number", "incident number", "ticket", "incident", "ticket id", "id"},
	fieldShortDescription: {"short description", "summary", "title", "subject"},
	fieldDescription:      {"description", "long description", "details"},
	fieldWorkNotes:        {"work notes", "comments and work notes", "work notes list", "comments"},
	fieldResolutionNotes:  {"close notes", "resolution notes", "resolution", "closure notes"},
	fieldCategory:         {"category"},
	fieldSubcategory:      {"subcategory", "sub category"},
	fieldAssignmentGroup:  {"assignment group", "assigned group", "group"},
	fieldCI:               {"configuration item", "cmdb ci", "ci"},
	fieldOpenedAt:         {"opened at", "opened", "created", "created on", "sys created on", "opened date"},
	fieldClosedAt:         {"closed at", "closed", "resolved at", "resolved", "closed date"},
}

func normalizeHeader(h string) string {
	h = strings.ToLower(helpers.TrimBOM(h))
	h = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(h)
	return strings.Join(strings.Fields(h), " ")
}

// resolveColumns maps each field to its column index in header.
func resolveColumns(header []string) map[field]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		n := normalizeHeader(h)
		if _, dup := index[n]; !dup {
			index[n] = i
		}
	}
	cols := map[field]int{}
	for f, names := range aliases {
		for _, name := range names {
			if i, ok := index[name]; ok {
				cols[f] = i
				break
			}
		}
	}
	return cols
}

// sniffDelimiter picks the most frequent candidate delimiter in the header line.
func sniffDelimiter(text string) rune {
	line := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		line = text[:i]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t', '|'} {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
