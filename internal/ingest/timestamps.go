package ingest

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// DateParser parses export timestamps against an ordered list of layouts.
// Unparseable values yield nil.
type DateParser struct {
	Layouts  []string
	Lenient  bool
	Location *time.Location
}

func (p DateParser) Parse(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range p.Layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return &t
		}
	}
	if p.Lenient {
		if t, err := dateparse.ParseIn(s, loc); err == nil {
			return &t
		}
	}
	return nil
}
