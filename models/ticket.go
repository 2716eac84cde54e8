package models

import (
	"strings"
	"time"
)

// Ticket is one imported incident record keyed by Number.
type Ticket struct {
	ID               int64      `json:"id"`
	Number           string     `json:"number"`
	ShortDescription string     `json:"short_description"`
	Description      string     `json:"description"`
	WorkNotes        string     `json:"work_notes"`
	ResolutionNotes  string     `json:"resolution_notes"`
	Category         string     `json:"category"`
	Subcategory      string     `json:"subcategory"`
	AssignmentGroup  string     `json:"assignment_group"`
	CI               string     `json:"ci"`
	OpenedAt         *time.Time `json:"opened_at,omitempty"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
	Topic            *Topic     `json:"topic,omitempty"`
	TopicSource      string     `json:"topic_source,omitempty"`
	ClassifiedAt     *time.Time `json:"classified_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Merge copies every non-empty field of incoming onto t and reports whether
// anything changed. Empty incoming values never blank out stored ones.
func (t *Ticket) Merge(incoming Ticket) bool {
	changed := false
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) == "" || *dst == v {
			return
		}
		*dst = v
		changed = true
	}
	set(&t.ShortDescription, incoming.ShortDescription)
	set(&t.Description, incoming.Description)
	set(&t.WorkNotes, incoming.WorkNotes)
	set(&t.ResolutionNotes, incoming.ResolutionNotes)
	set(&t.Category, incoming.Category)
	set(&t.Subcategory, incoming.Subcategory)
	set(&t.AssignmentGroup, incoming.AssignmentGroup)
	set(&t.CI, incoming.CI)
	if incoming.OpenedAt != nil && (t.OpenedAt == nil || !t.OpenedAt.Equal(*incoming.OpenedAt)) {
		v := *incoming.OpenedAt
		t.OpenedAt = &v
		changed = true
	}
	if incoming.ClosedAt != nil && (t.ClosedAt == nil || !t.ClosedAt.Equal(*incoming.ClosedAt)) {
		v := *incoming.ClosedAt
		t.ClosedAt = &v
		changed = true
	}
	return changed
}

// ImportResult summarises one bulk import.
type ImportResult struct {
	BatchID  string   `json:"batch_id"`
	Encoding string   `json:"encoding"`
	Inserted int      `json:"inserted"`
	Updated  int      `json:"updated"`
	Skipped  int      `json:"skipped"`
	Numbers  []string `json:"-"` // inserted or updated, in file order
}

// ImportBatch is the persisted audit row for an import.
type ImportBatch struct {
	ID        string    `json:"id"`
	Encoding  string    `json:"encoding"`
	Inserted  int       `json:"inserted"`
	Updated   int       `json:"updated"`
	Skipped   int       `json:"skipped"`
	CreatedAt time.Time `json:"created_at"`
}
