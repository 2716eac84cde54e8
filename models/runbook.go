package models

import (
	"encoding/json"
	"time"
)

// Runbook is the synthesized document for a topic. At most one exists per topic.
type Runbook struct {
	ID          int64           `json:"id"`
	Topic       Topic           `json:"topic"`
	Title       string          `json:"title"`
	Markdown    string          `json:"markdown"`
	JSON        json.RawMessage `json:"json,omitempty"`
	Outcome     string          `json:"outcome"`
	Model       string          `json:"model"`
	TicketsUsed int             `json:"tickets_used"`
	CreatedAt   time.Time       `json:"created_at"`
	LastUpdated time.Time       `json:"last_updated"`
}
