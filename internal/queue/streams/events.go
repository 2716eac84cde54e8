package streams

import (
	"context"
	"fmt"
	"log"

	"github.com/mohammad-safakhou/runbooker/models"
)

// TicketsImported is the payload of EventTicketsImported.
type TicketsImported struct {
	BatchID    string `json:"batch_id"`
	Filename   string `json:"filename,omitempty"`
	Encoding   string `json:"encoding"`
	Inserted   int    `json:"inserted"`
	Updated    int    `json:"updated"`
	Skipped    int    `json:"skipped"`
	Classified int    `json:"classified"`
}

// RunbookSynthesized is the payload of EventRunbookSynthesized.
type RunbookSynthesized struct {
	Topic       string `json:"topic"`
	Title       string `json:"title"`
	Outcome     string `json:"outcome"`
	Model       string `json:"model,omitempty"`
	TicketsUsed int    `json:"tickets_used"`
}

// String is the one-line form printed by `runbooker events tail`.
func (ev TicketsImported) String() string {
	return fmt.Sprintf("batch %s (%s): %d inserted, %d updated, %d skipped, %d classified",
		ev.BatchID, ev.Encoding, ev.Inserted, ev.Updated, ev.Skipped, ev.Classified)
}

func (ev RunbookSynthesized) String() string {
	return fmt.Sprintf("%s %q outcome=%s tickets=%d model=%s", ev.Topic, ev.Title, ev.Outcome, ev.TicketsUsed, ev.Model)
}

func NewRunbookSynthesized(rb models.Runbook) RunbookSynthesized {
	return RunbookSynthesized{
		Topic:       string(rb.Topic),
		Title:       rb.Title,
		Outcome:     rb.Outcome,
		Model:       rb.Model,
		TicketsUsed: rb.TicketsUsed,
	}
}

// Emitter announces pipeline outcomes. Publishing is best effort: failures
// are logged and never undo the work that was announced.
type Emitter interface {
	TicketsImported(ctx context.Context, ev TicketsImported)
	RunbookSynthesized(ctx context.Context, ev RunbookSynthesized)
}

// Noop discards every event.
type Noop struct{}

func (Noop) TicketsImported(context.Context, TicketsImported)       {}
func (Noop) RunbookSynthesized(context.Context, RunbookSynthesized) {}

// StreamEmitter publishes events through a Publisher.
type StreamEmitter struct {
	publisher *Publisher
	logger    *log.Logger
}

func NewStreamEmitter(p *Publisher) *StreamEmitter {
	return &StreamEmitter{
		publisher: p,
		logger:    log.New(log.Writer(), "[EVENTS] ", log.LstdFlags),
	}
}

func (e *StreamEmitter) TicketsImported(ctx context.Context, ev TicketsImported) {
	e.emit(ctx, EventTicketsImported, ev)
}

func (e *StreamEmitter) RunbookSynthesized(ctx context.Context, ev RunbookSynthesized) {
	e.emit(ctx, EventRunbookSynthesized, ev)
}

func (e *StreamEmitter) emit(ctx context.Context, eventType string, payload interface{}) {
	id, err := e.publisher.Publish(ctx, eventType, payload)
	recordPublish(ctx, eventType, err)
	if err != nil {
		e.logger.Printf("publish %s to %s failed: %v", eventType, e.publisher.Stream(), err)
		return
	}
	e.logger.Printf("published %s id=%s", eventType, id)
}
