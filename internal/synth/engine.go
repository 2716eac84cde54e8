// Package synth builds one runbook per topic from the tickets carrying it.
// Model output is treated as untrusted text: it is parsed in stages and
// always yields a renderable result.
package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/runbooker/config"
	"github.com/mohammad-safakhou/runbooker/internal/inference"
	"github.com/mohammad-safakhou/runbooker/internal/redact"
	"github.com/mohammad-safakhou/runbooker/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// ErrNoTickets is returned when a topic has no tickets to synthesize from.
var ErrNoTickets = errors.New("topic has no tickets")

// Store is the persistence the engine needs.
type Store interface {
	CountTicketsByTopic(ctx context.Context, topic models.Topic) (int, error)
	ListTicketsByTopic(ctx context.Context, topic models.Topic, limit int) ([]models.Ticket, error)
	UpsertRunbook(ctx context.Context, rb models.Runbook) (models.Runbook, error)
}

type Engine struct {
	store   Store
	gen     inference.Generator
	cfg     config.SynthesisConfig
	logger  *log.Logger
	counter otelmetric.Int64Counter
}

type Option func(*Engine)

func WithLogger(l *log.Logger) Option { return func(e *Engine) { e.logger = l } }

func WithMeter(meter otelmetric.Meter) Option {
	return func(e *Engine) {
		if c, err := meter.Int64Counter("runbook_syntheses_total"); err == nil {
			e.counter = c
		}
	}
}

// NewEngine builds an engine. gen may be nil; every runbook then comes from
// the fallback stage.
func NewEngine(st Store, gen inference.Generator, cfg config.SynthesisConfig, opts ...Option) *Engine {
	if cfg.MaxTickets <= 0 {
		cfg.MaxTickets = 200
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.SummaryChars <= 0 {
		cfg.SummaryChars = 2000
	}
	e := &Engine{
		store:  st,
		gen:    gen,
		cfg:    cfg,
		logger: log.New(log.Writer(), "[SYNTH] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.counter == nil {
		WithMeter(otel.Meter("runbooker/synth"))(e)
	}
	return e
}

// Synthesize creates or overwrites the runbook for topic.
func (e *Engine) Synthesize(ctx context.Context, topic models.Topic) (models.Runbook, error) {
	if !topic.Valid() {
		return models.Runbook{}, fmt.Errorf("%w: %q", models.ErrTopicNotFound, string(topic))
	}
	total, err := e.store.CountTicketsByTopic(ctx, topic)
	if err != nil {
		return models.Runbook{}, fmt.Errorf("count tickets: %w", err)
	}
	if total == 0 {
		e.record(ctx, "no_tickets")
		return models.Runbook{}, fmt.Errorf("%w: %s", ErrNoTickets, topic)
	}
	tickets, err := e.store.ListTicketsByTopic(ctx, topic, e.cfg.MaxTickets)
	if err != nil {
		return models.Runbook{}, fmt.Errorf("list tickets: %w", err)
	}
	if len(tickets) == 0 {
		e.record(ctx, "no_tickets")
		return models.Runbook{}, fmt.Errorf("%w: %s", ErrNoTickets, topic)
	}

	body, summarized := e.evidence(ctx, topic, tickets)
	raw := e.generate(ctx, runbookPrompt(topic, body, summarized))
	res := ParseResult(raw, topic, e.cfg.SummaryChars)

	snapshot, err := json.Marshal(res)
	if err != nil {
		return models.Runbook{}, fmt.Errorf("encode runbook: %w", err)
	}
	rb, err := e.store.UpsertRunbook(ctx, models.Runbook{
		Topic:       topic,
		Title:       res.Title,
		Markdown:    RenderMarkdown(res),
		JSON:        snapshot,
		Outcome:     string(res.Outcome),
		Model:       e.modelName(),
		TicketsUsed: len(tickets),
	})
	if err != nil {
		return models.Runbook{}, fmt.Errorf("save runbook: %w", err)
	}
	e.record(ctx, string(res.Outcome))
	e.logger.Printf("topic=%s tickets=%d/%d summarized=%t outcome=%s", topic, len(tickets), total, summarized, res.Outcome)
	return rb, nil
}

// evidence returns the text given to the final prompt and whether it is a
// model-written summary rather than the redacted tickets themselves.
func (e *Engine) evidence(ctx context.Context, topic models.Topic, tickets []models.Ticket) (string, bool) {
	if len(tickets) <= e.cfg.BatchSize || e.gen == nil {
		return evidenceJSON(topic, tickets), false
	}

	var summaries []string
	for start := 0; start < len(tickets); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(tickets) {
			end = len(tickets)
		}
		out := strings.TrimSpace(e.generate(ctx, batchPrompt(topic, tickets[start:end])))
		if out == "" {
			e.logger.Printf("topic=%s batch %d-%d produced no summary", topic, start, end)
			continue
		}
		summaries = append(summaries, redact.Scrub(out))
	}

	switch len(summaries) {
	case 0:
		return evidenceJSON(topic, tickets[:e.cfg.BatchSize]), false
	case 1:
		return summaries[0], true
	}
	merged := strings.TrimSpace(e.generate(ctx, mergePrompt(topic, summaries)))
	if merged == "" {
		return strings.Join(summaries, "\n\n"), true
	}
	return redact.Scrub(merged), true
}

// generate returns "" when the model is missing or the call fails.
func (e *Engine) generate(ctx context.Context, prompt string) string {
	if e.gen == nil {
		return ""
	}
	out, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		e.logger.Printf("generation failed: %v", err)
		return ""
	}
	return out
}

func (e *Engine) modelName() string {
	if m, ok := e.gen.(interface{ Model() string }); ok {
		return m.Model()
	}
	return ""
}

func (e *Engine) record(ctx context.Context, outcome string) {
	e.counter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("outcome", outcome)))
}
