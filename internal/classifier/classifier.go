// Package classifier assigns tickets to the closed topic taxonomy, using
// keyword rules first and the inference runtime only when no rule fires.
package classifier

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/runbooker/config"
	"github.com/mohammad-safakhou/runbooker/internal/helpers"
	"github.com/mohammad-safakhou/runbooker/internal/inference"
	"github.com/mohammad-safakhou/runbooker/internal/redact"
	"github.com/mohammad-safakhou/runbooker/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Source records which path produced a verdict.
type Source string

const (
	SourceDegenerate Source = "degenerate"
	SourceRule       Source = "rule"
	SourceModel      Source = "model"
	SourceCache      Source = "cache"
	SourceDefault    Source = "default"
)

type Verdict struct {
	Topic  models.Topic `json:"topic"`
	Source Source       `json:"source"`
}

// VerdictCache remembers model verdicts keyed by a digest of the redacted text.
type VerdictCache interface {
	Get(ctx context.Context, key string) (models.Topic, bool)
	Set(ctx context.Context, key string, topic models.Topic)
}

type Classifier struct {
	gen      inference.Generator
	cache    VerdictCache
	minWords int
	minHits  int
	logger   *log.Logger
	counter  otelmetric.Int64Counter
}

type Option func(*Classifier)

func WithCache(c VerdictCache) Option { return func(cl *Classifier) { cl.cache = c } }

func WithLogger(l *log.Logger) Option { return func(cl *Classifier) { cl.logger = l } }

func WithMeter(meter otelmetric.Meter) Option {
	return func(cl *Classifier) {
		if c, err := meter.Int64Counter("classifications_total"); err == nil {
			cl.counter = c
		}
	}
}

// New builds a classifier. gen may be nil, in which case tickets no rule
// matches are labelled other.
func New(gen inference.Generator, cfg config.ClassifierConfig, opts ...Option) *Classifier {
	c := &Classifier{
		gen:      gen,
		minWords: cfg.MinWords,
		minHits:  cfg.MinHits,
		logger:   log.New(log.Writer(), "[CLASSIFIER] ", log.LstdFlags),
	}
	if c.minWords < 1 {
		c.minWords = 3
	}
	if c.minHits < 1 {
		c.minHits = 1
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.counter == nil {
		WithMeter(otel.Meter("runbooker/classifier"))(c)
	}
	return c
}

// Blob joins the descriptive fields used as classification signal.
func Blob(t models.Ticket) string {
	parts := make([]string, 0, 6)
	for _, f := range []string{t.ShortDescription, t.Description, t.Category, t.Subcategory, t.AssignmentGroup, t.CI} {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}

// Classify always returns a taxonomy label; failures degrade to other.
func (c *Classifier) Classify(ctx context.Context, t models.Ticket) Verdict {
	v := c.classify(ctx, t)
	c.counter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("path", string(v.Source))))
	return v
}

func (c *Classifier) classify(ctx context.Context, t models.Ticket) Verdict {
	blob := Blob(t)
	lower := strings.ToLower(blob)
	if len(strings.Fields(lower)) < c.minWords {
		return Verdict{Topic: models.TopicOther, Source: SourceDegenerate}
	}
	if topic, ok := matchRules(lower, c.minHits); ok {
		return Verdict{Topic: topic, Source: SourceRule}
	}
	if c.gen == nil {
		return Verdict{Topic: models.TopicOther, Source: SourceDefault}
	}

	// Names are only recognisable before lower-casing, so scrub the original.
	scrubbed := strings.ToLower(redact.Scrub(blob))
	key := cacheKey(scrubbed)
	if c.cache != nil {
		if topic, ok := c.cache.Get(ctx, key); ok {
			return Verdict{Topic: topic, Source: SourceCache}
		}
	}

	raw, err := c.gen.Generate(ctx, Prompt(scrubbed), inference.WithTemperature(0), inference.WithMaxTokens(8))
	if err != nil {
		c.logger.Printf("ticket %s: model fallback unavailable: %v", t.Number, err)
		return Verdict{Topic: models.TopicOther, Source: SourceDefault}
	}
	topic, ok := Canonicalize(firstToken(raw))
	if !ok {
		c.logger.Printf("ticket %s: unrecognised label %q", t.Number, truncate(raw, 40))
		return Verdict{Topic: models.TopicOther, Source: SourceDefault}
	}
	if c.cache != nil {
		c.cache.Set(ctx, key, topic)
	}
	return Verdict{Topic: topic, Source: SourceModel}
}

// Prompt is the closed-choice classification request.
func Prompt(scrubbed string) string {
	labels := make([]string, len(models.Taxonomy))
	for i, t := range models.Taxonomy {
		labels[i] = string(t)
	}
	return fmt.Sprintf(`Classify this IT support ticket into exactly ONE of these labels:
%s

Ticket text:
%s

Reply with the label only, one token, lowercase, no punctuation or explanation.`,
		strings.Join(labels, ", "), scrubbed)
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func cacheKey(scrubbed string) string {
	return helpers.ContentHash(scrubbed)
}

// truncate keeps the first n runes of s for log lines.
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
