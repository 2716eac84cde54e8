// Package pipeline sequences the import, classification, indexing and
// synthesis steps behind the CLI and HTTP surfaces.
package pipeline

import (
	"context"
	"fmt"
	"log"

	"github.com/mohammad-safakhou/runbooker/internal/classifier"
	"github.com/mohammad-safakhou/runbooker/internal/ingest"
	"github.com/mohammad-safakhou/runbooker/internal/queue/streams"
	"github.com/mohammad-safakhou/runbooker/internal/synth"
	"github.com/mohammad-safakhou/runbooker/models"
)

const pageSize = 200

// Store is the read/label access the pipeline needs on top of the importer
// and synthesis stores.
type Store interface {
	GetTicketsByNumbers(ctx context.Context, numbers []string) ([]models.Ticket, error)
	ListTicketsPage(ctx context.Context, afterID int64, limit int, onlyUnclassified bool) ([]models.Ticket, error)
	SetTicketTopic(ctx context.Context, number string, topic models.Topic, source string) error
	StaleRunbookTopics(ctx context.Context) ([]models.Topic, error)
}

// Indexer receives tickets after their labels are settled.
type Indexer interface {
	IndexTickets(tickets []models.Ticket) error
}

type Service struct {
	store      Store
	importer   *ingest.Importer
	classifier *classifier.Classifier
	engine     *synth.Engine
	index      Indexer
	events     streams.Emitter
	logger     *log.Logger
}

type Option func(*Service)

func WithIndexer(ix Indexer) Option { return func(s *Service) { s.index = ix } }

func WithEmitter(e streams.Emitter) Option { return func(s *Service) { s.events = e } }

func WithLogger(l *log.Logger) Option { return func(s *Service) { s.logger = l } }

func New(st Store, im *ingest.Importer, cl *classifier.Classifier, eng *synth.Engine, opts ...Option) *Service {
	s := &Service{
		store:      st,
		importer:   im,
		classifier: cl,
		engine:     eng,
		events:     streams.Noop{},
		logger:     log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ImportReport extends the import counts with the labels assigned afterwards.
type ImportReport struct {
	models.ImportResult
	Filename   string               `json:"filename,omitempty"`
	Classified int                  `json:"classified"`
	Topics     map[models.Topic]int `json:"topics"`
}

// Import reconciles a CSV export and labels every inserted or updated ticket.
func (s *Service) Import(ctx context.Context, raw []byte, filename, declaredEncoding string) (ImportReport, error) {
	res, err := s.importer.Import(ctx, raw, declaredEncoding)
	if err != nil {
		return ImportReport{}, err
	}
	report := ImportReport{ImportResult: res, Filename: filename, Topics: map[models.Topic]int{}}

	for start := 0; start < len(res.Numbers); start += pageSize {
		end := start + pageSize
		if end > len(res.Numbers) {
			end = len(res.Numbers)
		}
		tickets, err := s.store.GetTicketsByNumbers(ctx, res.Numbers[start:end])
		if err != nil {
			return report, fmt.Errorf("load imported tickets: %w", err)
		}
		labelled := s.label(ctx, tickets, report.Topics)
		report.Classified += len(labelled)
		s.indexTickets(labelled)
	}

	s.events.TicketsImported(ctx, streams.TicketsImported{
		BatchID:    res.BatchID,
		Filename:   filename,
		Encoding:   res.Encoding,
		Inserted:   res.Inserted,
		Updated:    res.Updated,
		Skipped:    res.Skipped,
		Classified: report.Classified,
	})
	return report, nil
}

// ReclassifyReport summarises a relabelling sweep.
type ReclassifyReport struct {
	Scanned int                  `json:"scanned"`
	Changed int                  `json:"changed"`
	Topics  map[models.Topic]int `json:"topics"`
}

// Reclassify pages through the corpus and relabels each ticket. With
// onlyUnclassified set, tickets that already carry a topic are left alone.
func (s *Service) Reclassify(ctx context.Context, onlyUnclassified bool) (ReclassifyReport, error) {
	report := ReclassifyReport{Topics: map[models.Topic]int{}}
	var after int64
	for {
		page, err := s.store.ListTicketsPage(ctx, after, pageSize, onlyUnclassified)
		if err != nil {
			return report, fmt.Errorf("list tickets: %w", err)
		}
		if len(page) == 0 {
			break
		}
		after = page[len(page)-1].ID
		previous := make(map[string]models.Topic, len(page))
		for _, t := range page {
			if t.Topic != nil {
				previous[t.Number] = *t.Topic
			}
		}
		labelled := s.label(ctx, page, report.Topics)
		for _, t := range labelled {
			if prev, ok := previous[t.Number]; !ok || prev != *t.Topic {
				report.Changed++
			}
		}
		report.Scanned += len(page)
		s.indexTickets(labelled)
		if err := ctx.Err(); err != nil {
			return report, err
		}
	}
	s.logger.Printf("reclassify: scanned=%d changed=%d only_unclassified=%t", report.Scanned, report.Changed, onlyUnclassified)
	return report, nil
}

// label classifies and stores a topic for each ticket, returning the tickets
// whose label was saved.
func (s *Service) label(ctx context.Context, tickets []models.Ticket, tally map[models.Topic]int) []models.Ticket {
	out := make([]models.Ticket, 0, len(tickets))
	for _, t := range tickets {
		v := s.classifier.Classify(ctx, t)
		if err := s.store.SetTicketTopic(ctx, t.Number, v.Topic, string(v.Source)); err != nil {
			s.logger.Printf("ticket %s: save topic: %v", t.Number, err)
			continue
		}
		topic := v.Topic
		t.Topic, t.TopicSource = &topic, string(v.Source)
		tally[topic]++
		out = append(out, t)
	}
	return out
}

func (s *Service) indexTickets(tickets []models.Ticket) {
	if s.index == nil || len(tickets) == 0 {
		return
	}
	if err := s.index.IndexTickets(tickets); err != nil {
		s.logger.Printf("search index: %v", err)
	}
}

// Synthesize builds or refreshes the runbook for topic.
func (s *Service) Synthesize(ctx context.Context, topic models.Topic) (models.Runbook, error) {
	rb, err := s.engine.Synthesize(ctx, topic)
	if err != nil {
		return models.Runbook{}, err
	}
	s.events.RunbookSynthesized(ctx, streams.NewRunbookSynthesized(rb))
	return rb, nil
}

// StaleTopics lists topics whose tickets changed after their runbook was written.
func (s *Service) StaleTopics(ctx context.Context) ([]models.Topic, error) {
	return s.store.StaleRunbookTopics(ctx)
}
