// Package search keeps a full-text index of ticket text for operator lookups.
package search

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/mapping"
	"github.com/mohammad-safakhou/runbooker/models"
)

// ErrEmptyQuery is returned for blank query strings.
var ErrEmptyQuery = errors.New("empty search query")

type document struct {
	Number           string `json:"number"`
	ShortDescription string `json:"short_description"`
	Description      string `json:"description"`
	Category         string `json:"category"`
	Topic            string `json:"topic"`
}

// Hit is one matching ticket.
type Hit struct {
	Number string  `json:"number"`
	Topic  string  `json:"topic,omitempty"`
	Score  float64 `json:"score"`
}

type Index struct {
	mu     sync.RWMutex
	idx    bleve.Index
	logger *log.Logger
}

func indexMapping() mapping.IndexMapping {
	exact := bleve.NewTextFieldMapping()
	exact.Analyzer = keyword.Name

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("number", exact)
	doc.AddFieldMappingsAt("topic", exact)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// Open returns an index at path, creating it when missing. An empty path
// keeps the index in memory.
func Open(path string) (*Index, error) {
	logger := log.New(log.Writer(), "[SEARCH] ", log.LstdFlags)
	if path == "" {
		idx, err := bleve.NewMemOnly(indexMapping())
		if err != nil {
			return nil, err
		}
		return &Index{idx: idx, logger: logger}, nil
	}
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, indexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("open search index %s: %w", path, err)
	}
	return &Index{idx: idx, logger: logger}, nil
}

// IndexTickets adds or replaces the documents for tickets in one batch.
func (i *Index) IndexTickets(tickets []models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	batch := i.idx.NewBatch()
	for _, t := range tickets {
		d := document{
			Number:           t.Number,
			ShortDescription: t.ShortDescription,
			Description:      t.Description,
			Category:         t.Category,
		}
		if t.Topic != nil {
			d.Topic = string(*t.Topic)
		}
		if err := batch.Index(t.Number, d); err != nil {
			return fmt.Errorf("index ticket %s: %w", t.Number, err)
		}
	}
	if err := i.idx.Batch(batch); err != nil {
		return err
	}
	i.logger.Printf("indexed %d tickets", len(tickets))
	return nil
}

// Search runs a query-string query ("vpn timeout", "topic:phishing +invoice").
func (i *Index) Search(q string, limit int) ([]Hit, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = 20
	}
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(q), limit, 0, false)
	req.Fields = []string{"topic"}

	i.mu.RLock()
	res, err := i.idx.Search(req)
	i.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", q, err)
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{Number: h.ID, Score: h.Score}
		if topic, ok := h.Fields["topic"].(string); ok {
			hit.Topic = topic
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (i *Index) Count() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.idx.DocCount()
}

func (i *Index) Close() error {
	return i.idx.Close()
}
