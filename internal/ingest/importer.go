// Package ingest parses bulk ticket exports and reconciles them against the
// stored corpus by ticket number.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/runbooker/config"
	"github.com/mohammad-safakhou/runbooker/internal/helpers"
	"github.com/mohammad-safakhou/runbooker/internal/store"
	"github.com/mohammad-safakhou/runbooker/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Store is the persistence the importer needs.
type Store interface {
	InTicketTx(ctx context.Context, fn func(store.TicketTx) error) error
	RecordImport(ctx context.Context, b models.ImportBatch) error
}

type Importer struct {
	store   Store
	dates   DateParser
	logger  *log.Logger
	counter otelmetric.Int64Counter
	now     func() time.Time
}

type Option func(*Importer)

func WithLogger(l *log.Logger) Option { return func(im *Importer) { im.logger = l } }

func WithMeter(meter otelmetric.Meter) Option {
	return func(im *Importer) {
		if c, err := meter.Int64Counter("tickets_imported_total"); err == nil {
			im.counter = c
		}
	}
}

func NewImporter(st Store, cfg config.IngestConfig, opts ...Option) *Importer {
	layouts := cfg.DateFormats
	if len(layouts) == 0 {
		layouts = config.DefaultDateFormats
	}
	im := &Importer{
		store:  st,
		dates:  DateParser{Layouts: layouts, Lenient: cfg.LenientDates},
		logger: log.New(log.Writer(), "[INGEST] ", log.LstdFlags),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(im)
	}
	if im.counter == nil {
		WithMeter(otel.Meter("runbooker/ingest"))(im)
	}
	return im
}

type parsedRow struct {
	line   int
	ticket models.Ticket
}

// Import decodes raw, parses it as a delimited file with a header row and
// reconciles every row in one unit of work. Rows that fail are skipped and
// counted; only a storage failure aborts the import.
func (im *Importer) Import(ctx context.Context, raw []byte, declared string) (models.ImportResult, error) {
	text, enc := Decode(raw, declared)
	res := models.ImportResult{Encoding: enc}

	rows, skipped := im.parse(text)
	res.Skipped = skipped

	err := im.store.InTicketTx(ctx, func(tx store.TicketTx) error {
		seen := make(map[string]struct{}, len(rows))
		for _, r := range rows {
			number := r.ticket.Number
			if number == "" {
				res.Skipped++
				continue
			}
			if _, dup := seen[number]; dup {
				res.Skipped++
				continue
			}
			seen[number] = struct{}{}

			inserted, err := im.reconcile(ctx, tx, r.ticket)
			if err != nil {
				im.logger.Printf("line %d (%s): skipped: %v", r.line, number, err)
				res.Skipped++
				continue
			}
			if inserted {
				res.Inserted++
			} else {
				res.Updated++
			}
			res.Numbers = append(res.Numbers, number)
		}
		return nil
	})
	if err != nil {
		return models.ImportResult{}, fmt.Errorf("import: %w", err)
	}

	batch := models.ImportBatch{
		ID:        uuid.NewString(),
		Encoding:  enc,
		Inserted:  res.Inserted,
		Updated:   res.Updated,
		Skipped:   res.Skipped,
		CreatedAt: im.now(),
	}
	res.BatchID = batch.ID
	if err := im.store.RecordImport(ctx, batch); err != nil {
		im.logger.Printf("record import batch %s: %v", batch.ID, err)
	}
	im.count(ctx, "inserted", res.Inserted)
	im.count(ctx, "updated", res.Updated)
	im.count(ctx, "skipped", res.Skipped)
	im.logger.Printf("import %s (%s): inserted=%d updated=%d skipped=%d", batch.ID, enc, res.Inserted, res.Updated, res.Skipped)
	return res, nil
}

// reconcile inserts a new ticket or merges non-empty fields into the stored one.
func (im *Importer) reconcile(ctx context.Context, tx store.TicketTx, incoming models.Ticket) (inserted bool, err error) {
	err = tx.WithinRow(ctx, func() (rowErr error) {
		defer func() {
			if p := recover(); p != nil {
				rowErr = fmt.Errorf("panic: %v", p)
			}
		}()
		existing, found, err := tx.FindTicket(ctx, incoming.Number)
		if err != nil {
			return err
		}
		if !found {
			inserted = true
			return tx.InsertTicket(ctx, &incoming)
		}
		if existing.Merge(incoming) {
			return tx.UpdateTicket(ctx, &existing)
		}
		return nil
	})
	return inserted, err
}

// parse reads every data row. Malformed records are counted as skipped.
func (im *Importer) parse(text string) ([]parsedRow, int) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = sniffDelimiter(text)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			im.logger.Printf("unreadable header: %v", err)
		}
		return nil, 0
	}
	cols := resolveColumns(header)
	if _, ok := cols[fieldNumber]; !ok {
		im.logger.Printf("no ticket number column among %q", header)
	}

	var (
		rows    []parsedRow
		skipped int
	)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				im.logger.Printf("line %d: malformed record: %v", perr.Line, err)
				skipped++
				continue
			}
			im.logger.Printf("stopped reading: %v", err)
			break
		}
		line, _ := r.FieldPos(0)
		rows = append(rows, parsedRow{line: line, ticket: im.toTicket(rec, cols)})
	}
	return rows, skipped
}

func (im *Importer) toTicket(rec []string, cols map[field]int) models.Ticket {
	get := func(f field) string {
		i, ok := cols[f]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	return models.Ticket{
		Number:           get(fieldNumber),
		ShortDescription: helpers.PlainText(get(fieldShortDescription)),
		Description:      helpers.PlainText(get(fieldDescription)),
		WorkNotes:        helpers.PlainText(get(fieldWorkNotes)),
		ResolutionNotes:  helpers.PlainText(get(fieldResolutionNotes)),
		Category:         get(fieldCategory),
		Subcategory:      get(fieldSubcategory),
		AssignmentGroup:  get(fieldAssignmentGroup),
		CI:               get(fieldCI),
		OpenedAt:         im.dates.Parse(get(fieldOpenedAt)),
		ClosedAt:         im.dates.Parse(get(fieldClosedAt)),
	}
}

func (im *Importer) count(ctx context.Context, result string, n int) {
	if n > 0 {
		im.counter.Add(ctx, int64(n), otelmetric.WithAttributes(attribute.String("result", result)))
	}
}
