package pipeline

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/mohammad-safakhou/runbooker/config"
	"github.com/mohammad-safakhou/runbooker/internal/classifier"
	"github.com/mohammad-safakhou/runbooker/internal/inference"
	"github.com/mohammad-safakhou/runbooker/internal/ingest"
	"github.com/mohammad-safakhou/runbooker/internal/queue/streams"
	"github.com/mohammad-safakhou/runbooker/internal/search"
	"github.com/mohammad-safakhou/runbooker/internal/store"
	"github.com/mohammad-safakhou/runbooker/internal/synth"
	"github.com/mohammad-safakhou/runbooker/models"
)

const export = "Number,Short description,Description,Category\n" +
	"INC100,VPN tunnel drops every hour,GlobalProtect disconnects at home,network\n" +
	"INC101,Suspicious email with invoice link,User reported a phishing message,email\n" +
	"INC102,Printer on floor two jams,Paper feed keeps jamming badly,hardware\n"

type recordingEmitter struct {
	mu       sync.Mutex
	imports  []streams.TicketsImported
	runbooks []streams.RunbookSynthesized
}

func (r *recordingEmitter) TicketsImported(_ context.Context, ev streams.TicketsImported) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.imports = append(r.imports, ev)
}

func (r *recordingEmitter) RunbookSynthesized(_ context.Context, ev streams.RunbookSynthesized) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runbooks = append(r.runbooks, ev)
}

type fixedGenerator string

func (g fixedGenerator) Generate(context.Context, string, ...inference.Option) (string, error) {
	return string(g), nil
}

type fixture struct {
	svc    *Service
	store  *store.Memory
	index  *search.Index
	events *recordingEmitter
}

func newFixture(t *testing.T, gen inference.Generator) fixture {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)
	st := store.NewMemory()
	idx, err := search.Open("")
	if err != nil {
		t.Fatalf("search.Open: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	events := &recordingEmitter{}
	im := ingest.NewImporter(st, config.IngestConfig{DateFormats: config.DefaultDateFormats}, ingest.WithLogger(quiet))
	cl := classifier.New(gen, config.ClassifierConfig{MinWords: 3, MinHits: 1}, classifier.WithLogger(quiet))
	eng := synth.NewEngine(st, gen, config.SynthesisConfig{MaxTickets: 50, BatchSize: 10, SummaryChars: 500}, synth.WithLogger(quiet))
	svc := New(st, im, cl, eng, WithIndexer(idx), WithEmitter(events), WithLogger(quiet))
	return fixture{svc: svc, store: st, index: idx, events: events}
}

func TestImportClassifiesIndexesAndPublishes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	report, err := f.svc.Import(ctx, []byte(export), "export.csv", "")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if report.Inserted != 3 || report.Classified != 3 {
		t.Fatalf("unexpected report %+v", report)
	}
	want := map[string]models.Topic{
		"INC100": models.TopicVPNIssue,
		"INC101": models.TopicPhishing,
		"INC102": models.TopicEndpointIssue,
	}
	for number, topic := range want {
		tk, err := f.store.GetTicket(ctx, number)
		if err != nil {
			t.Fatalf("GetTicket %s: %v", number, err)
		}
		if tk.Topic == nil || *tk.Topic != topic || tk.TopicSource != string(classifier.SourceRule) {
			t.Fatalf("%s labelled %v/%s, want %s", number, tk.Topic, tk.TopicSource, topic)
		}
	}
	hits, err := f.index.Search("topic:phishing", 10)
	if err != nil || len(hits) != 1 || hits[0].Number != "INC101" {
		t.Fatalf("index not updated: %+v %v", hits, err)
	}
	if len(f.events.imports) != 1 || f.events.imports[0].Filename != "export.csv" || f.events.imports[0].Classified != 3 {
		t.Fatalf("unexpected import events %+v", f.events.imports)
	}
}

func TestReclassifyOnlyUnclassified(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.svc.Import(ctx, []byte(export), "", ""); err != nil {
		t.Fatalf("Import: %v", err)
	}
	report, err := f.svc.Reclassify(ctx, true)
	if err != nil {
		t.Fatalf("Reclassify: %v", err)
	}
	if report.Scanned != 0 {
		t.Fatalf("nothing should be unclassified, scanned %d", report.Scanned)
	}

	report, err = f.svc.Reclassify(ctx, false)
	if err != nil {
		t.Fatalf("Reclassify: %v", err)
	}
	if report.Scanned != 3 || report.Changed != 0 || report.Topics[models.TopicVPNIssue] != 1 {
		t.Fatalf("unexpected full sweep report %+v", report)
	}
}

func TestSynthesizePublishes(t *testing.T) {
	gen := fixedGenerator(`{"title":"VPN drops","summary":"Tunnels fail.","steps":["Reinstall client"],"references":["VPN console"]}`)
	f := newFixture(t, gen)
	ctx := context.Background()
	if _, err := f.svc.Import(ctx, []byte(export), "", ""); err != nil {
		t.Fatalf("Import: %v", err)
	}
	rb, err := f.svc.Synthesize(ctx, models.TopicVPNIssue)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if rb.Title != "VPN drops" || rb.TicketsUsed != 1 {
		t.Fatalf("unexpected runbook %+v", rb)
	}
	if len(f.events.runbooks) != 1 || f.events.runbooks[0].Outcome != "parsed" {
		t.Fatalf("unexpected runbook events %+v", f.events.runbooks)
	}

	if _, err := f.svc.Synthesize(ctx, models.TopicCloudIssue); !errors.Is(err, synth.ErrNoTickets) {
		t.Fatalf("expected ErrNoTickets, got %v", err)
	}
	if len(f.events.runbooks) != 1 {
		t.Fatalf("failed synthesis must not publish")
	}
}

func TestStaleTopicsAfterReimport(t *testing.T) {
	f := newFixture(t, fixedGenerator(`{"title":"T"}`))
	ctx := context.Background()
	if _, err := f.svc.Import(ctx, []byte(export), "", ""); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if _, err := f.svc.Synthesize(ctx, models.TopicVPNIssue); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	stale, _ := f.svc.StaleTopics(ctx)
	if len(stale) != 0 {
		t.Fatalf("fresh runbook reported stale: %v", stale)
	}
	update := "Number,Short description\nINC100,VPN tunnel drops after the latest client update\n"
	if _, err := f.svc.Import(ctx, []byte(update), "", ""); err != nil {
		t.Fatalf("re-import: %v", err)
	}
	stale, _ = f.svc.StaleTopics(ctx)
	if len(stale) != 1 || stale[0] != models.TopicVPNIssue {
		t.Fatalf("expected vpn_issue stale, got %v", stale)
	}
}
