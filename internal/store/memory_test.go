package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mohammad-safakhou/runbooker/models"
)

func TestMemoryRowRollbackKeepsOtherRows(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	err := m.InTicketTx(ctx, func(tx TicketTx) error {
		_ = tx.WithinRow(ctx, func() error {
			return tx.InsertTicket(ctx, &models.Ticket{Number: "INC1", ShortDescription: "kept"})
		})
		_ = tx.WithinRow(ctx, func() error {
			if err := tx.InsertTicket(ctx, &models.Ticket{Number: "INC2"}); err != nil {
				return err
			}
			return errors.New("row failed after insert")
		})
		return nil
	})
	if err != nil {
		t.Fatalf("InTicketTx: %v", err)
	}
	if _, err := m.GetTicket(ctx, "INC1"); err != nil {
		t.Fatalf("INC1 missing: %v", err)
	}
	if _, err := m.GetTicket(ctx, "INC2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("INC2 should have been rolled back, got %v", err)
	}
}

func TestMemoryFailedTxDiscardsEverything(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.InTicketTx(ctx, func(tx TicketTx) error {
		_ = tx.InsertTicket(ctx, &models.Ticket{Number: "INC1"})
		return errors.New("abort")
	})
	if _, err := m.GetTicket(ctx, "INC1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected nothing committed, got %v", err)
	}
}

func TestMemoryUpsertRunbookKeepsOneRow(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	first, _ := m.UpsertRunbook(ctx, models.Runbook{Topic: models.TopicVPNIssue, Title: "v1"})
	second, _ := m.UpsertRunbook(ctx, models.Runbook{Topic: models.TopicVPNIssue, Title: "v2"})
	all, _ := m.ListRunbooks(ctx)
	if len(all) != 1 || all[0].Title != "v2" {
		t.Fatalf("expected one updated runbook, got %+v", all)
	}
	if second.ID != first.ID || !second.LastUpdated.After(first.LastUpdated) {
		t.Fatalf("expected same id and advancing last_updated: %+v %+v", first, second)
	}
}

func TestMemoryTicketsByTopicNewestFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)
	_ = m.InTicketTx(ctx, func(tx TicketTx) error {
		_ = tx.InsertTicket(ctx, &models.Ticket{Number: "A", OpenedAt: &older})
		_ = tx.InsertTicket(ctx, &models.Ticket{Number: "B"})
		_ = tx.InsertTicket(ctx, &models.Ticket{Number: "C", OpenedAt: &newer})
		return nil
	})
	for _, n := range []string{"A", "B", "C"} {
		if err := m.SetTicketTopic(ctx, n, models.TopicEmailIssue, "rule"); err != nil {
			t.Fatalf("SetTicketTopic: %v", err)
		}
	}
	got, _ := m.ListTicketsByTopic(ctx, models.TopicEmailIssue, 0)
	if len(got) != 3 || got[0].Number != "C" || got[1].Number != "A" || got[2].Number != "B" {
		t.Fatalf("unexpected order %v", got)
	}
	counts, _ := m.TopicCounts(ctx)
	if len(counts) != 1 || counts[0].Count != 3 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}

func TestMemoryStaleRunbookTopics(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.InTicketTx(ctx, func(tx TicketTx) error {
		return tx.InsertTicket(ctx, &models.Ticket{Number: "INC1"})
	})
	_ = m.SetTicketTopic(ctx, "INC1", models.TopicMalware, "rule")
	if _, err := m.UpsertRunbook(ctx, models.Runbook{Topic: models.TopicMalware}); err != nil {
		t.Fatalf("UpsertRunbook: %v", err)
	}
	if stale, _ := m.StaleRunbookTopics(ctx); len(stale) != 0 {
		t.Fatalf("fresh runbook reported stale: %v", stale)
	}
	m.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	_ = m.SetTicketTopic(ctx, "INC1", models.TopicMalware, "model")
	if stale, _ := m.StaleRunbookTopics(ctx); len(stale) != 1 || stale[0] != models.TopicMalware {
		t.Fatalf("expected malware stale, got %v", stale)
	}
}
