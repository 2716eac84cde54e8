package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mohammad-safakhou/runbooker/models"
)

// Memory is an in-process store with the same semantics as Store.
type Memory struct {
	mu       sync.RWMutex
	nextID   int64
	tickets  map[string]models.Ticket
	runbooks map[models.Topic]models.Runbook
	imports  []models.ImportBatch
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		tickets:  map[string]models.Ticket{},
		runbooks: map[models.Topic]models.Runbook{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// tick returns a strictly increasing timestamp so ordering by time is stable
// even when the clock does not advance between calls.
func (m *Memory) tick(prev time.Time) time.Time {
	now := m.now()
	if !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now
}

func (m *Memory) InTicketTx(ctx context.Context, fn func(TicketTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memTicketTx{m: m, staged: map[string]*models.Ticket{}}
	if err := fn(tx); err != nil {
		return err
	}
	for number, t := range tx.staged {
		if t != nil {
			m.tickets[number] = *t
		}
	}
	m.nextID = tx.nextID(m.nextID)
	return nil
}

type memTicketTx struct {
	m       *Memory
	staged  map[string]*models.Ticket
	journal map[string]*models.Ticket // staged values before the current row
	ids     int64
}

func (tx *memTicketTx) nextID(base int64) int64 { return base + tx.ids }

func (tx *memTicketTx) lookup(number string) (models.Ticket, bool) {
	if t, ok := tx.staged[number]; ok && t != nil {
		return *t, true
	}
	t, ok := tx.m.tickets[number]
	return t, ok
}

func (tx *memTicketTx) remember(number string) {
	if tx.journal == nil {
		return
	}
	if _, seen := tx.journal[number]; seen {
		return
	}
	if prev, ok := tx.staged[number]; ok {
		tx.journal[number] = prev
	} else {
		tx.journal[number] = nil
	}
}

func (tx *memTicketTx) FindTicket(_ context.Context, number string) (models.Ticket, bool, error) {
	t, ok := tx.lookup(number)
	return t, ok, nil
}

func (tx *memTicketTx) InsertTicket(_ context.Context, t *models.Ticket) error {
	if _, exists := tx.lookup(t.Number); exists {
		return ErrConflict
	}
	tx.remember(t.Number)
	tx.ids++
	t.ID = tx.m.nextID + tx.ids
	now := tx.m.now()
	t.CreatedAt, t.UpdatedAt = now, now
	cp := *t
	tx.staged[t.Number] = &cp
	return nil
}

func (tx *memTicketTx) UpdateTicket(_ context.Context, t *models.Ticket) error {
	existing, ok := tx.lookup(t.Number)
	if !ok {
		return ErrNotFound
	}
	tx.remember(t.Number)
	cp := *t
	cp.ID, cp.CreatedAt = existing.ID, existing.CreatedAt
	cp.Topic, cp.TopicSource, cp.ClassifiedAt = existing.Topic, existing.TopicSource, existing.ClassifiedAt
	cp.UpdatedAt = tx.m.tick(existing.UpdatedAt)
	t.UpdatedAt = cp.UpdatedAt
	tx.staged[t.Number] = &cp
	return nil
}

func (tx *memTicketTx) WithinRow(_ context.Context, fn func() error) error {
	tx.journal = map[string]*models.Ticket{}
	ids := tx.ids
	err := fn()
	if err != nil {
		for number, prev := range tx.journal {
			if prev == nil {
				delete(tx.staged, number)
			} else {
				tx.staged[number] = prev
			}
		}
		tx.ids = ids
	}
	tx.journal = nil
	return err
}

func (m *Memory) GetTicket(_ context.Context, number string) (models.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tickets[number]
	if !ok {
		return models.Ticket{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) GetTicketsByNumbers(_ context.Context, numbers []string) ([]models.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Ticket
	for _, n := range numbers {
		if t, ok := m.tickets[n]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) sortedByID() []models.Ticket {
	out := make([]models.Ticket, 0, len(m.tickets))
	for _, t := range m.tickets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) ListTicketsPage(_ context.Context, afterID int64, limit int, onlyUnclassified bool) ([]models.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Ticket
	for _, t := range m.sortedByID() {
		if t.ID <= afterID || (onlyUnclassified && t.Topic != nil) {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) ListTicketsByTopic(_ context.Context, topic models.Topic, limit int) ([]models.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Ticket
	for _, t := range m.tickets {
		if t.Topic != nil && *t.Topic == topic {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].OpenedAt, out[j].OpenedAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) CountTicketsByTopic(_ context.Context, topic models.Topic) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, t := range m.tickets {
		if t.Topic != nil && *t.Topic == topic {
			n++
		}
	}
	return n, nil
}

func (m *Memory) SetTicketTopic(_ context.Context, number string, topic models.Topic, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[number]
	if !ok {
		return ErrNotFound
	}
	tp := topic
	now := m.tick(t.UpdatedAt)
	t.Topic, t.TopicSource, t.ClassifiedAt = &tp, source, &now
	m.tickets[number] = t
	return nil
}

func (m *Memory) TopicCounts(_ context.Context) ([]models.TopicCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := map[models.Topic]int{}
	for _, t := range m.tickets {
		if t.Topic != nil {
			counts[*t.Topic]++
		}
	}
	out := make([]models.TopicCount, 0, len(counts))
	for topic, n := range counts {
		out = append(out, models.TopicCount{Topic: topic, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Topic < out[j].Topic
	})
	return out, nil
}

func (m *Memory) GetRunbook(_ context.Context, topic models.Topic) (models.Runbook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rb, ok := m.runbooks[topic]
	if !ok {
		return models.Runbook{}, ErrNotFound
	}
	return rb, nil
}

func (m *Memory) ListRunbooks(_ context.Context) ([]models.Runbook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Runbook, 0, len(m.runbooks))
	for _, rb := range m.runbooks {
		out = append(out, rb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out, nil
}

func (m *Memory) UpsertRunbook(_ context.Context, rb models.Runbook) (models.Runbook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.runbooks[rb.Topic]; ok {
		rb.ID, rb.CreatedAt = existing.ID, existing.CreatedAt
		rb.LastUpdated = m.tick(existing.LastUpdated)
	} else {
		m.nextID++
		rb.ID = m.nextID
		rb.CreatedAt = m.now()
		rb.LastUpdated = rb.CreatedAt
	}
	m.runbooks[rb.Topic] = rb
	return rb, nil
}

func (m *Memory) StaleRunbookTopics(_ context.Context) ([]models.Topic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Topic
	for topic, rb := range m.runbooks {
		for _, t := range m.tickets {
			if t.Topic == nil || *t.Topic != topic {
				continue
			}
			changed := t.UpdatedAt
			if t.ClassifiedAt != nil && t.ClassifiedAt.After(changed) {
				changed = *t.ClassifiedAt
			}
			if changed.After(rb.LastUpdated) {
				out = append(out, topic)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *Memory) RecordImport(_ context.Context, b models.ImportBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.imports = append(m.imports, b)
	return nil
}

func (m *Memory) ListImports(_ context.Context, limit int) ([]models.ImportBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	out := make([]models.ImportBatch, 0, limit)
	for i := len(m.imports) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.imports[i])
	}
	return out, nil
}
