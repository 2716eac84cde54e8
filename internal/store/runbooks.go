package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/mohammad-safakhou/runbooker/models"
)

const runbookColumns = `id, topic, title, markdown, json_blob, outcome, model, tickets_used, created_at, last_updated`

func scanRunbook(row scanner) (models.Runbook, error) {
	var (
		rb    models.Runbook
		topic string
		blob  []byte
	)
	if err := row.Scan(&rb.ID, &topic, &rb.Title, &rb.Markdown, &blob, &rb.Outcome, &rb.Model, &rb.TicketsUsed, &rb.CreatedAt, &rb.LastUpdated); err != nil {
		return models.Runbook{}, err
	}
	rb.Topic = models.Topic(topic)
	if len(blob) > 0 {
		rb.JSON = blob
	}
	return rb, nil
}

func (s *Store) GetRunbook(ctx context.Context, topic models.Topic) (models.Runbook, error) {
	rb, err := scanRunbook(s.DB.QueryRowContext(ctx, `SELECT `+runbookColumns+` FROM runbooks WHERE topic=$1`, string(topic)))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Runbook{}, ErrNotFound
	}
	return rb, err
}

func (s *Store) ListRunbooks(ctx context.Context) ([]models.Runbook, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+runbookColumns+` FROM runbooks ORDER BY topic`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Runbook
	for rows.Next() {
		rb, err := scanRunbook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rb)
	}
	return out, rows.Err()
}

// UpsertRunbook creates or overwrites the runbook for rb.Topic in one
// statement and returns the stored row.
func (s *Store) UpsertRunbook(ctx context.Context, rb models.Runbook) (models.Runbook, error) {
	var blob any
	if len(rb.JSON) > 0 {
		blob = []byte(rb.JSON)
	}
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO runbooks (topic, title, markdown, json_blob, outcome, model, tickets_used, created_at, last_updated)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW())
ON CONFLICT (topic) DO UPDATE SET
  title = EXCLUDED.title,
  markdown = EXCLUDED.markdown,
  json_blob = EXCLUDED.json_blob,
  outcome = EXCLUDED.outcome,
  model = EXCLUDED.model,
  tickets_used = EXCLUDED.tickets_used,
  last_updated = NOW()
RETURNING id, created_at, last_updated`,
		string(rb.Topic), rb.Title, rb.Markdown, blob, rb.Outcome, rb.Model, rb.TicketsUsed,
	).Scan(&rb.ID, &rb.CreatedAt, &rb.LastUpdated)
	if err != nil {
		return models.Runbook{}, err
	}
	return rb, nil
}

// StaleRunbookTopics lists topics whose tickets changed after the runbook
// was last synthesized.
func (s *Store) StaleRunbookTopics(ctx context.Context) ([]models.Topic, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT r.topic FROM runbooks r
WHERE EXISTS (
  SELECT 1 FROM tickets t
  WHERE t.topic = r.topic AND GREATEST(t.updated_at, COALESCE(t.classified_at, t.updated_at)) > r.last_updated
)
ORDER BY r.topic`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Topic
	for rows.Next() {
		var topic string
		if err := rows.Scan(&topic); err != nil {
			return nil, err
		}
		out = append(out, models.Topic(topic))
	}
	return out, rows.Err()
}
