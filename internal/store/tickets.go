package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mohammad-safakhou/runbooker/models"
)

const ticketColumns = `id, number, short_description, description, work_notes, resolution_notes, category, subcategory, assignment_group, ci, opened_at, closed_at, topic, topic_source, classified_at, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanTicket(row scanner) (models.Ticket, error) {
	var (
		t                     models.Ticket
		opened, closed, clsAt sql.NullTime
		topic                 sql.NullString
	)
	err := row.Scan(&t.ID, &t.Number, &t.ShortDescription, &t.Description, &t.WorkNotes, &t.ResolutionNotes,
		&t.Category, &t.Subcategory, &t.AssignmentGroup, &t.CI, &opened, &closed, &topic, &t.TopicSource,
		&clsAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return models.Ticket{}, err
	}
	t.OpenedAt = timePtr(opened)
	t.ClosedAt = timePtr(closed)
	t.ClassifiedAt = timePtr(clsAt)
	if topic.Valid {
		tp := models.Topic(topic.String)
		t.Topic = &tp
	}
	return t, nil
}

func scanTickets(rows *sql.Rows) ([]models.Ticket, error) {
	defer rows.Close()
	var out []models.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time
	return &v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func insertTicket(ctx context.Context, db execer, t *models.Ticket) error {
	err := db.QueryRowContext(ctx, `
INSERT INTO tickets (number, short_description, description, work_notes, resolution_notes, category, subcategory, assignment_group, ci, opened_at, closed_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW(),NOW())
RETURNING id, created_at, updated_at`,
		t.Number, t.ShortDescription, t.Description, t.WorkNotes, t.ResolutionNotes, t.Category, t.Subcategory,
		t.AssignmentGroup, t.CI, nullTime(t.OpenedAt), nullTime(t.ClosedAt),
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrConflict
	}
	return err
}

func updateTicket(ctx context.Context, db execer, t *models.Ticket) error {
	return db.QueryRowContext(ctx, `
UPDATE tickets SET
  short_description=$2, description=$3, work_notes=$4, resolution_notes=$5, category=$6, subcategory=$7,
  assignment_group=$8, ci=$9, opened_at=$10, closed_at=$11, updated_at=NOW()
WHERE number=$1
RETURNING updated_at`,
		t.Number, t.ShortDescription, t.Description, t.WorkNotes, t.ResolutionNotes, t.Category, t.Subcategory,
		t.AssignmentGroup, t.CI, nullTime(t.OpenedAt), nullTime(t.ClosedAt),
	).Scan(&t.UpdatedAt)
}

func (s *Store) GetTicket(ctx context.Context, number string) (models.Ticket, error) {
	t, err := scanTicket(s.DB.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE number=$1`, number))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Ticket{}, ErrNotFound
	}
	return t, err
}

// GetTicketsByNumbers returns the tickets for numbers, in no particular order.
func (s *Store) GetTicketsByNumbers(ctx context.Context, numbers []string) ([]models.Ticket, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE number = ANY($1)`, pq.Array(numbers))
	if err != nil {
		return nil, err
	}
	return scanTickets(rows)
}

// ListTicketsPage pages through the corpus by id.
func (s *Store) ListTicketsPage(ctx context.Context, afterID int64, limit int, onlyUnclassified bool) ([]models.Ticket, error) {
	var where strings.Builder
	where.WriteString(`WHERE id > $1`)
	if onlyUnclassified {
		where.WriteString(` AND topic IS NULL`)
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets `+where.String()+` ORDER BY id LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, err
	}
	return scanTickets(rows)
}

// ListTicketsByTopic returns the newest tickets for topic first. limit <= 0
// means no limit.
func (s *Store) ListTicketsByTopic(ctx context.Context, topic models.Topic, limit int) ([]models.Ticket, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT `+ticketColumns+` FROM tickets
WHERE topic=$1
ORDER BY opened_at DESC NULLS LAST, id DESC
LIMIT $2`, string(topic), lim)
	if err != nil {
		return nil, err
	}
	return scanTickets(rows)
}

func (s *Store) CountTicketsByTopic(ctx context.Context, topic models.Topic) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets WHERE topic=$1`, string(topic)).Scan(&n)
	return n, err
}

// SetTicketTopic records a classifier verdict.
func (s *Store) SetTicketTopic(ctx context.Context, number string, topic models.Topic, source string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE tickets SET topic=$2, topic_source=$3, classified_at=NOW() WHERE number=$1`,
		number, string(topic), source)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TopicCounts returns the number of tickets per assigned topic.
func (s *Store) TopicCounts(ctx context.Context) ([]models.TopicCount, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT topic, COUNT(*) FROM tickets
WHERE topic IS NOT NULL
GROUP BY topic
ORDER BY COUNT(*) DESC, topic`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.TopicCount
	for rows.Next() {
		var tc models.TopicCount
		var topic string
		if err := rows.Scan(&topic, &tc.Count); err != nil {
			return nil, err
		}
		tc.Topic = models.Topic(topic)
		out = append(out, tc)
	}
	return out, rows.Err()
}
