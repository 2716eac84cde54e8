// Package store persists tickets, runbooks and import batches. Store is the
// Postgres implementation; Memory serves tests and single-process runs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/mohammad-safakhou/runbooker/models"
)

var (
	// ErrNotFound is returned when a ticket or runbook lookup has no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when inserting a ticket number that exists.
	ErrConflict = errors.New("already exists")
)

// importLockKey serialises imports; overlapping ticket numbers resolve
// last-writer-wins.
const importLockKey = 0x72756e62 // "runb"

// TicketTx is the unit of work an import runs in.
type TicketTx interface {
	FindTicket(ctx context.Context, number string) (models.Ticket, bool, error)
	InsertTicket(ctx context.Context, t *models.Ticket) error
	UpdateTicket(ctx context.Context, t *models.Ticket) error
	// WithinRow runs fn so that a failure undoes only fn's writes.
	WithinRow(ctx context.Context, fn func() error) error
}

type Store struct {
	DB *sql.DB
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

// InTicketTx runs fn inside one transaction holding the import lock.
func (s *Store) InTicketTx(ctx context.Context, fn func(TicketTx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, importLockKey); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("import lock: %w", err)
	}
	if err := fn(&pgTicketTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type pgTicketTx struct {
	tx  *sql.Tx
	seq int
}

func (p *pgTicketTx) FindTicket(ctx context.Context, number string) (models.Ticket, bool, error) {
	row := p.tx.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE number=$1`, number)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Ticket{}, false, nil
	}
	if err != nil {
		return models.Ticket{}, false, err
	}
	return t, true, nil
}

func (p *pgTicketTx) InsertTicket(ctx context.Context, t *models.Ticket) error {
	return insertTicket(ctx, p.tx, t)
}

func (p *pgTicketTx) UpdateTicket(ctx context.Context, t *models.Ticket) error {
	return updateTicket(ctx, p.tx, t)
}

func (p *pgTicketTx) WithinRow(ctx context.Context, fn func() error) error {
	p.seq++
	sp := fmt.Sprintf("row_%d", p.seq)
	if _, err := p.tx.ExecContext(ctx, `SAVEPOINT `+sp); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if _, rbErr := p.tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT `+sp); rbErr != nil {
			return fmt.Errorf("%v; rollback: %w", err, rbErr)
		}
		return err
	}
	_, err := p.tx.ExecContext(ctx, `RELEASE SAVEPOINT `+sp)
	return err
}
