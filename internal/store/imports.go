package store

import (
	"context"

	"github.com/mohammad-safakhou/runbooker/models"
)

func (s *Store) RecordImport(ctx context.Context, b models.ImportBatch) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO import_batches (id, encoding, inserted, updated, skipped, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		b.ID, b.Encoding, b.Inserted, b.Updated, b.Skipped, b.CreatedAt)
	return err
}

func (s *Store) ListImports(ctx context.Context, limit int) ([]models.ImportBatch, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, encoding, inserted, updated, skipped, created_at FROM import_batches ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.ImportBatch
	for rows.Next() {
		var b models.ImportBatch
		if err := rows.Scan(&b.ID, &b.Encoding, &b.Inserted, &b.Updated, &b.Skipped, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
