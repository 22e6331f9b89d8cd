package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/playdex/catalog-crawler/internal/catalog"
)

const sourceColumns = `id, name, base_url, extractor_key, is_active, requests_per_minute, last_run_at`

func scanSource(row pgx.Row) (catalog.Source, error) {
	var src catalog.Source
	err := row.Scan(
		&src.ID,
		&src.Name,
		&src.BaseURL,
		&src.ExtractorKey,
		&src.IsActive,
		&src.RequestsPerMinute,
		&src.LastRunAt,
	)
	return src, err
}

// GetSource returns one source row by ID.
func (s *Store) GetSource(ctx context.Context, id int64) (catalog.Source, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id)
	src, err := scanSource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Source{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Source{}, fmt.Errorf("get source: %w", err)
	}
	return src, nil
}

// GetSourceByName returns one source row by its unique name.
func (s *Store) GetSourceByName(ctx context.Context, name string) (catalog.Source, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE name = $1`, name)
	src, err := scanSource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Source{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Source{}, fmt.Errorf("get source by name: %w", err)
	}
	return src, nil
}

// ListActiveSources returns enabled sources ordered by ID.
func (s *Store) ListActiveSources(ctx context.Context) ([]catalog.Source, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active sources: %w", err)
	}
	defer rows.Close()

	var out []catalog.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source row: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// UpsertSource inserts or updates a source, matching rows by name. An
// existing row keeps its last_run_at; configuration fields are replaced.
func (s *Store) UpsertSource(ctx context.Context, src catalog.Source) (catalog.Source, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO sources (name, base_url, extractor_key, is_active, requests_per_minute)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
			base_url = EXCLUDED.base_url,
			extractor_key = EXCLUDED.extractor_key,
			is_active = EXCLUDED.is_active,
			requests_per_minute = EXCLUDED.requests_per_minute
		RETURNING id, last_run_at`,
		src.Name, src.BaseURL, src.ExtractorKey, src.IsActive, src.RequestsPerMinute)
	if err := row.Scan(&src.ID, &src.LastRunAt); err != nil {
		return catalog.Source{}, fmt.Errorf("upsert source: %w", err)
	}
	return src, nil
}

// TouchLastRun stamps the source's last successful run time.
func (s *Store) TouchLastRun(ctx context.Context, id int64, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sources SET last_run_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch last run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}
