package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/playdex/catalog-crawler/internal/catalog"
)

const jobColumns = `id, source_id, status, started_at, completed_at, items_discovered, items_saved, error_summary`

func scanJob(row pgx.Row) (catalog.Job, error) {
	var job catalog.Job
	err := row.Scan(
		&job.ID,
		&job.SourceID,
		&job.Status,
		&job.StartedAt,
		&job.CompletedAt,
		&job.ItemsDiscovered,
		&job.ItemsSaved,
		&job.ErrorSummary,
	)
	return job, err
}

// CreateJob inserts a new job row.
func (s *Store) CreateJob(ctx context.Context, job catalog.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO crawl_jobs (id, source_id, status, started_at, completed_at, items_discovered, items_saved, error_summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.SourceID, job.Status, job.StartedAt, job.CompletedAt,
		job.ItemsDiscovered, job.ItemsSaved, job.ErrorSummary)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// UpdateJob replaces the mutable fields of a job row.
func (s *Store) UpdateJob(ctx context.Context, job catalog.Job) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE crawl_jobs
		SET status = $2, completed_at = $3, items_discovered = $4, items_saved = $5, error_summary = $6
		WHERE id = $1`,
		job.ID, job.Status, job.CompletedAt, job.ItemsDiscovered, job.ItemsSaved, job.ErrorSummary)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// GetJob returns one job row.
func (s *Store) GetJob(ctx context.Context, jobID string) (catalog.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM crawl_jobs WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Job{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// RecordError appends one per-item error row.
func (s *Store) RecordError(ctx context.Context, jobErr catalog.JobError) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO crawl_job_errors (job_id, url, kind, message, occurred_at)
		VALUES ($1, $2, $3, $4, $5)`,
		jobErr.JobID, jobErr.URL, jobErr.Kind, jobErr.Message, jobErr.Timestamp)
	if err != nil {
		return fmt.Errorf("record job error: %w", err)
	}
	return nil
}

// ListErrors returns a job's error rows in insertion order.
func (s *Store) ListErrors(ctx context.Context, jobID string) ([]catalog.JobError, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT job_id, url, kind, message, occurred_at
		FROM crawl_job_errors
		WHERE job_id = $1
		ORDER BY occurred_at`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job errors: %w", err)
	}
	defer rows.Close()

	var out []catalog.JobError
	for rows.Next() {
		var e catalog.JobError
		if err := rows.Scan(&e.JobID, &e.URL, &e.Kind, &e.Message, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan job error row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteJobsBefore removes jobs started before the cutoff; error rows go with
// them via the cascade. Returns how many jobs were removed.
func (s *Store) DeleteJobsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM crawl_jobs WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
