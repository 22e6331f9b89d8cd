// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/playdex/catalog-crawler/internal/catalog"
	"github.com/playdex/catalog-crawler/internal/clock/system"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// db is the subset of pgxpool.Pool the stores use; pgxmock satisfies it too.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store implements the source, job, game, and image cache stores on Postgres.
type Store struct {
	pool  db
	clock catalog.Clock
}

// New connects a pool and returns a Store around it. A nil clock falls back
// to the wall clock.
func New(ctx context.Context, cfg Config, clock catalog.Clock) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, clock: orWallClock(clock)}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool db, clock catalog.Clock) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool, clock: orWallClock(clock)}, nil
}

func orWallClock(clock catalog.Clock) catalog.Clock {
	if clock == nil {
		return system.New()
	}
	return clock
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS sources (
	id                  BIGSERIAL PRIMARY KEY,
	name                TEXT NOT NULL UNIQUE,
	base_url            TEXT NOT NULL DEFAULT '',
	extractor_key       TEXT NOT NULL,
	is_active           BOOLEAN NOT NULL DEFAULT TRUE,
	requests_per_minute INTEGER NOT NULL DEFAULT 0,
	last_run_at         TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS crawl_jobs (
	id               TEXT PRIMARY KEY,
	source_id        BIGINT NOT NULL REFERENCES sources (id),
	status           TEXT NOT NULL,
	started_at       TIMESTAMPTZ NOT NULL,
	completed_at     TIMESTAMPTZ,
	items_discovered INTEGER NOT NULL DEFAULT 0,
	items_saved      INTEGER NOT NULL DEFAULT 0,
	error_summary    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS crawl_job_errors (
	job_id      TEXT NOT NULL REFERENCES crawl_jobs (id) ON DELETE CASCADE,
	url         TEXT NOT NULL,
	kind        TEXT NOT NULL,
	message     TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS crawl_job_errors_job_idx ON crawl_job_errors (job_id);

CREATE TABLE IF NOT EXISTS image_cache (
	id               BIGSERIAL PRIMARY KEY,
	identifier       TEXT NOT NULL UNIQUE,
	primary_url      TEXT NOT NULL DEFAULT '',
	backup_url_1     TEXT NOT NULL DEFAULT '',
	backup_url_2     TEXT NOT NULL DEFAULT '',
	fallback_url     TEXT NOT NULL DEFAULT '',
	is_verified      BOOLEAN NOT NULL DEFAULT FALSE,
	last_verified_at TIMESTAMPTZ,
	source_tag       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS games (
	id               BIGSERIAL PRIMARY KEY,
	title            TEXT NOT NULL,
	normalized_title TEXT NOT NULL UNIQUE,
	description      TEXT NOT NULL DEFAULT '',
	publisher        TEXT NOT NULL DEFAULT '',
	developer        TEXT NOT NULL DEFAULT '',
	release_date     TIMESTAMPTZ,
	metacritic_score INTEGER,
	user_score       DOUBLE PRECISION,
	age_rating       TEXT NOT NULL DEFAULT '',
	genres           TEXT[],
	platforms        TEXT[],
	image_url        TEXT NOT NULL DEFAULT '',
	cached_image_id  BIGINT REFERENCES image_cache (id),
	source_url       TEXT NOT NULL DEFAULT '',
	source_name      TEXT NOT NULL DEFAULT '',
	last_updated     TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates the tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
