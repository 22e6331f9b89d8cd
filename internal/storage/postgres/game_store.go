package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/playdex/catalog-crawler/internal/catalog"
)

const gameColumns = `id, title, normalized_title, description, publisher, developer,
	release_date, metacritic_score, user_score, age_rating, genres, platforms,
	image_url, cached_image_id, source_url, source_name, last_updated`

const gamePrefixedColumns = `g.id, g.title, g.normalized_title, g.description, g.publisher, g.developer,
	g.release_date, g.metacritic_score, g.user_score, g.age_rating, g.genres, g.platforms,
	g.image_url, g.cached_image_id, g.source_url, g.source_name, g.last_updated`

func scanGame(row pgx.Row) (catalog.Game, error) {
	var g catalog.Game
	err := row.Scan(
		&g.ID,
		&g.Title,
		&g.NormalizedTitle,
		&g.Description,
		&g.Publisher,
		&g.Developer,
		&g.ReleaseDate,
		&g.MetacriticScore,
		&g.UserScore,
		&g.AgeRating,
		&g.Genres,
		&g.Platforms,
		&g.ImageURL,
		&g.CachedImageID,
		&g.SourceURL,
		&g.SourceName,
		&g.LastUpdated,
	)
	return g, err
}

// Upsert applies the fill-blank-only merge policy, matching existing entries
// by normalized title. The insert-then-lock sequence keeps racing upserts for
// the same title from producing duplicate rows: whoever loses the insert race
// merges into the winner's row under the row lock.
func (s *Store) Upsert(ctx context.Context, rec catalog.Record) (catalog.Game, error) {
	norm := catalog.NormalizeTitle(rec.Title)
	if norm == "" {
		return catalog.Game{}, fmt.Errorf("record title is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return catalog.Game{}, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := s.clock.Now().UTC()
	_, err = tx.Exec(ctx, `
		INSERT INTO games (title, normalized_title, last_updated)
		VALUES ($1, $2, $3)
		ON CONFLICT (normalized_title) DO NOTHING`,
		rec.Title, norm, now)
	if err != nil {
		return catalog.Game{}, fmt.Errorf("insert game: %w", err)
	}

	row := tx.QueryRow(ctx,
		`SELECT `+gameColumns+` FROM games WHERE normalized_title = $1 FOR UPDATE`, norm)
	g, err := scanGame(row)
	if err != nil {
		return catalog.Game{}, fmt.Errorf("lock game row: %w", err)
	}

	if catalog.Merge(&g, rec) {
		g.LastUpdated = now
		_, err = tx.Exec(ctx, `
			UPDATE games
			SET description = $2, publisher = $3, developer = $4, release_date = $5,
				metacritic_score = $6, user_score = $7, age_rating = $8,
				genres = $9, platforms = $10, image_url = $11,
				source_url = $12, source_name = $13, last_updated = $14
			WHERE id = $1`,
			g.ID, g.Description, g.Publisher, g.Developer, g.ReleaseDate,
			g.MetacriticScore, g.UserScore, g.AgeRating,
			g.Genres, g.Platforms, g.ImageURL,
			g.SourceURL, g.SourceName, g.LastUpdated)
		if err != nil {
			return catalog.Game{}, fmt.Errorf("merge game: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return catalog.Game{}, fmt.Errorf("commit upsert: %w", err)
	}
	return g, nil
}

// GetGame returns one catalog entry by ID.
func (s *Store) GetGame(ctx context.Context, id int64) (catalog.Game, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+gameColumns+` FROM games WHERE id = $1`, id)
	g, err := scanGame(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Game{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Game{}, fmt.Errorf("get game: %w", err)
	}
	return g, nil
}

// ListGames returns a page of catalog entries ordered by ID. A zero limit
// means no limit.
func (s *Store) ListGames(ctx context.Context, limit, offset int) ([]catalog.Game, error) {
	return s.queryGames(ctx,
		`SELECT `+gameColumns+` FROM games ORDER BY id LIMIT NULLIF($1, 0) OFFSET $2`,
		limit, offset)
}

// ListMissingImageCache returns entries with no image cache row linked yet.
func (s *Store) ListMissingImageCache(ctx context.Context, limit int) ([]catalog.Game, error) {
	return s.queryGames(ctx, `
		SELECT `+gameColumns+` FROM games
		WHERE cached_image_id IS NULL
		ORDER BY id LIMIT NULLIF($1, 0)`, limit)
}

// ListStaleImageCache returns entries whose linked cache row was last
// verified before the cutoff, or never.
func (s *Store) ListStaleImageCache(ctx context.Context, cutoff time.Time, limit int) ([]catalog.Game, error) {
	return s.queryGames(ctx, `
		SELECT `+gamePrefixedColumns+` FROM games g
		JOIN image_cache ic ON ic.id = g.cached_image_id
		WHERE ic.last_verified_at IS NULL OR ic.last_verified_at < $1
		ORDER BY g.id LIMIT NULLIF($2, 0)`, cutoff, limit)
}

// SetCachedImage links a catalog entry to its image cache row.
func (s *Store) SetCachedImage(ctx context.Context, gameID, imageID int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE games SET cached_image_id = $2 WHERE id = $1`, gameID, imageID)
	if err != nil {
		return fmt.Errorf("set cached image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// DeleteGame removes one catalog entry.
func (s *Store) DeleteGame(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM games WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// ListAll returns every catalog entry ordered by ID.
func (s *Store) ListAll(ctx context.Context) ([]catalog.Game, error) {
	return s.queryGames(ctx, `SELECT `+gameColumns+` FROM games ORDER BY id`)
}

func (s *Store) queryGames(ctx context.Context, query string, args ...any) ([]catalog.Game, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query games: %w", err)
	}
	defer rows.Close()

	var out []catalog.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game row: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
