package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/playdex/catalog-crawler/internal/catalog"
)

const imageColumns = `id, identifier, primary_url, backup_url_1, backup_url_2, fallback_url,
	is_verified, last_verified_at, source_tag`

func scanImage(row pgx.Row) (catalog.ImageCacheEntry, error) {
	var e catalog.ImageCacheEntry
	err := row.Scan(
		&e.ID,
		&e.Identifier,
		&e.PrimaryURL,
		&e.BackupURL1,
		&e.BackupURL2,
		&e.FallbackURL,
		&e.IsVerified,
		&e.LastVerifiedAt,
		&e.SourceTag,
	)
	return e, err
}

// GetOrCreate returns the cache row for an identifier, inserting an empty one
// when none exists. The no-op conflict update makes the insert return the
// existing row instead of nothing.
func (s *Store) GetOrCreate(ctx context.Context, identifier string) (catalog.ImageCacheEntry, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO image_cache (identifier)
		VALUES ($1)
		ON CONFLICT (identifier) DO UPDATE SET identifier = EXCLUDED.identifier
		RETURNING `+imageColumns, identifier)
	e, err := scanImage(row)
	if err != nil {
		return catalog.ImageCacheEntry{}, fmt.Errorf("get or create image row: %w", err)
	}
	return e, nil
}

// GetByIdentifier returns one cache row without creating it.
func (s *Store) GetByIdentifier(ctx context.Context, identifier string) (catalog.ImageCacheEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+imageColumns+` FROM image_cache WHERE identifier = $1`, identifier)
	e, err := scanImage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.ImageCacheEntry{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.ImageCacheEntry{}, fmt.Errorf("get image row: %w", err)
	}
	return e, nil
}

// Update replaces the URL and verification fields of a cache row.
func (s *Store) Update(ctx context.Context, entry catalog.ImageCacheEntry) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE image_cache
		SET primary_url = $2, backup_url_1 = $3, backup_url_2 = $4, fallback_url = $5,
			is_verified = $6, last_verified_at = $7, source_tag = $8
		WHERE identifier = $1`,
		entry.Identifier, entry.PrimaryURL, entry.BackupURL1, entry.BackupURL2,
		entry.FallbackURL, entry.IsVerified, entry.LastVerifiedAt, entry.SourceTag)
	if err != nil {
		return fmt.Errorf("update image row: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}
