package imaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/playdex/catalog-crawler/internal/catalog"
)

// CacheConfig tunes the image cache service.
type CacheConfig struct {
	// Staleness is how long a verified entry is trusted before re-checking.
	Staleness time.Duration
	// VerifyBatchSize caps how many entries one VerifyAll pass touches.
	VerifyBatchSize int
	// VerifyConcurrency bounds parallel refreshes inside VerifyAll.
	VerifyConcurrency int
}

// CandidateResolver produces verified image URL candidates for a title.
// Satisfied by *Resolver.
type CandidateResolver interface {
	Resolve(ctx context.Context, title string, year int, existingURL string) []Candidate
}

// Cache coordinates image cache rows for catalog entries: creating them on
// demand, refreshing stale ones through the resolver, and running the batch
// verification pass.
type Cache struct {
	games    catalog.GameStore
	images   catalog.ImageStore
	resolver CandidateResolver
	clock    catalog.Clock
	cfg      CacheConfig
	logger   *zap.Logger
}

// NewCache wires the image cache service.
func NewCache(games catalog.GameStore, images catalog.ImageStore, resolver CandidateResolver, clock catalog.Clock, cfg CacheConfig, logger *zap.Logger) *Cache {
	if cfg.Staleness <= 0 {
		cfg.Staleness = 7 * 24 * time.Hour
	}
	if cfg.VerifyBatchSize <= 0 {
		cfg.VerifyBatchSize = 50
	}
	if cfg.VerifyConcurrency <= 0 {
		cfg.VerifyConcurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{games: games, images: images, resolver: resolver, clock: clock, cfg: cfg, logger: logger}
}

// Identifier derives the stable cache key for a catalog entry.
func Identifier(g catalog.Game) string {
	return fmt.Sprintf("%s_%d", catalog.TitleSlug(g.Title), g.ID)
}

// GetOrCreate returns the cache row for a game, creating an empty one and
// linking it to the game when none exists yet.
func (c *Cache) GetOrCreate(ctx context.Context, g catalog.Game) (catalog.ImageCacheEntry, error) {
	entry, err := c.images.GetOrCreate(ctx, Identifier(g))
	if err != nil {
		return catalog.ImageCacheEntry{}, fmt.Errorf("get or create image cache row: %w", err)
	}
	if g.CachedImageID == nil || *g.CachedImageID != entry.ID {
		if err := c.games.SetCachedImage(ctx, g.ID, entry.ID); err != nil {
			return catalog.ImageCacheEntry{}, fmt.Errorf("link image cache row: %w", err)
		}
	}
	return entry, nil
}

// BestURL returns the best available image URL for a game, creating the cache
// row if needed. It never triggers network resolution; callers wanting fresh
// data use Refresh.
func (c *Cache) BestURL(ctx context.Context, g catalog.Game) (string, error) {
	entry, err := c.GetOrCreate(ctx, g)
	if err != nil {
		return "", err
	}
	return entry.BestURL(), nil
}

// Refresh brings a game's cache row up to date. A primary URL verified within
// the staleness window is trusted as-is and no network traffic happens.
// Otherwise the resolver chain runs: the first verified candidate becomes the
// primary, later ones fill the backup slots, and the curated table and a
// derived fallback URL back-stop total provider failure. The verification
// timestamp is stamped on every pass, success or not, so a row with no
// reachable image is not re-resolved on every request.
func (c *Cache) Refresh(ctx context.Context, g catalog.Game) (catalog.ImageCacheEntry, error) {
	entry, err := c.GetOrCreate(ctx, g)
	if err != nil {
		return catalog.ImageCacheEntry{}, err
	}

	now := c.clock.Now()
	if entry.IsVerified && entry.LastVerifiedAt != nil && now.Sub(*entry.LastVerifiedAt) < c.cfg.Staleness {
		return entry, nil
	}

	candidates := c.resolver.Resolve(ctx, g.Title, g.ReleaseYear(), entry.PrimaryURL)
	if len(candidates) == 0 && g.ImageURL != "" && g.ImageURL != entry.PrimaryURL {
		// A dead cached primary must not shadow the extractor-supplied URL,
		// which a later crawl may have replaced with a live one.
		candidates = c.resolver.Resolve(ctx, g.Title, g.ReleaseYear(), g.ImageURL)
	}

	if len(candidates) > 0 {
		entry.PrimaryURL = candidates[0].URL
		entry.SourceTag = candidates[0].SourceTag
		entry.IsVerified = true
		for _, cand := range candidates[1:] {
			entry.AddBackup(cand.URL)
		}
	} else {
		entry.IsVerified = false
	}

	if known := KnownCoverURL(g.Title); known != "" {
		if entry.PrimaryURL == "" || !entry.IsVerified {
			entry.PrimaryURL = known
			entry.SourceTag = "known"
			entry.IsVerified = true
		} else {
			entry.AddBackup(known)
		}
	}

	if entry.FallbackURL == "" {
		entry.FallbackURL = deriveFallbackURL(g.Title)
	}

	entry.LastVerifiedAt = &now
	if err := c.images.Update(ctx, entry); err != nil {
		return catalog.ImageCacheEntry{}, fmt.Errorf("update image cache row: %w", err)
	}

	c.logger.Debug("image cache refreshed",
		zap.String("identifier", entry.Identifier),
		zap.Bool("verified", entry.IsVerified),
		zap.String("source", entry.SourceTag))
	return entry, nil
}

// deriveFallbackURL guesses the most likely Wikipedia cover location. It is
// stored unverified; BestURL only reaches it when everything else is empty.
func deriveFallbackURL(title string) string {
	slug := catalog.TitleSlug(title)
	if slug == "" {
		return ""
	}
	return fmt.Sprintf("https://upload.wikimedia.org/wikipedia/en/%s_cover.jpg", slug)
}

// VerifyAll refreshes entries that have no cache row yet, then rows whose
// verification is older than the staleness window, up to the batch size.
// Refreshes run with bounded concurrency and one entry's failure never stops
// the pass. Returns how many entries ended up verified and how many did not.
func (c *Cache) VerifyAll(ctx context.Context) (verified, unverified int, err error) {
	batch, err := c.collectBatch(ctx)
	if err != nil {
		return 0, 0, err
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.VerifyConcurrency)

	for _, game := range batch {
		game := game
		g.Go(func() error {
			entry, refreshErr := c.Refresh(ctx, game)
			mu.Lock()
			defer mu.Unlock()
			if refreshErr != nil || !entry.IsVerified {
				unverified++
				if refreshErr != nil {
					c.logger.Warn("image refresh failed",
						zap.Int64("game_id", game.ID), zap.Error(refreshErr))
				}
				return nil
			}
			verified++
			return nil
		})
	}

	if waitErr := g.Wait(); waitErr != nil {
		return verified, unverified, waitErr
	}
	return verified, unverified, nil
}

func (c *Cache) collectBatch(ctx context.Context) ([]catalog.Game, error) {
	missing, err := c.games.ListMissingImageCache(ctx, c.cfg.VerifyBatchSize)
	if err != nil {
		return nil, fmt.Errorf("list games missing image cache: %w", err)
	}

	remaining := c.cfg.VerifyBatchSize - len(missing)
	if remaining <= 0 {
		return missing, nil
	}

	cutoff := c.clock.Now().Add(-c.cfg.Staleness)
	stale, err := c.games.ListStaleImageCache(ctx, cutoff, remaining)
	if err != nil {
		return nil, fmt.Errorf("list games with stale image cache: %w", err)
	}
	return append(missing, stale...), nil
}
