// Package service exposes the pipeline's operator-facing operations: crawl
// triggers, cancellation, image verification, and catalog maintenance.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/playdex/catalog-crawler/internal/catalog"
	"github.com/playdex/catalog-crawler/internal/crawl"
	"github.com/playdex/catalog-crawler/internal/imaging"
)

// Config tunes the service layer.
type Config struct {
	// MaxConcurrentCrawls bounds how many sources RunAllCrawls works at once.
	MaxConcurrentCrawls int
	// JobRetention is how long terminal job rows are kept.
	JobRetention time.Duration
	// CompletionTopic names the topic crawl completion events publish to.
	CompletionTopic string
}

// Service wires the crawl runner, image cache, and stores behind the
// operations the API and scheduler call.
type Service struct {
	sources catalog.SourceStore
	jobs    catalog.JobStore
	games   catalog.GameStore
	runner  *crawl.Runner
	cancels *crawl.CancelRegistry
	images  *imaging.Cache
	clock   catalog.Clock
	cfg     Config
	logger  *zap.Logger
}

// CrawlEvent is published when a crawl job reaches a terminal state.
type CrawlEvent struct {
	JobID           string `json:"job_id"`
	SourceName      string `json:"source_name"`
	Status          string `json:"status"`
	ItemsDiscovered int    `json:"items_discovered"`
	ItemsSaved      int    `json:"items_saved"`
}

// New wires a Service. The runner's completion hook is claimed here to
// publish crawl events; pub may be a no-op implementation.
func New(
	sources catalog.SourceStore,
	jobs catalog.JobStore,
	games catalog.GameStore,
	runner *crawl.Runner,
	cancels *crawl.CancelRegistry,
	images *imaging.Cache,
	pub catalog.Publisher,
	clock catalog.Clock,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.MaxConcurrentCrawls <= 0 {
		cfg.MaxConcurrentCrawls = 3
	}
	if cfg.JobRetention <= 0 {
		cfg.JobRetention = 30 * 24 * time.Hour
	}
	if cfg.CompletionTopic == "" {
		cfg.CompletionTopic = "crawl.completed"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		sources: sources,
		jobs:    jobs,
		games:   games,
		runner:  runner,
		cancels: cancels,
		images:  images,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}

	if pub != nil {
		runner.OnFinish(func(job catalog.Job, src catalog.Source) {
			event := CrawlEvent{
				JobID:           job.ID,
				SourceName:      src.Name,
				Status:          string(job.Status),
				ItemsDiscovered: job.ItemsDiscovered,
				ItemsSaved:      job.ItemsSaved,
			}
			if _, err := pub.Publish(context.Background(), cfg.CompletionTopic, event); err != nil {
				logger.Warn("failed to publish crawl event",
					zap.String("job_id", job.ID), zap.Error(err))
			}
		})
	}
	return s
}

// RunCrawl crawls one source synchronously and returns the terminal job.
func (s *Service) RunCrawl(ctx context.Context, sourceID int64, itemLimit int) (catalog.Job, error) {
	src, err := s.sources.GetSource(ctx, sourceID)
	if err != nil {
		return catalog.Job{}, fmt.Errorf("load source %d: %w", sourceID, err)
	}
	return s.runner.Run(ctx, src, itemLimit)
}

// StartCrawl launches a crawl in the background and returns the running job
// immediately; status is polled via GetJob.
func (s *Service) StartCrawl(ctx context.Context, sourceID int64, itemLimit int) (catalog.Job, error) {
	src, err := s.sources.GetSource(ctx, sourceID)
	if err != nil {
		return catalog.Job{}, fmt.Errorf("load source %d: %w", sourceID, err)
	}
	return s.runner.Start(ctx, src, itemLimit)
}

// RunAllCrawls crawls every active source with bounded concurrency. Sources
// fail independently; the returned jobs cover the sources that produced one.
func (s *Service) RunAllCrawls(ctx context.Context, itemLimitPerSource int) ([]catalog.Job, error) {
	active, err := s.sources.ListActiveSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active sources: %w", err)
	}

	var (
		mu   sync.Mutex
		jobs []catalog.Job
		errs []error
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrentCrawls)

	for _, src := range active {
		src := src
		g.Go(func() error {
			job, runErr := s.runner.Run(ctx, src, itemLimitPerSource)
			mu.Lock()
			defer mu.Unlock()
			if runErr != nil {
				errs = append(errs, fmt.Errorf("source %s: %w", src.Name, runErr))
				return nil
			}
			jobs = append(jobs, job)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].SourceID < jobs[j].SourceID })
	return jobs, errors.Join(errs...)
}

// GetJob returns a job row.
func (s *Service) GetJob(ctx context.Context, jobID string) (catalog.Job, error) {
	return s.jobs.GetJob(ctx, jobID)
}

// ListJobErrors returns a job's per-item error rows.
func (s *Service) ListJobErrors(ctx context.Context, jobID string) ([]catalog.JobError, error) {
	if _, err := s.jobs.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return s.jobs.ListErrors(ctx, jobID)
}

// CancelJob requests cancellation of a running job.
func (s *Service) CancelJob(ctx context.Context, jobID string) error {
	if s.cancels != nil && s.cancels.Cancel(jobID) {
		return nil
	}
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	return fmt.Errorf("job %s is not running (status %s)", jobID, job.Status)
}

// SweepJobs deletes job rows older than the retention window.
func (s *Service) SweepJobs(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.cfg.JobRetention)
	removed, err := s.jobs.DeleteJobsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep jobs: %w", err)
	}
	if removed > 0 {
		s.logger.Info("swept old jobs", zap.Int("removed", removed))
	}
	return removed, nil
}

// VerifyImages runs one image verification pass over entries missing or
// holding stale cache rows.
func (s *Service) VerifyImages(ctx context.Context) (verified, unverified int, err error) {
	return s.images.VerifyAll(ctx)
}

// BestImageURL returns the best displayable image URL for a catalog entry,
// optionally refreshing the cache row first.
func (s *Service) BestImageURL(ctx context.Context, gameID int64, refresh bool) (string, error) {
	g, err := s.games.GetGame(ctx, gameID)
	if err != nil {
		return "", err
	}
	if refresh {
		entry, err := s.images.Refresh(ctx, g)
		if err != nil {
			return "", err
		}
		return entry.BestURL(), nil
	}
	return s.images.BestURL(ctx, g)
}

// DedupeGames is the periodic maintenance pass that collapses catalog rows
// sharing a normalized title. It runs separately from the upsert path: the
// keeper absorbs whatever fields the duplicates can fill, then the duplicates
// are removed. Returns how many rows were deleted.
func (s *Service) DedupeGames(ctx context.Context) (int, error) {
	all, err := s.games.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list games: %w", err)
	}

	groups := make(map[string][]catalog.Game)
	for _, g := range all {
		groups[g.NormalizedTitle] = append(groups[g.NormalizedTitle], g)
	}

	removed := 0
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		sortDuplicates(group)
		keeper := group[0]

		for _, dup := range group[1:] {
			// Remove the duplicate first so the merge upsert targets the
			// keeper, not the row being collapsed.
			if err := s.games.DeleteGame(ctx, dup.ID); err != nil {
				s.logger.Warn("dedupe delete failed", zap.Int64("dup_id", dup.ID), zap.Error(err))
				continue
			}
			if _, err := s.games.Upsert(ctx, recordFromGame(keeper, dup)); err != nil {
				s.logger.Warn("dedupe merge failed",
					zap.Int64("keeper_id", keeper.ID), zap.Int64("dup_id", dup.ID), zap.Error(err))
			}
			for _, platform := range restPlatforms(dup) {
				if _, err := s.games.Upsert(ctx, catalog.Record{Title: keeper.Title, Platform: platform}); err != nil {
					s.logger.Warn("dedupe platform merge failed", zap.Int64("keeper_id", keeper.ID), zap.Error(err))
				}
			}
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("deduplicated catalog entries", zap.Int("removed", removed))
	}
	return removed, nil
}

// sortDuplicates orders a duplicate group best-first: entries with an image
// beat those without, then higher critic score, then most recently updated,
// then the oldest row wins as a stable tiebreak.
func sortDuplicates(group []catalog.Game) {
	sort.Slice(group, func(i, j int) bool {
		a, b := group[i], group[j]
		if (a.ImageURL != "") != (b.ImageURL != "") {
			return a.ImageURL != ""
		}
		as, bs := scoreOrZero(a), scoreOrZero(b)
		if as != bs {
			return as > bs
		}
		if !a.LastUpdated.Equal(b.LastUpdated) {
			return a.LastUpdated.After(b.LastUpdated)
		}
		return a.ID < b.ID
	})
}

func scoreOrZero(g catalog.Game) int {
	if g.MetacriticScore == nil {
		return 0
	}
	return *g.MetacriticScore
}

// recordFromGame projects a duplicate into a record targeted at the keeper,
// carrying only the fields the keeper is missing. The store's merge overwrites
// with any non-empty incoming value, so a blanket projection would let the
// duplicate's worse score or stale source replace the keeper's.
func recordFromGame(keeper, dup catalog.Game) catalog.Record {
	rec := catalog.Record{Title: keeper.Title, Genres: dup.Genres}
	if keeper.Description == "" {
		rec.Description = dup.Description
	}
	if keeper.Publisher == "" {
		rec.Publisher = dup.Publisher
	}
	if keeper.Developer == "" {
		rec.Developer = dup.Developer
	}
	if keeper.AgeRating == "" {
		rec.AgeRating = dup.AgeRating
	}
	if keeper.ImageURL == "" {
		rec.ImageURL = dup.ImageURL
	}
	if keeper.SourceURL == "" {
		rec.SourceURL = dup.SourceURL
	}
	if keeper.SourceName == "" {
		rec.SourceName = dup.SourceName
	}
	if keeper.ReleaseDate == nil {
		rec.ReleaseDate = dup.ReleaseDate
	}
	if keeper.MetacriticScore == nil {
		rec.Metascore = dup.MetacriticScore
	}
	if keeper.UserScore == nil {
		rec.UserScore = dup.UserScore
	}
	if len(dup.Platforms) > 0 {
		rec.Platform = dup.Platforms[0]
	}
	return rec
}

func restPlatforms(dup catalog.Game) []string {
	if len(dup.Platforms) < 2 {
		return nil
	}
	return dup.Platforms[1:]
}
