// Package scheduler runs the periodic pipeline triggers: the nightly crawl
// pass, the image verification pass, and the retention sweep with its
// catalog dedupe.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/playdex/catalog-crawler/internal/catalog"
)

// Tasks is the slice of the service layer the scheduler drives.
type Tasks interface {
	RunAllCrawls(ctx context.Context, itemLimitPerSource int) ([]catalog.Job, error)
	VerifyImages(ctx context.Context) (verified, unverified int, err error)
	SweepJobs(ctx context.Context) (int, error)
	DedupeGames(ctx context.Context) (int, error)
}

// Config holds the cron specs. An empty spec disables that trigger.
type Config struct {
	CrawlSpec  string
	VerifySpec string
	SweepSpec  string
	// ItemLimit caps how many items each scheduled crawl takes per source.
	ItemLimit int
}

// Scheduler owns the cron loop.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// New registers the configured triggers. Jobs run with a background context
// so an in-flight pass survives scheduler shutdown.
func New(tasks Tasks, cfg Config, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := cron.New()

	if cfg.CrawlSpec != "" {
		_, err := c.AddFunc(cfg.CrawlSpec, func() {
			jobs, err := tasks.RunAllCrawls(context.Background(), cfg.ItemLimit)
			if err != nil {
				logger.Warn("scheduled crawl pass had failures", zap.Error(err))
			}
			logger.Info("scheduled crawl pass finished", zap.Int("jobs", len(jobs)))
		})
		if err != nil {
			return nil, fmt.Errorf("parse crawl spec: %w", err)
		}
	}

	if cfg.VerifySpec != "" {
		_, err := c.AddFunc(cfg.VerifySpec, func() {
			verified, unverified, err := tasks.VerifyImages(context.Background())
			if err != nil {
				logger.Warn("scheduled image verification failed", zap.Error(err))
				return
			}
			logger.Info("scheduled image verification finished",
				zap.Int("verified", verified), zap.Int("unverified", unverified))
		})
		if err != nil {
			return nil, fmt.Errorf("parse verify spec: %w", err)
		}
	}

	if cfg.SweepSpec != "" {
		_, err := c.AddFunc(cfg.SweepSpec, func() {
			removed, err := tasks.SweepJobs(context.Background())
			if err != nil {
				logger.Warn("scheduled job sweep failed", zap.Error(err))
				return
			}
			deduped, err := tasks.DedupeGames(context.Background())
			if err != nil {
				logger.Warn("scheduled catalog dedupe failed", zap.Error(err))
				return
			}
			logger.Info("scheduled maintenance finished",
				zap.Int("jobs_removed", removed), zap.Int("games_deduped", deduped))
		})
		if err != nil {
			return nil, fmt.Errorf("parse sweep spec: %w", err)
		}
	}

	return &Scheduler{cron: c, logger: logger}, nil
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}
