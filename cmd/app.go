package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/playdex/catalog-crawler/internal/catalog"
	"github.com/playdex/catalog-crawler/internal/clock/system"
	"github.com/playdex/catalog-crawler/internal/config"
	"github.com/playdex/catalog-crawler/internal/crawl"
	"github.com/playdex/catalog-crawler/internal/extractor"
	collyfetcher "github.com/playdex/catalog-crawler/internal/fetcher/colly"
	"github.com/playdex/catalog-crawler/internal/id/uuid"
	"github.com/playdex/catalog-crawler/internal/imaging"
	"github.com/playdex/catalog-crawler/internal/logging"
	"github.com/playdex/catalog-crawler/internal/publisher/pubsub"
	"github.com/playdex/catalog-crawler/internal/service"
	"github.com/playdex/catalog-crawler/internal/storage/memory"
	"github.com/playdex/catalog-crawler/internal/storage/postgres"
)

// stores is the union of persistence interfaces the pipeline needs; both the
// memory and Postgres implementations satisfy all of them.
type stores interface {
	catalog.SourceStore
	catalog.JobStore
	catalog.GameStore
	catalog.ImageStore
}

// app bundles everything the subcommands run against.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	store   stores
	svc     *service.Service
	closers []func()
}

// Close releases resources in reverse construction order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp loads configuration and wires the full pipeline.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	clock := system.New()
	if err := a.buildStore(ctx, clock); err != nil {
		a.Close()
		return nil, err
	}

	pub, err := a.buildPublisher(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: true,
		Timeout:       cfg.CrawlTimeout(),
	})
	cancels := crawl.NewCancelRegistry()

	runner := crawl.NewRunner(
		fetcher,
		extractor.Default(),
		a.store, a.store, a.store,
		clock,
		uuid.New(),
		cancels,
		crawl.Config{
			Delay:            time.Duration(cfg.Crawler.DelaySeconds) * time.Second,
			DefaultItemLimit: cfg.Crawler.DefaultItemLimit,
		},
		logger.Named("crawl"),
	)

	images := a.buildImageCache(clock)

	a.svc = service.New(
		a.store, a.store, a.store,
		runner,
		cancels,
		images,
		pub,
		clock,
		service.Config{
			MaxConcurrentCrawls: cfg.Crawler.MaxConcurrent,
			JobRetention:        time.Duration(cfg.Retention.JobDays) * 24 * time.Hour,
			CompletionTopic:     cfg.PubSub.TopicName,
		},
		logger.Named("service"),
	)

	if err := seedSources(ctx, a.store); err != nil {
		a.Close()
		return nil, fmt.Errorf("seed sources: %w", err)
	}
	return a, nil
}

func (a *app) buildStore(ctx context.Context, clock catalog.Clock) error {
	switch a.cfg.DB.Provider {
	case "postgres":
		pg, err := postgres.New(ctx, postgres.Config{
			DSN:      a.cfg.DB.DSN,
			MaxConns: a.cfg.DB.MaxConns,
			MinConns: a.cfg.DB.MinConns,
		}, clock)
		if err != nil {
			return fmt.Errorf("init postgres: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return err
		}
		a.store = pg
		a.closers = append(a.closers, pg.Close)
	default:
		a.store = memory.NewWithClock(clock)
	}
	return nil
}

func (a *app) buildPublisher(ctx context.Context) (catalog.Publisher, error) {
	if a.cfg.PubSub.Provider != "pubsub" {
		return nil, nil
	}
	client, err := gpubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("init pubsub client: %w", err)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	return pubsub.New(client), nil
}

func (a *app) buildImageCache(clock catalog.Clock) *imaging.Cache {
	logger := a.logger.Named("imaging")
	httpClient := &http.Client{Timeout: time.Duration(a.cfg.Images.TimeoutSeconds) * time.Second}

	verifier := imaging.NewVerifier(httpClient,
		time.Duration(a.cfg.Images.TimeoutSeconds)*time.Second, logger)
	providers := []imaging.Provider{
		imaging.NewRAWGProvider(a.cfg.Images.RAWGAPIKey, httpClient, logger),
		imaging.NewIGDBProvider(a.cfg.Images.IGDBClientID, a.cfg.Images.IGDBClientSecret, httpClient, logger),
		imaging.NewSearchProvider(a.cfg.Images.SerpAPIKey, httpClient, logger),
	}
	resolver := imaging.NewResolver(verifier, providers, logger)

	return imaging.NewCache(a.store, a.store, resolver, clock, imaging.CacheConfig{
		Staleness:         a.cfg.StalenessWindow(),
		VerifyBatchSize:   a.cfg.Images.VerifyBatchSize,
		VerifyConcurrency: a.cfg.Images.VerifyConcurrency,
	}, logger)
}

// seedSources registers the built-in sources, preserving last-run state for
// rows that already exist.
func seedSources(ctx context.Context, store catalog.SourceStore) error {
	defaults := []catalog.Source{
		{Name: "metacritic", ExtractorKey: "metacritic", RequestsPerMinute: 30, IsActive: true},
		{Name: "gamespot", ExtractorKey: "gamespot", RequestsPerMinute: 30, IsActive: true},
		{Name: "opencritic", ExtractorKey: "opencritic", RequestsPerMinute: 20, IsActive: true},
	}
	for _, src := range defaults {
		if _, err := store.UpsertSource(ctx, src); err != nil {
			return fmt.Errorf("seed source %s: %w", src.Name, err)
		}
	}
	return nil
}
