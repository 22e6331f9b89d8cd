package crawl

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/playdex/catalog-crawler/internal/catalog"
	"github.com/playdex/catalog-crawler/internal/extractor"
	"github.com/playdex/catalog-crawler/internal/metrics"
)

const (
	maxRateLimitRequeues = 2
	maxBackoffDelay      = 30 * time.Second
)

// Config tunes the runner.
type Config struct {
	// Delay is the baseline pause between requests to the same source. It
	// grows when the source rate-limits us.
	Delay time.Duration
	// DefaultItemLimit applies when a crawl is triggered without a limit.
	DefaultItemLimit int
}

// Runner executes crawl jobs one source at a time. Requests within a job are
// sequential and throttled; separate jobs for different sources may run
// concurrently, sharing nothing but the stores.
type Runner struct {
	fetcher  Fetcher
	registry *extractor.Registry
	jobs     catalog.JobStore
	sources  catalog.SourceStore
	games    catalog.GameStore
	clock    catalog.Clock
	ids      catalog.IDGenerator
	cancels  *CancelRegistry
	cfg      Config
	logger   *zap.Logger
	onFinish func(catalog.Job, catalog.Source)
}

// OnFinish registers a hook invoked after every terminal job write, for both
// Run and Start. Set it before any job launches.
func (r *Runner) OnFinish(fn func(catalog.Job, catalog.Source)) {
	r.onFinish = fn
}

// NewRunner wires a Runner.
func NewRunner(
	fetcher Fetcher,
	registry *extractor.Registry,
	jobs catalog.JobStore,
	sources catalog.SourceStore,
	games catalog.GameStore,
	clock catalog.Clock,
	ids catalog.IDGenerator,
	cancels *CancelRegistry,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if cfg.DefaultItemLimit <= 0 {
		cfg.DefaultItemLimit = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		fetcher:  fetcher,
		registry: registry,
		jobs:     jobs,
		sources:  sources,
		games:    games,
		clock:    clock,
		ids:      ids,
		cancels:  cancels,
		cfg:      cfg,
		logger:   logger,
	}
}

// task is one unit of fetch work on the job's queue.
type task struct {
	url       string
	detail    bool
	inherited catalog.Record
	attempts  int
}

// jobState carries everything one running job accumulates.
type jobState struct {
	job       catalog.Job
	src       catalog.Source
	ext       extractor.Extractor
	queue     []task
	limit     int
	delay     time.Duration
	limiter   *rate.Limiter
	started   bool
	fatal     error
	cancelled bool
	// storeCtx survives job cancellation so terminal writes still land.
	storeCtx context.Context
}

// Run crawls one source to completion. The job row is created already in the
// running state; the returned Job is terminal. Run only returns an error when
// the job could not be created at all.
func (r *Runner) Run(ctx context.Context, src catalog.Source, itemLimit int) (catalog.Job, error) {
	s, err := r.prepare(ctx, src, itemLimit)
	if err != nil {
		return catalog.Job{}, err
	}
	return r.execute(ctx, s)
}

// Start launches a crawl in the background, returning the already-running
// job so callers can poll its status. Side effects are identical to Run.
func (r *Runner) Start(ctx context.Context, src catalog.Source, itemLimit int) (catalog.Job, error) {
	s, err := r.prepare(ctx, src, itemLimit)
	if err != nil {
		return catalog.Job{}, err
	}
	job := s.job
	go func() {
		if _, err := r.execute(context.WithoutCancel(ctx), s); err != nil {
			r.logger.Error("background crawl job failed to record final state",
				zap.String("job_id", job.ID), zap.Error(err))
		}
	}()
	return job, nil
}

// prepare validates the source and atomically creates the job row in the
// running state.
func (r *Runner) prepare(ctx context.Context, src catalog.Source, itemLimit int) (*jobState, error) {
	if itemLimit <= 0 {
		itemLimit = r.cfg.DefaultItemLimit
	}
	ext, err := r.registry.Get(src.ExtractorKey)
	if err != nil {
		return nil, err
	}
	jobID, err := r.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate job id: %w", err)
	}

	job := catalog.Job{
		ID:        jobID,
		SourceID:  src.ID,
		Status:    catalog.JobStatusRunning,
		StartedAt: r.clock.Now(),
	}
	if err := r.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	return &jobState{
		job:      job,
		src:      src,
		ext:      ext,
		limit:    itemLimit,
		delay:    r.cfg.Delay,
		limiter:  newLimiter(src.RequestsPerMinute),
		storeCtx: context.WithoutCancel(ctx),
		queue:    []task{{url: ext.StartURL(src.BaseURL)}},
	}, nil
}

func (r *Runner) execute(ctx context.Context, s *jobState) (catalog.Job, error) {
	metrics.IncActiveJobs()
	defer metrics.DecActiveJobs()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if r.cancels != nil {
		r.cancels.register(s.job.ID, cancel)
		defer r.cancels.unregister(s.job.ID)
	}

	r.logger.Info("crawl job started",
		zap.String("job_id", s.job.ID),
		zap.String("source", s.src.Name),
		zap.Int("item_limit", s.limit))

	r.drain(runCtx, s)
	return r.finish(s)
}

func newLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1)
}

func (r *Runner) drain(ctx context.Context, s *jobState) {
	for len(s.queue) > 0 {
		// Cancellation is checked between fetches.
		if ctx.Err() != nil {
			s.cancelled = true
			return
		}
		t := s.queue[0]
		s.queue = s.queue[1:]

		if err := r.throttle(ctx, s); err != nil {
			s.cancelled = true
			return
		}

		resp, err := r.fetch(ctx, t.url)
		if err != nil {
			if ctx.Err() != nil {
				s.cancelled = true
				return
			}
			r.handleFetchError(s, t, err)
			if s.fatal != nil {
				return
			}
			continue
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
		if err != nil {
			r.recordError(s, t.url, catalog.ErrKindUpstreamFormat, err)
			if !t.detail && s.job.ItemsDiscovered == 0 {
				s.fatal = err
				return
			}
			continue
		}

		if t.detail {
			r.processDetail(s, t, doc)
			continue
		}
		if err := r.processListing(s, t, doc); err != nil && s.job.ItemsDiscovered == 0 {
			s.fatal = err
			return
		}
	}
}

// throttle enforces the source's requests-per-minute budget plus the
// inter-request delay. The first request of a job skips the delay.
func (r *Runner) throttle(ctx context.Context, s *jobState) error {
	start := time.Now()
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	if s.started && s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	s.started = true
	metrics.ObserveRateLimitDelay(s.src.Name, time.Since(start))
	return nil
}

// fetch retrieves a page, retrying once on a transient network failure.
func (r *Runner) fetch(ctx context.Context, url string) (FetchResponse, error) {
	resp, err := r.fetcher.Fetch(ctx, FetchRequest{URL: url})
	if err == nil {
		return resp, nil
	}
	if retryable(classifyFetchError(err)) && ctx.Err() == nil {
		r.logger.Debug("retrying fetch after transient error", zap.String("url", url), zap.Error(err))
		return r.fetcher.Fetch(ctx, FetchRequest{URL: url})
	}
	return FetchResponse{}, err
}

func (r *Runner) handleFetchError(s *jobState, t task, err error) {
	kind := classifyFetchError(err)

	if kind == catalog.ErrKindRateLimited {
		// Back off instead of aborting; the task goes to the end of the
		// queue with the now-longer delay.
		s.delay = nextBackoff(s.delay)
		r.logger.Warn("source rate limited, backing off",
			zap.String("source", s.src.Name),
			zap.Duration("delay", s.delay))
		if t.attempts < maxRateLimitRequeues {
			t.attempts++
			s.queue = append(s.queue, t)
			return
		}
	}

	r.recordError(s, t.url, kind, err)
	if !t.detail && s.job.ItemsDiscovered == 0 {
		// Could not fetch the start page at all.
		s.fatal = err
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	if d *= 2; d > maxBackoffDelay {
		return maxBackoffDelay
	}
	return d
}

func (r *Runner) processListing(s *jobState, t task, doc *goquery.Document) error {
	res, err := s.ext.ParseListing(doc, t.url, s.limit-s.job.ItemsDiscovered)
	if err != nil {
		r.recordError(s, t.url, catalog.ErrKindUpstreamFormat, err)
		return err
	}

	// Ranks restart per page; shift them by what earlier pages found.
	offset := s.job.ItemsDiscovered
	for i := range res.Records {
		res.Records[i].Rank += offset
	}
	for i := range res.Follows {
		res.Follows[i].Inherited.Rank += offset
	}

	count := len(res.Records) + len(res.Follows)
	s.job.ItemsDiscovered += count
	for i := 0; i < count; i++ {
		metrics.ObserveItem(s.src.Name)
	}

	for _, rec := range res.Records {
		r.save(s, t.url, rec)
	}
	for _, f := range res.Follows {
		s.queue = append(s.queue, task{url: f.URL, detail: true, inherited: f.Inherited})
	}
	if res.NextPage != "" && s.job.ItemsDiscovered < s.limit {
		s.queue = append(s.queue, task{url: res.NextPage})
	}
	return nil
}

func (r *Runner) processDetail(s *jobState, t task, doc *goquery.Document) {
	rec, err := s.ext.ParseDetail(doc, t.url, t.inherited)
	if err != nil {
		r.recordError(s, t.url, catalog.ErrKindUpstreamFormat, err)
		return
	}
	r.save(s, t.url, rec)
}

func (r *Runner) save(s *jobState, url string, rec catalog.Record) {
	if _, err := r.games.Upsert(s.storeCtx, rec); err != nil {
		metrics.ObserveUpsert("error")
		r.recordError(s, url, catalog.ErrKindFatal, err)
		return
	}
	metrics.ObserveUpsert("ok")
	s.job.ItemsSaved++
}

func (r *Runner) recordError(s *jobState, url string, kind catalog.ErrorKind, cause error) {
	metrics.ObserveItemError(s.src.Name, string(kind))
	jobErr := catalog.JobError{
		JobID:     s.job.ID,
		URL:       url,
		Kind:      kind,
		Message:   cause.Error(),
		Timestamp: r.clock.Now(),
	}
	if err := r.jobs.RecordError(s.storeCtx, jobErr); err != nil {
		r.logger.Warn("failed to record job error", zap.String("job_id", s.job.ID), zap.Error(err))
	}
}

// finish writes the terminal job state. Completed jobs also stamp the
// source's last run time.
func (r *Runner) finish(s *jobState) (catalog.Job, error) {
	now := r.clock.Now()
	s.job.CompletedAt = &now

	switch {
	case s.cancelled:
		s.job.Status = catalog.JobStatusFailed
		s.job.ErrorSummary = "job cancelled"
		r.recordError(s, s.ext.StartURL(s.src.BaseURL), catalog.ErrKindCancelled, fmt.Errorf("job cancelled"))
	case s.fatal != nil:
		s.job.Status = catalog.JobStatusFailed
		s.job.ErrorSummary = s.fatal.Error()
	default:
		s.job.Status = catalog.JobStatusCompleted
	}

	if err := r.jobs.UpdateJob(s.storeCtx, s.job); err != nil {
		return s.job, fmt.Errorf("update job %s: %w", s.job.ID, err)
	}
	metrics.ObserveJob(string(s.job.Status))

	if s.job.Status == catalog.JobStatusCompleted {
		if err := r.sources.TouchLastRun(s.storeCtx, s.src.ID, now); err != nil {
			r.logger.Warn("failed to stamp source last run",
				zap.String("source", s.src.Name), zap.Error(err))
		}
	}

	r.logger.Info("crawl job finished",
		zap.String("job_id", s.job.ID),
		zap.String("source", s.src.Name),
		zap.String("status", string(s.job.Status)),
		zap.Int("items_discovered", s.job.ItemsDiscovered),
		zap.Int("items_saved", s.job.ItemsSaved))

	if r.onFinish != nil {
		r.onFinish(s.job, s.src)
	}
	return s.job, nil
}
