package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/playdex/catalog-crawler/internal/catalog"
)

type countingTasks struct {
	crawls  atomic.Int64
	verifys atomic.Int64
	sweeps  atomic.Int64
	dedupes atomic.Int64
}

func (c *countingTasks) RunAllCrawls(context.Context, int) ([]catalog.Job, error) {
	c.crawls.Add(1)
	return nil, nil
}

func (c *countingTasks) VerifyImages(context.Context) (int, int, error) {
	c.verifys.Add(1)
	return 0, 0, nil
}

func (c *countingTasks) SweepJobs(context.Context) (int, error) {
	c.sweeps.Add(1)
	return 0, nil
}

func (c *countingTasks) DedupeGames(context.Context) (int, error) {
	c.dedupes.Add(1)
	return 0, nil
}

func TestSchedulerFiresConfiguredTriggers(t *testing.T) {
	t.Parallel()
	tasks := &countingTasks{}
	s, err := New(tasks, Config{
		CrawlSpec:  "@every 10ms",
		VerifySpec: "@every 10ms",
		SweepSpec:  "@every 10ms",
	}, nil)
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return tasks.crawls.Load() > 0 && tasks.verifys.Load() > 0 &&
			tasks.sweeps.Load() > 0 && tasks.dedupes.Load() > 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSchedulerSkipsEmptySpecs(t *testing.T) {
	t.Parallel()
	tasks := &countingTasks{}
	s, err := New(tasks, Config{VerifySpec: "@every 10ms"}, nil)
	require.NoError(t, err)

	s.Start()
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	require.Zero(t, tasks.crawls.Load())
	require.Positive(t, tasks.verifys.Load())
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	t.Parallel()
	_, err := New(&countingTasks{}, Config{CrawlSpec: "not a cron spec"}, nil)
	require.Error(t, err)
}
