package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/playdex/catalog-crawler/internal/catalog"
)

func TestUpsertCreatesThenMerges(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	g1, err := s.Upsert(ctx, catalog.Record{
		Title:     "The Witcher 3: Wild Hunt",
		Platform:  "PC",
		Publisher: "CD Projekt",
	})
	require.NoError(t, err)
	require.NotZero(t, g1.ID)
	require.Equal(t, []string{"PC"}, g1.Platforms)

	g2, err := s.Upsert(ctx, catalog.Record{
		Title:      "The Witcher 3: Wild Hunt",
		Platform:   "PS4",
		Publisher:  "",
		SourceName: "opencritic",
	})
	require.NoError(t, err)
	require.Equal(t, g1.ID, g2.ID)
	require.Equal(t, "CD Projekt", g2.Publisher)
	require.ElementsMatch(t, []string{"PC", "PS4"}, g2.Platforms)
	require.Equal(t, "opencritic", g2.SourceName)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestUpsertIdempotent(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	rec := catalog.Record{Title: "Hades", Platform: "Switch", Developer: "Supergiant Games"}

	g1, err := s.Upsert(ctx, rec)
	require.NoError(t, err)
	g2, err := s.Upsert(ctx, rec)
	require.NoError(t, err)

	require.Equal(t, g1.ID, g2.ID)
	require.Equal(t, g1.Platforms, g2.Platforms)
	require.Equal(t, g1.Developer, g2.Developer)
}

func TestUpsertConcurrentSameTitle(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Upsert(ctx, catalog.Record{Title: "Celeste", Platform: "PC"})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestSourceRoundTrip(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	src, err := s.UpsertSource(ctx, catalog.Source{Name: "metacritic", BaseURL: "https://example.com", IsActive: true})
	require.NoError(t, err)
	require.NotZero(t, src.ID)

	byName, err := s.GetSourceByName(ctx, "metacritic")
	require.NoError(t, err)
	require.Equal(t, src.ID, byName.ID)

	// Re-upserting by name keeps the ID.
	src.BaseURL = "https://example.com/games"
	again, err := s.UpsertSource(ctx, src)
	require.NoError(t, err)
	require.Equal(t, src.ID, again.ID)

	now := time.Now().UTC()
	require.NoError(t, s.TouchLastRun(ctx, src.ID, now))
	got, err := s.GetSource(ctx, src.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRunAt)
	require.Equal(t, now, *got.LastRunAt)

	active, err := s.ListActiveSources(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
}

func TestJobLifecycleAndRetention(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	old := catalog.Job{ID: "job-old", SourceID: 1, Status: catalog.JobStatusCompleted, StartedAt: time.Now().Add(-40 * 24 * time.Hour)}
	fresh := catalog.Job{ID: "job-new", SourceID: 1, Status: catalog.JobStatusRunning, StartedAt: time.Now()}
	require.NoError(t, s.CreateJob(ctx, old))
	require.NoError(t, s.CreateJob(ctx, fresh))

	require.NoError(t, s.RecordError(ctx, catalog.JobError{JobID: "job-old", URL: "https://x", Kind: catalog.ErrKindUpstreamFormat}))

	removed, err := s.DeleteJobsBefore(ctx, time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = s.GetJob(ctx, "job-old")
	require.ErrorIs(t, err, catalog.ErrNotFound)

	errs, err := s.ListErrors(ctx, "job-old")
	require.NoError(t, err)
	require.Empty(t, errs)

	got, err := s.GetJob(ctx, "job-new")
	require.NoError(t, err)
	require.Equal(t, catalog.JobStatusRunning, got.Status)
}

func TestImageCacheListing(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	g, err := s.Upsert(ctx, catalog.Record{Title: "Stray", Platform: "PS5"})
	require.NoError(t, err)

	missing, err := s.ListMissingImageCache(ctx, 10)
	require.NoError(t, err)
	require.Len(t, missing, 1)

	entry, err := s.GetOrCreate(ctx, "Stray_1")
	require.NoError(t, err)
	require.NoError(t, s.SetCachedImage(ctx, g.ID, entry.ID))

	missing, err = s.ListMissingImageCache(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, missing)

	// Never-verified rows count as stale.
	stale, err := s.ListStaleImageCache(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)

	now := time.Now().UTC()
	entry.IsVerified = true
	entry.PrimaryURL = "https://img.example/stray.jpg"
	entry.LastVerifiedAt = &now
	require.NoError(t, s.Update(ctx, entry))

	stale, err = s.ListStaleImageCache(ctx, now.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Empty(t, stale)
}
