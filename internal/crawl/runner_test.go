package crawl

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/playdex/catalog-crawler/internal/catalog"
	"github.com/playdex/catalog-crawler/internal/clock/system"
	"github.com/playdex/catalog-crawler/internal/extractor"
	"github.com/playdex/catalog-crawler/internal/id/uuid"
	"github.com/playdex/catalog-crawler/internal/storage/memory"
)

// stubFetcher serves canned pages keyed by URL.
type stubFetcher struct {
	mu       sync.Mutex
	pages    map[string]string
	failWith map[string]error
	failOnce map[string]error
	perCall  time.Duration
	calls    []string
}

func (f *stubFetcher) Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error) {
	if f.perCall > 0 {
		select {
		case <-ctx.Done():
			return FetchResponse{}, ctx.Err()
		case <-time.After(f.perCall):
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.URL)

	if err, ok := f.failOnce[req.URL]; ok {
		delete(f.failOnce, req.URL)
		return FetchResponse{}, err
	}
	if err, ok := f.failWith[req.URL]; ok {
		return FetchResponse{}, err
	}
	html, ok := f.pages[req.URL]
	if !ok {
		return FetchResponse{}, &StatusError{Code: http.StatusNotFound, URL: req.URL}
	}
	return FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(html)}, nil
}

// scriptedExtractor yields a fixed set of detail follows and fails detail
// parsing for chosen URLs.
type scriptedExtractor struct {
	detailURLs []string
	failDetail map[string]bool
}

func (s *scriptedExtractor) Key() string { return "scripted" }

func (s *scriptedExtractor) StartURL(baseURL string) string {
	if baseURL != "" {
		return baseURL
	}
	return "https://src.example/listing"
}

func (s *scriptedExtractor) ParseListing(doc *goquery.Document, pageURL string, remaining int) (extractor.ListingResult, error) {
	var res extractor.ListingResult
	for i, u := range s.detailURLs {
		if len(res.Follows) >= remaining {
			break
		}
		res.Follows = append(res.Follows, extractor.FollowLink{
			URL:       u,
			Inherited: catalog.Record{Title: fmt.Sprintf("Game %d", i+1), Platform: "PC", SourceName: "Scripted", Rank: i + 1},
		})
	}
	return res, nil
}

func (s *scriptedExtractor) ParseDetail(doc *goquery.Document, pageURL string, inherited catalog.Record) (catalog.Record, error) {
	if s.failDetail[pageURL] {
		return catalog.Record{}, fmt.Errorf("layout changed at %s", pageURL)
	}
	return inherited, nil
}

func newTestRunner(t *testing.T, f Fetcher, ext extractor.Extractor, cancels *CancelRegistry) (*Runner, *memory.Store) {
	t.Helper()
	store := memory.New()
	r := NewRunner(
		f,
		extractor.NewRegistry(ext),
		store, store, store,
		system.New(),
		uuid.New(),
		cancels,
		Config{DefaultItemLimit: 100},
		zap.NewNop(),
	)
	return r, store
}

func seedSource(t *testing.T, store *memory.Store, key string) catalog.Source {
	t.Helper()
	src, err := store.UpsertSource(context.Background(), catalog.Source{
		Name:         key,
		ExtractorKey: key,
		IsActive:     true,
	})
	require.NoError(t, err)
	return src
}

func TestRunCompletesWithPartialFailures(t *testing.T) {
	t.Parallel()
	ext := &scriptedExtractor{
		detailURLs: []string{"https://src.example/d1", "https://src.example/d2", "https://src.example/d3"},
		failDetail: map[string]bool{"https://src.example/d2": true},
	}
	f := &stubFetcher{pages: map[string]string{
		"https://src.example/listing": "<html></html>",
		"https://src.example/d1":      "<html></html>",
		"https://src.example/d2":      "<html></html>",
		"https://src.example/d3":      "<html></html>",
	}}
	r, store := newTestRunner(t, f, ext, nil)
	src := seedSource(t, store, "scripted")

	job, err := r.Run(context.Background(), src, 10)
	require.NoError(t, err)

	require.Equal(t, catalog.JobStatusCompleted, job.Status)
	require.Equal(t, 3, job.ItemsDiscovered)
	require.Equal(t, 2, job.ItemsSaved)
	require.NotNil(t, job.CompletedAt)

	errs, err := store.ListErrors(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	require.Equal(t, catalog.ErrKindUpstreamFormat, errs[0].Kind)
	require.Equal(t, "https://src.example/d2", errs[0].URL)

	// Completed jobs stamp the source's last run.
	got, err := store.GetSource(context.Background(), src.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRunAt)
}

func TestRunFailsWhenStartPageUnreachable(t *testing.T) {
	t.Parallel()
	ext := &scriptedExtractor{}
	f := &stubFetcher{pages: map[string]string{}} // every fetch 404s
	r, store := newTestRunner(t, f, ext, nil)
	src := seedSource(t, store, "scripted")

	job, err := r.Run(context.Background(), src, 10)
	require.NoError(t, err)

	require.Equal(t, catalog.JobStatusFailed, job.Status)
	require.NotEmpty(t, job.ErrorSummary)
	require.Zero(t, job.ItemsDiscovered)

	// Failed jobs never stamp last run.
	got, err := store.GetSource(context.Background(), src.ID)
	require.NoError(t, err)
	require.Nil(t, got.LastRunAt)
}

func TestRunRetriesTransientNetworkErrorOnce(t *testing.T) {
	t.Parallel()
	ext := &scriptedExtractor{detailURLs: []string{"https://src.example/d1"}}
	f := &stubFetcher{
		pages: map[string]string{
			"https://src.example/listing": "<html></html>",
			"https://src.example/d1":      "<html></html>",
		},
		failOnce: map[string]error{
			"https://src.example/listing": context.DeadlineExceeded,
		},
	}
	r, store := newTestRunner(t, f, ext, nil)
	src := seedSource(t, store, "scripted")

	job, err := r.Run(context.Background(), src, 10)
	require.NoError(t, err)
	require.Equal(t, catalog.JobStatusCompleted, job.Status)
	require.Equal(t, 1, job.ItemsSaved)
}

func TestRunBacksOffWhenRateLimited(t *testing.T) {
	t.Parallel()
	ext := &scriptedExtractor{detailURLs: []string{"https://src.example/d1"}}
	f := &stubFetcher{
		pages: map[string]string{
			"https://src.example/listing": "<html></html>",
			"https://src.example/d1":      "<html></html>",
		},
		failOnce: map[string]error{
			"https://src.example/d1": &StatusError{Code: http.StatusTooManyRequests, URL: "https://src.example/d1"},
		},
	}
	r, store := newTestRunner(t, f, ext, nil)
	src := seedSource(t, store, "scripted")

	job, err := r.Run(context.Background(), src, 10)
	require.NoError(t, err)
	require.Equal(t, catalog.JobStatusCompleted, job.Status)
	require.Equal(t, 1, job.ItemsSaved)

	errs, err := store.ListErrors(context.Background(), job.ID)
	require.NoError(t, err)
	require.Empty(t, errs) // the requeued task succeeded
}

func TestRunCancellation(t *testing.T) {
	t.Parallel()
	urls := make([]string, 50)
	pages := map[string]string{"https://src.example/listing": "<html></html>"}
	for i := range urls {
		urls[i] = fmt.Sprintf("https://src.example/d%d", i)
		pages[urls[i]] = "<html></html>"
	}
	ext := &scriptedExtractor{detailURLs: urls}
	f := &stubFetcher{pages: pages, perCall: 20 * time.Millisecond}
	cancels := NewCancelRegistry()
	r, store := newTestRunner(t, f, ext, cancels)
	src := seedSource(t, store, "scripted")

	type result struct {
		job catalog.Job
		err error
	}
	done := make(chan result, 1)
	go func() {
		job, err := r.Run(context.Background(), src, 50)
		done <- result{job, err}
	}()

	// Find the running job and cancel it mid-flight.
	var jobID string
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.calls) < 2 {
			return false
		}
		cancels.mu.Lock()
		defer cancels.mu.Unlock()
		for id := range cancels.byJob {
			jobID = id
			return true
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	require.True(t, cancels.Cancel(jobID))

	res := <-done
	require.NoError(t, res.err)
	job := res.job
	require.Equal(t, catalog.JobStatusFailed, job.Status)
	require.Equal(t, "job cancelled", job.ErrorSummary)
	require.Less(t, job.ItemsSaved, 50)

	errs, err := store.ListErrors(context.Background(), job.ID)
	require.NoError(t, err)
	var cancelledKinds int
	for _, e := range errs {
		if e.Kind == catalog.ErrKindCancelled {
			cancelledKinds++
		}
	}
	require.Equal(t, 1, cancelledKinds)
}

const runnerListingPage1 = `
<html><body><table>
<tr><td class="clamp-summary-wrap">
  <a class="title" href="/game/pc/a"><h3>Alpha</h3></a>
  <div class="metascore_w">90</div>
</td></tr>
<tr><td class="clamp-summary-wrap">
  <a class="title" href="/game/pc/b"><h3>Beta</h3></a>
  <div class="metascore_w">88</div>
</td></tr>
</table>
<a class="action next" href="/listing2"></a>
</body></html>`

const runnerListingPage2 = `
<html><body><table>
<tr><td class="clamp-summary-wrap">
  <a class="title" href="/game/pc/c"><h3>Gamma</h3></a>
  <div class="metascore_w">85</div>
</td></tr>
</table></body></html>`

const runnerDetailPage = `
<html><body>
<div class="details_section">
  <li class="summary_detail publisher"><span class="data"><a>Pub</a></span></li>
</div>
</body></html>`

func TestRunPaginatesWithRealExtractor(t *testing.T) {
	t.Parallel()
	base := "https://www.metacritic.com"
	f := &stubFetcher{pages: map[string]string{
		base + "/listing":   runnerListingPage1,
		base + "/listing2":  runnerListingPage2,
		base + "/game/pc/a": runnerDetailPage,
		base + "/game/pc/b": runnerDetailPage,
		base + "/game/pc/c": runnerDetailPage,
	}}
	store := memory.New()
	r := NewRunner(
		f,
		extractor.Default(),
		store, store, store,
		system.New(),
		uuid.New(),
		nil,
		Config{DefaultItemLimit: 100},
		zap.NewNop(),
	)
	src, err := store.UpsertSource(context.Background(), catalog.Source{
		Name:         "metacritic",
		ExtractorKey: "metacritic",
		BaseURL:      base + "/listing",
		IsActive:     true,
	})
	require.NoError(t, err)

	job, err := r.Run(context.Background(), src, 10)
	require.NoError(t, err)

	require.Equal(t, catalog.JobStatusCompleted, job.Status)
	require.Equal(t, 3, job.ItemsDiscovered)
	require.Equal(t, 3, job.ItemsSaved)
	require.LessOrEqual(t, job.ItemsSaved, job.ItemsDiscovered)

	games, err := store.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, games, 3)

	// Ranks carry across pages.
	byTitle := map[string]catalog.Game{}
	for _, g := range games {
		byTitle[g.Title] = g
	}
	require.Equal(t, "Pub", byTitle["Gamma"].Publisher)
}

func TestRunUnknownExtractorKey(t *testing.T) {
	t.Parallel()
	r, store := newTestRunner(t, &stubFetcher{}, &scriptedExtractor{}, nil)
	src := seedSource(t, store, "scripted")
	src.ExtractorKey = "missing"

	_, err := r.Run(context.Background(), src, 10)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no extractor registered")
}
