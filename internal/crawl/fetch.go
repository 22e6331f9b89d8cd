// Package crawl drives per-source crawl jobs: fetching pages through a
// Fetcher, parsing them with the source's extractor, and streaming records
// into the catalog while tracking job state.
package crawl

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// FetchRequest is one outbound page fetch.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the raw result of a page fetch.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Fetcher retrieves one page. Implementations must honor context
// cancellation and carry their own request timeout.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error)
}

// StatusError reports a non-2xx HTTP response from an upstream site.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Code)
}
