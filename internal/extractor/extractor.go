// Package extractor translates raw source pages into catalog records. One
// extractor exists per configured source, all implementing the same small
// capability surface so the crawl runner stays source-agnostic.
package extractor

import (
	"fmt"
	"sort"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/playdex/catalog-crawler/internal/catalog"
)

// FollowLink directs the runner to fetch a detail page. Inherited carries
// fields the listing already knew (title, rank, provisional image); the
// detail parse may overwrite them with richer data.
type FollowLink struct {
	URL       string
	Inherited catalog.Record
}

// ListingResult is everything one listing page yields: records complete
// enough to save directly, detail pages to follow, and the next listing page
// when pagination should continue. NextPage must be empty once the item limit
// is reached.
type ListingResult struct {
	Records  []catalog.Record
	Follows  []FollowLink
	NextPage string
}

// Extractor is the per-source parsing capability.
type Extractor interface {
	// Key matches Source.ExtractorKey.
	Key() string
	// StartURL returns the first listing page, honoring a configured base
	// URL override.
	StartURL(baseURL string) string
	// ParseListing reads one listing page. remaining caps how many new items
	// (records plus follows) it may yield.
	ParseListing(doc *goquery.Document, pageURL string, remaining int) (ListingResult, error)
	// ParseDetail reads one detail page, layered over the inherited record.
	ParseDetail(doc *goquery.Document, pageURL string, inherited catalog.Record) (catalog.Record, error)
}

// Registry maps extractor keys to implementations.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]Extractor
}

// NewRegistry returns a Registry preloaded with the given extractors.
func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{byKey: make(map[string]Extractor)}
	for _, e := range extractors {
		r.Register(e)
	}
	return r
}

// Register adds or replaces an extractor under its key.
func (r *Registry) Register(e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[e.Key()] = e
}

// Get returns the extractor for a key.
func (r *Registry) Get(key string) (Extractor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byKey[key]
	if !ok {
		return nil, fmt.Errorf("no extractor registered for key %q", key)
	}
	return e, nil
}

// Keys lists registered keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.byKey))
	for k := range r.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Default returns a Registry with every built-in extractor registered.
func Default() *Registry {
	return NewRegistry(
		NewMetacritic(),
		NewGameSpot(),
		NewOpenCritic(),
	)
}
