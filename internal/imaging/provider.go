package imaging

import "context"

// Provider answers a single cover lookup for a title. Implementations return
// an empty URL (with a nil error) when they simply have no match; errors are
// reserved for transport or upstream failures.
type Provider interface {
	// Tag identifies the provider in cache entries and metrics.
	Tag() string
	// Lookup returns a candidate cover URL for the title, or "" when the
	// provider has no match. Year is 0 when the release year is unknown.
	Lookup(ctx context.Context, title string, year int) (string, error)
}
