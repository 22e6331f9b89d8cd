package imaging

import (
	"context"
	"errors"
	"net"

	"go.uber.org/zap"

	"github.com/playdex/catalog-crawler/internal/metrics"
)

// maxCandidates bounds how many verified URLs a single resolution collects.
const maxCandidates = 3

// Candidate is a verified image URL and the provider tag that produced it.
type Candidate struct {
	URL       string
	SourceTag string
}

// Resolver walks an ordered provider chain and collects verified candidates.
type Resolver struct {
	verifier  *Verifier
	providers []Provider
	logger    *zap.Logger
}

// NewResolver builds a Resolver over the given providers. Provider order is
// resolution order.
func NewResolver(verifier *Verifier, providers []Provider, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{verifier: verifier, providers: providers, logger: logger}
}

// Resolve returns up to maxCandidates verified cover URLs for a title, in
// provider order. An already-known URL is checked first so a still-valid
// existing image stays primary. Provider failures are logged and skipped;
// Resolve only fails to produce candidates, never returns an error.
func (r *Resolver) Resolve(ctx context.Context, title string, year int, existingURL string) []Candidate {
	var out []Candidate
	seen := make(map[string]bool)

	add := func(rawURL, tag string) {
		if rawURL == "" || seen[rawURL] {
			return
		}
		if !r.verifier.Verify(ctx, rawURL) {
			r.logger.Debug("candidate failed verification",
				zap.String("title", title), zap.String("provider", tag), zap.String("url", rawURL))
			return
		}
		seen[rawURL] = true
		out = append(out, Candidate{URL: rawURL, SourceTag: tag})
	}

	add(existingURL, "existing")

	for _, p := range r.providers {
		if len(out) >= maxCandidates || ctx.Err() != nil {
			break
		}
		u, err := r.lookup(ctx, p, title, year)
		if err != nil {
			r.logger.Warn("provider lookup failed",
				zap.String("title", title), zap.String("provider", p.Tag()), zap.Error(err))
			continue
		}
		add(u, p.Tag())
	}

	if len(out) > 0 {
		metrics.ObserveResolution(out[0].SourceTag)
	}
	return out
}

// lookup calls the provider, retrying once on a transient network error.
func (r *Resolver) lookup(ctx context.Context, p Provider, title string, year int) (string, error) {
	u, err := p.Lookup(ctx, title, year)
	if err == nil || !isTransient(err) || ctx.Err() != nil {
		return u, err
	}
	r.logger.Debug("retrying provider after transient error",
		zap.String("provider", p.Tag()), zap.Error(err))
	return p.Lookup(ctx, title, year)
}

func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
