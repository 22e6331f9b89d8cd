package imaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/playdex/catalog-crawler/internal/catalog"
)

const (
	defaultSerpBaseURL  = "https://serpapi.com/search"
	defaultProbeBaseURL = "https://upload.wikimedia.org/wikipedia/en"
)

// SearchProvider is the last-resort lookup. It probes a few predictable
// Wikipedia upload URL patterns for the title, then falls back to an image
// search API when a key is configured.
type SearchProvider struct {
	serpBaseURL string
	probeBase   string
	serpAPIKey  string
	client      *http.Client
	logger      *zap.Logger
}

// NewSearchProvider builds the fallback search provider. The SERP API key may
// be empty, in which case only the Wikipedia probes run.
func NewSearchProvider(serpAPIKey string, client *http.Client, logger *zap.Logger) *SearchProvider {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchProvider{
		serpBaseURL: defaultSerpBaseURL,
		probeBase:   defaultProbeBaseURL,
		serpAPIKey:  serpAPIKey,
		client:      client,
		logger:      logger,
	}
}

func (p *SearchProvider) Tag() string { return "search" }

// Lookup probes Wikipedia cover URL patterns and then the image search API.
func (p *SearchProvider) Lookup(ctx context.Context, title string, year int) (string, error) {
	for _, candidate := range p.probeURLs(title) {
		if p.probe(ctx, candidate) {
			return candidate, nil
		}
	}
	if p.serpAPIKey == "" {
		return "", nil
	}
	return p.serpSearch(ctx, title, year)
}

// probeURLs lists the upload paths where video game cover art most commonly
// lives. Paths that miss simply 404.
func (p *SearchProvider) probeURLs(title string) []string {
	slug := catalog.TitleSlug(title)
	if slug == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s/%s_cover.jpg", p.probeBase, slug),
		fmt.Sprintf("%s/%s_cover_art.jpg", p.probeBase, slug),
		fmt.Sprintf("%s/%s.jpg", p.probeBase, slug),
	}
}

func (p *SearchProvider) probe(ctx context.Context, rawURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (p *SearchProvider) serpSearch(ctx context.Context, title string, year int) (string, error) {
	q := title + " video game cover art"
	if year > 0 {
		q = fmt.Sprintf("%s %d video game cover art", title, year)
	}
	params := url.Values{
		"engine":  {"google_images"},
		"q":       {q},
		"api_key": {p.serpAPIKey},
		"num":     {"3"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serpBaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build serp request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("serp search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("serp search returned %d", resp.StatusCode)
	}

	var payload struct {
		ImagesResults []struct {
			Original string `json:"original"`
		} `json:"images_results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode serp response: %w", err)
	}
	for _, r := range payload.ImagesResults {
		if strings.TrimSpace(r.Original) != "" {
			return r.Original, nil
		}
	}
	return "", nil
}

// SetEndpoints overrides the probe and search API endpoints, used by tests.
func (p *SearchProvider) SetEndpoints(probeBase, serpBaseURL string) {
	p.probeBase = probeBase
	p.serpBaseURL = serpBaseURL
}
