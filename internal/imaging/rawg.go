package imaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const defaultRAWGBaseURL = "https://api.rawg.io/api"

// RAWGProvider looks up cover art through the RAWG games database API.
type RAWGProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewRAWGProvider builds a RAWG lookup provider. The API key may be empty;
// RAWG serves a limited anonymous quota.
func NewRAWGProvider(apiKey string, client *http.Client, logger *zap.Logger) *RAWGProvider {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RAWGProvider{baseURL: defaultRAWGBaseURL, apiKey: apiKey, client: client, logger: logger}
}

func (p *RAWGProvider) Tag() string { return "rawg" }

type rawgResult struct {
	Name            string `json:"name"`
	BackgroundImage string `json:"background_image"`
}

// Lookup searches RAWG for the title and picks the best match: an exact
// case-insensitive name match first, then a substring match in either
// direction, then the first result.
func (p *RAWGProvider) Lookup(ctx context.Context, title string, year int) (string, error) {
	q := url.Values{
		"search":    {title},
		"page_size": {"5"},
	}
	if p.apiKey != "" {
		q.Set("key", p.apiKey)
	}
	if year > 0 {
		q.Set("dates", fmt.Sprintf("%d-01-01,%d-12-31", year, year))
	}

	endpoint := fmt.Sprintf("%s/games?%s", p.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build rawg request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("rawg search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("rawg search returned %d", resp.StatusCode)
	}

	var payload struct {
		Results []rawgResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode rawg response: %w", err)
	}
	if len(payload.Results) == 0 {
		return "", nil
	}

	best := pickRAWGMatch(title, payload.Results)
	if best.BackgroundImage == "" {
		p.logger.Debug("rawg match has no image", zap.String("title", title), zap.String("match", best.Name))
		return "", nil
	}
	return best.BackgroundImage, nil
}

func pickRAWGMatch(title string, results []rawgResult) rawgResult {
	want := strings.ToLower(title)
	for _, r := range results {
		if strings.ToLower(r.Name) == want {
			return r
		}
	}
	for _, r := range results {
		got := strings.ToLower(r.Name)
		if strings.Contains(got, want) || strings.Contains(want, got) {
			return r
		}
	}
	return results[0]
}

// SetBaseURL overrides the API endpoint, used by tests.
func (p *RAWGProvider) SetBaseURL(u string) { p.baseURL = u }
