package imaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const (
	defaultIGDBAuthURL = "https://id.twitch.tv/oauth2/token"
	defaultIGDBAPIURL  = "https://api.igdb.com/v4"
	igdbCoverTemplate  = "https://images.igdb.com/igdb/image/upload/t_cover_big/%s.jpg"
)

// IGDBProvider looks up cover art through IGDB, authenticating with Twitch
// client credentials. Lookups are a two-step flow: search the games endpoint
// for a cover ID, then fetch the cover's image ID.
type IGDBProvider struct {
	apiURL string
	client *http.Client
	tokens *tokenCache
	logger *zap.Logger
}

// NewIGDBProvider builds an IGDB lookup provider.
func NewIGDBProvider(clientID, clientSecret string, client *http.Client, logger *zap.Logger) *IGDBProvider {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IGDBProvider{
		apiURL: defaultIGDBAPIURL,
		client: client,
		tokens: newTokenCache(defaultIGDBAuthURL, clientID, clientSecret, client),
		logger: logger,
	}
}

func (p *IGDBProvider) Tag() string { return "igdb" }

type igdbGame struct {
	Name  string `json:"name"`
	Cover int64  `json:"cover"`
}

// Lookup searches IGDB for the title and returns the cover-art URL of the
// best match, or "" when nothing matched.
func (p *IGDBProvider) Lookup(ctx context.Context, title string, year int) (string, error) {
	query := fmt.Sprintf(`search %q; fields name,cover; limit 5;`, title)

	var games []igdbGame
	if err := p.query(ctx, "/games", query, &games); err != nil {
		return "", err
	}

	coverID := pickIGDBCover(title, games)
	if coverID == 0 {
		return "", nil
	}

	var covers []struct {
		ImageID string `json:"image_id"`
	}
	coverQuery := fmt.Sprintf("fields image_id; where id = %d;", coverID)
	if err := p.query(ctx, "/covers", coverQuery, &covers); err != nil {
		return "", err
	}
	if len(covers) == 0 || covers[0].ImageID == "" {
		return "", nil
	}
	return fmt.Sprintf(igdbCoverTemplate, covers[0].ImageID), nil
}

// query posts an APIcalypse query, re-authenticating once on 401.
func (p *IGDBProvider) query(ctx context.Context, path, body string, out any) error {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := p.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("igdb auth: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+path, strings.NewReader(body))
		if err != nil {
			return fmt.Errorf("build igdb request: %w", err)
		}
		req.Header.Set("Client-ID", p.tokens.clientID)
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := p.client.Do(req)
		if err != nil {
			return fmt.Errorf("igdb query %s: %w", path, err)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			p.tokens.Invalidate()
			p.logger.Debug("igdb token rejected, re-authenticating")
			continue
		}

		err = decodeIGDBResponse(resp, path, out)
		resp.Body.Close()
		return err
	}
	return fmt.Errorf("igdb query %s: unauthorized after re-auth", path)
}

func decodeIGDBResponse(resp *http.Response, path string, out any) error {
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("igdb query %s returned %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode igdb response: %w", err)
	}
	return nil
}

func pickIGDBCover(title string, games []igdbGame) int64 {
	want := strings.ToLower(title)
	for _, g := range games {
		if strings.ToLower(g.Name) == want && g.Cover != 0 {
			return g.Cover
		}
	}
	for _, g := range games {
		if g.Cover != 0 {
			return g.Cover
		}
	}
	return 0
}

// SetEndpoints overrides the auth and API endpoints, used by tests.
func (p *IGDBProvider) SetEndpoints(authURL, apiURL string) {
	p.tokens.authURL = authURL
	p.apiURL = apiURL
}
