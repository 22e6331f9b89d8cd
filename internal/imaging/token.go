package imaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// tokenRefreshMargin forces a refresh shortly before the upstream expiry so
// in-flight requests never race an expiring token.
const tokenRefreshMargin = 100 * time.Second

// tokenCache holds an OAuth client-credentials token and refreshes it when
// it is close to expiry. It is safe for concurrent use.
type tokenCache struct {
	authURL      string
	clientID     string
	clientSecret string
	client       *http.Client
	now          func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func newTokenCache(authURL, clientID, clientSecret string, client *http.Client) *tokenCache {
	if client == nil {
		client = http.DefaultClient
	}
	return &tokenCache{
		authURL:      authURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       client,
		now:          time.Now,
	}
}

// Token returns a valid access token, authenticating when the cached one is
// missing or within the refresh margin of expiry.
func (t *tokenCache) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && t.now().Add(tokenRefreshMargin).Before(t.expires) {
		return t.token, nil
	}
	return t.refreshLocked(ctx)
}

// Invalidate discards the cached token so the next Token call re-authenticates.
// Called when the upstream rejects a request with 401.
func (t *tokenCache) Invalidate() {
	t.mu.Lock()
	t.token = ""
	t.mu.Unlock()
}

func (t *tokenCache) refreshLocked(ctx context.Context) (string, error) {
	form := url.Values{
		"client_id":     {t.clientID},
		"client_secret": {t.clientSecret},
		"grant_type":    {"client_credentials"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned empty access_token")
	}

	t.token = payload.AccessToken
	t.expires = t.now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	return t.token, nil
}
