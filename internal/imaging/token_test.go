package imaging

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTokenServer(t *testing.T, expiresIn int64, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "client_credentials", r.FormValue("grant_type"))
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":%d}`, n, expiresIn)
	}))
}

func TestTokenIsCached(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	srv := newTokenServer(t, 3600, &calls)
	defer srv.Close()

	tc := newTokenCache(srv.URL, "id", "secret", nil)

	tok1, err := tc.Token(context.Background())
	require.NoError(t, err)
	tok2, err := tc.Token(context.Background())
	require.NoError(t, err)

	require.Equal(t, tok1, tok2)
	require.Equal(t, int64(1), calls.Load())
}

func TestTokenRefreshesNearExpiry(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	srv := newTokenServer(t, 3600, &calls)
	defer srv.Close()

	tc := newTokenCache(srv.URL, "id", "secret", nil)

	_, err := tc.Token(context.Background())
	require.NoError(t, err)

	// Jump the clock to 50s before expiry, inside the refresh margin.
	tc.now = func() time.Time { return time.Now().Add(3600*time.Second - 50*time.Second) }

	_, err = tc.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), calls.Load())
}

func TestTokenInvalidateForcesReauth(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	srv := newTokenServer(t, 3600, &calls)
	defer srv.Close()

	tc := newTokenCache(srv.URL, "id", "secret", nil)

	tok1, err := tc.Token(context.Background())
	require.NoError(t, err)

	tc.Invalidate()

	tok2, err := tc.Token(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, tok1, tok2)
	require.Equal(t, int64(2), calls.Load())
}

func TestTokenErrorOnBadStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	tc := newTokenCache(srv.URL, "id", "secret", nil)
	_, err := tc.Token(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "403")
}
