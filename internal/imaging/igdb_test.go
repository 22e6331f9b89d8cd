package imaging

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// igdbFixture wires an auth server and an API server that answers the
// games and covers queries.
func igdbFixture(t *testing.T, rejectFirstToken bool) (*IGDBProvider, *atomic.Int64) {
	t.Helper()

	var authCalls atomic.Int64
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := authCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":3600}`, n)
	}))
	t.Cleanup(auth.Close)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rejectFirstToken && r.Header.Get("Authorization") == "Bearer tok-1" {
			http.Error(w, "expired", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/games":
			fmt.Fprint(w, `[{"name":"Elden Ring","cover":101},{"name":"Elden Ring: Shadow of the Erdtree","cover":102}]`)
		case "/covers":
			body := new(strings.Builder)
			_, _ = io.Copy(body, r.Body)
			require.Contains(t, body.String(), "where id = 101")
			fmt.Fprint(w, `[{"image_id":"co4jni"}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(api.Close)

	p := NewIGDBProvider("client-id", "secret", nil, zap.NewNop())
	p.SetEndpoints(auth.URL, api.URL)
	return p, &authCalls
}

func TestIGDBLookupExactMatch(t *testing.T) {
	t.Parallel()
	p, _ := igdbFixture(t, false)

	u, err := p.Lookup(context.Background(), "Elden Ring", 2022)
	require.NoError(t, err)
	require.Equal(t, "https://images.igdb.com/igdb/image/upload/t_cover_big/co4jni.jpg", u)
}

func TestIGDBReauthenticatesOnce(t *testing.T) {
	t.Parallel()
	p, authCalls := igdbFixture(t, true)

	u, err := p.Lookup(context.Background(), "Elden Ring", 0)
	require.NoError(t, err)
	require.NotEmpty(t, u)
	require.GreaterOrEqual(t, authCalls.Load(), int64(2))
}

func TestIGDBNoMatch(t *testing.T) {
	t.Parallel()
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"tok","expires_in":3600}`)
	}))
	defer auth.Close()
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer api.Close()

	p := NewIGDBProvider("client-id", "secret", nil, zap.NewNop())
	p.SetEndpoints(auth.URL, api.URL)

	u, err := p.Lookup(context.Background(), "nothing here", 0)
	require.NoError(t, err)
	require.Empty(t, u)
}
