package imaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// pngMagic is enough of a PNG header for content sniffing to identify it.
var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	return NewVerifier(nil, 2*time.Second, zap.NewNop())
}

func TestVerifyBlankURL(t *testing.T) {
	t.Parallel()
	v := newTestVerifier(t)
	require.False(t, v.Verify(context.Background(), ""))
	require.False(t, v.Verify(context.Background(), "   "))
}

func TestVerifyImageContentType(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	v := newTestVerifier(t)
	require.True(t, v.Verify(context.Background(), srv.URL+"/cover.jpg"))
}

func TestVerifyRejectsNonImage(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	v := newTestVerifier(t)
	require.False(t, v.Verify(context.Background(), srv.URL))
}

func TestVerifyRejectsNotFound(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	v := newTestVerifier(t)
	require.False(t, v.Verify(context.Background(), srv.URL+"/missing.jpg"))
}

func TestVerifySniffsWhenContentTypeMissing(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Suppress Go's automatic content type detection.
		w.Header()["Content-Type"] = nil
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		require.NotEmpty(t, r.Header.Get("Range"))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(pngMagic)
	}))
	defer srv.Close()

	v := newTestVerifier(t)
	require.True(t, v.Verify(context.Background(), srv.URL+"/raw"))
}

func TestVerifyUnreachableHost(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // deliberately dead

	v := newTestVerifier(t)
	require.False(t, v.Verify(context.Background(), srv.URL))
}
