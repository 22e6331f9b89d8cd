// Package imaging resolves, verifies, and caches cover image URLs for
// catalog entries.
package imaging

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/playdex/catalog-crawler/internal/metrics"
)

const sniffBytes = 512

// Verifier checks whether a candidate URL resolves to a fetchable image.
type Verifier struct {
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewVerifier builds a Verifier. A nil client uses http.DefaultClient.
func NewVerifier(client *http.Client, timeout time.Duration, logger *zap.Logger) *Verifier {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{client: client, timeout: timeout, logger: logger}
}

// Verify returns true only when the URL answers with a 2xx status and an
// image content type. It issues a HEAD request and falls back to a partial
// GET when the server omits the Content-Type header. Any network error,
// timeout, or non-2xx status yields false; Verify never returns an error.
func (v *Verifier) Verify(ctx context.Context, rawURL string) bool {
	if strings.TrimSpace(rawURL) == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	ok := v.check(ctx, rawURL)
	if ok {
		metrics.ObserveVerification("ok")
	} else {
		metrics.ObserveVerification("rejected")
	}
	return ok
}

func (v *Verifier) check(ctx context.Context, rawURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false
	}
	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Debug("image head request failed", zap.String("url", rawURL), zap.Error(err))
		return false
	}
	defer closeBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}
	ctype := resp.Header.Get("Content-Type")
	if ctype != "" {
		return strings.Contains(ctype, "image")
	}
	// No declared content type: sniff the first bytes of a partial GET.
	return v.sniff(ctx, rawURL)
}

func (v *Verifier) sniff(ctx context.Context, rawURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", sniffBytes-1))
	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Debug("image sniff request failed", zap.String("url", rawURL), zap.Error(err))
		return false
	}
	defer closeBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}
	if ctype := resp.Header.Get("Content-Type"); ctype != "" {
		return strings.Contains(ctype, "image")
	}
	head := make([]byte, sniffBytes)
	n, _ := io.ReadFull(resp.Body, head)
	return strings.HasPrefix(http.DetectContentType(head[:n]), "image/")
}

func closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, sniffBytes))
	_ = resp.Body.Close()
}
