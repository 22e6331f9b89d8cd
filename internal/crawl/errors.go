package crawl

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/playdex/catalog-crawler/internal/catalog"
)

// classifyFetchError maps a fetch failure onto the job error taxonomy.
func classifyFetchError(err error) catalog.ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return catalog.ErrKindCancelled
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == http.StatusTooManyRequests:
			return catalog.ErrKindRateLimited
		case statusErr.Code == http.StatusUnauthorized || statusErr.Code == http.StatusForbidden:
			return catalog.ErrKindAuthExpired
		case statusErr.Code >= 500:
			return catalog.ErrKindTransientNetwork
		default:
			return catalog.ErrKindUpstreamFormat
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return catalog.ErrKindTransientNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return catalog.ErrKindTransientNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return catalog.ErrKindTransientNetwork
	}
	return catalog.ErrKindFatal
}

// retryable reports whether a fetch failure is worth one more attempt within
// the same call.
func retryable(kind catalog.ErrorKind) bool {
	return kind == catalog.ErrKindTransientNetwork
}
