package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"darkmon/core"
)

// HTTPStatusError carries a provider's non-2xx response status so the shared
// execute helper can classify it without knowing the provider.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Classify maps a provider failure to its error code. This is the single
// classification point; executeRequest stays provider-agnostic.
//
//   - 401/403 (or ErrAuthFailed)   -> auth_failed, fatal
//   - 429 (or ErrRateLimited)      -> rate_limited, retryable
//   - 5xx and network failures     -> transient, retryable
//   - remaining 4xx                -> client_error, fatal
func Classify(err error) core.ErrorCode {
	if errors.Is(err, core.ErrAuthFailed) {
		return core.ErrCodeAuthFailed
	}
	if errors.Is(err, core.ErrRateLimited) {
		return core.ErrCodeRateLimited
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden:
			return core.ErrCodeAuthFailed
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return core.ErrCodeRateLimited
		case statusErr.StatusCode >= 500:
			return core.ErrCodeTransient
		case statusErr.StatusCode >= 400:
			return core.ErrCodeClientError
		}
	}

	// Connection-level failures with no status are transient
	return core.ErrCodeTransient
}

// isFatalContext reports whether err is caller cancellation, which is
// propagated untouched rather than classified and retried.
func isFatalContext(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
