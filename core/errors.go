package core

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Classification
// =============================================================================

// ErrorCode classifies a provider failure so callers never re-derive it
type ErrorCode string

const (
	ErrCodeAuthFailed         ErrorCode = "auth_failed"         // fatal, never retried
	ErrCodeRateLimited        ErrorCode = "rate_limited"        // retryable, flagged for observability
	ErrCodeTransient          ErrorCode = "transient"           // retryable network/5xx
	ErrCodeClientError        ErrorCode = "client_error"        // fatal non-auth 4xx
	ErrCodeCredentialsInvalid ErrorCode = "credentials_invalid" // fatal after one failed rotation
)

var (
	// ErrAuthFailed indicates the provider rejected our credentials
	ErrAuthFailed = errors.New("authentication failed")
	// ErrRateLimited indicates the provider signalled a rate-limit response
	ErrRateLimited = errors.New("rate limited by provider")
	// ErrConnectionFailed indicates a transient connection-level failure
	ErrConnectionFailed = errors.New("connection to provider failed")
	// ErrNotInitialized indicates a search was attempted before Initialize
	ErrNotInitialized = errors.New("connector not initialized")
)

// ConnectorError wraps a classified provider failure with enough context for
// the caller to apply its own retry policy.
type ConnectorError struct {
	SourceID    string
	Code        ErrorCode
	Retryable   bool
	RateLimited bool
	Err         error
}

// Error implements the error interface
func (e *ConnectorError) Error() string {
	return fmt.Sprintf("connector %s: %s: %v", e.SourceID, e.Code, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As
func (e *ConnectorError) Unwrap() error {
	return e.Err
}

// NewConnectorError builds a classified connector error
func NewConnectorError(sourceID string, code ErrorCode, err error) *ConnectorError {
	return &ConnectorError{
		SourceID:    sourceID,
		Code:        code,
		Retryable:   code == ErrCodeTransient || code == ErrCodeRateLimited,
		RateLimited: code == ErrCodeRateLimited,
		Err:         err,
	}
}

// IsRetryable reports whether err is a connector error worth retrying
func IsRetryable(err error) bool {
	var ce *ConnectorError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// IsRateLimited reports whether err carries an explicit rate-limit signal
func IsRateLimited(err error) bool {
	var ce *ConnectorError
	if errors.As(err, &ce) {
		return ce.RateLimited
	}
	return false
}
