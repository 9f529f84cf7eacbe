package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConnectorError_Flags(t *testing.T) {
	cases := []struct {
		code        ErrorCode
		retryable   bool
		rateLimited bool
	}{
		{ErrCodeAuthFailed, false, false},
		{ErrCodeRateLimited, true, true},
		{ErrCodeTransient, true, false},
		{ErrCodeClientError, false, false},
		{ErrCodeCredentialsInvalid, false, false},
	}

	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			err := NewConnectorError("src-1", tc.code, errors.New("boom"))
			assert.Equal(t, tc.retryable, err.Retryable)
			assert.Equal(t, tc.rateLimited, err.RateLimited)
			assert.Equal(t, tc.retryable, IsRetryable(err))
			assert.Equal(t, tc.rateLimited, IsRateLimited(err))
		})
	}
}

func TestConnectorError_Unwrap(t *testing.T) {
	cause := ErrAuthFailed
	err := NewConnectorError("src-1", ErrCodeAuthFailed, cause)

	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.Contains(t, err.Error(), "src-1")
	assert.Contains(t, err.Error(), string(ErrCodeAuthFailed))
}

func TestIsRetryable_WrappedError(t *testing.T) {
	inner := NewConnectorError("src-1", ErrCodeTransient, ErrConnectionFailed)
	wrapped := fmt.Errorf("search failed: %w", inner)

	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsRateLimited(wrapped))
}

func TestIsRetryable_PlainError(t *testing.T) {
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRateLimited(errors.New("plain")))
}
