package httpclient

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryableErrorMessage(t *testing.T) {
	err := &RetryableError{StatusCode: 429, Message: "rate limited", RetryAfter: 30 * time.Second}
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "retry after 30s")

	bare := &RetryableError{StatusCode: 503, Message: "unavailable"}
	assert.Equal(t, "HTTP 503: unavailable", bare.Error())
}

func TestRetryableErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &RetryableError{StatusCode: 500, Err: inner}
	assert.ErrorIs(t, err, inner)
}

func TestRetryableStatus(t *testing.T) {
	assert.True(t, RetryableStatus(429))
	assert.True(t, RetryableStatus(503))
	assert.False(t, RetryableStatus(400))
	assert.False(t, RetryableStatus(401))
}

func TestParseRetryAfterSeconds(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "15")
	assert.Equal(t, 15*time.Second, ParseRetryAfter(h))

	h.Set("Retry-After", "garbage")
	assert.Equal(t, time.Duration(0), ParseRetryAfter(h))

	assert.Equal(t, time.Duration(0), ParseRetryAfter(http.Header{}))
}
