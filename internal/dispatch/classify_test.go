package dispatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyNetworkError(t *testing.T) {
	assert.Equal(t, TransientUpstream, Classify(0, nil, errors.New("timeout")))
}

func TestClassifyAuthErrors(t *testing.T) {
	assert.Equal(t, AccountAuth, Classify(401, nil, nil))
	assert.Equal(t, AccountAuth, Classify(403, nil, nil))
}

func TestClassifyRateLimit(t *testing.T) {
	assert.Equal(t, AccountRateLimit, Classify(429, nil, nil))
}

func TestClassifyClientError400(t *testing.T) {
	assert.Equal(t, ClientError, Classify(400, nil, nil))
}

func TestClassifyClientErrorKeyword(t *testing.T) {
	body := []byte(`{"error":{"type":"invalid_request_error","message":"bad"}}`)
	assert.Equal(t, ClientError, Classify(500, body, nil))
}

func TestClassifyTransientDefault(t *testing.T) {
	assert.Equal(t, TransientUpstream, Classify(502, nil, nil))
	assert.Equal(t, TransientUpstream, Classify(418, nil, nil))
}

func TestRetryablePolicy(t *testing.T) {
	assert.True(t, TransientUpstream.Retryable())
	assert.True(t, AccountAuth.Retryable())
	assert.True(t, AccountRateLimit.Retryable())
	assert.True(t, TokenRefresh.Retryable())
	assert.False(t, ClientError.Retryable())
	assert.False(t, ResponseStarted.Retryable())
	assert.False(t, PoolExhausted.Retryable())
	assert.False(t, ClientCancelled.Retryable())
}

func TestParseRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 120, ParseRetryAfterSeconds("120"))
	assert.Equal(t, 300, ParseRetryAfterSeconds(""))
	assert.Equal(t, 300, ParseRetryAfterSeconds("not-a-number"))
}

func TestIsSuccessStatus(t *testing.T) {
	assert.True(t, IsSuccessStatus(200))
	assert.True(t, IsSuccessStatus(399))
	assert.False(t, IsSuccessStatus(400))
	assert.False(t, IsSuccessStatus(199))
}
