package llmerr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status    int
		kind      Kind
		retryable bool
	}{
		{status: 401, kind: KindAuthentication, retryable: false},
		{status: 400, kind: KindClient, retryable: false},
		{status: 403, kind: KindClient, retryable: false},
		{status: 404, kind: KindClient, retryable: false},
		{status: 429, kind: KindRateLimited, retryable: true},
		{status: 500, kind: KindServer, retryable: true},
		{status: 503, kind: KindServer, retryable: true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			err := FromStatus(tt.status, "boom", nil)
			assert.Equal(t, tt.kind, err.Kind)
			assert.Equal(t, tt.retryable, err.Retryable())
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestRetryAfterFromHeader(t *testing.T) {
	t.Run("milliseconds header wins", func(t *testing.T) {
		h := http.Header{}
		h.Set("retry-after-ms", "2000")
		h.Set("Retry-After", "9")

		d, ok := RetryAfterFromHeader(h)
		assert.True(t, ok)
		assert.Equal(t, 2*time.Second, d)
	})

	t.Run("seconds header", func(t *testing.T) {
		h := http.Header{}
		h.Set("Retry-After", "3")

		d, ok := RetryAfterFromHeader(h)
		assert.True(t, ok)
		assert.Equal(t, 3*time.Second, d)
	})

	t.Run("missing or invalid", func(t *testing.T) {
		h := http.Header{}
		h.Set("Retry-After", "Wed, 21 Oct 2015 07:28:00 GMT")

		_, ok := RetryAfterFromHeader(h)
		assert.False(t, ok)

		_, ok = RetryAfterFromHeader(nil)
		assert.False(t, ok)
	})

	t.Run("status error carries the hint", func(t *testing.T) {
		h := http.Header{}
		h.Set("retry-after-ms", "1500")

		err := FromStatus(429, "slow down", h)
		d, ok := RetryAfterOf(fmt.Errorf("attempt failed: %w", err))
		assert.True(t, ok)
		assert.Equal(t, 1500*time.Millisecond, d)
	})
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(nil))
	assert.Equal(t, KindCancelled, KindOf(context.Canceled))
	assert.Equal(t, KindCancelled, KindOf(fmt.Errorf("wrapped: %w", context.Canceled)))
	assert.Equal(t, KindUsageLimit, KindOf(New(KindUsageLimit, "quota")))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestFromTransport(t *testing.T) {
	t.Run("cancelled context is never retryable", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := FromTransport(ctx, errors.New("read: connection reset"))
		assert.Equal(t, KindCancelled, err.Kind)
		assert.False(t, err.Retryable())
	})

	t.Run("connection errors are network failures", func(t *testing.T) {
		err := FromTransport(context.Background(), errors.New("dial tcp: connection refused"))
		assert.Equal(t, KindNetwork, err.Kind)
		assert.True(t, err.Retryable())
		assert.Contains(t, err.Error(), "connection refused")
	})
}
