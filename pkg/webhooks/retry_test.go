package webhooks

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewRetryPolicy_Defaults(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{})

	assert.Equal(t, 3, p.config.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, p.config.InitialDelay)
	assert.Equal(t, 10*time.Second, p.config.MaxDelay)
	assert.Equal(t, 2.0, p.config.BackoffMultiplier)
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	p := NewRetryPolicy(DefaultRetryConfig())

	tests := []struct {
		name     string
		attempts int
		err      error
		expected bool
	}{
		{name: "success", attempts: 1, err: nil, expected: false},
		{name: "network error", attempts: 1, err: errors.New("connection refused"), expected: true},
		{name: "server error", attempts: 2, err: &StatusError{StatusCode: http.StatusBadGateway}, expected: true},
		{name: "rate limited", attempts: 1, err: &StatusError{StatusCode: http.StatusTooManyRequests}, expected: true},
		{name: "client error", attempts: 1, err: &StatusError{StatusCode: http.StatusNotFound}, expected: false},
		{name: "attempts exhausted", attempts: 3, err: errors.New("timeout"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, p.ShouldRetry(tt.attempts, tt.err))
		})
	}
}

func TestRetryPolicy_NextRetryDelay(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{
		MaxAttempts:       10,
		InitialDelay:      time.Second,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2,
	})

	assert.Equal(t, time.Second, p.NextRetryDelay(0))
	assert.Equal(t, time.Second, p.NextRetryDelay(1))
	assert.Equal(t, 2*time.Second, p.NextRetryDelay(2))
	assert.Equal(t, 4*time.Second, p.NextRetryDelay(3))
	assert.Equal(t, 5*time.Second, p.NextRetryDelay(4))
}

func TestRetryPolicy_Do(t *testing.T) {
	p := NewRetryPolicy(DefaultRetryConfig())
	var slept []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &StatusError{StatusCode: http.StatusServiceUnavailable}
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, slept)
}

func TestRetryPolicy_DoStopsOnPermanentError(t *testing.T) {
	p := NewRetryPolicy(DefaultRetryConfig())

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &StatusError{StatusCode: http.StatusBadRequest}
	})

	var statusErr *StatusError
	assert.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_DoHonorsContext(t *testing.T) {
	p := NewRetryPolicy(DefaultRetryConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Do(ctx, func(ctx context.Context) error {
		return errors.New("unreachable")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
