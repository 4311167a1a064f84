package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_NoChecks(t *testing.T) {
	status := NewHealthChecker("test").Check(context.Background())
	assert.Equal(t, StatusHealthy, status.Status)
	assert.Empty(t, status.Dependencies)
	assert.Equal(t, "test", status.Version)
}

func TestHealthChecker_OptionalFailureDegrades(t *testing.T) {
	checker := NewHealthChecker("test")
	checker.AddCheck("store", true, func(context.Context) error { return nil })
	checker.AddCheck("cache", false, func(context.Context) error { return errors.New("down") })

	status := checker.Check(context.Background())
	assert.Equal(t, StatusDegraded, status.Status)
	assert.Equal(t, StatusHealthy, status.Dependencies["store"].Status)
	assert.Equal(t, "down", status.Dependencies["cache"].Message)
}

func TestHealthChecker_CriticalFailure(t *testing.T) {
	checker := NewHealthChecker("test")
	checker.AddCheck("cache", false, func(context.Context) error { return errors.New("down") })
	checker.AddCheck("store", true, func(context.Context) error { return errors.New("refused") })

	rec := httptest.NewRecorder()
	checker.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, StatusUnhealthy, body.Status)
}

func TestHealthChecker_RedisPing(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	checker := NewHealthChecker("test")
	checker.AddCheck("redis", false, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})

	assert.Equal(t, StatusHealthy, checker.Check(context.Background()).Status)

	mr.Close()
	assert.Equal(t, StatusDegraded, checker.Check(context.Background()).Status)
}

func TestHealthChecker_Liveness(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthChecker("test").Liveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
