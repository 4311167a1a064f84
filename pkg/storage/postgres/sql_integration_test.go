//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/funnelpulse/pkg/analytics"
	"github.com/platinummonkey/funnelpulse/pkg/storage"
	"github.com/platinummonkey/funnelpulse/pkg/storage/storagetest"
)

// setupPostgres starts a PostgreSQL container and returns a storage config for it
func setupPostgres(t *testing.T) storage.Config {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("funnel_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := storage.DefaultConfig()
	cfg.Type = storage.TypePostgres
	cfg.PostgresURL = connStr
	cfg.Namespace = "funnel_it"
	return cfg
}

func TestPostgresKV_Integration(t *testing.T) {
	cfg := setupPostgres(t)

	kv, err := OpenPostgresKV(context.Background(), cfg)
	require.NoError(t, err)
	defer kv.Close()

	storagetest.RunKVContract(t, kv)

	// Schema creation is idempotent
	require.NoError(t, kv.EnsureSchema(context.Background()))
}

func TestPostgresKV_AggregationPipeline(t *testing.T) {
	ctx := context.Background()
	cfg := setupPostgres(t)

	kv, err := OpenPostgresKV(ctx, cfg)
	require.NoError(t, err)
	defer kv.Close()

	events := []analytics.RawTelemetryEvent{
		{EventType: analytics.EventPageView, SessionID: "s1", City: "Calgary", Timestamp: 1000},
		{EventType: analytics.EventCTAClick, SessionID: "s1", City: "Calgary", Timestamp: 2000},
		{EventType: analytics.EventPageView, SessionID: "s2", City: "Calgary", Timestamp: 1000},
	}
	data, err := json.Marshal(events)
	require.NoError(t, err)
	require.NoError(t, kv.Put(ctx, analytics.RawEventsKey("2025-03-14"), data))

	aggCfg := analytics.DefaultAggregationConfig()
	aggCfg.Location = time.UTC
	aggregator := analytics.NewAggregator(kv, aggCfg)

	m, err := aggregator.AggregateDaily(ctx, "2025-03-14")
	require.NoError(t, err)
	assert.Equal(t, 2, m.CityBreakdown["Calgary"].Sessions)
	assert.InDelta(t, 0.5, m.CityBreakdown["Calgary"].CTR, 1e-9)

	stored, err := aggregator.GetDailyMetrics(ctx, "2025-03-14")
	require.NoError(t, err)
	assert.Equal(t, m.PerformanceScore, stored.PerformanceScore)
}
