package analytics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator_Backfill(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	putJSON(t, store, RawEventsKey("2025-03-10"), []RawTelemetryEvent{
		ev(EventPageView, "s1", 1000),
		ev(EventPageView, "s2", 2000),
	})
	putJSON(t, store, RawEventsKey("2025-03-12"), []RawTelemetryEvent{
		ev(EventPageView, "s1", 1000),
	})

	agg := newTestAggregator(t, store, testConfig())
	results, err := agg.Backfill(ctx, "2025-03-10", "2025-03-12", 2)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "2025-03-10", results[0].Date)
	assert.Equal(t, 2, results[0].Metrics.Sessions.Total)
	assert.Equal(t, "2025-03-11", results[1].Date)
	assert.Equal(t, 0, results[1].Metrics.Sessions.Total)
	assert.Equal(t, 1, results[2].Metrics.Sessions.Total)

	for _, date := range []string{"2025-03-10", "2025-03-11", "2025-03-12"} {
		_, err := agg.GetDailyMetrics(ctx, date)
		assert.NoError(t, err, date)
	}
}

func TestAggregator_BackfillInvalidRange(t *testing.T) {
	agg := newTestAggregator(t, newTestStore(t), testConfig())

	_, err := agg.Backfill(context.Background(), "2025-03-12", "2025-03-10", 2)
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = agg.Backfill(context.Background(), "march", "2025-03-10", 2)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestAggregator_BackfillSpanLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBackfillDays = 2
	agg := newTestAggregator(t, newTestStore(t), cfg)

	results, err := agg.Backfill(context.Background(), "2025-03-10", "2025-03-11", 1)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = agg.Backfill(context.Background(), "2025-03-10", "2025-03-12", 1)
	assert.ErrorIs(t, err, ErrInvalidDate)
	assert.Nil(t, results)
}

func TestAggregator_BackfillCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	agg := newTestAggregator(t, newTestStore(t), testConfig())
	results, err := agg.Backfill(ctx, "2025-03-10", "2025-03-11", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 2)
	assert.Nil(t, results[0].Metrics)
	assert.NotEmpty(t, results[1].Error)
}

func TestAggregator_Yesterday(t *testing.T) {
	agg := newTestAggregator(t, newTestStore(t), testConfig())
	assert.Equal(t, "2025-03-14", agg.Yesterday())
}
