// Package storagetest holds the behavioural contract every storage.KV
// backend is expected to satisfy.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/funnelpulse/pkg/storage"
)

// RunKVContract exercises get/put/delete semantics against kv. The store
// must be empty for the keys used here.
func RunKVContract(t *testing.T, kv storage.KV) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, err := kv.Get(ctx, "daily_metrics_1999-01-01")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("put then get", func(t *testing.T) {
		require.NoError(t, kv.Put(ctx, "raw_events_2024-03-01", []byte(`[{"id":"a"}]`)))
		got, err := kv.Get(ctx, "raw_events_2024-03-01")
		require.NoError(t, err)
		assert.JSONEq(t, `[{"id":"a"}]`, string(got))
	})

	t.Run("put overwrites", func(t *testing.T) {
		require.NoError(t, kv.Put(ctx, "daily_metrics_2024-03-01", []byte(`{"v":1}`)))
		require.NoError(t, kv.Put(ctx, "daily_metrics_2024-03-01", []byte(`{"v":2}`)))
		got, err := kv.Get(ctx, "daily_metrics_2024-03-01")
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":2}`, string(got))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, kv.Put(ctx, "raw_events_2024-03-02", []byte(`[]`)))
		require.NoError(t, kv.Delete(ctx, "raw_events_2024-03-02"))
		_, err := kv.Get(ctx, "raw_events_2024-03-02")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("delete missing key", func(t *testing.T) {
		assert.NoError(t, kv.Delete(ctx, "raw_events_1999-01-01"))
	})

	t.Run("returned value is not aliased", func(t *testing.T) {
		require.NoError(t, kv.Put(ctx, "daily_metrics_2024-03-03", []byte(`{"a":1}`)))
		got, err := kv.Get(ctx, "daily_metrics_2024-03-03")
		require.NoError(t, err)
		got[0] = 'X'
		again, err := kv.Get(ctx, "daily_metrics_2024-03-03")
		require.NoError(t, err)
		assert.Equal(t, `{"a":1}`, string(again))
	})
}
