package factory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/funnelpulse/pkg/observability"
	"github.com/platinummonkey/funnelpulse/pkg/storage"
	"github.com/platinummonkey/funnelpulse/pkg/storage/storagetest"
)

func TestOpen_Backends(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	tests := []struct {
		name   string
		mutate func(*storage.Config)
		cached bool
	}{
		{name: "memory", mutate: func(c *storage.Config) { c.Type = storage.TypeMemory }},
		{name: "filesystem", mutate: func(c *storage.Config) {
			c.Type = storage.TypeFilesystem
			c.FilesystemRoot = t.TempDir()
		}},
		{name: "sqlite", mutate: func(c *storage.Config) {
			c.Type = storage.TypeSQLite
			c.SQLitePath = filepath.Join(t.TempDir(), "kv.db")
		}},
		{name: "redis", cached: true, mutate: func(c *storage.Config) {
			c.Type = storage.TypeRedis
			c.RedisURL = "redis://" + mr.Addr()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := storage.DefaultConfig()
			tt.mutate(&cfg)

			metrics := observability.NewMetrics(prometheus.NewRegistry())
			backend, err := Open(context.Background(), cfg, metrics, observability.NopLogger())
			require.NoError(t, err)
			defer backend.Close()

			_, isCached := backend.KV.(*storage.CachedKV)
			assert.Equal(t, tt.cached, isCached)

			storagetest.RunKVContract(t, backend)
			assert.NoError(t, backend.HealthCheck(context.Background()))
		})
	}
}

func TestOpen_UnknownType(t *testing.T) {
	cfg := storage.DefaultConfig()
	cfg.Type = "cassandra"

	_, err := Open(context.Background(), cfg, nil, nil)
	assert.Error(t, err)
}
