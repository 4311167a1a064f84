// Package factory assembles a storage.KV from configuration, layering the
// read-through cache and instrumentation over the selected backend.
package factory

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/platinummonkey/funnelpulse/pkg/observability"
	"github.com/platinummonkey/funnelpulse/pkg/storage"
	"github.com/platinummonkey/funnelpulse/pkg/storage/postgres"
)

// Backend is an opened store plus its lifecycle hooks
type Backend struct {
	storage.KV
	Type    string
	closers []io.Closer
}

// HealthCheck probes the underlying store
func (b *Backend) HealthCheck(ctx context.Context) error {
	return storage.HealthCheck(ctx, b.KV)
}

// Close releases connections held by the backend
func (b *Backend) Close() error {
	var errs []error
	for _, c := range b.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open creates the backend named by cfg.Type. metrics may be nil.
func Open(ctx context.Context, cfg storage.Config, metrics *observability.Metrics, logger *observability.Logger) (*Backend, error) {
	var (
		kv      storage.KV
		closers []io.Closer
		remote  bool
	)

	switch cfg.Type {
	case storage.TypeMemory:
		mem, err := storage.NewMemoryKV(cfg.MemoryMaxKeys)
		if err != nil {
			return nil, err
		}
		kv = mem

	case storage.TypeFilesystem, "":
		fs, err := storage.NewFileSystemKV(cfg.FilesystemRoot, cfg.Namespace)
		if err != nil {
			return nil, err
		}
		kv = fs

	case storage.TypePostgres:
		pg, err := postgres.OpenPostgresKV(ctx, cfg)
		if err != nil {
			return nil, err
		}
		kv, closers, remote = pg, append(closers, pg), true

	case storage.TypeSQLite:
		lite, err := postgres.OpenSQLiteKV(ctx, cfg)
		if err != nil {
			return nil, err
		}
		kv, closers = lite, append(closers, lite)

	case storage.TypeRedis:
		client, err := postgres.NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		rkv := postgres.NewRedisKV(client, cfg.Namespace)
		kv, closers, remote = rkv, append(closers, rkv), true

	case storage.TypeS3:
		client, err := postgres.NewS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		skv, err := postgres.NewS3KV(ctx, client, cfg.S3Bucket, cfg.Namespace)
		if err != nil {
			return nil, err
		}
		kv, remote = skv, true

	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}

	backendType := cfg.Type
	if backendType == "" {
		backendType = storage.TypeFilesystem
	}

	kv = storage.NewInstrumentedKV(kv, backendType, metrics)
	if remote && cfg.CacheEnabled {
		kv = storage.NewCachedKV(kv, cfg.CacheMaxKeys, cfg.CacheTTL, metrics).WithBypass(cfg.CacheBypassPrefixes...)
	}

	if logger != nil {
		logger.WithFields(map[string]interface{}{
			"backend":   backendType,
			"namespace": cfg.Namespace,
			"cached":    remote && cfg.CacheEnabled,
		}).Info("Storage backend ready")
	}

	return &Backend{KV: kv, Type: backendType, closers: closers}, nil
}
