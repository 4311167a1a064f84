// Package storage provides the pluggable key-value persistence layer for
// raw telemetry events and daily metric summaries.
//
// # Overview
//
// Everything the pipeline persists goes through the small KV contract:
//
//	type KV interface {
//		Get(ctx context.Context, key string) ([]byte, error)
//		Put(ctx context.Context, key string, value []byte) error
//		Delete(ctx context.Context, key string) error
//	}
//
// Keys are day scoped ("raw_events_2024-03-01", "daily_metrics_2024-03-01")
// and values are JSON documents owned by the caller. Get returns ErrNotFound
// for absent keys.
//
// # Backends
//
//   - MemoryKV: bounded LRU, for tests and single-process use
//   - FileSystemKV: one JSON file per key
//   - postgres.SQLKV: PostgreSQL or SQLite table keyed by (namespace, key)
//   - postgres.RedisKV: Redis strings under "<namespace>:<key>"
//   - postgres.S3KV: objects under "<namespace>/<key>.json"
//
// # Decorators
//
// CachedKV adds an expiring read-through cache in front of remote backends and
// InstrumentedKV adds Prometheus metrics and OpenTelemetry spans. The factory
// package assembles a backend from Config.
package storage
