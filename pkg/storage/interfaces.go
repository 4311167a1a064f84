package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist
var ErrNotFound = errors.New("storage: key not found")

// KV is the key-value contract the telemetry pipeline is written against.
// Values are opaque bytes; callers own serialization.
type KV interface {
	// Get returns the stored value or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)
	// Put creates or overwrites key
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// HealthChecker is implemented by backends that can verify connectivity
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Backend types
const (
	TypeMemory     = "memory"
	TypeFilesystem = "filesystem"
	TypeRedis      = "redis"
	TypeS3         = "s3"
	TypePostgres   = "postgres"
	TypeSQLite     = "sqlite"
)

// Config for storage backend
type Config struct {
	Type string

	// Namespace isolates this deployment's keys in shared backends
	Namespace string

	// Memory config
	MemoryMaxKeys int

	// Filesystem config
	FilesystemRoot string

	// PostgreSQL config
	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int
	PostgresTimeout  time.Duration

	// SQLite config
	SQLitePath string

	// S3 config
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool

	// Redis config
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	// Read-through cache in front of remote backends
	CacheEnabled bool
	CacheTTL     time.Duration
	CacheMaxKeys int

	// Keys with these prefixes always go to the backend. Raw event lists are
	// appended by every server replica, so a cached copy would be stale.
	CacheBypassPrefixes []string
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:             TypeFilesystem,
		Namespace:        "funnel_telemetry",
		MemoryMaxKeys:    4096,
		FilesystemRoot:   "/tmp/funnelpulse",
		PostgresMaxConns: 10,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		SQLitePath:       "/tmp/funnelpulse/funnel.db",
		S3Region:         "us-east-1",
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		CacheEnabled:     true,
		CacheTTL:         5 * time.Minute,
		CacheMaxKeys:     512,

		CacheBypassPrefixes: []string{"raw_events_"},
	}
}
