package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/funnelpulse/pkg/storage"
)

// Dialect selects the SQL flavour used by SQLKV
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

const tableName = "funnel_kv"

// SQLKV stores keys in a single (namespace, key) table. The same code serves
// PostgreSQL for shared deployments and SQLite for single-node ones.
type SQLKV struct {
	db        *sql.DB
	dialect   Dialect
	namespace string

	getQuery    string
	upsertQuery string
	deleteQuery string
}

// NewSQLKV wraps an open database. Call EnsureSchema before first use.
func NewSQLKV(db *sql.DB, dialect Dialect, namespace string) *SQLKV {
	kv := &SQLKV{db: db, dialect: dialect, namespace: namespace}

	kv.getQuery = fmt.Sprintf(
		"SELECT value FROM %s WHERE namespace = %s AND key = %s",
		tableName, kv.placeholder(1), kv.placeholder(2))
	kv.upsertQuery = fmt.Sprintf(
		"INSERT INTO %s (namespace, key, value, updated_at) VALUES (%s, %s, %s, %s) "+
			"ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at",
		tableName, kv.placeholder(1), kv.placeholder(2), kv.placeholder(3), kv.placeholder(4))
	kv.deleteQuery = fmt.Sprintf(
		"DELETE FROM %s WHERE namespace = %s AND key = %s",
		tableName, kv.placeholder(1), kv.placeholder(2))

	return kv
}

// OpenPostgresKV connects to PostgreSQL and ensures the table exists
func OpenPostgresKV(ctx context.Context, cfg storage.Config) (*SQLKV, error) {
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.PostgresMaxConns)
	db.SetMaxIdleConns(cfg.PostgresMinConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	timeout := cfg.PostgresTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	kv := NewSQLKV(db, DialectPostgres, cfg.Namespace)
	if err := kv.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return kv, nil
}

// OpenSQLiteKV opens (creating if needed) a SQLite database file
func OpenSQLiteKV(ctx context.Context, cfg storage.Config) (*SQLKV, error) {
	db, err := sql.Open("sqlite3", cfg.SQLitePath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// SQLite allows a single writer; serialize through one connection.
	db.SetMaxOpenConns(1)

	kv := NewSQLKV(db, DialectSQLite, cfg.Namespace)
	if err := kv.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return kv, nil
}

// EnsureSchema creates the key-value table if it does not exist
func (s *SQLKV) EnsureSchema(ctx context.Context) error {
	blobType := "BYTEA"
	if s.dialect == DialectSQLite {
		blobType = "BLOB"
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value %s NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (namespace, key)
	)`, tableName, blobType)

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create %s table: %w", tableName, err)
	}
	return nil
}

// Get implements storage.KV.Get
func (s *SQLKV) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := s.startSpan(ctx, "SQLKV.Get", key)
	defer span.End()

	var value []byte
	err := s.db.QueryRowContext(ctx, s.getQuery, s.namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

// Put implements storage.KV.Put
func (s *SQLKV) Put(ctx context.Context, key string, value []byte) error {
	ctx, span := s.startSpan(ctx, "SQLKV.Put", key)
	defer span.End()

	if value == nil {
		value = []byte{}
	}
	if _, err := s.db.ExecContext(ctx, s.upsertQuery, s.namespace, key, value, time.Now().UTC()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert failed")
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// Delete implements storage.KV.Delete
func (s *SQLKV) Delete(ctx context.Context, key string) error {
	ctx, span := s.startSpan(ctx, "SQLKV.Delete", key)
	defer span.End()

	if _, err := s.db.ExecContext(ctx, s.deleteQuery, s.namespace, key); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// HealthCheck pings the database
func (s *SQLKV) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", s.dialect, err)
	}
	return nil
}

// Close closes the underlying database
func (s *SQLKV) Close() error {
	return s.db.Close()
}

func (s *SQLKV) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLKV) startSpan(ctx context.Context, name, key string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", string(s.dialect)),
		attribute.String("kv.namespace", s.namespace),
		attribute.String("kv.key", key),
	))
}
