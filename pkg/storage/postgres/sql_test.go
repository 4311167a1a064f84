package postgres

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/funnelpulse/pkg/storage"
	"github.com/platinummonkey/funnelpulse/pkg/storage/storagetest"
)

func TestSQLKV_PostgresQueries(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	kv := NewSQLKV(db, DialectPostgres, "ns")
	assert.Equal(t, "SELECT value FROM funnel_kv WHERE namespace = $1 AND key = $2", kv.getQuery)
	assert.Contains(t, kv.upsertQuery, "VALUES ($1, $2, $3, $4)")
	assert.Contains(t, kv.upsertQuery, "ON CONFLICT (namespace, key) DO UPDATE")

	lite := NewSQLKV(db, DialectSQLite, "ns")
	assert.Equal(t, "DELETE FROM funnel_kv WHERE namespace = ? AND key = ?", lite.deleteQuery)
}

func TestSQLKV_Get(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	kv := NewSQLKV(db, DialectPostgres, "funnel_telemetry")

	mock.ExpectQuery(regexp.QuoteMeta(kv.getQuery)).
		WithArgs("funnel_telemetry", "daily_metrics_2024-03-01").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`{"date":"2024-03-01"}`)))

	got, err := kv.Get(ctx, "daily_metrics_2024-03-01")
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2024-03-01"}`, string(got))

	mock.ExpectQuery(regexp.QuoteMeta(kv.getQuery)).
		WithArgs("funnel_telemetry", "daily_metrics_2024-03-02").
		WillReturnError(sql.ErrNoRows)

	_, err = kv.Get(ctx, "daily_metrics_2024-03-02")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLKV_PutAndDelete(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	kv := NewSQLKV(db, DialectPostgres, "ns")

	mock.ExpectExec(regexp.QuoteMeta(kv.upsertQuery)).
		WithArgs("ns", "raw_events_2024-03-01", []byte(`[]`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(kv.deleteQuery)).
		WithArgs("ns", "raw_events_2024-03-01").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, kv.Put(ctx, "raw_events_2024-03-01", []byte(`[]`)))
	require.NoError(t, kv.Delete(ctx, "raw_events_2024-03-01"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLKV_ErrorsAreWrapped(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	kv := NewSQLKV(db, DialectPostgres, "ns")
	boom := errors.New("connection reset")

	mock.ExpectQuery(regexp.QuoteMeta(kv.getQuery)).WillReturnError(boom)
	mock.ExpectExec(regexp.QuoteMeta(kv.upsertQuery)).WillReturnError(boom)

	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, storage.ErrNotFound)

	err = kv.Put(ctx, "k", []byte("v"))
	assert.ErrorIs(t, err, boom)
}

func TestSQLKV_EnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS funnel_kv").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewSQLKV(db, DialectPostgres, "ns").EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteKV_Contract(t *testing.T) {
	cfg := storage.DefaultConfig()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "funnel.db")

	kv, err := OpenSQLiteKV(context.Background(), cfg)
	require.NoError(t, err)
	defer kv.Close()

	storagetest.RunKVContract(t, kv)
	assert.NoError(t, kv.HealthCheck(context.Background()))
}

func TestSQLiteKV_NamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	cfg := storage.DefaultConfig()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "funnel.db")

	cfg.Namespace = "site_a"
	a, err := OpenSQLiteKV(ctx, cfg)
	require.NoError(t, err)
	defer a.Close()

	b := NewSQLKV(a.db, DialectSQLite, "site_b")

	require.NoError(t, a.Put(ctx, "daily_metrics_2024-03-01", []byte(`{"a":1}`)))
	_, err = b.Get(ctx, "daily_metrics_2024-03-01")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
