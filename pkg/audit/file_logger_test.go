package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLogger_Basic(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewFileLogger(FileLoggerConfig{BasePath: dir})
	require.NoError(t, err)
	defer logger.Close()

	event := &Event{
		Timestamp:  time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC),
		EventType:  EventTypeAggregate,
		Status:     EventStatusSuccess,
		Subject:    "ops",
		IPAddress:  "203.0.113.7",
		Method:     "POST",
		Path:       "/api/v1/metrics/aggregate",
		StatusCode: 200,
	}
	require.NoError(t, logger.Log(context.Background(), event))
	require.NoError(t, logger.Log(context.Background(), &Event{EventType: EventTypeAlertsRead, Status: EventStatusDenied}))

	assert.FileExists(t, filepath.Join(dir, "audit.log"))

	events, err := logger.ReadLogs(0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventTypeAggregate, events[0].EventType)
	assert.Equal(t, "ops", events[0].Subject)
	assert.True(t, event.Timestamp.Equal(events[0].Timestamp))
	assert.Equal(t, EventStatusDenied, events[1].Status)

	limited, err := logger.ReadLogs(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestFileLogger_RequiresDirectory(t *testing.T) {
	_, err := NewFileLogger(FileLoggerConfig{})
	assert.Error(t, err)
}

func TestFileLogger_Rotation(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewFileLogger(FileLoggerConfig{BasePath: dir, MaxSize: 1, MaxFiles: 2})
	require.NoError(t, err)
	defer logger.Close()

	tick := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	logger.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	for i := 0; i < 5; i++ {
		require.NoError(t, logger.Log(context.Background(), &Event{EventType: EventTypeExport}))
	}

	// Every write after the first rotates the previous one away
	rotated, err := logger.RotatedFiles()
	require.NoError(t, err)
	assert.Len(t, rotated, 2)
	assert.Equal(t, filepath.Join(dir, "audit-20250315-000003.000000000.log"), rotated[0])
	assert.Equal(t, filepath.Join(dir, "audit-20250315-000004.000000000.log"), rotated[1])

	events, err := logger.ReadLogs(0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestFileLogger_RotationDisabled(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewFileLogger(FileLoggerConfig{BasePath: dir, MaxSize: -1})
	require.NoError(t, err)
	defer logger.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, logger.Log(context.Background(), &Event{EventType: EventTypeExport}))
	}

	rotated, err := logger.RotatedFiles()
	require.NoError(t, err)
	assert.Empty(t, rotated)

	events, err := logger.ReadLogs(0)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestFileLogger_LogAfterClose(t *testing.T) {
	logger, err := NewFileLogger(FileLoggerConfig{BasePath: t.TempDir()})
	require.NoError(t, err)

	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())
	assert.Error(t, logger.Log(context.Background(), &Event{}))
}
