package audit

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/funnelpulse/pkg/contextkeys"
	"github.com/platinummonkey/funnelpulse/pkg/observability"
)

type recordingLogger struct {
	mu     sync.Mutex
	events []*Event
	err    error
	closed bool
}

func (l *recordingLogger) Log(_ context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return l.err
}

func (l *recordingLogger) Close() error {
	l.closed = true
	return l.err
}

// authenticate stands in for the admin auth middleware
func authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(contextkeys.WithSubject(r.Context(), "ops")))
	})
}

func TestMiddleware_RecordsSuccess(t *testing.T) {
	rec := &recordingLogger{}
	handler := Middleware(rec, EventTypeAlertAcknowledge)(authenticate(CaptureSubject(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Annotate(r.Context(), func(e *Event) { e.ResourceID = "alert-1" })
			_, _ = w.Write([]byte("ok"))
		}))))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/alert-1/acknowledge?x=1", nil)
	req.Header.Set("Authorization", "Bearer good")
	req.Header.Set("User-Agent", "funnelctl")
	req.RemoteAddr = "198.51.100.4:5555"
	req = req.WithContext(contextkeys.WithRequestID(req.Context(), "req-1"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, rec.events, 1)
	event := rec.events[0]
	assert.Equal(t, EventTypeAlertAcknowledge, event.EventType)
	assert.Equal(t, EventStatusSuccess, event.Status)
	assert.Equal(t, "ops", event.Subject)
	assert.Equal(t, "alert-1", event.ResourceID)
	assert.Equal(t, "req-1", event.RequestID)
	assert.Equal(t, "198.51.100.4", event.IPAddress)
	assert.Equal(t, "funnelctl", event.UserAgent)
	assert.Equal(t, "x=1", event.Query)
	assert.Equal(t, http.StatusOK, event.StatusCode)
	assert.False(t, event.Timestamp.IsZero())
}

func TestMiddleware_RecordsDenied(t *testing.T) {
	rec := &recordingLogger{}
	handler := Middleware(rec, EventTypeExport)(authenticate(CaptureSubject(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		}))))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/metrics/export", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.Len(t, rec.events, 1)
	assert.Equal(t, EventStatusDenied, rec.events[0].Status)
	assert.Empty(t, rec.events[0].Subject)
}

func TestMiddleware_LogFailureDoesNotAffectResponse(t *testing.T) {
	rec := &recordingLogger{err: errors.New("disk full")}
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.InfoLevel, &buf)

	handler := Middleware(rec, EventTypeMetricsRead)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics/daily/2025-03-14", nil)
	req = req.WithContext(observability.WithLogger(req.Context(), logger))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	require.Len(t, rec.events, 1)
	assert.Equal(t, EventStatusFailure, rec.events[0].Status)
	assert.Contains(t, buf.String(), "Failed to write audit event")
}

func TestAnnotate_OutsideMiddleware(t *testing.T) {
	called := false
	Annotate(context.Background(), func(*Event) { called = true })
	assert.False(t, called)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, EventStatusSuccess, StatusFor(http.StatusOK))
	assert.Equal(t, EventStatusSuccess, StatusFor(http.StatusNoContent))
	assert.Equal(t, EventStatusDenied, StatusFor(http.StatusUnauthorized))
	assert.Equal(t, EventStatusDenied, StatusFor(http.StatusForbidden))
	assert.Equal(t, EventStatusFailure, StatusFor(http.StatusBadRequest))
	assert.Equal(t, EventStatusFailure, StatusFor(http.StatusInternalServerError))
}

func TestLogLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogLogger(observability.NewLogger(observability.InfoLevel, &buf))

	require.NoError(t, logger.Log(context.Background(), &Event{
		EventType: EventTypeAggregate,
		Status:    EventStatusSuccess,
		Subject:   "ops",
	}))
	require.NoError(t, logger.Close())

	out := buf.String()
	assert.Contains(t, out, "Audit event")
	assert.Contains(t, out, "metrics.aggregate")
	assert.Contains(t, out, "ops")
}

func TestMultiLogger(t *testing.T) {
	good := &recordingLogger{}
	bad := &recordingLogger{err: errors.New("boom")}
	multi := NewMultiLogger(bad, good)

	err := multi.Log(context.Background(), &Event{EventType: EventTypeTrendsRead})
	assert.ErrorContains(t, err, "boom")
	assert.Len(t, good.events, 1)
	assert.Len(t, bad.events, 1)

	assert.Error(t, multi.Close())
	assert.True(t, good.closed)
	assert.True(t, bad.closed)
}
