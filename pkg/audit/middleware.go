package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/platinummonkey/funnelpulse/pkg/contextkeys"
	"github.com/platinummonkey/funnelpulse/pkg/httputil"
	"github.com/platinummonkey/funnelpulse/pkg/observability"
)

type eventKey struct{}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Middleware records one event of eventType per request. It must wrap the
// authentication middleware so denied calls are recorded too; the verified
// subject is picked up by Annotate or CaptureSubject further down the chain.
func Middleware(logger Logger, eventType EventType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			event := &Event{
				EventType: eventType,
				IPAddress: httputil.ClientIP(r),
				UserAgent: r.UserAgent(),
				RequestID: contextkeys.GetRequestID(r.Context()),
				Method:    r.Method,
				Path:      r.URL.Path,
				Query:     r.URL.RawQuery,
			}

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			ctx := context.WithValue(r.Context(), eventKey{}, event)
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			event.Timestamp = start.UTC()
			event.StatusCode = wrapped.statusCode
			event.Status = StatusFor(wrapped.statusCode)
			event.DurationMS = time.Since(start).Milliseconds()

			if err := logger.Log(r.Context(), event); err != nil {
				observability.FromContext(r.Context()).WithError(err).
					WithField("event_type", string(eventType)).
					Error("Failed to write audit event")
			}
		})
	}
}

// Annotate lets a handler modify the in-flight event. It is a no-op
// outside Middleware.
func Annotate(ctx context.Context, fn func(*Event)) {
	if event, ok := ctx.Value(eventKey{}).(*Event); ok {
		fn(event)
	}
}

// CaptureSubject copies the authenticated subject onto the in-flight event.
// Place it after the authentication middleware.
func CaptureSubject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if subject := contextkeys.GetSubject(r.Context()); subject != "" {
			Annotate(r.Context(), func(e *Event) { e.Subject = subject })
		}
		next.ServeHTTP(w, r)
	})
}
