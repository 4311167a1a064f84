package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/platinummonkey/funnelpulse/pkg/analytics"
	"github.com/platinummonkey/funnelpulse/pkg/audit"
	"github.com/platinummonkey/funnelpulse/pkg/contextkeys"
	"github.com/platinummonkey/funnelpulse/pkg/httputil"
	"github.com/platinummonkey/funnelpulse/pkg/observability"
)

const (
	maxTrendDays     = 90
	maxHistoryLimit  = 1000
	telemetryMessage = "Events received"
)

// ingestTelemetry handles POST /api/v1/telemetry
func (s *Server) ingestTelemetry(w http.ResponseWriter, r *http.Request) {
	var batch analytics.IngestBatch
	if !httputil.ParseJSONOrError(w, r, &batch, s.opts.MaxBodyBytes) {
		return
	}
	if batch.Events == nil {
		httputil.WriteBadRequest(w, "events array required")
		return
	}
	if batch.UserAgent == "" {
		batch.UserAgent = r.UserAgent()
	}
	if batch.Referrer == "" {
		batch.Referrer = r.Referer()
	}

	processed, err := s.tracker.Track(r.Context(), batch, httputil.ClientIP(r))
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to store telemetry")
		httputil.WriteInternalError(w, errors.New("failed to store events"))
		return
	}

	_ = httputil.WriteSuccess(w, TelemetryResponse{
		Success:   true,
		Processed: processed,
		Message:   telemetryMessage,
	})
}

// aggregateDaily handles POST /api/v1/metrics/aggregate?date=
// An empty date aggregates today.
func (s *Server) aggregateDaily(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	date := httputil.ParseQueryString(r, "date", "")

	metrics, err := s.aggregator.AggregateDaily(ctx, date)
	if err != nil {
		s.writeAnalyticsError(w, r, err)
		return
	}

	resp := AggregateResponse{Metrics: metrics, Alerts: []analytics.Alert{}}
	if s.alerter != nil {
		if fired := s.alerter.EvaluateDay(ctx, s.aggregator, metrics); len(fired) > 0 {
			resp.Alerts = fired
		}
	}

	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"date":              metrics.Date,
		"performance_score": metrics.PerformanceScore,
		"alerts":            len(resp.Alerts),
	}).Info("Aggregation triggered via API")

	_ = httputil.WriteSuccess(w, resp)
}

// getDailyMetrics handles GET /api/v1/metrics/daily/{date}
func (s *Server) getDailyMetrics(w http.ResponseWriter, r *http.Request) {
	date, ok := httputil.ParsePathStringOrError(w, r, "date")
	if !ok {
		return
	}

	metrics, err := s.aggregator.GetDailyMetrics(r.Context(), date)
	if err != nil {
		s.writeAnalyticsError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, metrics)
}

// getMetricsRange handles GET /api/v1/metrics?start=&end=
func (s *Server) getMetricsRange(w http.ResponseWriter, r *http.Request) {
	start, ok := httputil.RequireQuery(w, r, "start")
	if !ok {
		return
	}
	end, ok := httputil.RequireQuery(w, r, "end")
	if !ok {
		return
	}

	metrics, err := s.aggregator.GetMetricsRange(r.Context(), start, end)
	if err != nil {
		s.writeAnalyticsError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, MetricsRangeResponse{
		Start:   start,
		End:     end,
		Count:   len(metrics),
		Metrics: metrics,
	})
}

// getTrends handles GET /api/v1/metrics/trends?days=
func (s *Server) getTrends(w http.ResponseWriter, r *http.Request) {
	days, err := httputil.ParseQueryInt(r, "days", 7)
	if err != nil || days < 1 || days > maxTrendDays {
		httputil.WriteBadRequest(w, fmt.Sprintf("days must be between 1 and %d", maxTrendDays))
		return
	}

	_ = httputil.WriteSuccess(w, s.aggregator.GenerateTrendAnalysis(r.Context(), days))
}

// exportMetrics handles GET /api/v1/metrics/export?start=&end=&format=
func (s *Server) exportMetrics(w http.ResponseWriter, r *http.Request) {
	start, ok := httputil.RequireQuery(w, r, "start")
	if !ok {
		return
	}
	end, ok := httputil.RequireQuery(w, r, "end")
	if !ok {
		return
	}
	format, err := analytics.ParseExportFormat(httputil.ParseQueryString(r, "format", ""))
	if err != nil {
		httputil.WriteDetailedError(w, http.StatusBadRequest, err, map[string]string{
			"supported": "json, csv, ndjson",
		})
		return
	}

	body, err := s.aggregator.ExportMetrics(r.Context(), start, end, format)
	if err != nil {
		s.writeAnalyticsError(w, r, err)
		return
	}

	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="funnel-metrics-%s-%s.%s"`, start, end, format))
	_ = httputil.WriteBody(w, http.StatusOK, format.ContentType(), body)
}

// listActiveAlerts handles GET /api/v1/alerts
func (s *Server) listActiveAlerts(w http.ResponseWriter, r *http.Request) {
	if !s.alertsEnabled(w) {
		return
	}
	alerts := s.alerter.ActiveAlerts()
	_ = httputil.WriteSuccess(w, AlertsResponse{Count: len(alerts), Alerts: alerts})
}

// listAlertHistory handles GET /api/v1/alerts/history?limit=
func (s *Server) listAlertHistory(w http.ResponseWriter, r *http.Request) {
	if !s.alertsEnabled(w) {
		return
	}
	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil || limit < 1 || limit > maxHistoryLimit {
		httputil.WriteBadRequest(w, fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit))
		return
	}

	alerts := s.alerter.History(limit)
	_ = httputil.WriteSuccess(w, AlertsResponse{Count: len(alerts), Alerts: alerts})
}

// acknowledgeAlert handles POST /api/v1/alerts/{id}/acknowledge
func (s *Server) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	if !s.alertsEnabled(w) {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	audit.Annotate(r.Context(), func(e *audit.Event) { e.ResourceID = id })
	subject := contextkeys.GetSubject(r.Context())
	alert, err := s.alerter.Acknowledge(id, subject)
	if err != nil {
		s.writeAnalyticsError(w, r, err)
		return
	}

	observability.FromContext(r.Context()).WithField("alert_id", id).Info("Alert acknowledged")
	_ = httputil.WriteSuccess(w, alert)
}

func (s *Server) alertsEnabled(w http.ResponseWriter) bool {
	if s.alerter == nil {
		httputil.WriteServiceUnavailable(w, "alerting is not enabled")
		return false
	}
	return true
}

// writeAnalyticsError maps analytics errors to HTTP statuses
func (s *Server) writeAnalyticsError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, analytics.ErrInvalidDate), errors.Is(err, analytics.ErrUnsupportedFormat):
		httputil.WriteError(w, http.StatusBadRequest, err)
	case errors.Is(err, analytics.ErrMetricsNotFound), errors.Is(err, analytics.ErrAlertNotFound):
		httputil.WriteError(w, http.StatusNotFound, err)
	default:
		observability.FromContext(r.Context()).WithError(err).Error("Request failed")
		httputil.WriteInternalError(w, errors.New("internal server error"))
	}
}
