package api

import "github.com/platinummonkey/funnelpulse/pkg/analytics"

// TelemetryResponse acknowledges an ingested batch
type TelemetryResponse struct {
	Success   bool   `json:"success"`
	Processed int    `json:"processed"`
	Message   string `json:"message"`
}

// AggregateResponse is the result of an on-demand aggregation run
type AggregateResponse struct {
	Metrics *analytics.DailyMetrics `json:"metrics"`
	Alerts  []analytics.Alert       `json:"alerts"`
}

// MetricsRangeResponse lists stored summaries, oldest first
type MetricsRangeResponse struct {
	Start   string                   `json:"start"`
	End     string                   `json:"end"`
	Count   int                      `json:"count"`
	Metrics []analytics.DailyMetrics `json:"metrics"`
}

// AlertsResponse lists alerts
type AlertsResponse struct {
	Count  int               `json:"count"`
	Alerts []analytics.Alert `json:"alerts"`
}
