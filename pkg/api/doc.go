// Package api serves the funnel telemetry HTTP API.
//
// # Routes
//
// Public:
//
//	POST /api/v1/telemetry                        ingest a batch (CORS, rate limited)
//	GET  /health/live, /health/ready              probes
//	GET  /metrics                                 Prometheus
//
// Admin (bearer token, see pkg/middleware):
//
//	POST /api/v1/metrics/aggregate?date=          aggregate a day and evaluate alerts
//	GET  /api/v1/metrics/daily/{date}             stored summary
//	GET  /api/v1/metrics?start=&end=              stored summaries in a range
//	GET  /api/v1/metrics/trends?days=             trend and anomaly analysis
//	GET  /api/v1/metrics/export?start=&end=&format=
//	GET  /api/v1/alerts                           active alerts
//	GET  /api/v1/alerts/history?limit=            alert history
//	POST /api/v1/alerts/{id}/acknowledge
//
// # Usage
//
//	server := api.NewServer(aggregator, tracker, alerter, api.Options{
//	    Logger:   logger,
//	    Verifier: verifier,
//	    Limiter:  middleware.NewRateLimiter(nil),
//	})
//	http.ListenAndServe(":8080", server)
package api
