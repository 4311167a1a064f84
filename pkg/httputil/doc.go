// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, daily)
//	httputil.WriteBody(w, http.StatusOK, "text/csv", csv)
//	httputil.WriteBadRequest(w, "start is required")
//	httputil.WriteNotFoundError(w, "no metrics stored for date")
//
// # Request Parsing
//
//	var batch analytics.IngestBatch
//	if !httputil.ParseJSONOrError(w, r, &batch, 512<<10) {
//		return // Error response already written
//	}
//	days, err := httputil.ParseQueryInt(r, "days", 7)
//	ip := httputil.ClientIP(r)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.LoggingMiddleware,
//	)
//
// # Related Packages
//
//   - pkg/middleware: Admin authentication and rate limiting
package httputil
