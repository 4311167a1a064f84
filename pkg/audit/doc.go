// Package audit records an audit trail of admin API calls.
//
// Every admin route is wrapped with Middleware, which captures the verified
// subject, client address, request ID, status code and latency of the call
// and hands one Event to a Logger once the handler returns.
//
// # Loggers
//
//   - FileLogger appends JSON lines to <dir>/audit.log with size based rotation
//   - LogLogger writes events to the structured application log
//   - MultiLogger fans an event out to several loggers
//
// # Usage
//
//	logger, err := audit.NewFileLogger(audit.FileLoggerConfig{BasePath: "/var/log/funnelpulse"})
//	handler := audit.Middleware(logger, audit.EventTypeAggregate)(next)
//
// Handlers can attach details to the in-flight event:
//
//	audit.Annotate(ctx, func(e *audit.Event) { e.ResourceID = alertID })
package audit
