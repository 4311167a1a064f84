// Package analytics turns raw lead-funnel telemetry into daily summaries,
// trend reports and conversion alerts.
//
// # Overview
//
// Raw events are appended per day under "raw_events_<YYYY-MM-DD>" by the
// EventTracker. Once a day the Aggregator folds a day's events into a
// DailyMetrics document (sessions, engagement, CTA performance, form funnel,
// city and offence breakdowns, performance score) and stores it under
// "daily_metrics_<YYYY-MM-DD>". Trend analysis, range reads and exports are
// computed on demand from stored summaries.
//
// # Usage Example
//
// Aggregate yesterday:
//
//	agg := analytics.NewAggregator(store, analytics.DefaultAggregationConfig(),
//		analytics.WithLogger(logger), analytics.WithMetrics(metrics))
//	daily, err := agg.AggregateDaily(ctx, "2024-03-01")
//
// Week-over-week trends:
//
//	report := agg.GenerateTrendAnalysis(ctx, 7)
//	for _, insight := range report.Insights {
//		fmt.Println(insight)
//	}
//
// Evaluate alert rules against the new summary:
//
//	alerter := analytics.NewAlerter(analytics.DefaultAlertRules(cfg.AlertThresholds),
//		analytics.WithNotifiers(slack, webhook))
//	fired := alerter.Evaluate(ctx, daily, previous)
//
// # Failure Semantics
//
// Store failures never abort an aggregation: unreadable input is treated as
// an empty day, failed writes are logged, and the computed summary is always
// returned to the caller.
package analytics
