package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/funnelpulse/pkg/async"
	"github.com/platinummonkey/funnelpulse/pkg/observability"
	"github.com/platinummonkey/funnelpulse/pkg/storage"
)

var tracer = observability.Tracer("analytics")

// ErrMetricsNotFound is returned when no summary is stored for a date
var ErrMetricsNotFound = errors.New("no metrics stored for date")

const cleanupTimeout = 30 * time.Second

// Aggregator computes and stores daily summaries from raw telemetry. One
// instance may serve concurrent callers. Two runs for the same date race on
// the final write and the last writer wins.
type Aggregator struct {
	store   storage.KV
	config  AggregationConfig
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time

	cleanups sync.WaitGroup
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithLogger sets the logger
func WithLogger(logger *observability.Logger) Option {
	return func(a *Aggregator) { a.logger = logger }
}

// WithMetrics records Prometheus metrics for each run
func WithMetrics(metrics *observability.Metrics) Option {
	return func(a *Aggregator) { a.metrics = metrics }
}

// WithClock overrides the wall clock used to resolve "today"
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator creates a new aggregator. store may be nil, in which case
// every read yields no data and every write is skipped.
func NewAggregator(store storage.KV, config AggregationConfig, opts ...Option) *Aggregator {
	if config.RetentionDays <= 0 {
		config.RetentionDays = DefaultAggregationConfig().RetentionDays
	}
	a := &Aggregator{
		store:  store,
		config: config,
		logger: observability.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.WithComponent("aggregator")
	return a
}

// Config returns the aggregator configuration
func (a *Aggregator) Config() AggregationConfig {
	return a.config
}

// Today returns the current calendar day in the configured location
func (a *Aggregator) Today() string {
	return a.today().Format(DateLayout)
}

// Yesterday returns the previous calendar date, the one a nightly run closes out
func (a *Aggregator) Yesterday() string {
	return a.today().AddDate(0, 0, -1).Format(DateLayout)
}

// AggregateDaily folds the raw events stored for date into a DailyMetrics
// summary and persists it. An empty date means today. The only error is an
// unparseable date: store failures are logged and the computed summary is
// still returned.
func (a *Aggregator) AggregateDaily(ctx context.Context, date string) (*DailyMetrics, error) {
	day, err := a.resolveDay(date)
	if err != nil {
		return nil, err
	}
	date = day.Format(DateLayout)

	ctx, span := tracer.Start(ctx, "Aggregator.AggregateDaily",
		trace.WithAttributes(attribute.String("funnel.date", date)))
	defer span.End()

	start := time.Now()
	logger := a.logger.WithField("date", date)

	events := a.loadEvents(ctx, date, logger)
	metrics := ComputeDailyMetrics(date, events, a.config)

	span.SetAttributes(
		attribute.Int("funnel.events", len(events)),
		attribute.Int("funnel.performance_score", metrics.PerformanceScore),
	)

	status := "success"
	if err := a.storeMetrics(ctx, metrics); err != nil {
		status = "store_failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to store daily metrics")
		logger.WithError(err).Error("Failed to store daily metrics")
	}

	a.cleanupRawEvents(ctx, day)

	if a.metrics != nil {
		a.metrics.AggregationRunsTotal.WithLabelValues(status).Inc()
		a.metrics.AggregationDuration.Observe(time.Since(start).Seconds())
		a.metrics.AggregatedEventsTotal.Add(float64(len(events)))
		a.metrics.PerformanceScore.Set(float64(metrics.PerformanceScore))
	}

	logger.WithFields(map[string]interface{}{
		"events":            len(events),
		"sessions":          metrics.Sessions.Total,
		"performance_score": metrics.PerformanceScore,
		"duration_ms":       time.Since(start).Milliseconds(),
	}).Info("Daily metrics aggregated")

	return metrics, nil
}

// GetDailyMetrics returns the stored summary for date
func (a *Aggregator) GetDailyMetrics(ctx context.Context, date string) (*DailyMetrics, error) {
	if _, err := ParseDate(date, a.config.location()); err != nil {
		return nil, err
	}
	m, ok := a.loadDailyMetrics(ctx, date)
	if !ok {
		return nil, ErrMetricsNotFound
	}
	return m, nil
}

// GetMetricsRange returns the stored summaries from start to end inclusive,
// oldest first. Days without a summary are skipped.
func (a *Aggregator) GetMetricsRange(ctx context.Context, start, end string) ([]DailyMetrics, error) {
	dates, err := DateRange(start, end, a.config.location(), MaxRangeDays)
	if err != nil {
		return nil, err
	}

	out := make([]DailyMetrics, 0, len(dates))
	for _, date := range dates {
		if m, ok := a.loadDailyMetrics(ctx, date); ok {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (a *Aggregator) loadEvents(ctx context.Context, date string, logger *observability.Logger) []RawTelemetryEvent {
	if a.store == nil {
		return nil
	}

	data, err := a.store.Get(ctx, RawEventsKey(date))
	if errors.Is(err, storage.ErrNotFound) {
		logger.Debug("No raw events stored for date")
		return nil
	}
	if err != nil {
		logger.WithError(err).Warn("Failed to read raw events, aggregating an empty day")
		return nil
	}

	var events []RawTelemetryEvent
	if err := json.Unmarshal(data, &events); err != nil {
		logger.WithError(err).Warn("Raw events are not a JSON array, aggregating an empty day")
		return nil
	}
	return events
}

func (a *Aggregator) loadDailyMetrics(ctx context.Context, date string) (*DailyMetrics, bool) {
	if a.store == nil {
		return nil, false
	}

	data, err := a.store.Get(ctx, DailyMetricsKey(date))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			a.logger.WithError(err).WithField("date", date).Warn("Failed to read daily metrics")
		}
		return nil, false
	}

	var m DailyMetrics
	if err := json.Unmarshal(data, &m); err != nil {
		a.logger.WithError(err).WithField("date", date).Warn("Stored daily metrics are malformed")
		return nil, false
	}
	return &m, true
}

func (a *Aggregator) storeMetrics(ctx context.Context, m *DailyMetrics) error {
	if a.store == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal daily metrics: %w", err)
	}
	return a.store.Put(ctx, DailyMetricsKey(m.Date), data)
}

// cleanupRawEvents deletes the raw events that fell out of the retention
// window relative to day. It runs in the background and never blocks or fails
// the aggregation.
func (a *Aggregator) cleanupRawEvents(ctx context.Context, day time.Time) {
	if a.store == nil {
		return
	}
	expired := day.AddDate(0, 0, -a.config.RetentionDays).Format(DateLayout)

	a.cleanups.Add(1)
	async.SafeGo(context.WithoutCancel(ctx), a.logger, cleanupTimeout, "raw event retention cleanup",
		func(ctx context.Context) error {
			defer a.cleanups.Done()
			err := a.store.Delete(ctx, RawEventsKey(expired))
			if a.metrics != nil {
				status := "success"
				if err != nil {
					status = "error"
				}
				a.metrics.RetentionCleanupsTotal.WithLabelValues(status).Inc()
			}
			if err != nil {
				return fmt.Errorf("failed to delete raw events for %s: %w", expired, err)
			}
			a.logger.WithField("expired_date", expired).Debug("Expired raw events removed")
			return nil
		})
}

// Wait blocks until every retention cleanup started so far has finished or
// ctx is done. Call it before closing the store.
func (a *Aggregator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.cleanups.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("retention cleanup still running: %w", ctx.Err())
	}
}

func (a *Aggregator) today() time.Time {
	now := a.now().In(a.config.location())
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func (a *Aggregator) resolveDay(date string) (time.Time, error) {
	if date == "" {
		return a.today(), nil
	}
	return ParseDate(date, a.config.location())
}
