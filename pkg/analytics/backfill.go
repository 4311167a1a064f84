package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/funnelpulse/pkg/async"
)

const backfillDayTimeout = 5 * time.Minute

// BackfillResult is the outcome of one day of a backfill
type BackfillResult struct {
	Date    string        `json:"date"`
	Metrics *DailyMetrics `json:"metrics,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// Backfill aggregates every date from start to end inclusive with at most
// workers days in flight. The range may span at most MaxBackfillDays days. Results are in date order. A failed day does not
// stop the others; the returned error joins every failure.
func (a *Aggregator) Backfill(ctx context.Context, start, end string, workers int) ([]BackfillResult, error) {
	dates, err := DateRange(start, end, a.config.location(), a.config.MaxBackfillDays)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("%w: end %s is before start %s", ErrInvalidDate, end, start)
	}

	ctx, span := tracer.Start(ctx, "Aggregator.Backfill", trace.WithAttributes(
		attribute.String("funnel.start", start),
		attribute.String("funnel.end", end),
		attribute.Int("funnel.days", len(dates)),
	))
	defer span.End()

	results := make([]BackfillResult, len(dates))
	indexes := make([]int, len(dates))
	for i, date := range dates {
		results[i].Date = date
		indexes[i] = i
	}

	errs := async.Batch(ctx, indexes, workers, "backfill", backfillDayTimeout, func(ctx context.Context, i int) error {
		if err := ctx.Err(); err != nil {
			results[i].Error = err.Error()
			return fmt.Errorf("%s: %w", results[i].Date, err)
		}
		m, err := a.AggregateDaily(ctx, results[i].Date)
		if err != nil {
			results[i].Error = err.Error()
			return fmt.Errorf("%s: %w", results[i].Date, err)
		}
		results[i].Metrics = m
		return nil
	})

	a.logger.WithFields(map[string]interface{}{
		"start":  start,
		"end":    end,
		"days":   len(dates),
		"failed": len(errs),
	}).Info("Backfill complete")

	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		return results, err
	}
	return results, nil
}
