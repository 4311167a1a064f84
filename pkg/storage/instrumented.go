package storage

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/funnelpulse/pkg/observability"
)

var tracer = observability.Tracer("storage")

// InstrumentedKV records Prometheus metrics and OpenTelemetry spans for every
// operation on the wrapped store.
type InstrumentedKV struct {
	next    KV
	backend string
	metrics *observability.Metrics
}

// NewInstrumentedKV wraps next. backend is used as the metric label.
func NewInstrumentedKV(next KV, backend string, metrics *observability.Metrics) *InstrumentedKV {
	return &InstrumentedKV{next: next, backend: backend, metrics: metrics}
}

// Get implements KV.Get
func (i *InstrumentedKV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := i.record(ctx, "get", key, func(ctx context.Context) error {
		var err error
		value, err = i.next.Get(ctx, key)
		return err
	})
	return value, err
}

// Put implements KV.Put
func (i *InstrumentedKV) Put(ctx context.Context, key string, value []byte) error {
	return i.record(ctx, "put", key, func(ctx context.Context) error {
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int("kv.value_size", len(value)))
		return i.next.Put(ctx, key, value)
	})
}

// Delete implements KV.Delete
func (i *InstrumentedKV) Delete(ctx context.Context, key string) error {
	return i.record(ctx, "delete", key, func(ctx context.Context) error {
		return i.next.Delete(ctx, key)
	})
}

// HealthCheck delegates to the wrapped store
func (i *InstrumentedKV) HealthCheck(ctx context.Context) error {
	return HealthCheck(ctx, i.next)
}

func (i *InstrumentedKV) record(ctx context.Context, op, key string, fn func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, "KV."+op,
		trace.WithAttributes(
			attribute.String("kv.backend", i.backend),
			attribute.String("kv.key", key),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		status = "miss"
	default:
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
	}

	if i.metrics != nil {
		i.metrics.StorageOperationsTotal.WithLabelValues(op, i.backend, status).Inc()
		i.metrics.StorageOperationDuration.WithLabelValues(op, i.backend).Observe(time.Since(start).Seconds())
		if status == "error" {
			i.metrics.StorageErrorsTotal.WithLabelValues(op, i.backend).Inc()
		}
	}
	return err
}
