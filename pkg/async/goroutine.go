package async

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/funnelpulse/pkg/observability"
)

// SafeGo executes a function in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement (timeout <= 0 runs until the parent is done)
// - Error logging
//
// Use this instead of bare `go func()` for fire-and-forget work.
//
// Example:
//
//	SafeGo(ctx, logger, 30*time.Second, "raw event retention", func(ctx context.Context) error {
//	    return store.Delete(ctx, key)
//	})
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	go func() {
		var (
			ctx    context.Context
			cancel context.CancelFunc
		)
		if timeout > 0 {
			ctx, cancel = context.WithTimeout(parentCtx, timeout)
		} else {
			ctx, cancel = context.WithCancel(parentCtx)
		}
		defer cancel()
		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Warn("Background task failed")
		}
	}()
}

// SafeGoNoError is like SafeGo but for functions that don't return errors.
func SafeGoNoError(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context)) {
	SafeGo(parentCtx, logger, timeout, taskName, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// Batch processes items concurrently with at most workers in flight and a
// per-item timeout. Unlike errgroup.Wait it does not stop at the first
// failure: every item runs and all errors are returned in item order.
//
// Example:
//
//	errs := Batch(ctx, dates, 4, "backfill", time.Minute, func(ctx context.Context, date string) error {
//	    _, err := aggregator.AggregateDaily(ctx, date)
//	    return err
//	})
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	if workers <= 0 {
		workers = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)

	errs := make([]error, len(items))
	for i, item := range items {
		g.Go(func() error {
			// Item errors are collected, not returned, so siblings keep running.
			errs[i] = runItem(ctx, timeout, taskName, item, fn)
			return nil
		})
	}
	_ = g.Wait()

	var out []error
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}

func runItem[T any](ctx context.Context, timeout time.Duration, taskName string, item T,
	fn func(context.Context, T) error) (err error) {

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", taskName, r)
		}
	}()

	itemCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(itemCtx, item)
}
