// Package async provides safe concurrent execution primitives for background tasks.
//
// SafeGo runs fire-and-forget work with panic recovery, a timeout and error
// logging. Batch fans a slice of items out over a bounded number of workers
// and collects every error instead of stopping at the first one.
//
//	async.SafeGo(ctx, logger, 30*time.Second, "cleanup", func(ctx context.Context) error {
//		return store.Delete(ctx, key)
//	})
//
//	errs := async.Batch(ctx, dates, 4, "backfill", time.Minute, aggregateOne)
package async
