package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/platinummonkey/funnelpulse/pkg/observability"
)

func TestSafeGo_Success(t *testing.T) {
	done := make(chan struct{})
	SafeGo(context.Background(), nil, time.Second, "test task", func(ctx context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Task did not complete in time")
	}
}

func TestSafeGo_PanicRecovery(t *testing.T) {
	done := make(chan struct{})
	SafeGo(context.Background(), observability.NopLogger(), time.Second, "panicking task", func(ctx context.Context) error {
		defer close(done)
		panic("test panic")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Panicking task did not run")
	}
	// Reaching here without the test binary crashing is the assertion.
	time.Sleep(10 * time.Millisecond)
}

func TestSafeGo_Timeout(t *testing.T) {
	result := make(chan error, 1)
	SafeGo(context.Background(), nil, 20*time.Millisecond, "slow task", func(ctx context.Context) error {
		<-ctx.Done()
		result <- ctx.Err()
		return ctx.Err()
	})

	select {
	case err := <-result:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Expected deadline exceeded, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Task was not cancelled by its timeout")
	}
}

func TestSafeGoNoError(t *testing.T) {
	done := make(chan struct{})
	SafeGoNoError(context.Background(), nil, time.Second, "no error task", func(ctx context.Context) {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Task did not complete in time")
	}
}

func TestBatch(t *testing.T) {
	var processed int32
	items := []int{1, 2, 3, 4, 5, 6}

	errs := Batch(context.Background(), items, 2, "sum", time.Second, func(ctx context.Context, n int) error {
		atomic.AddInt32(&processed, 1)
		return nil
	})

	if len(errs) != 0 {
		t.Fatalf("Expected no errors, got %v", errs)
	}
	if processed != int32(len(items)) {
		t.Errorf("Expected %d items processed, got %d", len(items), processed)
	}
}

func TestBatch_CollectsAllErrors(t *testing.T) {
	var processed int32
	items := []string{"a", "b", "c", "d"}

	errs := Batch(context.Background(), items, 4, "fail odd", time.Second, func(ctx context.Context, s string) error {
		atomic.AddInt32(&processed, 1)
		if s == "b" || s == "d" {
			return errors.New("failed " + s)
		}
		return nil
	})

	if processed != 4 {
		t.Errorf("Expected every item to run, got %d", processed)
	}
	if len(errs) != 2 {
		t.Fatalf("Expected 2 errors, got %d", len(errs))
	}
	if errs[0].Error() != "failed b" || errs[1].Error() != "failed d" {
		t.Errorf("Errors not returned in item order: %v", errs)
	}
}

func TestBatch_PanicBecomesError(t *testing.T) {
	errs := Batch(context.Background(), []int{1}, 1, "panicky", time.Second, func(ctx context.Context, n int) error {
		panic("kaboom")
	})
	if len(errs) != 1 {
		t.Fatalf("Expected panic to surface as an error, got %v", errs)
	}
}

func TestBatch_LimitsConcurrency(t *testing.T) {
	var inFlight, peak int32
	items := make([]int, 10)

	Batch(context.Background(), items, 3, "limited", time.Second, func(ctx context.Context, _ int) error {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil
	})

	if peak > 3 {
		t.Errorf("Expected at most 3 concurrent workers, saw %d", peak)
	}
}
