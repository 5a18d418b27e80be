package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/listas-backoffice-go/internal/infra/resilience"
)

var fast = resilience.Config{MaxRetries: 3, InitialBackoff: time.Millisecond}

func TestRetryWithBackoff_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := resilience.RetryWithBackoff(context.Background(), fast, func() error {
		calls++
		if calls < 3 {
			return errors.New("gateway 503")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryWithBackoff_ExhaustsRetries(t *testing.T) {
	calls := 0
	err := resilience.RetryWithBackoff(context.Background(), fast, func() error {
		calls++
		return errors.New("still down")
	})
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if calls != fast.MaxRetries+1 {
		t.Errorf("expected %d calls, got %d", fast.MaxRetries+1, calls)
	}
}

func TestRetryWithBackoff_StopsOnPermanent(t *testing.T) {
	cause := errors.New("invalid api key")
	calls := 0
	err := resilience.RetryWithBackoff(context.Background(), fast, func() error {
		calls++
		return resilience.Permanent(cause)
	})
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause, got %v", err)
	}
	if resilience.IsPermanent(err) {
		t.Error("returned error should be unwrapped")
	}
	if calls != 1 {
		t.Errorf("expected a single call, got %d", calls)
	}
}

func TestRetryWithBackoff_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := resilience.RetryWithBackoff(ctx, resilience.Config{MaxRetries: 5, InitialBackoff: time.Second}, func() error {
		return errors.New("error")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestCall_ReturnsTypedResult(t *testing.T) {
	cb := resilience.NewCircuitBreaker("test")
	calls := 0
	got, err := resilience.Call(context.Background(), cb, fast, func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("timeout")
		}
		return "qr_123", nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if got != "qr_123" {
		t.Errorf("expected qr_123, got %q", got)
	}
}

func TestCall_PermanentErrorsDoNotTripBreaker(t *testing.T) {
	cb := resilience.NewCircuitBreaker("test-permanent")
	for i := 0; i < 10; i++ {
		_, _ = resilience.Call(context.Background(), cb, fast, func() (int, error) {
			return 0, resilience.Permanent(errors.New("400"))
		})
	}
	if cb.State().String() != "closed" {
		t.Errorf("expected closed breaker, got %s", cb.State())
	}
}

func TestBulkhead_AcquireRelease(t *testing.T) {
	bh := resilience.NewBulkhead(1)

	if err := bh.Acquire(context.Background()); err != nil {
		t.Fatalf("expected acquire, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := bh.Acquire(ctx); err == nil {
		t.Fatal("expected timeout on second acquire")
	}

	bh.Release()
	if err := bh.Acquire(context.Background()); err != nil {
		t.Fatalf("expected acquire after release, got %v", err)
	}
}
