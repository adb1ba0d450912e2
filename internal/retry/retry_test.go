package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DINGDANGMAOUP/mihomo-rs/internal/mherr"
)

func TestExecuteSuccessOnFirstAttempt(t *testing.T) {
	e := New(DefaultPolicy())
	got, err := Execute(context.Background(), e, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("got (%v, %v), want (42, nil)", got, err)
	}
}

func TestExecuteSuccessAfterFailures(t *testing.T) {
	policy := DefaultPolicy()
	policy.MaxAttempts = 3
	policy.InitialDelay = 0
	e := New(policy)

	count := 0
	got, err := Execute(context.Background(), e, func(ctx context.Context) (int, error) {
		count++
		if count < 3 {
			return 0, mherr.Network("op", "refused", nil)
		}
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("got (%v, %v), want (42, nil)", got, err)
	}
	if count != 3 {
		t.Fatalf("expected 3 attempts, got %d", count)
	}
}

func TestExecuteNonRetryableStopsImmediately(t *testing.T) {
	e := New(DefaultPolicy())
	count := 0
	_, err := Execute(context.Background(), e, func(ctx context.Context) (int, error) {
		count++
		return 0, mherr.Auth("op", "unauthorized")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if count != 1 {
		t.Fatalf("expected exactly one attempt for non-retryable error, got %d", count)
	}
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	policy := DefaultPolicy()
	policy.MaxAttempts = 3
	policy.InitialDelay = 0
	e := New(policy)

	count := 0
	_, err := Execute(context.Background(), e, func(ctx context.Context) (int, error) {
		count++
		return 0, mherr.Network("op", "refused", nil)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if count != 3 {
		t.Fatalf("expected 3 attempts, got %d", count)
	}
}

func TestExecuteCancelDuringBackoff(t *testing.T) {
	policy := DefaultPolicy()
	policy.MaxAttempts = 5
	policy.InitialDelay = time.Second
	e := New(policy)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Execute(ctx, e, func(ctx context.Context) (int, error) {
		return 0, mherr.Network("op", "refused", nil)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExecuteAsync(t *testing.T) {
	e := New(DefaultPolicy())
	ch := ExecuteAsync(context.Background(), e, func(ctx context.Context) (int, error) {
		return 7, nil
	})
	res := <-ch
	if res.Err != nil || res.Value != 7 {
		t.Fatalf("got %+v, want value 7", res)
	}
}
