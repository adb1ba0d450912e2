// Package retry implements the bounded exponential backoff executor
// described in spec.md §4.2, ported from the policy/executor split in
// _examples/original_source/src/retry.rs.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/DINGDANGMAOUP/mihomo-rs/internal/mherr"
)

// Policy controls backoff timing. Zero value is not usable directly;
// use DefaultPolicy().
type Policy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterFactor      float64
}

// DefaultPolicy matches spec.md §4.2's defaults: 3 attempts, 100ms
// initial delay, 30s cap, 2.0 multiplier, 10% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFactor:      0.1,
	}
}

// WithJitterFactor clamps to [0, 1], matching the Rust builder's clamp.
func (p Policy) WithJitterFactor(f float64) Policy {
	if f < 0 {
		f = 0
	} else if f > 1 {
		f = 1
	}
	p.JitterFactor = f
	return p
}

func (p Policy) calculateDelay(attempt int) time.Duration {
	base := float64(p.InitialDelay.Milliseconds()) * math.Pow(p.BackoffMultiplier, float64(attempt))
	maxMs := float64(p.MaxDelay.Milliseconds())
	delayMs := math.Min(base, maxMs)

	jitter := delayMs * p.JitterFactor * (rand.Float64() - 0.5)
	final := delayMs + jitter
	if final < 0 {
		final = 0
	}
	return time.Duration(final) * time.Millisecond
}

// Executor runs an operation under a Policy.
type Executor struct {
	policy Policy
}

// New constructs an Executor with the given policy.
func New(policy Policy) *Executor {
	return &Executor{policy: policy}
}

// Op is a retried operation. It must be idempotent: the executor offers
// no idempotency key or request hedging (spec.md §4.2).
type Op[T any] func(ctx context.Context) (T, error)

// Execute runs op up to policy.MaxAttempts times. On success, returns
// the value. On a non-retryable failure, returns immediately. Otherwise
// sleeps for the backoff delay (cancelable via ctx) and retries.
func Execute[T any](ctx context.Context, e *Executor, op Op[T]) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < e.policy.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !mherr.Retryable(err) {
			return zero, err
		}
		if attempt == e.policy.MaxAttempts-1 {
			return zero, err
		}

		delay := e.policy.calculateDelay(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	if lastErr == nil {
		lastErr = mherr.Internal("retry.Execute", "retry executor reached an unreachable state")
	}
	return zero, lastErr
}

// Result is the value delivered by ExecuteAsync.
type Result[T any] struct {
	Value T
	Err   error
}

// ExecuteAsync runs Execute on a new goroutine and delivers the result on
// a buffered, single-send channel. This is the asynchronous form spec.md
// §4.2 requires alongside the synchronous Execute; semantics are
// identical, only the calling convention differs.
func ExecuteAsync[T any](ctx context.Context, e *Executor, op Op[T]) <-chan Result[T] {
	out := make(chan Result[T], 1)
	go func() {
		v, err := Execute(ctx, e, op)
		out <- Result[T]{Value: v, Err: err}
		close(out)
	}()
	return out
}
