package utils

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Backoff returns the wait before retry attempt n (0-indexed).
type Backoff interface {
	Delay(attempt int) time.Duration
}

// BackoffFunc adapts a plain function to Backoff.
type BackoffFunc func(attempt int) time.Duration

func (f BackoffFunc) Delay(attempt int) time.Duration { return f(attempt) }

// ConstantBackoff waits the same delay before every retry.
func ConstantBackoff(delay time.Duration) Backoff {
	return BackoffFunc(func(int) time.Duration { return delay })
}

// LinearBackoff waits base*(attempt+1), capped at maxDelay.
func LinearBackoff(base, maxDelay time.Duration) Backoff {
	return BackoffFunc(func(attempt int) time.Duration {
		return min(base*time.Duration(attempt+1), maxDelay)
	})
}

// ExponentialBackoff waits base*2^attempt, capped at maxDelay. With rng set the
// delay is scaled by a factor in [0.5, 1.5) so that writers contending for
// the same lock spread out.
func ExponentialBackoff(base, maxDelay time.Duration, rng *RandSource) Backoff {
	return BackoffFunc(func(attempt int) time.Duration {
		delay := math.Min(float64(base)*math.Pow(2, float64(attempt)), float64(maxDelay))
		if rng != nil {
			delay *= 0.5 + rng.Float64()
		}
		return time.Duration(delay)
	})
}

// ParseBackoff builds a backoff by name: constant, linear or exponential
// (the default, jittered). A zero maxDelay means 30s.
func ParseBackoff(kind string, base, maxDelay time.Duration) (Backoff, error) {
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	switch kind {
	case "constant":
		return ConstantBackoff(base), nil
	case "linear":
		return LinearBackoff(base, maxDelay), nil
	case "", "exponential":
		return ExponentialBackoff(base, maxDelay, NewRandSource(time.Now().UnixNano())), nil
	}
	return nil, fmt.Errorf("unknown backoff %q", kind)
}

// Retry calls fn until it succeeds, fails with an error retryable rejects,
// or attempts run out; the last error is returned. Waiting between attempts
// stops early when ctx is done.
func Retry(ctx context.Context, b Backoff, attempts int, retryable func(error) bool, fn func() error) error {
	attempts = max(attempts, 1)
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		timer := time.NewTimer(b.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
