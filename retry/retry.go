// Package retry implements the exponential-backoff retry utility shared
// by the pipeline executor and the marketplace client.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/ragforge/ragforge/ragerr"
)

// Policy configures a retry loop. Retries is the number of additional
// attempts after the first (total attempts = Retries+1). Delay for
// attempt i (0-based) is BaseDelay * Multiplier^i, optionally jittered
// by up to ±50%.
type Policy struct {
	Retries    int
	BaseDelay  time.Duration
	Multiplier float64
	Jitter     bool

	// Sleep is injectable so tests can replace it with a no-op; it
	// defaults to a context-aware real sleep.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnDelay, if set, is invoked before each retry sleep with the
	// attempt index (0-based, the attempt that just failed) and the
	// computed delay.
	OnDelay func(attempt int, delay time.Duration)

	// Rand supplies jitter randomness; defaults to a package-level
	// source. Tests can override it for deterministic delays.
	Rand func() float64
}

// DefaultPolicy matches the spec's default retry parameters.
func DefaultPolicy() Policy {
	return Policy{
		Retries:    3,
		BaseDelay:  100 * time.Millisecond,
		Multiplier: 2,
		Jitter:     false,
	}
}

func (p Policy) sleep() func(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep
	}
	return realSleep
}

func realSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Delay computes the nominal (pre-jitter) delay for 0-based attempt i.
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= p.Multiplier
	}
	return time.Duration(d)
}

func (p Policy) jittered(d time.Duration, randFn func() float64) time.Duration {
	if !p.Jitter {
		return d
	}
	// ±50%: factor in [0.5, 1.5).
	factor := 0.5 + randFn()
	return time.Duration(float64(d) * factor)
}

// Do runs fn, retrying on error according to the policy. It returns a
// Transient ragerr wrapping the last error if every attempt fails. Cancellation via ctx is checked
// before each retry sleep and aborts with a Cancelled ragerr.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	randFn := policy.Rand
	if randFn == nil {
		randFn = rand.Float64
	}
	sleepFn := policy.sleep()

	var lastErr error
	attempts := policy.Retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			return ragerr.Wrap(ragerr.Cancelled, "retry aborted before attempt", ctx.Err())
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if kind, ok := ragerr.KindOf(err); ok && kind == ragerr.Cancelled {
			return err
		}

		if attempt == attempts-1 {
			break
		}

		delay := policy.jittered(policy.Delay(attempt), randFn)
		if policy.OnDelay != nil {
			policy.OnDelay(attempt, delay)
		}
		if err := sleepFn(ctx, delay); err != nil {
			return ragerr.Wrap(ragerr.Cancelled, "retry aborted during delay", err)
		}
	}
	return ragerr.Wrap(ragerr.Transient, "all retry attempts failed", lastErr)
}
