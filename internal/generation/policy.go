package generation

import (
	"context"
	"time"
)

// RetryPolicy describes the backoff applied to transport failures. Semantic
// validation failures are never delayed by this policy.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultTransportPolicy matches the historical behavior: three tries with
// exponential backoff from ten seconds, capped at thirty.
func DefaultTransportPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
	}
}

// Delay returns the wait before the given retry, 1-based. The first retry
// waits InitialDelay; each further retry multiplies it, capped at MaxDelay.
func (p RetryPolicy) Delay(retry int) time.Duration {
	d := p.InitialDelay
	for i := 1; i < retry; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
