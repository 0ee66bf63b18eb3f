package completion

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryPolicy governs retries of retryable backend failures. A call that keeps
// failing retryably is issued MaxAttempts+1 times in total.
type RetryPolicy struct {
	MaxAttempts int           // Retries after the first call
	BaseBackoff time.Duration // Delay before the first retry
	Jitter      time.Duration // Upper bound of the random delay added to each backoff
	MaxBackoff  time.Duration // Cap on the exponential part (0 = uncapped)
}

// DefaultRetryPolicy returns the policy used when none is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseBackoff: time.Second,
		Jitter:      500 * time.Millisecond,
		MaxBackoff:  time.Minute,
	}
}

// Backoff returns the delay before retry number attempt (0-based)
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.BaseBackoff
	for i := 0; i < attempt && (p.MaxBackoff <= 0 || d < p.MaxBackoff); i++ {
		d *= 2
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	if p.Jitter > 0 {
		d += time.Duration(rand.Int64N(int64(p.Jitter)))
	}
	return d
}

// sleepCtx waits for d or until ctx is done
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
