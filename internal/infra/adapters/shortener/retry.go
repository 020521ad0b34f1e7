package shortener

import (
	"context"
	"errors"
	"math"
	"time"

	"telegram-link-shortener/internal/domain"
)

// Sleeper waits between attempts. Tests swap it for a recording fake.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Backoff returns the delay after the given failed attempt (1-based):
// base doubled per attempt, capped at max. max <= 0 means no cap.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 || base <= 0 {
		return 0
	}
	d := base
	for i := 1; i < attempt; i++ {
		if max > 0 && d >= max/2 {
			return max
		}
		if d > math.MaxInt64/2 {
			return time.Duration(math.MaxInt64)
		}
		d *= 2
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

// isRetryable reports whether another attempt may succeed.
// Caller cancellation and an open breaker are final.
func isRetryable(err error) bool {
	if errors.Is(err, domain.ErrCircuitOpen) {
		return false
	}
	// Classified by the client; a per-attempt timeout lands here too.
	return errors.Is(err, domain.ErrTransient)
}
