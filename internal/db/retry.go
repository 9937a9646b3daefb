package db

import (
	"context"
	"fmt"
	"time"

	"drivingschool-api/internal/apperrors"
)

// RetryPolicy retries an operation a fixed number of times with a fixed delay
// between attempts.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	// Sleep waits between attempts. nil means a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Delay: 5 * time.Second}
}

// Do calls fn until it succeeds or the attempts run out. On exhaustion the
// returned error wraps both apperrors.ErrUnavailable and the last failure.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		if serr := p.sleep(ctx, p.Delay); serr != nil {
			return fmt.Errorf("%w: interrupted after %d attempts: %w", apperrors.ErrUnavailable, attempt, serr)
		}
	}
	return fmt.Errorf("%w: gave up after %d attempts: %w", apperrors.ErrUnavailable, attempts, err)
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
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
