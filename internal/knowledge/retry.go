package knowledge

import (
	"context"
	"time"

	"assistant/internal/domain"
)

// RetryPolicy retries transient backend failures with bounded exponential
// backoff. Permanent failures (invalid input, dimension mismatch) are never
// retried, and the caller's context aborts the wait.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	return p
}

// Do runs op until it succeeds, fails permanently, or the attempt budget is
// exhausted. The delay doubles after every failed attempt.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	delay := p.BaseDelay
	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		err = op(ctx)
		if err == nil || !domain.IsTransient(err) {
			return err
		}
		if attempt == p.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			// keep the last failure's classification; the cancellation
			// rides along as the cause
			return domain.Wrap(domain.KindOf(err), "gave up waiting to retry", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
