package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const maxPollDelay = 30 * time.Second

// permanentError stops a poll loop early.
type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

func permanent(err error) error { return permanentError{err: err} }

// poller repeats an idempotent check with exponential backoff.
type poller struct {
	attempts int
	delay    time.Duration
	maxDelay time.Duration
}

func newPoller(maxRetries int, backoff time.Duration) poller {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return poller{attempts: maxRetries + 1, delay: backoff, maxDelay: maxPollDelay}
}

// until runs check until it returns nil or a permanent error, or the
// attempts run out. The last error is returned in the latter two cases.
func (p poller) until(ctx context.Context, check func(context.Context) error) error {
	delay := p.delay
	for attempt := 1; ; attempt++ {
		err := check(ctx)
		if err == nil {
			return nil
		}
		var stop permanentError
		if errors.As(err, &stop) {
			return stop.err
		}
		if attempt >= p.attempts {
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if delay *= 2; delay > p.maxDelay {
			delay = p.maxDelay
		}
	}
}
