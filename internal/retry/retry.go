// Package retry implements exponential-backoff retrying for transient
// failures in session backend and controller operations.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy configures exponential-backoff retries.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
}

// Quick, Standard and Persistent are the presets named in the orchestration
// spec: 2, 3 and 5 attempts respectively.
var (
	Quick = Policy{
		MaxAttempts:  2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Factor:       2.0,
	}
	Standard = Policy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Factor:       2.0,
	}
	Persistent = Policy{
		MaxAttempts:  5,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Factor:       2.0,
	}
)

// delayForAttempt returns min(initial * factor^(n-1), max) for the n-th
// (1-indexed) attempt.
func (p Policy) delayForAttempt(n int) time.Duration {
	delay := float64(p.InitialDelay)
	factor := p.Factor
	if factor <= 0 {
		factor = 1
	}
	for i := 1; i < n; i++ {
		delay *= factor
	}
	max := float64(p.MaxDelay)
	if max > 0 && delay > max {
		delay = max
	}
	return time.Duration(delay)
}

// Do runs fn, retrying on errors that match recoverable (via errors.Is)
// with exponential backoff. An error not in recoverable is returned
// immediately without retrying. If recoverable is empty, every error is
// considered recoverable. The last error is returned once attempts are
// exhausted. ctx cancellation aborts the wait between attempts.
func Do(ctx context.Context, p Policy, fn func() error, recoverable ...error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRecoverable(err, recoverable) {
			return err
		}
		if attempt == attempts {
			return err
		}

		select {
		case <-time.After(p.delayForAttempt(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func isRecoverable(err error, recoverable []error) bool {
	if len(recoverable) == 0 {
		return true
	}
	for _, r := range recoverable {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}
