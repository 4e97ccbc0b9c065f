// Package restart implements the auto-restart policy: window-bounded rate
// limiting with exponential backoff between restart attempts.
package restart

import (
	"fmt"
	"sync"
	"time"
)

// Policy controls when restarts are attempted.
type Policy int

const (
	Never Policy = iota
	OnFailure
	Always
)

func (p Policy) String() string {
	switch p {
	case Never:
		return "never"
	case OnFailure:
		return "on_failure"
	case Always:
		return "always"
	default:
		return "unknown"
	}
}

// Attempt records the outcome of one restart attempt.
type Attempt struct {
	Timestamp time.Time
	Success   bool
	Reason    string
	Error     string
	Elapsed   time.Duration
}

const maxHistory = 100

// Restarter tracks restart attempts and enforces the configured policy.
type Restarter struct {
	Policy            Policy
	MaxAttempts       int
	Window            time.Duration
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffFactor     float64

	mu                sync.Mutex
	history           []Attempt
	totalSuccess      int
	totalFailed       int
}

// New creates a Restarter with the given policy and tunables.
func New(policy Policy, maxAttempts int, window, initialBackoff, maxBackoff time.Duration, factor float64) *Restarter {
	return &Restarter{
		Policy:         policy,
		MaxAttempts:    maxAttempts,
		Window:         window,
		InitialBackoff: initialBackoff,
		MaxBackoff:     maxBackoff,
		BackoffFactor:  factor,
	}
}

// ShouldRestart reports whether a restart should be attempted for reason.
func (r *Restarter) ShouldRestart(reason string) bool {
	if r.Policy == Never {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.recentAttemptsLocked()) < r.MaxAttempts
}

// recentAttemptsLocked returns attempts within the last Window. Caller holds mu.
func (r *Restarter) recentAttemptsLocked() []Attempt {
	if r.Window <= 0 {
		return r.history
	}
	cutoff := time.Now().Add(-r.Window)
	var recent []Attempt
	for _, a := range r.history {
		if a.Timestamp.After(cutoff) {
			recent = append(recent, a)
		}
	}
	return recent
}

// CalculateBackoff returns the delay before the next restart attempt, based
// on the count of recent attempts within the window.
func (r *Restarter) CalculateBackoff() time.Duration {
	r.mu.Lock()
	n := len(r.recentAttemptsLocked())
	r.mu.Unlock()

	if n == 0 {
		return r.InitialBackoff
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = 1
	}
	// delay = initial * factor^(n-1), matching the attempt-count-based
	// formula: the first recorded attempt yields the initial delay, each
	// attempt after that scales it by another factor.
	delay := float64(r.InitialBackoff)
	for i := 0; i < n-1; i++ {
		delay *= factor
	}
	max := float64(r.MaxBackoff)
	if max > 0 && delay > max {
		delay = max
	}
	return time.Duration(delay)
}

// AttemptRestart invokes restartFn if the policy allows it, optionally
// sleeping the calculated backoff first, and records the outcome. It
// returns the success of restartFn, or false without recording anything
// if the restart was not permitted by policy or limits.
func (r *Restarter) AttemptRestart(restartFn func() error, reason string, wait bool) bool {
	if !r.ShouldRestart(reason) {
		return false
	}

	if wait {
		time.Sleep(r.CalculateBackoff())
	}

	start := time.Now()
	err := restartFn()
	elapsed := time.Since(start)

	attempt := Attempt{
		Timestamp: time.Now(),
		Success:   err == nil,
		Reason:    reason,
		Elapsed:   elapsed,
	}
	if err != nil {
		attempt.Error = err.Error()
	}

	r.mu.Lock()
	if attempt.Success {
		r.totalSuccess++
	} else {
		r.totalFailed++
	}
	r.history = append(r.history, attempt)
	if len(r.history) > maxHistory {
		r.history = r.history[len(r.history)-maxHistory:]
	}
	r.mu.Unlock()

	return attempt.Success
}

// ResetHistory discards recorded attempts, keeping cumulative totals.
func (r *Restarter) ResetHistory() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = nil
}

// History returns a copy of the recorded attempts, most recent last.
func (r *Restarter) History() []Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Attempt, len(r.history))
	copy(out, r.history)
	return out
}

// Totals returns the cumulative successful/failed restart counts, which
// survive ResetHistory and history truncation.
func (r *Restarter) Totals() (successful, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalSuccess, r.totalFailed
}

// ParsePolicy parses a policy string from configuration.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "never":
		return Never, nil
	case "on_failure", "on-failure":
		return OnFailure, nil
	case "always":
		return Always, nil
	default:
		return Never, fmt.Errorf("restart: unknown policy %q", s)
	}
}
