// Package health implements the health-check strategies used to monitor
// whether an agent session is alive and responsive: session existence,
// output responsiveness, and command-echo round trips.
package health

import (
	"context"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CheckKind identifies which health check strategy produced a Result.
type CheckKind string

const (
	SessionAlive     CheckKind = "session_exists"
	OutputResponsive CheckKind = "output_responsive"
	CommandEcho      CheckKind = "command_echo"
)

// Result is the outcome of a single health check.
type Result struct {
	Healthy   bool
	Timestamp time.Time
	Kind      CheckKind
	Elapsed   time.Duration
	Details   map[string]any
	Error     string
}

// Checker monitors session health against configurable thresholds. The
// last result for each check kind is memoized in a short-lived cache so
// LastResult can be read between checks without taking the checker's
// mutex.
type Checker struct {
	CheckInterval    time.Duration
	ResponseTimeout  time.Duration
	MaxFailedChecks  int

	mu                  sync.Mutex
	lastCheck           time.Time
	lastResult          *Result
	consecutiveFailures int
	totalChecks         int
	totalFailures       int

	memo *gocache.Cache
}

// New creates a Checker with the given thresholds.
func New(checkInterval, responseTimeout time.Duration, maxFailedChecks int) *Checker {
	return &Checker{
		CheckInterval:   checkInterval,
		ResponseTimeout: responseTimeout,
		MaxFailedChecks: maxFailedChecks,
		memo:            gocache.New(checkInterval, 2*checkInterval),
	}
}

// ShouldCheck reports whether enough time has elapsed since the last
// check to justify running another one.
func (c *Checker) ShouldCheck() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastCheck.IsZero() {
		return true
	}
	return time.Since(c.lastCheck) >= c.CheckInterval
}

// CheckSessionExists runs the basic liveness check.
func (c *Checker) CheckSessionExists(exists func() bool) Result {
	start := time.Now()
	ok := exists()
	result := Result{
		Healthy:   ok,
		Timestamp: time.Now(),
		Kind:      SessionAlive,
		Elapsed:   time.Since(start),
		Details:   map[string]any{"exists": ok},
	}
	if !ok {
		result.Error = "session does not exist"
	}
	c.record(result)
	return result
}

// CheckOutputResponsive verifies the session is producing output of at
// least minLength characters.
func (c *Checker) CheckOutputResponsive(capture func() (string, error), minLength int) Result {
	start := time.Now()
	out, err := capture()
	elapsed := time.Since(start)

	if err != nil {
		result := Result{Healthy: false, Timestamp: time.Now(), Kind: OutputResponsive, Elapsed: elapsed, Error: err.Error()}
		c.record(result)
		return result
	}

	healthy := len(out) >= minLength
	result := Result{
		Healthy:   healthy,
		Timestamp: time.Now(),
		Kind:      OutputResponsive,
		Elapsed:   elapsed,
		Details:   map[string]any{"output_length": len(out), "min_required": minLength},
	}
	if !healthy {
		result.Error = "insufficient output"
	}
	c.record(result)
	return result
}

// CheckCommandEcho sends a harmless test command and verifies it appears
// in the captured output within ResponseTimeout.
func (c *Checker) CheckCommandEcho(ctx context.Context, send func(string) error, waitReady func(context.Context, time.Duration) bool, capture func() (string, error), testCommand string) Result {
	start := time.Now()

	if err := send(testCommand); err != nil {
		result := Result{Healthy: false, Timestamp: time.Now(), Kind: CommandEcho, Elapsed: time.Since(start),
			Details: map[string]any{"stage": "send_failed"}, Error: err.Error()}
		c.record(result)
		return result
	}

	if !waitReady(ctx, c.ResponseTimeout) {
		result := Result{Healthy: false, Timestamp: time.Now(), Kind: CommandEcho, Elapsed: time.Since(start),
			Details: map[string]any{"stage": "timeout", "timeout": c.ResponseTimeout}, Error: "timed out waiting for response"}
		c.record(result)
		return result
	}

	out, err := capture()
	elapsed := time.Since(start)
	if err != nil {
		result := Result{Healthy: false, Timestamp: time.Now(), Kind: CommandEcho, Elapsed: elapsed, Error: err.Error()}
		c.record(result)
		return result
	}

	found := strings.Contains(out, testCommand)
	result := Result{
		Healthy:   found,
		Timestamp: time.Now(),
		Kind:      CommandEcho,
		Elapsed:   elapsed,
		Details:   map[string]any{"command_found": found, "output_length": len(out)},
	}
	if !found {
		result.Error = "test command not found in output"
	}
	c.record(result)
	return result
}

func (c *Checker) record(result Result) {
	c.mu.Lock()
	c.lastCheck = result.Timestamp
	c.lastResult = &result
	c.totalChecks++
	if !result.Healthy {
		c.consecutiveFailures++
		c.totalFailures++
	} else {
		c.consecutiveFailures = 0
	}
	c.mu.Unlock()

	c.memo.Set(string(result.Kind), result, gocache.DefaultExpiration)
}

// LastResult returns the most recently memoized result for kind, if any.
func (c *Checker) LastResult(kind CheckKind) (Result, bool) {
	v, ok := c.memo.Get(string(kind))
	if !ok {
		return Result{}, false
	}
	return v.(Result), true
}

// IsHealthy reports overall health: consecutive failures below threshold.
func (c *Checker) IsHealthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consecutiveFailures < c.MaxFailedChecks
}

// Stats summarizes accumulated health-check counters.
type Stats struct {
	TotalChecks         int
	TotalFailures       int
	ConsecutiveFailures int
	IsHealthy           bool
	LastCheck           time.Time
}

// Stats returns a snapshot of the checker's counters.
func (c *Checker) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		TotalChecks:         c.totalChecks,
		TotalFailures:       c.totalFailures,
		ConsecutiveFailures: c.consecutiveFailures,
		IsHealthy:           c.consecutiveFailures < c.MaxFailedChecks,
		LastCheck:           c.lastCheck,
	}
}

// Reset clears consecutive-failure state after a recovery action, keeping
// cumulative totals for historical reporting.
func (c *Checker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveFailures = 0
}
