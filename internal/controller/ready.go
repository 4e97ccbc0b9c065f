package controller

import (
	"context"
	"strings"
	"time"
)

// WaitForReady blocks until the agent has finished responding to a
// dispatched command, or timeout elapses. It runs two phases:
//
// Phase A waits for any configured loading indicator to clear, and
// requires it to stay clear for LoadingIndicatorSettleTime before
// moving on, since some UIs blink a spinner off between frames.
//
// Phase B then waits for output to stop changing for ReadyStableChecks
// consecutive polls, and additionally requires every configured
// ResponseCompleteMarker and, if ReadyIndicators are configured, at
// least one of them to appear in the last five lines of output.
//
// It transitions the controller back to Ready on success.
func (c *Controller) WaitForReady(ctx context.Context, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	halfway := time.Now().Add(timeout / 2)
	warnedHalfway := false

	if !c.waitForLoadingClear(ctx, deadline) {
		return false, nil
	}

	interval := c.Config.ReadyCheckInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	stableTarget := c.Config.ReadyStableChecks
	if stableTarget <= 0 {
		stableTarget = 2
	}

	var prev string
	stableCount := 0
	for {
		out, err := c.Backend.CaptureOutput(ctx, c.Name)
		if err != nil {
			return false, err
		}
		text := out
		if c.Config.StripAnsiForIndicators {
			text = stripANSI(text)
		}

		if text == prev {
			stableCount++
		} else {
			stableCount = 0
			prev = text
		}

		if stableCount >= stableTarget && c.looksComplete(text) {
			c.mu.Lock()
			c.setState(Ready, "response complete")
			c.mu.Unlock()
			return true, nil
		}

		now := time.Now()
		if !warnedHalfway && now.After(halfway) {
			warnedHalfway = true
			c.Log.Error("wait_for_ready past halfway point", nil)
		}
		if now.After(deadline) {
			return false, nil
		}
		sleep(ctx, interval)
	}
}

func (c *Controller) waitForLoadingClear(ctx context.Context, deadline time.Time) bool {
	if len(c.Config.LoadingIndicators) == 0 {
		return true
	}
	settle := c.Config.LoadingIndicatorSettleTime
	if settle <= 0 {
		settle = time.Second
	}
	var clearedAt time.Time
	for {
		out, err := c.Backend.CaptureOutput(ctx, c.Name)
		if err != nil {
			return false
		}
		text := out
		if c.Config.StripAnsiForIndicators {
			text = stripANSI(text)
		}
		if containsAny(text, c.Config.LoadingIndicators) {
			clearedAt = time.Time{}
		} else {
			if clearedAt.IsZero() {
				clearedAt = time.Now()
			}
			if time.Since(clearedAt) >= settle {
				return true
			}
		}
		if time.Now().After(deadline) {
			return false
		}
		sleep(ctx, 200*time.Millisecond)
	}
}

// looksComplete reports whether the last five lines of text contain
// every configured response-complete marker (all of them, if any are
// configured) and at least one configured ready indicator (if any are
// configured). With neither configured, output stability alone is
// treated as complete.
func (c *Controller) looksComplete(text string) bool {
	lines := strings.Split(text, "\n")
	start := 0
	if len(lines) > 5 {
		start = len(lines) - 5
	}
	tail := strings.Join(lines[start:], "\n")

	for _, marker := range c.Config.ResponseCompleteMarkers {
		if !strings.Contains(tail, marker) {
			return false
		}
	}
	if len(c.Config.ReadyIndicators) > 0 && !containsAny(tail, c.Config.ReadyIndicators) {
		return false
	}
	return true
}
