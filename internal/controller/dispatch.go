package controller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/h2team/h2team/internal/retry"
)

// SendCommand normalizes and dispatches command to the session. It
// returns true if the command was actually sent, false if it was
// queued locally because automation is paused. A false return is not
// an error; callers should treat it as "try again later" (typically
// via the orchestrator's queue).
func (c *Controller) SendCommand(ctx context.Context, text string, submit bool) (bool, error) {
	c.mu.Lock()
	c.updateManualControlStateLocked(ctx)
	if c.paused {
		c.pending = append(c.pending, queuedCommand{text: text, submit: submit})
		c.mu.Unlock()
		return false, nil
	}
	c.mu.Unlock()

	return c.deliver(ctx, text, submit)
}

// deliver pushes text straight to the backend without consulting the
// pause state; callers (SendCommand and the resume-drain path) are
// responsible for having already established that automation is
// active.
func (c *Controller) deliver(ctx context.Context, text string, submit bool) (bool, error) {
	exists, err := c.Backend.SessionExists(ctx, c.Name)
	if err != nil {
		return false, fmt.Errorf("controller %s: check session: %w", c.Name, err)
	}
	if !exists {
		c.mu.Lock()
		c.setState(Dead, "session missing at dispatch")
		c.mu.Unlock()
		return false, fmt.Errorf("controller %s: %w", c.Name, ErrSessionDead)
	}

	snapshot, err := c.Backend.CaptureOutput(ctx, c.Name)
	if err == nil {
		c.mu.Lock()
		c.lastSnapshot = snapshot
		c.hasSnapshot = true
		c.mu.Unlock()
	}

	normalized := normalizeCommand(text)

	sendErr := retry.Do(ctx, retry.Standard, func() error {
		return c.Backend.SendText(ctx, c.Name, normalized)
	})
	if sendErr != nil {
		return false, fmt.Errorf("controller %s: send text: %w", c.Name, sendErr)
	}

	sleep(ctx, c.Config.PostTextDelay)

	c.Log.CommandDispatched(normalized, false)

	if submit {
		sleep(ctx, c.Config.TextEnterDelay)
		if err := c.submit(ctx); err != nil {
			return false, fmt.Errorf("controller %s: submit: %w", c.Name, err)
		}
		c.mu.Lock()
		c.setState(Busy, "command submitted")
		c.mu.Unlock()
	}

	return true, nil
}

// normalizeCommand replaces CRLF with LF and joins non-empty lines with
// a single space, since a literal LF is interpreted as Enter by many
// interactive assistant UIs and would submit a partial prompt.
func normalizeCommand(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	var parts []string
	for _, l := range lines {
		if l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, " ")
}

func (c *Controller) submit(ctx context.Context) error {
	key := c.Config.SubmitKey
	if key == "" {
		key = "Enter"
	}

	if err := c.sendSubmitKey(ctx, key); err != nil {
		return err
	}
	if key != "Enter" {
		if err := c.Backend.SendEnter(ctx, c.Name); err != nil {
			return err
		}
	}

	if len(c.Config.SubmitFallbackKeys) > 0 {
		c.fallbackSubmit(ctx)
	}
	return nil
}

func (c *Controller) sendSubmitKey(ctx context.Context, key string) error {
	if key == "Enter" {
		return c.Backend.SendEnter(ctx, c.Name)
	}
	return c.Backend.SendText(ctx, c.Name, key)
}

// fallbackSubmit sends each configured fallback key in turn, stopping
// as soon as a loading indicator appears in captured output, or once
// all fallbacks have been tried. Failures are logged and swallowed,
// matching the non-fatal fallback-submission contract.
func (c *Controller) fallbackSubmit(ctx context.Context) {
	delay := c.Config.SubmitRetryDelay
	sleep(ctx, delay)

	if c.observeLoadingIndicator(ctx) {
		return
	}

	step := delay
	if step < 100*time.Millisecond {
		step = 100 * time.Millisecond
	}
	for _, key := range c.Config.SubmitFallbackKeys {
		if err := c.sendSubmitKey(ctx, key); err != nil {
			c.Log.Error("fallback submit key failed", err)
			continue
		}
		sleep(ctx, step)
		if c.observeLoadingIndicator(ctx) {
			return
		}
	}
}

func (c *Controller) observeLoadingIndicator(ctx context.Context) bool {
	if len(c.Config.LoadingIndicators) == 0 {
		return false
	}
	out, err := c.Backend.CaptureOutput(ctx, c.Name)
	if err != nil {
		return false
	}
	text := out
	if c.Config.StripAnsiForIndicators {
		text = stripANSI(text)
	}
	return containsAny(text, c.Config.LoadingIndicators)
}
