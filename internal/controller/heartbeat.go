package controller

import (
	"context"
	"os/exec"
	"time"
)

// HeartbeatConfig holds the parameters for the idle-nudge goroutine.
type HeartbeatConfig struct {
	IdleTimeout time.Duration
	Message     string
	Condition   string // optional shell command; nudge only if it exits 0

	// PollInterval controls how often state is sampled. Defaults to 2s.
	PollInterval time.Duration
}

// RunHeartbeat watches c and, once it has sat Ready (idle, not busy,
// paused, or dead) for cfg.IdleTimeout continuously, dispatches
// cfg.Message through the controller's normal send path to nudge a
// stalled agent back into motion. If cfg.Condition is set, the nudge
// only fires when that shell command exits 0. Runs until ctx is
// cancelled; intended to be started in its own goroutine per
// controller.
func RunHeartbeat(ctx context.Context, c *Controller, cfg HeartbeatConfig) {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var idleSince time.Time
	nudged := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if c.State() != Ready {
			idleSince = time.Time{}
			nudged = false
			continue
		}
		if idleSince.IsZero() {
			idleSince = time.Now()
			continue
		}
		if nudged || time.Since(idleSince) < cfg.IdleTimeout {
			continue
		}

		if cfg.Condition != "" {
			if err := exec.CommandContext(ctx, "sh", "-c", cfg.Condition).Run(); err != nil {
				continue
			}
		}

		if _, err := c.SendCommand(ctx, cfg.Message, true); err == nil {
			nudged = true
		}
	}
}
