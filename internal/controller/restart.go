package controller

import (
	"context"
	"time"

	"github.com/h2team/h2team/internal/health"
)

// PerformHealthCheck runs one health check of the given kind against
// the live session and records the result.
func (c *Controller) PerformHealthCheck(ctx context.Context, kind health.CheckKind) health.Result {
	switch kind {
	case health.OutputResponsive:
		return c.Health.CheckOutputResponsive(func() (string, error) {
			return c.Backend.CaptureOutput(ctx, c.Name)
		}, 1)
	case health.CommandEcho:
		return c.Health.CheckCommandEcho(ctx,
			func(text string) error { return c.Backend.SendText(ctx, c.Name, text) },
			func(ctx context.Context, timeout time.Duration) bool {
				ready, err := c.WaitForReady(ctx, timeout)
				return err == nil && ready
			},
			func() (string, error) { return c.Backend.CaptureOutput(ctx, c.Name) },
			"echo h2team-health-check",
		)
	default:
		return c.Health.CheckSessionExists(func() bool {
			exists, err := c.Backend.SessionExists(ctx, c.Name)
			return err == nil && exists
		})
	}
}

// RestartSession kills and relaunches the session, resetting health
// bookkeeping on success.
func (c *Controller) RestartSession(ctx context.Context, autoConfirmTrust bool) error {
	_ = c.Backend.Kill(ctx, c.Name)
	c.mu.Lock()
	c.state = Dead
	c.pending = nil
	c.hasSnapshot = false
	c.lastSnapshot = ""
	c.mu.Unlock()

	sleep(ctx, time.Second)

	if err := c.StartSession(ctx, autoConfirmTrust); err != nil {
		return err
	}
	c.Health.Reset()
	return nil
}

// AutoRestartIfNeeded asks the restart policy whether a restart is
// permitted for reason and, if so, performs it, reporting the outcome
// through the restart ledger exactly like any other attempt.
func (c *Controller) AutoRestartIfNeeded(ctx context.Context, reason string, autoConfirmTrust bool) bool {
	return c.Restart.AttemptRestart(func() error {
		return c.RestartSession(ctx, autoConfirmTrust)
	}, reason, true)
}
