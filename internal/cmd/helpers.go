package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/h2team/h2team/internal/activitylog"
	"github.com/h2team/h2team/internal/backend"
	"github.com/h2team/h2team/internal/config"
	"github.com/h2team/h2team/internal/controller"
)

// agentNames are the canonical participants this CLI drives, matching
// the original three-AI discussion script.
var agentNames = []string{"claude", "gemini", "codex"}

// newBackend picks the session backend implementation: tmux by
// default, or a directly-spawned PTY when useTmux is false (used for
// environments without a terminal multiplexer installed).
func newBackend(useTmux bool) backend.SessionBackend {
	if useTmux {
		return backend.NewTmuxBackend()
	}
	return backend.NewPTYBackend()
}

// buildController constructs a Controller for name bound to backend b,
// using cfg's per-agent settings, and fills in the session spec.
func buildController(name string, b backend.SessionBackend, cfg config.AgentConfig, workingDir string, log *activitylog.Logger) *controller.Controller {
	spec := backend.SessionSpec{
		Name:       name,
		Command:    cfg.Executable,
		Args:       cfg.ExecutableArgs,
		WorkingDir: workingDir,
		Rows:       cfg.PaneHeight,
		Cols:       cfg.PaneWidth,
	}
	return controller.New(name, b, spec, cfg, log)
}

// ensureRunning starts name's session if it isn't already present (or
// kills and restarts it when killExisting is set), returning an error
// if it's missing and autoStart is false.
func ensureRunning(ctx context.Context, c *controller.Controller, autoStart, killExisting, autoConfirmTrust bool) error {
	exists, err := c.Backend.SessionExists(ctx, c.Name)
	if err != nil {
		return fmt.Errorf("check session %q: %w", c.Name, err)
	}

	if killExisting && exists {
		if err := c.Backend.Kill(ctx, c.Name); err != nil {
			return fmt.Errorf("kill existing session %q: %w", c.Name, err)
		}
		exists = false
	}

	if exists {
		return nil
	}

	if !autoStart {
		return fmt.Errorf("session %q not found; pass --auto-start to launch it", c.Name)
	}

	return c.StartSession(ctx, autoConfirmTrust)
}

func secondsToDuration(s int) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s) * time.Second
}
