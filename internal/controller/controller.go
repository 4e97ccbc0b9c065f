// Package controller implements the agent controller: the state
// machine that owns one session backend, dispatches commands to it,
// detects readiness, and delegates to health checking and auto-restart.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/h2team/h2team/internal/activitylog"
	"github.com/h2team/h2team/internal/backend"
	"github.com/h2team/h2team/internal/config"
	"github.com/h2team/h2team/internal/health"
	"github.com/h2team/h2team/internal/restart"
)

// State is a controller's lifecycle state.
type State int

const (
	Uninitialized State = iota
	Starting
	Ready
	Busy
	Paused
	Dead
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case Busy:
		return "busy"
	case Paused:
		return "paused"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// ErrSessionDead is returned by SendCommand when the backing session no
// longer exists. It is never retried.
var ErrSessionDead = errors.New("controller: session is dead")

// ErrUnknownController is returned by orchestrator lookups for a name
// with no registered controller.
var ErrUnknownController = errors.New("controller: unknown controller")

// queuedCommand is one entry in the controller's local backlog.
type queuedCommand struct {
	text   string
	submit bool
}

// Status summarizes a controller's current state for callers that only
// need to make a dispatch decision.
type Status struct {
	State             State
	Paused            bool
	PauseReason       string
	ManualClients     []string
	PendingCount      int
}

// Controller drives one named session through its lifecycle.
type Controller struct {
	Name    string
	Backend backend.SessionBackend
	Spec    backend.SessionSpec
	Config  config.AgentConfig
	Health  *health.Checker
	Restart *restart.Restarter
	Log     *activitylog.Logger

	mu            sync.Mutex
	state         State
	paused        bool
	manualPause   bool
	pauseReason   string
	manualClients []string
	pending       []queuedCommand

	lastSnapshot string
	hasSnapshot  bool
}

// New creates a Controller for spec, wired to backend b and configured
// by cfg. A nil logger is replaced with a no-op one.
func New(name string, b backend.SessionBackend, spec backend.SessionSpec, cfg config.AgentConfig, log *activitylog.Logger) *Controller {
	if log == nil {
		log = activitylog.Nop()
	}
	restartPolicy, err := cfg.RestartPolicyValue()
	if err != nil {
		restartPolicy = restart.OnFailure
	}
	return &Controller{
		Name:    name,
		Backend: b,
		Spec:    spec,
		Config:  cfg,
		Log:     log,
		Health:  health.New(cfg.HealthCheckInterval, cfg.HealthCheckTimeout, cfg.MaxFailedHealthChecks),
		Restart: restart.New(restartPolicy, cfg.MaxRestartAttempts, cfg.RestartWindow, cfg.RestartInitialBackoff, cfg.RestartMaxBackoff, 2.0),
		state:   Uninitialized,
	}
}

func (c *Controller) setState(to State, reason string) {
	from := c.state
	c.state = to
	if from != to {
		c.Log.StateChange(from.String(), to.String(), reason)
	}
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UpdateConfig swaps in a freshly loaded AgentConfig, e.g. after a
// config.Watcher reload. Only values read from c.Config take effect;
// the Health checker and Restarter built in New keep the thresholds and
// restart policy they were created with. In-flight waits keep whatever
// timeout they already captured.
func (c *Controller) UpdateConfig(cfg config.AgentConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Config = cfg
}

// Status returns a snapshot suitable for orchestrator dispatch decisions.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:         c.state,
		Paused:        c.paused,
		PauseReason:   c.pauseReason,
		ManualClients: append([]string(nil), c.manualClients...),
		PendingCount:  len(c.pending),
	}
}

// StartSession spawns the session and waits for it to become ready.
// If autoConfirmTrust is set, a single Enter is sent first to dismiss
// an initial trust prompt some executables show on first launch.
func (c *Controller) StartSession(ctx context.Context, autoConfirmTrust bool) error {
	c.mu.Lock()
	if c.state != Uninitialized && c.state != Dead {
		c.mu.Unlock()
		return fmt.Errorf("controller %s: cannot start from state %s", c.Name, c.state)
	}
	c.setState(Starting, "start_session")
	c.mu.Unlock()

	if err := c.Backend.Start(ctx, c.Spec); err != nil {
		c.mu.Lock()
		c.setState(Dead, "start failed: "+err.Error())
		c.mu.Unlock()
		return fmt.Errorf("controller %s: start session: %w", c.Name, err)
	}

	sleep(ctx, initWaitOr(c.Config.InitWait, time.Second))

	if autoConfirmTrust {
		if err := c.Backend.SendEnter(ctx, c.Name); err != nil {
			return fmt.Errorf("controller %s: confirm trust prompt: %w", c.Name, err)
		}
		sleep(ctx, time.Second)
	}

	ready, err := c.waitForStartup(ctx, c.Config.StartupTimeout)
	if err != nil {
		c.mu.Lock()
		c.setState(Dead, "startup error: "+err.Error())
		c.mu.Unlock()
		return fmt.Errorf("controller %s: wait for startup: %w", c.Name, err)
	}
	if !ready {
		c.mu.Lock()
		c.setState(Dead, "startup timed out")
		c.mu.Unlock()
		return fmt.Errorf("controller %s: startup timed out after %s", c.Name, c.Config.StartupTimeout)
	}

	sleep(ctx, c.Config.ReadyStabilizationDelay)

	exists, err := c.Backend.SessionExists(ctx, c.Name)
	if err != nil {
		return fmt.Errorf("controller %s: verify session: %w", c.Name, err)
	}
	if !exists {
		c.mu.Lock()
		c.setState(Dead, "session vanished after startup")
		c.mu.Unlock()
		return fmt.Errorf("controller %s: %w", c.Name, ErrSessionDead)
	}

	c.mu.Lock()
	c.setState(Ready, "startup complete")
	c.mu.Unlock()
	return nil
}

func initWaitOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// waitForStartup polls captured output until a ready condition holds or
// timeout elapses.
func (c *Controller) waitForStartup(ctx context.Context, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		out, err := c.Backend.CaptureOutput(ctx, c.Name)
		if err != nil {
			return false, err
		}
		text := out
		if c.Config.StripAnsiForIndicators {
			text = stripANSI(text)
		}

		if len(c.Config.ReadyIndicators) > 0 || len(c.Config.LoadingIndicators) > 0 {
			hasReady := containsAny(text, c.Config.ReadyIndicators)
			hasLoading := containsAny(text, c.Config.LoadingIndicators)
			if hasReady && !hasLoading {
				return true, nil
			}
		} else if nonWhitespaceLen(text) > 50 {
			return true, nil
		}

		if time.Now().After(deadline) {
			return false, nil
		}
		sleep(ctx, 500*time.Millisecond)
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func nonWhitespaceLen(s string) int {
	n := 0
	for _, r := range s {
		if !strings.ContainsRune(" \t\r\n", r) {
			n++
		}
	}
	return n
}
