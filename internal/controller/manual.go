package controller

import "context"

// updateManualControlStateLocked polls ListClients and toggles paused
// state accordingly. It only ever clears a pause it caused itself
// (tracked via manualPause); an explicit PauseAutomation call is never
// silently undone by this probe. Callers must hold c.mu.
func (c *Controller) updateManualControlStateLocked(ctx context.Context) {
	if !c.Config.PauseOnManualClients {
		return
	}
	clients, err := c.Backend.ListClients(ctx, c.Name)
	if err != nil {
		return
	}
	wasPaused := c.paused
	c.manualClients = clients
	if len(clients) > 0 {
		c.paused = true
		c.manualPause = true
		c.pauseReason = "manual-attach"
		if !wasPaused {
			c.setState(Paused, c.pauseReason)
			c.Log.ManualTakeover(true, len(clients))
		}
		return
	}
	if wasPaused && c.manualPause {
		c.paused = false
		c.manualPause = false
		c.pauseReason = ""
		c.Log.ManualTakeover(false, 0)
		c.resumeLocked(ctx)
	}
}

// resumeLocked transitions out of Paused once manual clients are gone
// and, if configured, drains the local backlog accumulated while
// paused by replaying it through the backend send path in order.
// Callers must hold c.mu; it releases and reacquires c.mu while
// delivering each queued command.
func (c *Controller) resumeLocked(ctx context.Context) {
	if c.state == Paused {
		c.setState(Ready, "manual client detached")
	}
	if !c.Config.ShouldDrainOnResume() {
		c.pending = nil
		return
	}
	c.drainPendingLocked(ctx)
}

// drainPendingLocked replays c.pending, in order, through deliver
// until the queue is empty or automation is paused again (by a fresh
// manual attach or an explicit PauseAutomation call observed during
// delivery), in which case the undelivered remainder stays queued for
// the next resume. Callers must hold c.mu; it releases and reacquires
// c.mu around each delivery since deliver talks to the backend.
func (c *Controller) drainPendingLocked(ctx context.Context) {
	for len(c.pending) > 0 {
		next := c.pending[0]
		c.mu.Unlock()
		_, err := c.deliver(ctx, next.text, next.submit)
		c.mu.Lock()
		if err != nil {
			c.Log.Error("drain pending command failed", err)
			break
		}
		c.pending = c.pending[1:]
		if c.paused {
			break
		}
	}
}

// PauseAutomation forces automation off regardless of manual clients,
// e.g. for an operator-requested pause.
func (c *Controller) PauseAutomation(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
	c.manualPause = false
	c.pauseReason = reason
	c.setState(Paused, reason)
	c.Log.ManualTakeover(true, len(c.manualClients))
}

// ResumeAutomation clears a forced pause. If DrainOnResume is enabled
// for this agent, the returned slice holds commands queued while
// paused, in dispatch order, for the caller to replay; otherwise it
// discards them and returns nil.
func (c *Controller) ResumeAutomation() []struct {
	Text   string
	Submit bool
} {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	c.manualPause = false
	c.pauseReason = ""
	c.setState(Ready, "automation resumed")
	c.Log.ManualTakeover(false, 0)

	if !c.Config.ShouldDrainOnResume() {
		c.pending = nil
		return nil
	}
	drained := make([]struct {
		Text   string
		Submit bool
	}, 0, len(c.pending))
	for _, q := range c.pending {
		drained = append(drained, struct {
			Text   string
			Submit bool
		}{Text: q.text, Submit: q.submit})
	}
	c.pending = nil
	return drained
}

// PendingCount reports how many commands are queued locally.
func (c *Controller) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
