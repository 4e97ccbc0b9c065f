// Package orchestrator coordinates collaborative workflows across
// multiple agent controllers. It tracks each controller's automation
// pause state and defers command dispatch while a human is attached,
// flushing queued work once automation resumes.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/h2team/h2team/internal/activitylog"
	"github.com/h2team/h2team/internal/controller"
)

// AgentController is the subset of *controller.Controller the
// orchestrator depends on. Defined as an interface so tests can stand
// in a fake without spinning up a real session backend.
type AgentController interface {
	Status() controller.Status
	SendCommand(ctx context.Context, text string, submit bool) (bool, error)
}

type queuedCommand struct {
	text   string
	submit bool
}

// DispatchResult describes the outcome of one DispatchCommand call.
type DispatchResult struct {
	Dispatched        bool
	Queued            bool
	QueueSource       string // "orchestrator", "controller", or ""
	Reason            string
	ManualClients     []string
	Pending           int
	ControllerPending int
}

// FlushResult describes the outcome of one ProcessPending call.
type FlushResult struct {
	Flushed       int
	Remaining     int
	Paused        bool
	Reason        string
	ManualClients []string
}

// ErrUnknownController is returned for operations against a name that
// was never registered.
var ErrUnknownController = controller.ErrUnknownController

// Orchestrator coordinates dispatch across a set of named controllers.
type Orchestrator struct {
	Log  *activitylog.Logger
	Sink EventSink

	mu               sync.Mutex
	controllers      map[string]AgentController
	pending          map[string][]queuedCommand
	debugPrompts     bool
	debugPromptChars int
}

// New creates an empty Orchestrator. A nil logger or sink is replaced
// with a no-op implementation.
func New(log *activitylog.Logger, sink EventSink) *Orchestrator {
	if log == nil {
		log = activitylog.Nop()
	}
	if sink == nil {
		sink = NoopSink{}
	}
	return &Orchestrator{
		Log:              log,
		Sink:             sink,
		controllers:      make(map[string]AgentController),
		pending:          make(map[string][]queuedCommand),
		debugPromptChars: 200,
	}
}

// RegisterController adds or replaces a controller under name.
func (o *Orchestrator) RegisterController(name string, c AgentController) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.controllers[name] = c
	if _, ok := o.pending[name]; !ok {
		o.pending[name] = nil
	}
}

// UnregisterController removes a controller. A no-op if unknown.
func (o *Orchestrator) UnregisterController(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.controllers, name)
	delete(o.pending, name)
}

// Names returns the registered controller names in no particular order.
func (o *Orchestrator) Names() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	names := make([]string, 0, len(o.controllers))
	for n := range o.controllers {
		names = append(names, n)
	}
	return names
}

func (o *Orchestrator) getController(name string) (AgentController, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.controllers[name]
	if !ok {
		return nil, fmt.Errorf("orchestrator: controller %q: %w", name, ErrUnknownController)
	}
	return c, nil
}

// SetPromptDebug enables or disables prompt-preview logging on dispatch.
func (o *Orchestrator) SetPromptDebug(enabled bool, previewChars int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.debugPrompts = enabled
	if previewChars >= 0 {
		o.debugPromptChars = previewChars
	}
}

// Controller returns the registered controller itself, for callers
// (e.g. the conversation manager) that need more than the
// AgentController contract, such as capturing scrollback directly.
func (o *Orchestrator) Controller(name string) (AgentController, error) {
	return o.getController(name)
}

// ControllerStatus returns the latest status for a registered controller.
func (o *Orchestrator) ControllerStatus(name string) (controller.Status, error) {
	c, err := o.getController(name)
	if err != nil {
		return controller.Status{}, err
	}
	return c.Status(), nil
}

// PendingCount returns the orchestrator-queue length for name.
func (o *Orchestrator) PendingCount(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending[name])
}

// TotalPendingCount sums the orchestrator-queue length across every
// registered controller.
func (o *Orchestrator) TotalPendingCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	total := 0
	for _, q := range o.pending {
		total += len(q)
	}
	return total
}

func (o *Orchestrator) queueCommand(name, text string, submit bool) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending[name] = append(o.pending[name], queuedCommand{text: text, submit: submit})
	return len(o.pending[name])
}

// DispatchCommand sends command to the named controller, deferring to
// the orchestrator's own queue when the controller reports it is
// paused for manual takeover. If the controller becomes paused
// between the status check and the send itself, the command was
// already handed to the controller's own internal queue and this
// reports that instead of double-queueing it here.
func (o *Orchestrator) DispatchCommand(ctx context.Context, name, command string, submit bool) (DispatchResult, error) {
	o.mu.Lock()
	debug, chars := o.debugPrompts, o.debugPromptChars
	o.mu.Unlock()
	if debug {
		preview := command
		if chars >= 0 && len(preview) > chars {
			preview = preview[:chars]
		}
		o.Log.CommandDispatched(fmt.Sprintf("[prompt-debug] %s len=%d preview=%q", name, len(command), preview), false)
	}

	c, err := o.getController(name)
	if err != nil {
		return DispatchResult{}, err
	}

	status := c.Status()
	if status.Paused {
		pending := o.queueCommand(name, command, submit)
		o.Sink.Publish(Event{Kind: "command_queued", Agent: name, Reason: status.PauseReason})
		return DispatchResult{
			Queued:            true,
			QueueSource:       "orchestrator",
			Reason:            status.PauseReason,
			ManualClients:     status.ManualClients,
			Pending:           pending,
			ControllerPending: status.PendingCount,
		}, nil
	}

	sent, err := c.SendCommand(ctx, command, submit)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("orchestrator: dispatch to %q: %w", name, err)
	}
	statusAfter := c.Status()
	if sent {
		o.Sink.Publish(Event{Kind: "command_dispatched", Agent: name})
		return DispatchResult{
			Dispatched:        true,
			Reason:            statusAfter.PauseReason,
			ManualClients:     statusAfter.ManualClients,
			Pending:           o.PendingCount(name),
			ControllerPending: statusAfter.PendingCount,
		}, nil
	}

	if statusAfter.Paused {
		o.Log.CommandDispatched(fmt.Sprintf("controller %s paused during dispatch; relying on controller queue", name), true)
		return DispatchResult{
			Queued:            true,
			QueueSource:       "controller",
			Reason:            statusAfter.PauseReason,
			ManualClients:     statusAfter.ManualClients,
			Pending:           o.PendingCount(name),
			ControllerPending: statusAfter.PendingCount,
		}, nil
	}

	return DispatchResult{
		Reason:            statusAfter.PauseReason,
		ManualClients:     statusAfter.ManualClients,
		Pending:           o.PendingCount(name),
		ControllerPending: statusAfter.PendingCount,
	}, nil
}

// ProcessPending attempts to flush orchestrator-queued commands for a
// controller, stopping at the first command the controller refuses
// (e.g. it paused again mid-flush).
func (o *Orchestrator) ProcessPending(ctx context.Context, name string) (FlushResult, error) {
	c, err := o.getController(name)
	if err != nil {
		return FlushResult{}, err
	}

	o.mu.Lock()
	queue := o.pending[name]
	o.mu.Unlock()
	if len(queue) == 0 {
		return FlushResult{}, nil
	}

	status := c.Status()
	if status.Paused {
		return FlushResult{
			Remaining:     len(queue),
			Paused:        true,
			Reason:        status.PauseReason,
			ManualClients: status.ManualClients,
		}, nil
	}

	flushed := 0
	for {
		o.mu.Lock()
		queue = o.pending[name]
		if len(queue) == 0 {
			o.mu.Unlock()
			break
		}
		next := queue[0]
		o.mu.Unlock()

		sent, err := c.SendCommand(ctx, next.text, next.submit)
		if err != nil || !sent {
			break
		}

		o.mu.Lock()
		o.pending[name] = o.pending[name][1:]
		remaining := len(o.pending[name])
		o.mu.Unlock()
		flushed++
		if remaining == 0 {
			break
		}
	}

	o.mu.Lock()
	remaining := len(o.pending[name])
	o.mu.Unlock()

	return FlushResult{Flushed: flushed, Remaining: remaining}, nil
}

// ProcessAllPending flushes queued commands for every registered
// controller and returns a per-controller summary.
func (o *Orchestrator) ProcessAllPending(ctx context.Context) map[string]FlushResult {
	results := make(map[string]FlushResult)
	for _, name := range o.Names() {
		r, err := o.ProcessPending(ctx, name)
		if err != nil {
			continue
		}
		results[name] = r
	}
	return results
}

// Tick is a convenience alias for ProcessAllPending, for callers that
// run the orchestrator in a periodic loop.
func (o *Orchestrator) Tick(ctx context.Context) map[string]FlushResult {
	return o.ProcessAllPending(ctx)
}
