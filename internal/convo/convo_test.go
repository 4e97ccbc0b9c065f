package convo

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/h2team/h2team/internal/controller"
	"github.com/h2team/h2team/internal/orchestrator"
)

// fakeSpeaking is a SpeakingController test double: each dispatched
// command consumes the next entry from responses, in order.
type fakeSpeaking struct {
	status    controller.Status
	responses []string
	next      int
	sent      []string
}

func (c *fakeSpeaking) Status() controller.Status { return c.status }

func (c *fakeSpeaking) SendCommand(ctx context.Context, text string, submit bool) (bool, error) {
	c.sent = append(c.sent, text)
	return true, nil
}

func (c *fakeSpeaking) WaitForReady(ctx context.Context, timeout time.Duration) (bool, error) {
	return true, nil
}

func (c *fakeSpeaking) GetLastOutput(ctx context.Context, maxLines int) (string, error) {
	if c.next >= len(c.responses) {
		return "", nil
	}
	r := c.responses[c.next]
	c.next++
	return r, nil
}

func TestFacilitateDiscussion_RoundRobinsUntilConsensus(t *testing.T) {
	orch := orchestrator.New(nil, nil)
	a := &fakeSpeaking{status: controller.Status{State: controller.Ready}, responses: []string{"sounds good to me", "still working on it"}}
	b := &fakeSpeaking{status: controller.Status{State: controller.Ready}, responses: []string{"let's proceed", "agreement reached on the plan"}}
	orch.RegisterController("a", a)
	orch.RegisterController("b", b)

	mgr, err := New(orch, []string{"a", "b"}, nil, nil, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	turns := mgr.FacilitateDiscussion(context.Background(), "ship the feature", 10)
	if len(turns) == 0 {
		t.Fatalf("expected at least one turn")
	}
	if turns[0].Speaker != "a" {
		t.Fatalf("expected round-robin to start with a, got %s", turns[0].Speaker)
	}
	last := turns[len(turns)-1]
	if v, _ := last.Metadata["consensus"].(bool); !v {
		t.Fatalf("expected discussion to stop on consensus, got metadata %+v", last.Metadata)
	}
}

func TestFacilitateDiscussion_StopsOnConflict(t *testing.T) {
	orch := orchestrator.New(nil, nil)
	a := &fakeSpeaking{status: controller.Status{State: controller.Ready}, responses: []string{"here is my proposal"}}
	b := &fakeSpeaking{status: controller.Status{State: controller.Ready}, responses: []string{"I disagree with that approach"}}
	orch.RegisterController("a", a)
	orch.RegisterController("b", b)

	mgr, err := New(orch, []string{"a", "b"}, nil, nil, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	turns := mgr.FacilitateDiscussion(context.Background(), "pick an approach", 10)
	last := turns[len(turns)-1]
	if v, _ := last.Metadata["conflict"].(bool); !v {
		t.Fatalf("expected discussion to stop on conflict, got metadata %+v", last.Metadata)
	}
	if len(turns) != 2 {
		t.Fatalf("expected exactly 2 turns before stopping, got %d", len(turns))
	}
}

func TestFacilitateDiscussion_ConflictIgnoresCodeAndQuotedText(t *testing.T) {
	orch := orchestrator.New(nil, nil)
	a := &fakeSpeaking{status: controller.Status{State: controller.Ready}, responses: []string{"here is the plan"}}
	b := &fakeSpeaking{status: controller.Status{State: controller.Ready}, responses: []string{"looks good, see `reject()` in the example \"reject\" string"}}
	orch.RegisterController("a", a)
	orch.RegisterController("b", b)

	mgr, err := New(orch, []string{"a", "b"}, nil, nil, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	turns := mgr.FacilitateDiscussion(context.Background(), "pick an approach", 2)
	last := turns[len(turns)-1]
	if v, _ := last.Metadata["conflict"].(bool); v {
		t.Fatalf("expected code/quoted occurrences of conflict keywords to be scrubbed, got metadata %+v", last.Metadata)
	}
}

func TestFacilitateDiscussion_StopsWhenTurnIsQueued(t *testing.T) {
	orch := orchestrator.New(nil, nil)
	a := &fakeSpeaking{status: controller.Status{State: controller.Paused, Paused: true, PauseReason: "manual client attached"}}
	orch.RegisterController("a", a)

	mgr, err := New(orch, []string{"a"}, nil, nil, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	turns := mgr.FacilitateDiscussion(context.Background(), "topic", 5)
	if len(turns) != 1 {
		t.Fatalf("expected exactly 1 turn before stopping on queued, got %d", len(turns))
	}
	if v, _ := turns[0].Metadata["queued"].(bool); !v {
		t.Fatalf("expected queued metadata flag set")
	}
}

func TestFacilitateDiscussion_NoParticipantsStopsImmediately(t *testing.T) {
	orch := orchestrator.New(nil, nil)
	mgr, err := New(orch, []string{"ghost"}, nil, nil, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	turns := mgr.FacilitateDiscussion(context.Background(), "topic", 5)
	if len(turns) != 0 {
		t.Fatalf("expected no turns when no participant is registered with the orchestrator, got %d", len(turns))
	}
}

func TestFacilitateDiscussion_WithoutHistoryUsesContextSmokeTestPrompt(t *testing.T) {
	orch := orchestrator.New(nil, nil)
	a := &fakeSpeaking{status: controller.Status{State: controller.Ready}, responses: []string{"Hello from a — message received."}}
	orch.RegisterController("a", a)

	mgr, err := New(orch, []string{"a"}, nil, nil, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	turns := mgr.FacilitateDiscussion(context.Background(), "topic", 1)
	if len(turns) != 1 {
		t.Fatalf("expected exactly 1 turn, got %d", len(turns))
	}
	if len(a.sent) != 1 {
		t.Fatalf("expected exactly 1 dispatched prompt, got %d", len(a.sent))
	}

	want := "Hello from a — message received."
	if !strings.Contains(a.sent[0], want) {
		t.Fatalf("expected the context manager's smoke-test prompt to reach the agent, got %q", a.sent[0])
	}
	if strings.Contains(a.sent[0], "acknowledge the request") {
		t.Fatalf("expected the ad hoc acknowledgment fallback not to override a successful context build, got %q", a.sent[0])
	}
}
