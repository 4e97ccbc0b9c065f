// Package convo facilitates turn-based discussions between agent
// controllers registered with an orchestrator: it picks the next
// speaker, builds each prompt from recent context and routed partner
// updates, dispatches it, captures the response, and watches for
// consensus or conflict signals that should end the discussion.
package convo

import (
	"context"
	"fmt"
	"strings"
	"time"

	convoctx "github.com/h2team/h2team/internal/convo/context"
	"github.com/h2team/h2team/internal/convo/router"
	"github.com/h2team/h2team/internal/orchestrator"
	"github.com/h2team/h2team/internal/parser"
)

// SpeakingController is what the conversation manager needs beyond
// orchestrator.AgentController to actually read a participant's
// response: waiting for it to finish and pulling the output delta
// since the command was dispatched.
type SpeakingController interface {
	orchestrator.AgentController
	WaitForReady(ctx context.Context, timeout time.Duration) (bool, error)
	GetLastOutput(ctx context.Context, maxLines int) (string, error)
}

// DiscussionTurn is one recorded exchange, including the orchestrator
// dispatch outcome and any consensus/conflict flags raised by it.
type DiscussionTurn struct {
	convoctx.Turn
	Dispatch orchestrator.DispatchResult
}

func (t DiscussionTurn) queued() bool {
	v, _ := t.Metadata["queued"].(bool)
	return v
}

// Manager coordinates one discussion at a time across a fixed set of
// participants, using an Orchestrator for dispatch, a context Manager
// for prompt history, and a Router for partner-update delivery.
type Manager struct {
	Orchestrator *orchestrator.Orchestrator
	Context      *convoctx.Manager
	Router       *router.Router
	Splitter     parser.Splitter

	Participants      []string
	IncludeHistory    bool
	ResponseTimeout   time.Duration
	CaptureTailLines  int
	MaxHistory        int

	turnCounter int
	history     []DiscussionTurn
}

// New creates a Manager over participants. A nil Context/Router is
// replaced with a sensible default (a fresh context manager, a router
// scoped to participants); Splitter starts as the identity splitter.
func New(orch *orchestrator.Orchestrator, participants []string, ctxMgr *convoctx.Manager, rt *router.Router, includeHistory bool) (*Manager, error) {
	if len(participants) == 0 {
		return nil, fmt.Errorf("convo: at least one participant is required")
	}
	if ctxMgr == nil {
		ctxMgr = convoctx.New(200)
	}
	if rt == nil {
		rt = router.New(participants, 8)
	}
	for _, p := range participants {
		rt.RegisterParticipant(p)
		ctxMgr.RegisterParticipant(p, "cli")
	}
	return &Manager{
		Orchestrator:     orch,
		Context:          ctxMgr,
		Router:           rt,
		Splitter:         parser.IdentitySplitter{},
		Participants:     append([]string(nil), participants...),
		IncludeHistory:   includeHistory,
		ResponseTimeout:  60 * time.Second,
		CaptureTailLines: 500,
		MaxHistory:       200,
	}, nil
}

// FacilitateDiscussion runs up to maxTurns exchanges around topic,
// stopping early on a queued turn (automation paused mid-discussion),
// detected consensus, or detected conflict.
func (m *Manager) FacilitateDiscussion(ctx context.Context, topic string, maxTurns int) []DiscussionTurn {
	var conversation []DiscussionTurn

	for i := 0; i < maxTurns; i++ {
		speaker := m.determineNextSpeaker(conversation)
		if speaker == "" {
			break
		}

		prompt := m.buildPrompt(speaker, topic, len(conversation))
		dispatch, err := m.Orchestrator.DispatchCommand(ctx, speaker, prompt, true)
		if err != nil {
			break
		}

		var response string
		if !dispatch.Queued {
			response = m.readLastOutput(ctx, speaker)
		}

		turn := DiscussionTurn{
			Turn: convoctx.Turn{
				TurnIndex: m.turnCounter,
				Speaker:   speaker,
				Topic:     topic,
				Prompt:    prompt,
				Response:  response,
				Metadata:  make(map[string]any),
			},
			Dispatch: dispatch,
		}
		m.turnCounter++

		if dispatch.Queued {
			turn.Metadata["queued"] = true
		}
		conversation = append(conversation, turn)

		consensus := m.detectConsensus(conversation)
		conflict, reason := m.detectConflict(conversation)
		if consensus {
			turn.Metadata["consensus"] = true
		}
		if conflict {
			turn.Metadata["conflict"] = true
			turn.Metadata["conflict_reason"] = reason
		}
		conversation[len(conversation)-1] = turn

		m.storeTurn(turn)
		m.Context.RecordTurn(turn.Turn)
		if !dispatch.Queued {
			m.routeMessage(turn, topic)
		}

		m.Orchestrator.Tick(ctx)

		if dispatch.Queued {
			break
		}
		if consensus {
			m.Context.RecordConsensus(turn.Turn)
			break
		}
		if conflict {
			m.Context.RecordConflict(turn.Turn, reason)
			break
		}
	}

	return conversation
}

func (m *Manager) activeParticipants() []string {
	registered := make(map[string]bool)
	for _, n := range m.Orchestrator.Names() {
		registered[n] = true
	}
	active := make([]string, 0, len(m.Participants))
	for _, p := range m.Participants {
		if registered[p] {
			active = append(active, p)
		}
	}
	return active
}

func (m *Manager) determineNextSpeaker(conversation []DiscussionTurn) string {
	active := m.activeParticipants()
	if len(active) == 0 {
		return ""
	}

	if len(conversation) == 0 {
		if len(m.history) > 0 {
			last := m.history[len(m.history)-1]
			if idx := indexOf(active, last.Speaker); idx >= 0 {
				if last.queued() {
					return last.Speaker
				}
				return active[(idx+1)%len(active)]
			}
		}
		return active[0]
	}

	last := conversation[len(conversation)-1]
	if last.queued() && last.Speaker != "" {
		if indexOf(active, last.Speaker) >= 0 {
			return last.Speaker
		}
		return active[0]
	}

	idx := indexOf(active, last.Speaker)
	if idx < 0 {
		return active[0]
	}
	return active[(idx+1)%len(active)]
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func (m *Manager) buildPrompt(speaker, topic string, turnNumber int) string {
	base, ok := m.tryContextBuildPrompt(speaker, topic)
	if !ok {
		if m.IncludeHistory {
			base = fmt.Sprintf("[Turn %d] %s, let's continue discussing %q. Share your perspective.", turnNumber, speaker, topic)
		} else {
			base = fmt.Sprintf("[Turn %d] %s, acknowledge the request %q and briefly confirm you can see it.", turnNumber, speaker, topic)
		}
	}

	summary := ""
	if m.IncludeHistory && m.Context != nil {
		recent := m.Context.History()
		if len(recent) > 3 {
			recent = recent[len(recent)-3:]
		}
		summary = convoctx.SummarizeConversation(recent, 300)
	}
	return m.Router.PreparePrompt(speaker, topic, base, summary)
}

// tryContextBuildPrompt calls the context manager's BuildPrompt,
// reporting failure (rather than propagating a panic) if no context
// manager is attached or the call itself panics, so buildPrompt can
// fall back to its own default template. On success this returns the
// context manager's own text unchanged — including its correct
// smoke-test acknowledgment when IncludeHistory is false.
func (m *Manager) tryContextBuildPrompt(speaker, topic string) (result string, ok bool) {
	if m.Context == nil {
		return "", false
	}
	defer func() {
		if r := recover(); r != nil {
			result, ok = "", false
		}
	}()
	return m.Context.BuildPrompt(speaker, topic, m.IncludeHistory), true
}

func (m *Manager) readLastOutput(ctx context.Context, name string) string {
	ac, err := m.Orchestrator.Controller(name)
	if err != nil {
		return ""
	}
	sc, ok := ac.(SpeakingController)
	if !ok {
		return ""
	}

	ready, err := sc.WaitForReady(ctx, m.ResponseTimeout)
	if err != nil || !ready {
		return ""
	}

	raw, err := sc.GetLastOutput(ctx, m.CaptureTailLines)
	if err != nil || raw == "" {
		return ""
	}
	split, err := m.Splitter.Split(raw)
	if err != nil {
		return ""
	}
	if split.Response == "" && strings.TrimSpace(split.Cleaned) == "" {
		return ""
	}
	return split.Response
}

func (m *Manager) storeTurn(turn DiscussionTurn) {
	maxHistory := m.MaxHistory
	if maxHistory <= 0 {
		maxHistory = 200
	}
	m.history = append(m.history, turn)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
}

func (m *Manager) routeMessage(turn DiscussionTurn, topic string) {
	if m.Router == nil {
		return
	}
	m.Router.Deliver(turn.Speaker, turn.Response, topic, turn.TurnIndex, turn.Metadata)
}

// History returns a snapshot of every turn this manager has recorded,
// across all FacilitateDiscussion calls.
func (m *Manager) History() []DiscussionTurn {
	out := make([]DiscussionTurn, len(m.history))
	copy(out, m.history)
	return out
}
