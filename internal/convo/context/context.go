// Package context tracks conversation history, decisions, and
// conflict/consensus signals for an orchestrated discussion, so the
// conversation manager can build prompts and summaries without
// re-implementing bookkeeping in every call site.
//
// Named "context" for the concept it tracks; import it under an alias
// (convoctx is conventional here) to avoid colliding with the standard
// library's context package in files that need both.
package context

import (
	"fmt"
	"strings"
	"sync"
)

// Turn is a sanitized record of one exchange in a discussion.
type Turn struct {
	TurnIndex int
	Speaker   string
	Topic     string
	Prompt    string
	Response  string
	Metadata  map[string]any
}

func cloneTurn(t Turn) Turn {
	clone := t
	if t.Metadata != nil {
		clone.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			clone.Metadata[k] = v
		}
	}
	return clone
}

// ConflictRecord is a turn stored alongside the reason it was flagged
// as a conflict.
type ConflictRecord struct {
	Turn   Turn
	Reason string
}

// ParticipantInfo is metadata the conversation manager records once
// per participant (name, type, and any caller-supplied extras).
type ParticipantInfo struct {
	Name     string
	Type     string
	Role     string
	Host     string
	Guidance string
	// LastTurnSeen is the highest turn index this participant has
	// already been shown, so a speaker is never re-shown their own
	// prior turns when a prompt is built for them.
	LastTurnSeen int
}

// Manager is a bounded conversation history with decision/conflict/
// consensus tracking and prompt-building helpers.
type Manager struct {
	historySize int

	mu           sync.Mutex
	history      []Turn
	decisions    []map[string]any
	conflicts    []ConflictRecord
	consensus    []Turn
	projectState map[string]any
	participants map[string]*ParticipantInfo
}

// New creates a Manager retaining at most historySize turns. A
// non-positive historySize defaults to 200.
func New(historySize int) *Manager {
	if historySize < 1 {
		historySize = 200
	}
	return &Manager{
		historySize:  historySize,
		projectState: make(map[string]any),
		participants: make(map[string]*ParticipantInfo),
	}
}

// RegisterParticipant ensures metadata exists for name, defaulting
// Type to "cli" when not already present.
func (m *Manager) RegisterParticipant(name, participantType string) {
	m.RegisterParticipantDetailed(name, participantType, "", "", "")
}

// RegisterParticipantDetailed is RegisterParticipant with the fuller
// role/host/guidance metadata used to frame an agent-type participant's
// prompts. Idempotent: a participant already registered keeps its
// existing metadata.
func (m *Manager) RegisterParticipantDetailed(name, participantType, role, host, guidance string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.participants[name]; ok {
		return
	}
	if participantType == "" {
		participantType = "cli"
	}
	m.participants[name] = &ParticipantInfo{Name: name, Type: participantType, Role: role, Host: host, Guidance: guidance, LastTurnSeen: -1}
}

// RecordTurn appends a sanitized copy of turn to the bounded history
// and advances the speaker's own last-seen index to this turn. Prompt
// building later shows a participant only turns strictly after their
// own last-seen index, so a speaker is never quoted their own prior
// turns.
func (m *Manager) RecordTurn(turn Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, cloneTurn(turn))
	if len(m.history) > m.historySize {
		m.history = m.history[len(m.history)-m.historySize:]
	}
	if info, ok := m.participants[turn.Speaker]; ok {
		if turn.TurnIndex > info.LastTurnSeen {
			info.LastTurnSeen = turn.TurnIndex
		}
	}
}

// RecordConflict stores turn alongside the detection reason.
func (m *Manager) RecordConflict(turn Turn, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts = append(m.conflicts, ConflictRecord{Turn: cloneTurn(turn), Reason: reason})
}

// RecordConsensus stores turn as a consensus event.
func (m *Manager) RecordConsensus(turn Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consensus = append(m.consensus, cloneTurn(turn))
}

// SaveDecision persists a decision payload reached by the team.
func (m *Manager) SaveDecision(decision map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := make(map[string]any, len(decision))
	for k, v := range decision {
		clone[k] = v
	}
	m.decisions = append(m.decisions, clone)
}

// History returns a snapshot of the stored turns.
func (m *Manager) History() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Turn, len(m.history))
	for i, t := range m.history {
		out[i] = cloneTurn(t)
	}
	return out
}

// Decisions returns a snapshot of recorded decisions.
func (m *Manager) Decisions() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]any, len(m.decisions))
	copy(out, m.decisions)
	return out
}

// Conflicts returns a snapshot of recorded conflicts.
func (m *Manager) Conflicts() []ConflictRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ConflictRecord, len(m.conflicts))
	copy(out, m.conflicts)
	return out
}

// ConsensusEvents returns a snapshot of recorded consensus turns.
func (m *Manager) ConsensusEvents() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Turn, len(m.consensus))
	copy(out, m.consensus)
	return out
}

// UpdateProjectState merges updates into the tracked project state.
func (m *Manager) UpdateProjectState(updates map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range updates {
		m.projectState[k] = v
	}
}

// ProjectContext is a consolidated snapshot for status reporting.
type ProjectContext struct {
	History      []Turn
	Decisions    []map[string]any
	Conflicts    []ConflictRecord
	Consensus    []Turn
	ProjectState map[string]any
}

// GetProjectContext returns a consolidated view of recent state.
func (m *Manager) GetProjectContext() ProjectContext {
	m.mu.Lock()
	state := make(map[string]any, len(m.projectState))
	for k, v := range m.projectState {
		state[k] = v
	}
	m.mu.Unlock()
	return ProjectContext{
		History:      m.History(),
		Decisions:    m.Decisions(),
		Conflicts:    m.Conflicts(),
		Consensus:    m.ConsensusEvents(),
		ProjectState: state,
	}
}

// BuildPrompt constructs a prompt for participant about task. When
// includeHistory is false, it returns a minimal smoke-test
// acknowledgment prompt instead of a task prompt. Otherwise it frames
// the task according to the participant's registered type (an "agent"
// participant is addressed as operating in its role, hosted via its
// host; anyone else is addressed as a collaborator, qualified by role
// if one is set), appends any registered guidance, then a "Recent
// context" blurb built only from turns strictly after this
// participant's own last-seen index, so a speaker is never quoted
// their own prior turns.
func (m *Manager) BuildPrompt(participant, task string, includeHistory bool) string {
	if !includeHistory {
		return fmt.Sprintf("Hello %s — this is a connectivity check. Reply exactly: \"Hello from %s — message received.\" and do nothing else.", participant, participant)
	}

	info := m.participantInfo(participant)

	var lines []string
	switch {
	case info != nil && info.Type == "agent":
		role := info.Role
		if role == "" {
			role = "collaborator"
		}
		host := info.Host
		if host == "" {
			host = "its host runtime"
		}
		lines = append(lines, fmt.Sprintf("%s, operating as the %s agent hosted via %s, address the following task: %s.", participant, role, host, task))
	default:
		if info != nil && info.Role != "" {
			lines = append(lines, fmt.Sprintf("%s, as the %s, let's collaborate on: %s.", participant, info.Role, task))
		} else {
			lines = append(lines, fmt.Sprintf("%s, let's collaborate on: %s.", participant, task))
		}
	}
	lines = append(lines, "Provide your next contribution focusing on actionable steps.")

	if info != nil && info.Guidance != "" {
		lines = append(lines, info.Guidance)
	}

	if blurb := m.formatRecentHistory(participant, 3); blurb != "" {
		lines = append(lines, "Recent context: "+blurb)
	}
	return strings.Join(lines, "\n")
}

func (m *Manager) participantInfo(name string) *ParticipantInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.participants[name]
	if !ok {
		return nil
	}
	clone := *info
	return &clone
}

// formatRecentHistory returns the up-to-maxTurns most recent turns
// strictly after participant's last-seen index, formatted
// "speaker: response" (or "<speaker> queued a prompt" when the
// response is empty), joined with "; ".
func (m *Manager) formatRecentHistory(participant string, maxTurns int) string {
	m.mu.Lock()
	lastSeen := -1
	if info, ok := m.participants[participant]; ok {
		lastSeen = info.LastTurnSeen
	}
	var eligible []Turn
	for _, t := range m.history {
		if t.TurnIndex > lastSeen {
			eligible = append(eligible, t)
		}
	}
	m.mu.Unlock()

	if len(eligible) > maxTurns {
		eligible = eligible[len(eligible)-maxTurns:]
	}
	if len(eligible) == 0 {
		return ""
	}
	fragments := make([]string, 0, len(eligible))
	for _, t := range eligible {
		if t.Response != "" {
			fragments = append(fragments, t.Speaker+": "+t.Response)
		} else {
			fragments = append(fragments, t.Speaker+" queued a prompt")
		}
	}
	return strings.Join(fragments, "; ")
}

// SummarizeConversation returns a truncated summary of turns,
// preferring responses over prompts, joined with " | " and capped at
// maxLength characters.
func SummarizeConversation(turns []Turn, maxLength int) string {
	fragments := make([]string, 0, len(turns))
	for _, t := range turns {
		body := t.Response
		if body == "" {
			body = t.Prompt
		}
		snippet := strings.TrimSpace(t.Speaker + ": " + body)
		if snippet != "" {
			fragments = append(fragments, snippet)
		}
	}
	summary := strings.Join(fragments, " | ")
	if maxLength > 3 && len(summary) > maxLength {
		return summary[:maxLength-3] + "..."
	}
	return summary
}
