package context

import (
	"strings"
	"testing"
)

func TestRecordTurn_BoundsHistoryToConfiguredSize(t *testing.T) {
	m := New(2)
	m.RecordTurn(Turn{TurnIndex: 0, Speaker: "a", Response: "one"})
	m.RecordTurn(Turn{TurnIndex: 1, Speaker: "b", Response: "two"})
	m.RecordTurn(Turn{TurnIndex: 2, Speaker: "a", Response: "three"})

	history := m.History()
	if len(history) != 2 {
		t.Fatalf("expected history bounded to 2, got %d", len(history))
	}
	if history[0].Response != "two" || history[1].Response != "three" {
		t.Fatalf("expected oldest turn evicted, got %+v", history)
	}
}

func TestRecordTurn_AdvancesOnlySpeakersOwnLastSeen(t *testing.T) {
	m := New(10)
	m.RegisterParticipant("a", "cli")
	m.RegisterParticipant("b", "cli")
	m.RecordTurn(Turn{TurnIndex: 5, Speaker: "a"})

	m.mu.Lock()
	aSeen := m.participants["a"].LastTurnSeen
	bSeen := m.participants["b"].LastTurnSeen
	m.mu.Unlock()

	if aSeen != 5 {
		t.Fatalf("expected speaker's own last-seen advanced, got %d", aSeen)
	}
	if bSeen != -1 {
		t.Fatalf("expected other participant's last-seen untouched, got %d", bSeen)
	}
}

func TestBuildPrompt_ShowsPeersLatestButNotSpeakersOwnPriorTurn(t *testing.T) {
	m := New(10)
	m.RegisterParticipant("a", "cli")
	m.RegisterParticipant("b", "cli")
	m.RecordTurn(Turn{TurnIndex: 0, Speaker: "a", Response: "a's own idea"})
	m.RecordTurn(Turn{TurnIndex: 1, Speaker: "b", Response: "b's reply"})

	// a's last-seen index is still 0 (a's own prior turn); the recent
	// context shown to a should cover everything since, i.e. b's reply,
	// never a's own earlier turn.
	prompt := m.BuildPrompt("a", "ship the feature", true)
	if strings.Contains(prompt, "a's own idea") {
		t.Fatalf("expected a never to be quoted its own prior turn, got %q", prompt)
	}
	if !strings.Contains(prompt, "b's reply") {
		t.Fatalf("expected a's prompt to include b's latest turn, got %q", prompt)
	}
}

func TestRecordTurn_ClonesSoCallerMutationDoesNotLeak(t *testing.T) {
	m := New(10)
	meta := map[string]any{"k": "v"}
	m.RecordTurn(Turn{TurnIndex: 0, Speaker: "a", Metadata: meta})
	meta["k"] = "mutated"

	history := m.History()
	if history[0].Metadata["k"] != "v" {
		t.Fatalf("expected stored turn to be insulated from caller mutation, got %v", history[0].Metadata)
	}
}

func TestBuildPrompt_IncludesRecentHistoryBlurb(t *testing.T) {
	m := New(10)
	m.RecordTurn(Turn{TurnIndex: 0, Speaker: "a", Response: "did the setup"})

	prompt := m.BuildPrompt("b", "ship the feature", true)
	if !strings.Contains(prompt, "ship the feature") {
		t.Fatalf("expected topic in prompt, got %q", prompt)
	}
	if !strings.Contains(prompt, "a: did the setup") {
		t.Fatalf("expected recent history blurb, got %q", prompt)
	}
}

func TestBuildPrompt_OmitsHistoryWhenDisabled(t *testing.T) {
	m := New(10)
	m.RecordTurn(Turn{TurnIndex: 0, Speaker: "a", Response: "did the setup"})

	prompt := m.BuildPrompt("b", "ship the feature", false)
	if strings.Contains(prompt, "did the setup") {
		t.Fatalf("expected no history blurb when disabled, got %q", prompt)
	}
}

func TestSummarizeConversation_TruncatesAtMaxLength(t *testing.T) {
	turns := []Turn{
		{Speaker: "a", Response: "this is a fairly long response about the plan"},
		{Speaker: "b", Response: "this is another fairly long response about risks"},
	}
	summary := SummarizeConversation(turns, 40)
	if len(summary) != 40 {
		t.Fatalf("expected summary truncated to 40 chars, got %d (%q)", len(summary), summary)
	}
	if summary[len(summary)-3:] != "..." {
		t.Fatalf("expected truncation ellipsis, got %q", summary)
	}
}

func TestSummarizeConversation_FallsBackToPromptWhenNoResponse(t *testing.T) {
	turns := []Turn{{Speaker: "a", Prompt: "what do you think?"}}
	summary := SummarizeConversation(turns, 400)
	if !strings.Contains(summary, "what do you think?") {
		t.Fatalf("expected prompt fallback in summary, got %q", summary)
	}
}

func TestRecordConflictAndConsensus_AreRetrievable(t *testing.T) {
	m := New(10)
	turn := Turn{TurnIndex: 0, Speaker: "a", Response: "I disagree"}
	m.RecordConflict(turn, "keyword match")
	m.RecordConsensus(turn)

	if len(m.Conflicts()) != 1 || m.Conflicts()[0].Reason != "keyword match" {
		t.Fatalf("expected 1 conflict with reason recorded")
	}
	if len(m.ConsensusEvents()) != 1 {
		t.Fatalf("expected 1 consensus event recorded")
	}
}
