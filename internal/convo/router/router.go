// Package router delivers turn responses between participants in an
// orchestrated discussion through small bounded mailboxes, so each
// participant's next prompt can be prefixed with what its partners
// said since it last spoke.
package router

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Message is one routed delivery. ID uniquely identifies a single
// delivery (not a message body) so callers tracing router activity in
// logs can tell two deliveries of the same text apart.
type Message struct {
	ID       string
	Sender   string
	Text     string
	Topic    string
	Turn     int
	Metadata map[string]any
}

const defaultMaxPending = 8

// Router holds one bounded FIFO mailbox per participant.
type Router struct {
	maxPending int

	mu           sync.Mutex
	participants []string
	mailboxes    map[string][]Message
}

// New creates a Router pre-registering participants, each with a
// mailbox capped at maxPending messages (default 8 when <= 0).
func New(participants []string, maxPending int) *Router {
	if maxPending <= 0 {
		maxPending = defaultMaxPending
	}
	r := &Router{
		maxPending: maxPending,
		mailboxes:  make(map[string][]Message),
	}
	for _, p := range participants {
		r.RegisterParticipant(p)
	}
	return r
}

// RegisterParticipant ensures name has a mailbox and is included as a
// delivery target for other participants' messages.
func (r *Router) RegisterParticipant(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := false
	for _, p := range r.participants {
		if p == name {
			found = true
			break
		}
	}
	if !found {
		r.participants = append(r.participants, name)
	}
	if _, ok := r.mailboxes[name]; !ok {
		r.mailboxes[name] = nil
	}
}

// Deliver broadcasts message to every participant except sender. An
// empty message is silently skipped, since it would add nothing to a
// recipient's next prompt.
func (r *Router) Deliver(sender, message, topic string, turn int, metadata map[string]any) {
	if message == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	payload := Message{ID: uuid.New().String(), Sender: sender, Text: message, Topic: topic, Turn: turn, Metadata: metadata}
	for _, recipient := range r.targetsForSenderLocked(sender) {
		box := r.mailboxes[recipient]
		box = append(box, payload)
		if len(box) > r.maxPending {
			box = box[len(box)-r.maxPending:]
		}
		r.mailboxes[recipient] = box
	}
}

func (r *Router) targetsForSenderLocked(sender string) []string {
	if len(r.participants) == 0 {
		targets := make([]string, 0, len(r.mailboxes))
		for name := range r.mailboxes {
			if name != sender {
				targets = append(targets, name)
			}
		}
		return targets
	}
	targets := make([]string, 0, len(r.participants))
	for _, name := range r.participants {
		if name != sender {
			targets = append(targets, name)
		}
	}
	return targets
}

// PreparePrompt drains recipient's mailbox and, if it held anything,
// appends a "Recent partner updates" section (plus an optional
// "Shared context" summary line) to basePrompt. With an empty mailbox
// it returns basePrompt unchanged.
func (r *Router) PreparePrompt(recipient, topic, basePrompt string, contextSummary string) string {
	r.mu.Lock()
	box := r.mailboxes[recipient]
	r.mailboxes[recipient] = nil
	r.mu.Unlock()

	if len(box) == 0 {
		return basePrompt
	}

	lines := []string{basePrompt, "", fmt.Sprintf("Topic: %s", topic), "Recent partner updates:"}
	for _, msg := range box {
		lines = append(lines, fmt.Sprintf("- %s wrote: %s", msg.Sender, trimMessage(msg.Text, 400)))
	}
	if contextSummary != "" {
		lines = append(lines, "", "Shared context: "+contextSummary)
	}
	return strings.Join(lines, "\n")
}

func trimMessage(text string, maxLength int) string {
	text = strings.TrimSpace(text)
	if len(text) <= maxLength {
		return text
	}
	return text[:maxLength-3] + "..."
}
