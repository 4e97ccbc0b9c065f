package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Event is one orchestration-level occurrence a sink may publish
// externally, e.g. to drive a dashboard or audit trail.
type Event struct {
	Kind   string `json:"kind"`
	Agent  string `json:"agent"`
	Reason string `json:"reason,omitempty"`
}

// EventSink receives orchestration events as they happen. Publish must
// not block the caller on a slow or unreachable downstream; failures
// are the sink's problem, not the orchestrator's.
type EventSink interface {
	Publish(Event)
}

// NoopSink discards every event. It is the default when no sink is
// configured.
type NoopSink struct{}

// Publish implements EventSink.
func (NoopSink) Publish(Event) {}

// NatsPublisher publishes orchestration events as JSON messages on a
// NATS subject, for deployments that want to fan events out to
// external dashboards or audit consumers without coupling the
// orchestrator to any particular one.
type NatsPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNatsPublisher connects to url and returns a publisher that sends
// every event to subject. The connection is owned by the returned
// publisher; call Close when done.
func NewNatsPublisher(url, subject string) (*NatsPublisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: connect to nats: %w", err)
	}
	return &NatsPublisher{conn: conn, subject: subject}, nil
}

// Publish implements EventSink. Marshal or publish failures are
// discarded; an orchestration tick must never stall on a downstream
// outage.
func (p *NatsPublisher) Publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_ = p.conn.Publish(p.subject, data)
}

// Close closes the underlying NATS connection.
func (p *NatsPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
