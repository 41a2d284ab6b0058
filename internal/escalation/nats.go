package escalation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vinayprograms/agentkit/logging"
)

// DefaultSubject is the NATS subject events are published on.
const DefaultSubject = "crew.escalations"

// Publisher is the part of a NATS connection the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Connect dials a NATS server for escalation publishing.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("crew-escalation"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(5),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NATSObserver publishes every event as JSON on subject.
func NATSObserver(pub Publisher, subject string) Observer {
	if subject == "" {
		subject = DefaultSubject
	}
	logger := logging.New().WithComponent("escalation.nats")
	return func(e Event) {
		data, err := json.Marshal(e)
		if err != nil {
			logger.Error("marshal_failed", map[string]interface{}{"event": e.ID, "error": err.Error()})
			return
		}
		if err := pub.Publish(subject, data); err != nil {
			logger.Warn("publish_failed", map[string]interface{}{"event": e.ID, "subject": subject, "error": err.Error()})
		}
	}
}
