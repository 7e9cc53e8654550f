// Package events publishes daemon state transitions to NATS for
// external observers. Publishing is best effort: a broken broker must
// never stall or abort a transmission cycle.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/radioops/transmitd/internal/logfields"
)

// Transition is one daemon phase change.
type Transition struct {
	Timestamp time.Time `json:"timestamp"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Set       string    `json:"set,omitempty"`
	Window    string    `json:"window,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Publisher emits transitions. Implementations must not block the
// caller beyond a short publish timeout.
type Publisher interface {
	PublishTransition(t Transition)
	Close() error
}

// Nop discards all transitions. Used when event publishing is
// disabled.
type Nop struct{}

func (Nop) PublishTransition(Transition) {}
func (Nop) Close() error                 { return nil }

// NATSPublisher publishes transitions to a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewNATSPublisher connects to the broker and returns a publisher for
// the configured subject.
func NewNATSPublisher(url, subject string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	logger.Info("event publisher connected", slog.String("url", url), slog.String("subject", subject))
	return &NATSPublisher{conn: conn, subject: subject, logger: logger}, nil
}

// PublishTransition sends one transition. Failures are logged and
// dropped; the daemon loop never waits on the broker.
func (p *NATSPublisher) PublishTransition(t Transition) {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}

	data, err := json.Marshal(t)
	if err != nil {
		p.logger.Error("marshal transition event", logfields.Error(err))
		return
	}

	if err := p.conn.Publish(p.subject, data); err != nil {
		p.logger.Warn("publish transition event",
			logfields.FromPhase(t.From),
			logfields.Phase(t.To),
			logfields.Error(err))
	}
}

// Close drains the connection so queued events get out before
// shutdown.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return fmt.Errorf("drain nats connection: %w", err)
	}
	return nil
}
