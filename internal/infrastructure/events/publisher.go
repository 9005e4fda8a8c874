package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"ticketbot/internal/bootstrap/config"
	"ticketbot/internal/errs"
	"ticketbot/internal/ports"
)

// NATSPublisher publishes lifecycle events as JSON on
// "<prefix>.<type>", e.g. tickets.opened.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

var _ ports.EventPublisher = (*NATSPublisher)(nil)

func NewNATSPublisher(cfg config.EventsConfig) (*NATSPublisher, error) {
	url := strings.TrimSpace(cfg.NATSURL)
	if url == "" {
		return nil, errors.New("events.nats_url is required")
	}

	conn, err := nats.Connect(url,
		nats.Name("ticketbot"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(3),
	)
	if err != nil {
		return nil, errs.Wrap(err, "connect nats")
	}
	return &NATSPublisher{conn: conn, prefix: subjectPrefix(cfg.SubjectPrefix)}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, event ports.TicketEvent) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	payload, err := Encode(event)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(Subject(p.prefix, event.Type), payload); err != nil {
		return errs.Wrap(err, "publish ticket event")
	}
	return nil
}

// Close flushes buffered messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}

func Subject(prefix string, eventType ports.TicketEventType) string {
	return subjectPrefix(prefix) + "." + string(eventType)
}

func Encode(event ports.TicketEvent) ([]byte, error) {
	if event.Type == "" || event.TicketID == 0 {
		return nil, errors.New("event type and ticket id are required")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, errs.Wrap(err, "encode ticket event")
	}
	return payload, nil
}

func subjectPrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		return "tickets"
	}
	return prefix
}

// Discard drops every event. Used when no broker is configured.
type Discard struct{}

var _ ports.EventPublisher = Discard{}

func (Discard) Publish(context.Context, ports.TicketEvent) error { return nil }
