package ports

import "context"

type TicketEventType string

const (
	TicketOpened TicketEventType = "opened"
	TicketClosed TicketEventType = "closed"
)

type TicketEvent struct {
	Type       TicketEventType `json:"type"`
	TicketID   uint64          `json:"ticket_id"`
	ChannelID  uint64          `json:"channel_id,string,omitempty"`
	Actor      uint64          `json:"actor,string"`
	OccurredAt string          `json:"occurred_at"`
}

// EventPublisher fans lifecycle changes out to other systems. Delivery is
// best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, event TicketEvent) error
}
