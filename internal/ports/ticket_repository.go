package ports

import (
	"context"
	"errors"
)

var (
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrChannelAlreadySet = errors.New("ticket channel already set")
	// ErrTicketClosed is returned by SetChannelID when the channel was
	// recorded on a ticket that had already been closed.
	ErrTicketClosed = errors.New("ticket closed before its channel was recorded")
)

// TicketRecord is the stored shape of a ticket. ChannelID is zero when unset.
type TicketRecord struct {
	ID          uint64
	Author      uint64
	Title       string
	Description string
	IsOpen      bool
	ChannelID   uint64
	CreatedAt   string
}

type TicketInsert struct {
	Author      uint64
	Title       string
	Description string
	CreatedAt   string
}

// TicketRepository is the ticket store. Every method is a single statement;
// callers get no transaction spanning two calls.
type TicketRepository interface {
	Insert(ctx context.Context, input TicketInsert) (TicketRecord, error)
	// SetChannelID records the channel once; a second call fails with
	// ErrChannelAlreadySet. The channel is still recorded on a closed ticket,
	// but the call then returns ErrTicketClosed.
	SetChannelID(ctx context.Context, ticketID uint64, channelID uint64) error
	// CloseIfOpen flips is_open to false only on an open row and returns the
	// number of rows changed (0 or 1).
	CloseIfOpen(ctx context.Context, ticketID uint64) (int64, error)
	GetByID(ctx context.Context, ticketID uint64) (TicketRecord, error)
	List(ctx context.Context, openOnly bool) ([]TicketRecord, error)
	ListOrphans(ctx context.Context) ([]TicketRecord, error)
}
