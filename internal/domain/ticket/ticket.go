package ticket

import (
	"fmt"
	"strconv"
	"strings"
)

// Ticket is one support request and the channel that backs it. ChannelID is
// zero until the channel has been provisioned.
type Ticket struct {
	ID          uint64
	Author      uint64
	Title       string
	Description string
	IsOpen      bool
	ChannelID   uint64
	CreatedAt   string
}

type Phase string

const (
	PhaseProvisioning Phase = "provisioning"
	PhaseOpen         Phase = "open"
	PhaseClosed       Phase = "closed"
)

// Phase reports where the ticket sits in its lifecycle. A record without a
// channel is provisioning regardless of its open flag.
func (t Ticket) Phase() Phase {
	switch {
	case t.ChannelID == 0:
		return PhaseProvisioning
	case t.IsOpen:
		return PhaseOpen
	default:
		return PhaseClosed
	}
}

// Orphaned is true for a stored ticket whose channel was never recorded.
func (t Ticket) Orphaned() bool {
	return t.ID != 0 && t.ChannelID == 0
}

func (t Ticket) Ref() string {
	return FormatRef(t.ID)
}

func FormatRef(id uint64) string {
	return fmt.Sprintf("#%d", id)
}

// ParseID accepts "12" or "#12".
func ParseID(raw string) (uint64, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "#")
	if trimmed == "" {
		return 0, ErrTicketIDRequired
	}

	id, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTicketID, raw)
	}
	return id, nil
}

const quoteChars = "\"'“”‘’"

// CleanText strips surrounding whitespace and quote characters that survive
// copy-pasting quoted input into a command.
func CleanText(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), quoteChars))
}
