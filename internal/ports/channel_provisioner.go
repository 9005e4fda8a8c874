package ports

import (
	"context"

	domainticket "ticketbot/internal/domain/ticket"
)

type ChannelMessage struct {
	Content           string
	MentionModerators bool
}

// ChannelProvisioner manages the chat channel behind a ticket. Overwrites are
// always applied as a full replacement of the channel's existing set.
type ChannelProvisioner interface {
	Create(ctx context.Context, name string, category domainticket.Category, overwrites []domainticket.Overwrite) (uint64, error)
	EditPermissionsAndCategory(ctx context.Context, channelID uint64, category domainticket.Category, overwrites []domainticket.Overwrite) error
	Post(ctx context.Context, channelID uint64, message ChannelMessage) error
}

// RoleDirectory answers role membership questions for guild members.
type RoleDirectory interface {
	HasModeratorRole(ctx context.Context, userID uint64) (bool, error)
}
