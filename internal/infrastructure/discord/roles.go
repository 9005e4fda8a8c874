package discord

import (
	"context"
	"slices"

	"github.com/bwmarrin/discordgo"

	"ticketbot/internal/bootstrap/config"
	"ticketbot/internal/ports"
)

// RoleDirectory checks guild role membership through the member endpoint.
type RoleDirectory struct {
	g *guild
}

var _ ports.RoleDirectory = (*RoleDirectory)(nil)

func NewRoleDirectory(session *discordgo.Session, cfg config.DiscordConfig) (*RoleDirectory, error) {
	g, err := newGuild(session, cfg)
	if err != nil {
		return nil, err
	}
	return &RoleDirectory{g: g}, nil
}

func (d *RoleDirectory) HasModeratorRole(ctx context.Context, userID uint64) (bool, error) {
	var member *discordgo.Member
	err := d.g.call(ctx, "fetch guild member", func(opts ...discordgo.RequestOption) error {
		var callErr error
		member, callErr = d.g.api.GuildMember(d.g.guildID, formatID(userID), opts...)
		return callErr
	})
	if err != nil {
		return false, err
	}
	if member == nil {
		return false, nil
	}
	return slices.Contains(member.Roles, d.g.moderatorRoleID), nil
}
