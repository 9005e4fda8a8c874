package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"ticketbot/internal/bootstrap/config"
	domainticket "ticketbot/internal/domain/ticket"
	"ticketbot/internal/errs"
	"ticketbot/internal/ports"
)

// Provisioner creates and re-permissions ticket channels in one guild.
type Provisioner struct {
	g *guild
}

var _ ports.ChannelProvisioner = (*Provisioner)(nil)

func NewProvisioner(session *discordgo.Session, cfg config.DiscordConfig) (*Provisioner, error) {
	return newProvisioner(session, cfg)
}

func newProvisioner(client api, cfg config.DiscordConfig) (*Provisioner, error) {
	g, err := newGuild(client, cfg)
	if err != nil {
		return nil, err
	}
	return &Provisioner{g: g}, nil
}

func (p *Provisioner) Create(ctx context.Context, name string, category domainticket.Category, overwrites []domainticket.Overwrite) (uint64, error) {
	parentID, err := p.categoryID(category)
	if err != nil {
		return 0, err
	}
	perms, err := p.overwrites(overwrites)
	if err != nil {
		return 0, err
	}

	var channel *discordgo.Channel
	err = p.g.call(ctx, "create channel", func(opts ...discordgo.RequestOption) error {
		var callErr error
		channel, callErr = p.g.api.GuildChannelCreateComplex(p.g.guildID, discordgo.GuildChannelCreateData{
			Name:                 name,
			Type:                 discordgo.ChannelTypeGuildText,
			ParentID:             parentID,
			PermissionOverwrites: perms,
		}, opts...)
		return callErr
	})
	if err != nil {
		return 0, err
	}
	if channel == nil {
		return 0, errs.New(errs.KindProvision, "create channel: empty response")
	}
	return parseID(channel.ID)
}

// EditPermissionsAndCategory moves the channel and replaces its whole
// overwrite list in one request.
func (p *Provisioner) EditPermissionsAndCategory(ctx context.Context, channelID uint64, category domainticket.Category, overwrites []domainticket.Overwrite) error {
	if channelID == 0 {
		return errs.New(errs.KindProvision, "edit channel: channel id is required")
	}
	parentID, err := p.categoryID(category)
	if err != nil {
		return err
	}
	perms, err := p.overwrites(overwrites)
	if err != nil {
		return err
	}
	if len(perms) == 0 {
		// An empty list is dropped from the PATCH body and would leave the old
		// overwrites in place.
		return errs.New(errs.KindProvision, "edit channel: at least one overwrite is required")
	}

	return p.g.call(ctx, "edit channel", func(opts ...discordgo.RequestOption) error {
		_, callErr := p.g.api.ChannelEdit(formatID(channelID), &discordgo.ChannelEdit{
			ParentID:             parentID,
			PermissionOverwrites: perms,
		}, opts...)
		return callErr
	})
}

func (p *Provisioner) Post(ctx context.Context, channelID uint64, message ports.ChannelMessage) error {
	if channelID == 0 {
		return errs.New(errs.KindProvision, "post message: channel id is required")
	}

	send := &discordgo.MessageSend{
		Content: message.Content,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers},
		},
	}
	if message.MentionModerators {
		send.Content = fmt.Sprintf("%s\n<@&%s>", message.Content, p.g.moderatorRoleID)
		send.AllowedMentions.Roles = []string{p.g.moderatorRoleID}
	}

	return p.g.call(ctx, "post message", func(opts ...discordgo.RequestOption) error {
		_, callErr := p.g.api.ChannelMessageSendComplex(formatID(channelID), send, opts...)
		return callErr
	})
}

func (p *Provisioner) categoryID(category domainticket.Category) (string, error) {
	switch category {
	case domainticket.CategoryOpen:
		return p.g.openCategoryID, nil
	case domainticket.CategoryClosed:
		return p.g.closedCategoryID, nil
	default:
		return "", errs.Newf(errs.KindProvision, "unknown category %q", category)
	}
}

func (p *Provisioner) overwrites(in []domainticket.Overwrite) ([]*discordgo.PermissionOverwrite, error) {
	out := make([]*discordgo.PermissionOverwrite, 0, len(in))
	for _, ow := range in {
		converted := &discordgo.PermissionOverwrite{
			Allow: permissionBits(ow.Allow),
			Deny:  permissionBits(ow.Deny),
		}
		switch ow.Principal.Kind {
		case domainticket.PrincipalUser:
			if ow.Principal.ID == 0 {
				return nil, errs.New(errs.KindProvision, "member overwrite without user id")
			}
			converted.ID = formatID(ow.Principal.ID)
			converted.Type = discordgo.PermissionOverwriteTypeMember
		case domainticket.PrincipalModerators:
			converted.ID = p.g.moderatorRoleID
			converted.Type = discordgo.PermissionOverwriteTypeRole
		case domainticket.PrincipalEveryone:
			// The @everyone role shares the guild's id.
			converted.ID = p.g.guildID
			converted.Type = discordgo.PermissionOverwriteTypeRole
		default:
			return nil, errs.Newf(errs.KindProvision, "unknown principal kind %d", ow.Principal.Kind)
		}
		out = append(out, converted)
	}
	return out, nil
}

func permissionBits(p domainticket.Permission) int64 {
	var bits int64
	if p&domainticket.PermissionView != 0 {
		bits |= discordgo.PermissionViewChannel
	}
	return bits
}
