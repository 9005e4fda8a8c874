package discord

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"ticketbot/internal/bootstrap/config"
	"ticketbot/internal/errs"
)

// api is the subset of *discordgo.Session the adapters call.
type api interface {
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelEdit(channelID string, data *discordgo.ChannelEdit, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildMember(guildID string, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
}

var _ api = (*discordgo.Session)(nil)

// NewSession opens a REST-only bot session. No gateway connection is made.
func NewSession(cfg config.DiscordConfig) (*discordgo.Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, errs.Wrap(err, "create discord session")
	}
	session.Client.Timeout = cfg.RequestTimeout
	session.ShouldRetryOnRateLimit = false
	return session, nil
}

// guild holds the resolved snowflakes for one guild plus request pacing.
type guild struct {
	api              api
	guildID          string
	openCategoryID   string
	closedCategoryID string
	moderatorRoleID  string
	timeout          time.Duration
	limiter          *rate.Limiter
}

func newGuild(client api, cfg config.DiscordConfig) (*guild, error) {
	if client == nil {
		return nil, errors.New("discord client is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &guild{
		api:              client,
		guildID:          cfg.GuildID,
		openCategoryID:   cfg.OpenCategoryID,
		closedCategoryID: cfg.ClosedCategoryID,
		moderatorRoleID:  cfg.ModeratorRoleID,
		timeout:          cfg.RequestTimeout,
		limiter:          rate.NewLimiter(limit, burst),
	}, nil
}

// call bounds fn by the request timeout after waiting for a rate slot. Any
// failure, including a deadline, is a provisioning error.
func (g *guild) call(ctx context.Context, op string, fn func(opts ...discordgo.RequestOption) error) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return errs.As(errs.KindProvision, err, op+": wait for rate limit")
	}
	if err := fn(discordgo.WithContext(ctx)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errs.As(errs.KindProvision, errors.Join(ctxErr, err), op)
		}
		return errs.As(errs.KindProvision, err, op)
	}
	return nil
}

func formatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func parseID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errs.Newf(errs.KindProvision, "platform returned invalid id %q", raw)
	}
	return id, nil
}
