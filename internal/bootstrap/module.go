package bootstrap

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"ticketbot/internal/bootstrap/config"
	"ticketbot/internal/bootstrap/database"
	"ticketbot/internal/bootstrap/logging"
	"ticketbot/internal/errs"
	cacheinfra "ticketbot/internal/infrastructure/cache"
	"ticketbot/internal/infrastructure/discord"
	"ticketbot/internal/infrastructure/events"
	"ticketbot/internal/infrastructure/persistence/relational/repository"
	"ticketbot/internal/ports"
	"ticketbot/internal/usecase/access"
	ticketusecase "ticketbot/internal/usecase/ticket"
)

// Module provides everything lazily; commands that never ask for the ticket
// service never build a discord session or a NATS connection.
var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideApp),
	fx.Provide(
		fx.Annotate(
			repository.NewTicketRepository,
			fx.As(new(ports.TicketRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			cacheinfra.NewKVCache,
			fx.As(new(ports.Cache)),
		),
	),
	fx.Provide(provideDiscordSession),
	fx.Provide(
		fx.Annotate(
			provideProvisioner,
			fx.As(new(ports.ChannelProvisioner)),
		),
	),
	fx.Provide(
		fx.Annotate(
			provideRoleDirectory,
			fx.As(new(ports.RoleDirectory)),
		),
	),
	fx.Provide(provideEventPublisher),
	fx.Provide(provideTicketOptions),
	fx.Provide(ticketusecase.NewService),
	fx.Provide(provideAuthorizer),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideApp(cfg config.Config, db *gorm.DB) *App {
	return &App{
		Config: cfg,
		DB:     db,
	}
}

func provideDiscordSession(lc fx.Lifecycle, cfg config.Config) (*discordgo.Session, error) {
	session, err := discord.NewSession(cfg.Discord)
	if err != nil {
		return nil, errs.Wrap(err, "create discord session")
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return session.Close()
		},
	})
	return session, nil
}

func provideProvisioner(session *discordgo.Session, cfg config.Config) (*discord.Provisioner, error) {
	return discord.NewProvisioner(session, cfg.Discord)
}

func provideRoleDirectory(session *discordgo.Session, cfg config.Config) (*discord.RoleDirectory, error) {
	return discord.NewRoleDirectory(session, cfg.Discord)
}

// provideEventPublisher falls back to a no-op publisher when no NATS URL is
// configured.
func provideEventPublisher(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (ports.EventPublisher, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	if cfg.Events.NATSURL == "" {
		logging.Debug(logCtx, "event publishing disabled")
		return events.Discard{}, nil
	}

	publisher, err := events.NewNATSPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return publisher.Close()
		},
	})

	logging.Info(logCtx, "event publishing enabled", slog.String("nats_url", cfg.Events.NATSURL))
	return publisher, nil
}

func provideTicketOptions(cfg config.Config) ticketusecase.Options {
	return ticketusecase.Options{ProvisionTimeout: cfg.Discord.RequestTimeout}
}

func provideAuthorizer(roles ports.RoleDirectory, cache ports.Cache, cfg config.Config) *access.Authorizer {
	return access.NewAuthorizer(roles, cache, cfg.Access.ModeratorCacheTTL)
}
