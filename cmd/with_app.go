package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"ticketbot/internal/bootstrap"
	"ticketbot/internal/bootstrap/logging"
	"ticketbot/internal/errs"
	"ticketbot/internal/usecase/access"
	ticketusecase "ticketbot/internal/usecase/ticket"
)

// ticketDeps is what ticket subcommands need from the container.
type ticketDeps struct {
	App     *bootstrap.App
	Tickets *ticketusecase.Service
	Access  *access.Authorizer
}

func withApp(run func(cmd *cobra.Command, app *bootstrap.App) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		var app *bootstrap.App
		return runContainer(cmd, []any{&app}, func() error {
			closeLog, err := useConfiguredLogger(cmd, app)
			if err != nil {
				return err
			}
			defer closeLog()
			return run(cmd, app)
		})
	}
}

func withTickets(run func(cmd *cobra.Command, deps ticketDeps) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		var deps ticketDeps
		return runContainer(cmd, []any{&deps.App, &deps.Tickets, &deps.Access}, func() error {
			closeLog, err := useConfiguredLogger(cmd, deps.App)
			if err != nil {
				return err
			}
			defer closeLog()
			return run(cmd, deps)
		})
	}
}

func runContainer(cmd *cobra.Command, targets []any, run func() error) error {
	ctx := logging.WithAttrs(
		cmd.Context(),
		slog.String("command", cmd.CommandPath()),
		slog.String("config_file", cfgFile),
	)

	fxApp := fx.New(
		bootstrap.Module,
		fx.NopLogger,
		fx.Provide(func() context.Context { return ctx }),
		fx.Provide(
			fx.Annotate(
				func() string { return cfgFile },
				fx.ResultTags(`name:"configFile"`),
			),
		),
		fx.Populate(targets...),
	)

	startCtx, cancelStart := context.WithTimeout(ctx, 10*time.Second)
	defer cancelStart()
	if err := fxApp.Start(startCtx); err != nil {
		logging.Error(ctx, "bootstrap application failed", slog.Any("err", errs.Loggable(err)))
		return errs.Wrap(err, "start fx application")
	}

	defer func() {
		stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelStop()
		if err := fxApp.Stop(stopCtx); err != nil {
			logging.Error(ctx, "fx application stop failed", slog.Any("err", errs.Loggable(err)))
		}
	}()

	cmd.SetContext(ctx)
	if err := run(); err != nil {
		return errs.Wrap(err, "run command")
	}
	return nil
}

// useConfiguredLogger swaps the bootstrap logger for one built from the
// log section of the loaded config. Attrs already on the context are kept.
func useConfiguredLogger(cmd *cobra.Command, app *bootstrap.App) (func() error, error) {
	if app == nil {
		return func() error { return nil }, nil
	}

	out, closeLog, err := logging.OpenOutput(cmd.ErrOrStderr(), app.Config.Log.File)
	if err != nil {
		return nil, errs.Wrap(err, "open log output")
	}
	logger := logging.New(out, app.Config.Log.Format, app.Config.Log.Level)
	cmd.SetContext(logging.WithLogger(cmd.Context(), logger))
	return closeLog, nil
}
