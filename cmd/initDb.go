package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"ticketbot/internal/bootstrap"
	"ticketbot/internal/bootstrap/logging"
	"ticketbot/internal/errs"
)

var initDbCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Initialize database schema",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := cmd.Context()
		logging.Info(ctx, "start init-db")

		if err := app.InitSchema(ctx); err != nil {
			logging.Error(ctx, "initialize schema failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "initialize schema")
		}

		logging.Info(ctx, "init-db finished", slog.String("database_driver", app.Config.Database.Driver))
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "database schema initialized (%s)\n", app.Config.Database.Driver); err != nil {
			return errs.Wrap(err, "write init-db output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(initDbCmd)
}
