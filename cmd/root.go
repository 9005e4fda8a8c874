package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ticketbot/internal/bootstrap/logging"
	"ticketbot/internal/errs"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:          "ticketbot",
	Short:        "Discord ticket lifecycle manager",
	Long:         "Opens, closes and lists support tickets backed by private Discord channels.",
	SilenceUsage: true,
}

// Execute runs the root command. Each invocation carries its own request_id.
func Execute(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	logger := logging.New(rootCmd.ErrOrStderr(), "text", "info")
	ctx = logging.WithLogger(ctx, logger)
	ctx = logging.WithAttrs(ctx,
		slog.String("app", "ticketbot"),
		slog.String("request_id", uuid.NewString()),
	)

	rootCmd.SetContext(ctx)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Error(ctx, "command execution failed", slog.Any("err", errs.Loggable(err)))
		return errs.Wrap(err, "execute root command")
	}

	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "configs/config.yaml", "Config file path")
}
