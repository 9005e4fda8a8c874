package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"ticketbot/internal/bootstrap/config"
	"ticketbot/internal/bootstrap/logging"
	"ticketbot/internal/errs"
	"ticketbot/internal/infrastructure/persistence/relational/model"
)

type App struct {
	Config config.Config
	DB     *gorm.DB
}

// InitSchema creates or upgrades the tickets and kv_cache tables.
func (a *App) InitSchema(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))
	logging.Info(logCtx, "start schema migration")

	if err := a.DB.WithContext(ctx).AutoMigrate(model.All()...); err != nil {
		return errs.As(errs.KindStore, err, "auto migrate schema")
	}

	logging.Info(logCtx, "schema migration completed")
	return nil
}
