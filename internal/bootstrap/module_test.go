package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/fx"

	"ticketbot/internal/bootstrap/config"
	"ticketbot/internal/bootstrap/database"
	"ticketbot/internal/usecase/access"
	ticketusecase "ticketbot/internal/usecase/ticket"
)

func TestModuleGraphIsComplete(t *testing.T) {
	err := fx.ValidateApp(
		Module,
		fx.Provide(func() context.Context { return context.Background() }),
		fx.Provide(
			fx.Annotate(
				func() string { return "" },
				fx.ResultTags(`name:"configFile"`),
			),
		),
		fx.Invoke(func(*App, *ticketusecase.Service, *access.Authorizer) {}),
	)
	if err != nil {
		t.Fatalf("ValidateApp() error = %v", err)
	}
}

func TestInitSchemaCreatesTables(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "nested", "tickets.sqlite"),
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	app := &App{DB: db}
	if err := app.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}
	if err := app.InitSchema(ctx); err != nil {
		t.Fatalf("second InitSchema() error = %v", err)
	}

	for _, table := range []string{"tickets", "kv_cache"} {
		if !db.Migrator().HasTable(table) {
			t.Fatalf("table %s missing after InitSchema", table)
		}
	}
}
