// Package bootstrap holds the start-up steps every comanda binary shares.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/comanda-backend/pkg/config"
	"github.com/angelmondragon/comanda-backend/pkg/db"
	"github.com/angelmondragon/comanda-backend/pkg/logger"
	"github.com/angelmondragon/comanda-backend/pkg/migrate"
)

// Load reads .env when present, then the environment, and returns a logger
// configured from it. The returned logger is usable even when err is set.
func Load(service string) (*config.Config, *logger.Logger, error) {
	logg := logger.New(logger.Options{ServiceName: service})
	if err := godotenv.Load(); err != nil {
		logg.Debug(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, logg, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = service
	return cfg, LoggerFor(cfg, service), nil
}

// LoggerFor builds the service logger from the app settings.
func LoggerFor(cfg *config.Config, service string) *logger.Logger {
	return logger.New(logger.Options{
		ServiceName: service,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
}

// OpenDB connects and applies dev migrations when enabled. The caller owns Close.
func OpenDB(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*db.Client, error) {
	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	if err := migrate.MaybeRunDev(ctx, cfg, logg, client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("dev migrations: %w", err)
	}
	return client, nil
}

// BaseContext tags every entry with the environment and service kind.
func BaseContext(ctx context.Context, cfg *config.Config, logg *logger.Logger) context.Context {
	return logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"service_kind": cfg.Service.Kind,
	})
}

// CloseWith logs a failed Close instead of dropping it.
func CloseWith(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", name), "close failed", err)
	}
}
