package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/welldanyogia/attachmentfx/internal/app"
	"github.com/welldanyogia/attachmentfx/internal/config"
	"github.com/welldanyogia/attachmentfx/internal/database"
	"github.com/welldanyogia/attachmentfx/internal/logger"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("Failed to load .env", slog.Any("error", err))
		os.Exit(1)
	}

	cfg, err := config.LoadWithValidation()
	if err != nil {
		slog.Error("Invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)
	cfg.LogConfig(log)

	slog.Info("Starting attachment server...")

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		slog.Error("Failed to migrate database", slog.Any("error", err))
		os.Exit(1)
	}

	application, err := app.New(cfg, db, log)
	if err != nil {
		slog.Error("Failed to initialize application", slog.Any("error", err))
		os.Exit(1)
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("HTTP server listening", slog.Int("port", cfg.APIPort))
	if err := application.Run(ctx); err != nil {
		slog.Error("Server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("Server stopped")
}
