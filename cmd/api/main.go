package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"spendguard/internal/infrastructure"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := infrastructure.Bootstrap(ctx)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	slog.Info("spendguard is running")

	if err := app.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("spendguard stopped")
}
