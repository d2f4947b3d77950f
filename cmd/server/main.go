package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"erpadmin/internal/app/server"
	"erpadmin/internal/platform/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, config.Load()); err != nil {
		logger.Error("server exited", "err", err)
		os.Exit(1)
	}
}
