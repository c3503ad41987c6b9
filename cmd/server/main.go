package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"docverify/internal/app"
	"docverify/internal/platform/config"
	"docverify/internal/platform/logger"
)

// main loads configuration, assembles the service and runs it until SIGINT
// or SIGTERM. Business logic lives in the internal service packages.
func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		return 2
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("shutdown incomplete", "error", err)
		}
	}()

	log.Info("starting docverify", "addr", cfg.Addr, "mode", cfg.Mode)
	if err := a.Run(ctx); err != nil {
		log.Error("server stopped", "error", err)
		return 1
	}
	log.Info("docverify stopped")
	return 0
}
