package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgallion1/ragdoc/internal/app"
	"github.com/dgallion1/ragdoc/internal/config"
	"github.com/dgallion1/ragdoc/internal/logger"
)

func main() {
	cfg, err := config.Load()
	log := logger.New(logger.WithDebug(cfg.LogDebug), logger.WithPretty(cfg.LogPretty))
	if err != nil {
		log.Error("loading configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("initializing", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Serve(ctx); err != nil {
		log.Error("server error", "error", err)
		a.Close()
		os.Exit(1)
	}
}
