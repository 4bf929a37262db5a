// Package main HTTP-сервис учёта квот рендеров.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/render-ledger/internal/app/ledger"
	"github.com/magabrotheeeer/render-ledger/internal/config"
	"github.com/magabrotheeeer/render-ledger/internal/lib/logger"
	"github.com/magabrotheeeer/render-ledger/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	log := logger.Setup(cfg.Env, os.Stdout)

	log.Info("starting render-ledger", slog.String("env", cfg.Env))
	log.Debug("effective config\n" + cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := ledger.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize app", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		log.Error("app stopped with error", sl.Err(err))
		os.Exit(1)
	}

	log.Info("render-ledger stopped gracefully")
}
