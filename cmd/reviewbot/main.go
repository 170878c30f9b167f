package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/app/reviewbotapp"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/config"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/infra/logger"
)

func main() {
	cfgPath := os.Getenv("APP_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log.Level, "reviewbot")
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := reviewbotapp.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("create review bot app", zap.Error(err))
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		log.Fatal("review bot failed", zap.Error(err))
	}
}
