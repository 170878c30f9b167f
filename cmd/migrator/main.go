package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/config"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/infra/logger"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/migrations"
)

func main() {
	statusOnly := flag.Bool("status", false, "print migration status and exit")
	flag.Parse()

	cfgPath := os.Getenv("APP_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log.Level, "migrator")
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = log.Sync()
	}()

	db, err := sql.Open("pgx", cfg.Postgres.DSN)
	if err != nil {
		log.Fatal("open postgres", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if *statusOnly {
		statuses, err := migrations.Status(ctx, db)
		if err != nil {
			log.Fatal("migration status", zap.Error(err))
		}
		for _, s := range statuses {
			log.Info("migration",
				zap.Int64("version", s.Source.Version),
				zap.String("state", string(s.State)),
			)
		}
		return
	}

	if err := migrations.Up(ctx, db, log); err != nil {
		log.Fatal("apply migrations", zap.Error(err))
	}
	log.Info("migrations up to date")
}
