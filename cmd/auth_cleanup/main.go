package main

import (
	"context"
	"log"
	"time"

	"gameauth/internal/app"
	"gameauth/internal/config"
	"gameauth/internal/database"
	"gameauth/internal/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg := logger.New(cfg.LogLevel, cfg.AppEnv)
	defer func() { _ = lg.Sync() }()

	db, err := database.Connect(database.Config{DSN: cfg.DatabaseURL, MaxOpenConns: 1, Logger: lg})
	if err != nil {
		lg.Fatal("db connect failed", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	refresh, err := app.NewLedger(cfg, db, lg)
	if err != nil {
		lg.Fatal("ledger init failed", zap.Error(err))
	}
	tokens, err := refresh.PurgeSpent(ctx, cfg.SpentTokenRetention)
	if err != nil {
		lg.Fatal("cleanup jwt_tokens failed", zap.Error(err))
	}

	history, err := app.NewRecorder(db, lg).Prune(ctx, cfg.SessionHistoryRetention)
	if err != nil {
		lg.Fatal("cleanup session_history failed", zap.Error(err))
	}

	lg.Info("auth cleanup completed",
		zap.Int64("jwt_tokens", tokens),
		zap.Int64("session_history", history),
	)
}
