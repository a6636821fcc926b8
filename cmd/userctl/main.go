// Command userctl inspects users and manages bans.
//
//	userctl show <user_id>
//	userctl ban <user_id> [reason]
//	userctl unban <user_id>
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gameauth/internal/config"
	"gameauth/internal/database"
	"gameauth/internal/modules/users"
	"gameauth/internal/pkg/logger"
	"gameauth/internal/repository"

	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: userctl show|ban|unban <user_id> [reason]")
		os.Exit(2)
	}
	cmd, userID := os.Args[1], os.Args[2]
	reason := strings.Join(os.Args[3:], " ")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg := logger.New(cfg.LogLevel, cfg.AppEnv)
	defer func() { _ = lg.Sync() }()

	db, err := database.Connect(database.Config{DSN: cfg.DatabaseURL, MaxOpenConns: 1, Silent: true, Logger: lg})
	if err != nil {
		lg.Fatal("db connect failed", zap.Error(err))
	}
	dir := users.NewDirectory(repository.NewUserRepository(db), users.WithLogger(lg))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {
	case "show":
		u, err := dir.FindByID(ctx, userID)
		if err != nil {
			lg.Fatal("lookup failed", zap.String("user_id", userID), zap.Error(err))
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(u)
	case "ban", "unban":
		// existing refresh tokens stop working at their next use
		u, err := dir.SetBan(ctx, userID, cmd == "ban", reason)
		if err != nil {
			lg.Fatal(cmd+" failed", zap.String("user_id", userID), zap.Error(err))
		}
		lg.Info("ban state updated", zap.String("user_id", u.UserID), zap.Bool("banned", u.IsBanned))
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		os.Exit(2)
	}
}
