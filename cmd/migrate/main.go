package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"gameauth/internal/config"
	"gameauth/internal/database"
	"gameauth/internal/pkg/logger"

	"go.uber.org/zap"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: migrate [-steps N] up|down|version\n")
	flag.PrintDefaults()
}

func main() {
	steps := flag.Int("steps", 1, "number of migrations to roll back with down")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}

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

	switch flag.Arg(0) {
	case "up":
		err = database.MigrateUp(db, lg)
	case "down":
		err = database.MigrateDown(db, *steps, lg)
	case "version":
		var (
			v     uint
			dirty bool
		)
		v, dirty, err = database.Version(db)
		if err == nil {
			fmt.Printf("version=%d dirty=%t\n", v, dirty)
		}
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		lg.Fatal("migrate failed", zap.String("command", flag.Arg(0)), zap.Error(err))
	}
}
