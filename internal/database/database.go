package database

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	// cgo-free driver registered as "sqlite"
	_ "modernc.org/sqlite"
)

type Config struct {
	DSN          string
	MaxOpenConns int
	// Silent disables gorm's own statement logging.
	Silent bool
	Logger *zap.Logger
}

func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func Connect(cfg Config) (*gorm.DB, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	gormCfg := &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  gormlogger.Default.LogMode(gormlogger.Warn),
	}
	if cfg.Silent {
		gormCfg.Logger = gormlogger.Default.LogMode(gormlogger.Silent)
	}

	var (
		db  *gorm.DB
		err error
	)
	if IsPostgres(cfg.DSN) {
		log.Info("connecting to postgres")
		db, err = gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	} else {
		log.Info("using sqlite", zap.String("dsn", cfg.DSN))
		db, err = gorm.Open(
			gormsqlite.New(gormsqlite.Config{
				DriverName: "sqlite",
				DSN:        cfg.DSN,
			}),
			gormCfg,
		)
	}
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	return db, nil
}
