package database

import (
	"embed"
	"errors"
	"fmt"

	"gameauth/internal/domain"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Models lists every table owned by the service, in dependency order.
func Models() []any {
	return []any{
		&domain.User{},
		&domain.TokenFamily{},
		&domain.RefreshToken{},
		&domain.SessionHistoryEntry{},
	}
}

// MigrateUp brings the schema to the latest version. Postgres runs the versioned SQL
// migrations; SQLite (local dev and tests) uses gorm AutoMigrate on the same models.
func MigrateUp(db *gorm.DB, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if db.Dialector.Name() != "postgres" {
		if err := db.AutoMigrate(Models()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		log.Info("schema auto-migrated", zap.String("dialect", db.Dialector.Name()))
		return nil
	}

	m, err := newMigrator(db)
	if err != nil {
		return err
	}
	defer m.Close()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("no migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("migrations applied successfully")
	return nil
}

// MigrateDown rolls back the given number of versions (all when steps <= 0). Postgres only.
func MigrateDown(db *gorm.DB, steps int, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if db.Dialector.Name() != "postgres" {
		return fmt.Errorf("migrate down is not supported for %s", db.Dialector.Name())
	}

	m, err := newMigrator(db)
	if err != nil {
		return err
	}
	defer m.Close()

	if steps > 0 {
		err = m.Steps(-steps)
	} else {
		err = m.Down()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("no migrations to rollback")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to rollback migrations: %w", err)
	}
	log.Info("migrations rolled back successfully", zap.Int("steps", steps))
	return nil
}

// Version reports the applied schema version. Postgres only.
func Version(db *gorm.DB) (uint, bool, error) {
	if db.Dialector.Name() != "postgres" {
		return 0, false, fmt.Errorf("schema versions are not tracked for %s", db.Dialector.Name())
	}
	m, err := newMigrator(db)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func newMigrator(db *gorm.DB) (*migrate.Migrate, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	driver, err := migratepg.WithInstance(sqlDB, &migratepg.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}
