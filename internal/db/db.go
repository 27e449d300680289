package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"caex-inspector-backend/config"
	"caex-inspector-backend/internal/model"
)

// Init opens the database, runs migrations and seeds the reference checklist.
func Init(cfg *config.DatabaseConfig, log *logrus.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(dialector(cfg.DSN), &gorm.Config{
		Logger: newLogger(log, cfg.LogSQL),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	if cfg.EnableTracing {
		if err := db.Use(otelgorm.NewPlugin()); err != nil {
			log.WithError(err).Warn("failed to install otelgorm plugin; continuing without tracing")
		}
	}

	log.Info("running database migrations")
	if err := Migrate(db); err != nil {
		return nil, err
	}

	inserted, err := Seed(db)
	if err != nil {
		return nil, err
	}
	if inserted > 0 {
		log.WithField("questions", inserted).Info("reference checklist seeded")
	}

	log.Info("database initialization complete")
	return db, nil
}

// newLogger sends gorm output through logrus. Lookups that find nothing are
// part of the answer upsert and are not logged.
func newLogger(log *logrus.Logger, logSQL bool) logger.Interface {
	level := logger.Warn
	if logSQL {
		level = logger.Info
	}
	return logger.New(log, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}

func dialector(dsn string) gorm.Dialector {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.HasPrefix(dsn, "host=") {
		return postgres.Open(dsn)
	}
	return sqlite.Open(dsn)
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Equipment{},
		&model.Category{},
		&model.Question{},
		&model.Inspection{},
		&model.Answer{},
		&model.Photo{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}
