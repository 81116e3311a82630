package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB wraps both GORM and the underlying sql.DB
type DB struct {
	*sql.DB
	GORM *gorm.DB
}

// NewDB creates a new database connection using GORM
func NewDB(connStr string, debug bool) *DB {
	if connStr == "" {
		log.Fatal().Msg("❌ DATABASE_URL is empty")
	}

	gormDB, err := OpenGORM(connStr, debug)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to open database")
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to get sql.DB")
	}

	// Connection pool settings
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to ping database")
	}

	log.Info().Msg("✅ Database connected (GORM)!")
	return &DB{
		DB:   sqlDB,
		GORM: gormDB,
	}
}

// OpenGORM opens a postgres gorm handle. Driver errors are translated so
// unique violations surface as gorm.ErrDuplicatedKey.
func OpenGORM(connStr string, debug bool) (*gorm.DB, error) {
	logLevel := logger.Warn
	if debug {
		logLevel = logger.Info
	}

	gormDB, err := gorm.Open(postgres.Open(connStr), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return gormDB, nil
}

func (db *DB) Close() error {
	log.Info().Msg("🔌 Closing database connection...")
	return db.DB.Close()
}
