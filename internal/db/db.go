package db

import (
	"errors"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open connects to Postgres and applies connection-pool limits.
func Open(dsn string, maxOpen, maxIdle int, connMaxLifetime time.Duration) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	return conn, nil
}

// Migrate runs GORM auto-migrations for the core tables plus the
// partial unique index that AutoMigrate cannot express.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("db connection is nil")
	}
	if err := conn.AutoMigrate(
		&GameSession{},
		&Round{},
		&Role{},
		&Word{},
		&GameMessage{},
		&GameEvent{},
	); err != nil {
		return err
	}
	if err := conn.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_rounds_open_session ON rounds (session_id) WHERE accepted IS NULL",
	).Error; err != nil {
		return err
	}
	log.Println("database migration complete")
	return nil
}
