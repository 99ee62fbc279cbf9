package main

import (
	"context"
	"log"
	"time"

	"github.com/aysenurcaglar/snake-oil-game/internal/config"
	"github.com/aysenurcaglar/snake-oil-game/internal/db"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}
	cfg := config.Load()

	conn, err := db.Open(
		cfg.DatabaseURL,
		cfg.DBMaxOpenConns,
		cfg.DBMaxIdleConns,
		time.Duration(cfg.DBConnMaxLifetimeSeconds)*time.Second,
	)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	if err := db.Migrate(conn); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}

	store := db.NewSessionStore(conn, nil, nil)
	inserted, err := store.SeedCatalogs(context.Background())
	if err != nil {
		log.Fatalf("failed to seed catalogs: %v", err)
	}
	log.Printf("seeded %d catalog entries", inserted)
}
