package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/aysenurcaglar/snake-oil-game/internal/config"
	"github.com/aysenurcaglar/snake-oil-game/internal/db"
	"github.com/aysenurcaglar/snake-oil-game/internal/feed"
	"github.com/aysenurcaglar/snake-oil-game/internal/server"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}
	cfg := config.Load()

	var conn *gorm.DB
	if cfg.DatabaseURL != "" {
		opened, err := db.Open(
			cfg.DatabaseURL,
			cfg.DBMaxOpenConns,
			cfg.DBMaxIdleConns,
			time.Duration(cfg.DBConnMaxLifetimeSeconds)*time.Second,
		)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		if err := db.Migrate(opened); err != nil {
			log.Fatalf("database migration failed: %v", err)
		}
		conn = opened
	} else {
		log.Println("DATABASE_URL not set, using in-memory store")
	}

	var bus feed.Feed
	if cfg.NatsURL != "" {
		client, err := feed.Dial(feed.ClientConfig{
			URL:           cfg.NatsURL,
			MaxReconnects: cfg.NatsMaxReconnects,
			ReconnectWait: time.Duration(cfg.NatsReconnectWaitSeconds) * time.Second,
		})
		if err != nil {
			log.Fatalf("nats connection failed: %v", err)
		}
		defer client.Close()
		bus = client
	}

	addr := ":8080"
	if env := os.Getenv("PORT"); env != "" {
		addr = ":" + env
	}

	srv := server.New(conn, bus, cfg)
	log.Printf("snake-oil server listening on %s", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		log.Fatal(err)
	}
}
