package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

type Config struct {
	DatabaseURL              string
	NatsURL                  string
	AdminToken               string
	RoleSampleSize           int
	WordSampleSize           int
	FeedBufferSize           int
	NatsReconnectWaitSeconds int
	NatsMaxReconnects        int
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeSeconds int
}

func Default() Config {
	return Config{
		RoleSampleSize:           2,
		WordSampleSize:           6,
		FeedBufferSize:           32,
		NatsReconnectWaitSeconds: 2,
		NatsMaxReconnects:        -1,
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           10,
		DBConnMaxLifetimeSeconds: 300,
	}
}

func Load() Config {
	cfg := Default()
	if raw := os.Getenv("DATABASE_URL"); raw != "" {
		cfg.DatabaseURL = raw
	}
	if raw := os.Getenv("NATS_URL"); raw != "" {
		cfg.NatsURL = raw
	}
	if raw := os.Getenv("ADMIN_TOKEN"); raw != "" {
		cfg.AdminToken = raw
	}
	if raw := os.Getenv("ROLE_SAMPLE_SIZE"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.RoleSampleSize = value
		}
	}
	if raw := os.Getenv("WORD_SAMPLE_SIZE"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.WordSampleSize = value
		}
	}
	if raw := os.Getenv("FEED_BUFFER_SIZE"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.FeedBufferSize = value
		}
	}
	if raw := os.Getenv("NATS_RECONNECT_WAIT_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.NatsReconnectWaitSeconds = value
		}
	}
	if raw := os.Getenv("NATS_MAX_RECONNECTS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			cfg.NatsMaxReconnects = value
		}
	}
	if raw := os.Getenv("DB_MAX_OPEN_CONNS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBMaxOpenConns = value
		}
	}
	if raw := os.Getenv("DB_MAX_IDLE_CONNS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBMaxIdleConns = value
		}
	}
	if raw := os.Getenv("DB_CONN_MAX_LIFETIME_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBConnMaxLifetimeSeconds = value
		}
	}
	return cfg
}
