/*
Package config loads runtime configuration from the environment.

A .env file is loaded when present (development convenience); real
deployments set the variables directly. Every value has a default that
yields a working single-node setup with SQLite and no Redis.
*/
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	DBDriver string // "sqlite" or "postgres"

	SQLitePath  string
	DatabaseURL string

	RedisAddr     string // empty disables the summary cache
	RedisPassword string
	RedisDB       int

	SummaryTTL     time.Duration
	AllowedOrigins []string
}

// AgentConfig configures the POS till agent.
type AgentConfig struct {
	ServerURL string
	ShopID    string
	DeviceID  string
	ActorID   string
	QueuePath string

	SyncInterval time.Duration
	Retention    time.Duration
}

// Load reads server configuration, preferring .env when present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:        getEnv("PORT", "8080"),
		DBDriver:    getEnv("DB_DRIVER", "sqlite"),
		SQLitePath:  getEnv("SQLITE_PATH", "./data/shopledger.db"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		SummaryTTL:     time.Duration(getEnvInt("SUMMARY_TTL_SECONDS", 30)) * time.Second,
		AllowedOrigins: []string{getEnv("ALLOWED_ORIGINS", "http://localhost:5173")},
	}
}

// LoadAgent reads POS agent configuration.
func LoadAgent() AgentConfig {
	_ = godotenv.Load()

	return AgentConfig{
		ServerURL: getEnv("SERVER_URL", "http://localhost:8080"),
		ShopID:    getEnv("SHOP_ID", ""),
		DeviceID:  getEnv("DEVICE_ID", ""),
		ActorID:   getEnv("ACTOR_ID", ""),
		QueuePath: getEnv("QUEUE_PATH", "./data/queue.db"),

		SyncInterval: time.Duration(getEnvInt("SYNC_INTERVAL_SECONDS", 30)) * time.Second,
		Retention:    time.Duration(getEnvInt("RETENTION_DAYS", 7)) * 24 * time.Hour,
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
