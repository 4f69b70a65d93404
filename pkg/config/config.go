// Package config reads process configuration from the environment, after
// loading a local .env file when one exists.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const devJWTSecret = "dev-insecure-secret-change"

type Kafka struct {
	Broker   string
	Topic    string
	Username string
	Password string
	TLS      bool
}

// Enabled reports whether a broker and topic are configured.
func (k Kafka) Enabled() bool {
	return k.Broker != "" && k.Topic != ""
}

type Config struct {
	ServerAddr      string
	DBDriver        string
	DBDSN           string
	DBAutoMigrate   bool
	JWTSecret       []byte
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	RequestTimeout  time.Duration
	LogLevel        slog.Level
	CORSOrigins     []string
	AdminEmail      string
	AdminPassword   string
	Kafka           Kafka
}

// Load reads .env (variables already set in the environment win unless
// ENV_OVERLOAD=1) and then builds a Config from the environment.
func Load() (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		load := godotenv.Load
		if os.Getenv("ENV_OVERLOAD") == "1" {
			load = godotenv.Overload
		}
		if err := load(); err != nil {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv without touching any file.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		ServerAddr:    valueOr(getenv("SERVER_ADDR"), ":8081"),
		DBDriver:      strings.ToLower(valueOr(getenv("DB_DRIVER"), "postgres")),
		DBDSN:         strings.TrimSpace(getenv("DB_DSN")),
		AdminEmail:    valueOr(getenv("ADMIN_EMAIL"), "admin@jababanking.com"),
		AdminPassword: valueOr(getenv("ADMIN_PASSWORD"), "admin123"),
		Kafka: Kafka{
			Broker:   strings.TrimSpace(getenv("KAFKA_BROKER")),
			Topic:    valueOr(getenv("KAFKA_TOPIC"), "ledger-events"),
			Username: getenv("KAFKA_USERNAME"),
			Password: getenv("KAFKA_PASSWORD"),
		},
	}
	if cfg.DBDSN == "" {
		return cfg, fmt.Errorf("DB_DSN is not set")
	}

	secret := getenv("JWT_SECRET")
	if secret == "" {
		secret = devJWTSecret
	}
	cfg.JWTSecret = []byte(secret)

	var err error
	if cfg.DBAutoMigrate, err = boolOr(getenv("DB_AUTO_MIGRATE"), true); err != nil {
		return cfg, fmt.Errorf("DB_AUTO_MIGRATE: %w", err)
	}
	if cfg.Kafka.TLS, err = boolOr(getenv("KAFKA_TLS"), false); err != nil {
		return cfg, fmt.Errorf("KAFKA_TLS: %w", err)
	}
	if cfg.AccessTokenTTL, err = durationOr(getenv("ACCESS_TOKEN_TTL"), 24*time.Hour); err != nil {
		return cfg, fmt.Errorf("ACCESS_TOKEN_TTL: %w", err)
	}
	if cfg.RefreshTokenTTL, err = durationOr(getenv("REFRESH_TOKEN_TTL"), 30*24*time.Hour); err != nil {
		return cfg, fmt.Errorf("REFRESH_TOKEN_TTL: %w", err)
	}
	if cfg.RequestTimeout, err = durationOr(getenv("REQUEST_TIMEOUT"), 10*time.Second); err != nil {
		return cfg, fmt.Errorf("REQUEST_TIMEOUT: %w", err)
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return cfg, fmt.Errorf("LOG_LEVEL: %w", err)
		}
	}
	for _, o := range strings.Split(getenv("CORS_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}
	return cfg, nil
}

// DevSecret reports whether the built-in development JWT secret is in use.
func (c Config) DevSecret() bool {
	return string(c.JWTSecret) == devJWTSecret
}

func valueOr(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

func boolOr(v string, def bool) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return def, nil
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return strconv.ParseBool(v)
}

func durationOr(v string, def time.Duration) (time.Duration, error) {
	if v = strings.TrimSpace(v); v == "" {
		return def, nil
	}
	return time.ParseDuration(v)
}
