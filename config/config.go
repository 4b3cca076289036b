// Package config reads settings from the environment, optionally seeded by a
// .env file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the runtime settings read from the environment.
type Config struct {
	DBPath            string
	HTTPAddr          string
	LogLevel          string
	LogFormat         string
	HeartbeatInterval time.Duration
	ReplenishInterval time.Duration
	ReportInterval    time.Duration
	ReminderInterval  time.Duration
}

// Load reads files (default ".env") into the environment without overriding
// variables that are already set, then builds the Config. Missing files are
// not an error.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds the Config from environment variables alone.
func FromEnv() (*Config, error) {
	cfg := &Config{
		DBPath:    getEnvOrDefault("CRM_DB_DSN", "crm.db"),
		HTTPAddr:  getEnvOrDefault("CRM_HTTP_ADDR", ":8080"),
		LogLevel:  getEnvOrDefault("CRM_LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("CRM_LOG_FORMAT", "console"),
	}
	for _, d := range []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"CRM_HEARTBEAT_INTERVAL", 5 * time.Minute, &cfg.HeartbeatInterval},
		{"CRM_REPLENISH_INTERVAL", 12 * time.Hour, &cfg.ReplenishInterval},
		{"CRM_REPORT_INTERVAL", 7 * 24 * time.Hour, &cfg.ReportInterval},
		{"CRM_REMINDER_INTERVAL", 24 * time.Hour, &cfg.ReminderInterval},
	} {
		v, err := durationOrDefault(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}
	if cfg.LogFormat != "console" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("CRM_LOG_FORMAT: want console or json, got %q", cfg.LogFormat)
	}
	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("CRM_LOG_LEVEL: %w", err)
	}
	return cfg, nil
}

// Logger builds the zap logger described by LogLevel and LogFormat.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func getEnvOrDefault(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

// durationOrDefault parses a Go duration; "0" disables the job it controls.
func durationOrDefault(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative, got %s", key, d)
	}
	return d, nil
}
