package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port              string
	LogLevel          string
	DBDriver          string
	DBConn            string
	AccrualPeriodDays int
	RedisAddr         string
	CacheTTL          time.Duration
	SweepSchedule     string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	period, err := getEnvInt("ACCRUAL_PERIOD_DAYS", 30)
	if err != nil {
		return nil, err
	}
	ttl, err := time.ParseDuration(getEnv("CACHE_TTL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DBDriver:          getEnv("DB_DRIVER", "sqlite3"),
		DBConn:            getEnv("DB_CONN", "loanbook.db"),
		AccrualPeriodDays: period,
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		CacheTTL:          ttl,
		SweepSchedule:     getEnv("SWEEP_SCHEDULE", "@daily"),
	}

	if cfg.AccrualPeriodDays <= 0 {
		return nil, fmt.Errorf("ACCRUAL_PERIOD_DAYS must be positive")
	}
	if cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("CACHE_TTL must be positive")
	}
	switch cfg.DBDriver {
	case "sqlite3", "postgres", "memory":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.DBDriver != "memory" && cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}

	return cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	v, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return i, nil
}
