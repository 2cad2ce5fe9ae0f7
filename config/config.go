// Package config reads service configuration from environment variables
// with sensible local defaults.
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port              int
	DBPath            string
	BaseCurrency      string
	ProcessorInterval time.Duration
}

// FromEnvironment builds a Config from environment variables, falling back
// to defaults suitable for local development.
func FromEnvironment() *Config {
	cfg := &Config{
		Port:              8080,
		DBPath:            "fintrack.db",
		BaseCurrency:      "USD",
		ProcessorInterval: time.Hour,
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("BASE_CURRENCY"); v != "" {
		cfg.BaseCurrency = v
	}
	if v := os.Getenv("PROCESSOR_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ProcessorInterval = d
		}
	}

	return cfg
}
