// Package config provides configuration management for the cohort builder.
// This file contains the lightweight configuration for standalone operation.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for data files

	// Schema document
	SchemaPath string // Path to the table/field metadata JSON

	// Cache settings
	CacheMaxItems int           // Maximum items in memory cache
	CacheTTL      time.Duration // Default cache TTL

	// Producer settings
	ProducerURL    string // Optional: filter producer endpoint
	ProducerAPIKey string // Optional: producer API key

	// HTTP settings
	HTTPPort int

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".cohort-builder")

	return &LiteConfig{
		DataDir:       dataDir,
		SchemaPath:    "data/schema.json",
		CacheMaxItems: 512,
		CacheTTL:      10 * time.Minute,
		HTTPPort:      8080,
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("COHORT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("COHORT_SCHEMA_PATH"); v != "" {
		cfg.SchemaPath = v
	}

	if v := os.Getenv("COHORT_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("COHORT_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	cfg.ProducerURL = os.Getenv("COHORT_PRODUCER_URL")
	cfg.ProducerAPIKey = os.Getenv("COHORT_PRODUCER_API_KEY")

	if v := os.Getenv("COHORT_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}

	if v := os.Getenv("COHORT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("COHORT_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// CohortDBPath returns the path to the local cohort SQLite database.
func (c *LiteConfig) CohortDBPath() string {
	return filepath.Join(c.DataDir, "cohorts.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}
