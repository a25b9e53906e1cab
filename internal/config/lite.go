// Package config provides configuration management for the server binaries.
// This file contains the lightweight configuration for the standalone MCP binary.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/phenodx-server/internal/domain"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir     string // Base directory for data files
	CatalogPath string // Optional: JSON term catalog

	// Cache settings
	CacheMaxItems int // Maximum cached catalog queries

	// Ranking settings
	RankingMode    domain.RankingMode
	RankingURL     string        // Optional: ranking backend base URL
	RankingTimeout time.Duration // Per-request deadline for ranking

	// Transport settings
	Transport string // Transport type: stdio

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".phenodx")

	return &LiteConfig{
		DataDir:       dataDir,
		CacheMaxItems:  1000,
		RankingMode:    domain.RankingModeReference,
		RankingTimeout: 30 * time.Second,
		Transport:      "stdio",
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("PHENODX_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	cfg.CatalogPath = os.Getenv("PHENODX_CATALOG_PATH")

	if v := os.Getenv("PHENODX_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("PHENODX_RANKING_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.RankingTimeout = d
		}
	}

	// A backend URL switches ranking to remote with the reference table as fallback
	if v := os.Getenv("PHENODX_RANKING_URL"); v != "" {
		cfg.RankingURL = v
		cfg.RankingMode = domain.RankingModeRemoteWithFallback
	}
	if v := domain.RankingMode(os.Getenv("PHENODX_RANKING_MODE")); v.IsValid() {
		cfg.RankingMode = v
	}

	if v := os.Getenv("PHENODX_TRANSPORT"); v != "" {
		cfg.Transport = v
	}

	if v := os.Getenv("PHENODX_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PHENODX_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// HistoryDBPath returns the path to the analysis history SQLite database.
func (c *LiteConfig) HistoryDBPath() string {
	return filepath.Join(c.DataDir, "history.db")
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
