// Package config provides configuration management for the matching engine.
// This file contains the lightweight configuration for standalone operation.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hla-matching-engine/internal/domain"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases: dictionaries live in a local SQLite file and
// nomenclature releases are read from a local directory.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for the metadata database and releases

	// Cache settings
	ResidentVersions int           // Dictionaries kept in memory
	ActiveVersionTTL time.Duration // How long the active version pointer is trusted

	// Generation
	AutoActivate bool // Activate a version as soon as it is generated

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".hla-engine")

	return &LiteConfig{
		DataDir:          dataDir,
		ResidentVersions: 2,
		ActiveVersionTTL: 30 * time.Second,
		AutoActivate:     true,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("HLA_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("HLA_RESIDENT_VERSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ResidentVersions = n
		}
	}
	if v := os.Getenv("HLA_ACTIVE_VERSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ActiveVersionTTL = d
		}
	}

	if v := os.Getenv("HLA_AUTO_ACTIVATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AutoActivate = b
		}
	}

	if v := os.Getenv("HLA_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("HLA_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// MetadataDBPath returns the path to the SQLite metadata database.
func (c *LiteConfig) MetadataDBPath() string {
	return filepath.Join(c.DataDir, "metadata.db")
}

// NomenclatureDir returns the directory holding one sub-directory per release.
func (c *LiteConfig) NomenclatureDir() string {
	return filepath.Join(c.DataDir, "nomenclature")
}

// EnsureDataDir creates the data directories if they don't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.NomenclatureDir(), 0755)
}

// Config expands the lite settings into a full configuration.
func (c *LiteConfig) Config() *domain.Config {
	return &domain.Config{
		Environment: "standalone",
		Nomenclature: domain.NomenclatureConfig{
			Source:           SourceDirectory,
			Directory:        c.NomenclatureDir(),
			ResidentDatasets: 1,
		},
		Storage: domain.StorageConfig{
			Backend:    BackendSQLite,
			SQLitePath: c.MetadataDBPath(),
		},
		Cache: domain.CacheConfig{
			ResidentVersions: c.ResidentVersions,
			ActiveVersionTTL: c.ActiveVersionTTL,
		},
		Scoring: domain.ScoringConfig{
			ExcludedLoci: []string{string(domain.LocusDPB1)},
		},
		Generation: domain.GenerationConfig{
			AutoActivate: c.AutoActivate,
		},
		Logging: domain.LoggingConfig{
			Level:  c.LogLevel,
			Format: c.LogFormat,
			Output: "stderr",
		},
	}
}
