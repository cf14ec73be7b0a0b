package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/hla-matching-engine/internal/domain"
	"github.com/hla-matching-engine/internal/scoring"
)

// EnvPrefix prefixes every environment override, e.g. HLA_ENGINE_STORAGE_BACKEND.
const EnvPrefix = "HLA_ENGINE"

// Storage backends and nomenclature sources.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"

	SourceDirectory = "directory"
	SourceHTTP      = "http"
	SourceS3        = "s3"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v      *viper.Viper
	file   string
	config *domain.Config
}

// NewManager loads configuration from config.yaml in the usual search paths, the
// environment and defaults.
func NewManager() (*Manager, error) {
	return NewManagerFromFile("")
}

// NewManagerFromFile loads configuration from an explicit file. An empty path searches
// the default locations and tolerates a missing file.
func NewManagerFromFile(path string) (*Manager, error) {
	m := &Manager{file: path}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.file != "" {
		v.SetConfigFile(m.file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/hla-engine/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if m.file != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file: defaults and environment only.
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Nomenclature defaults
	v.SetDefault("nomenclature.source", SourceDirectory)
	v.SetDefault("nomenclature.directory", DefaultLiteConfig().NomenclatureDir())
	v.SetDefault("nomenclature.base_url", "https://raw.githubusercontent.com/ANHIG/IMGTHLA")
	v.SetDefault("nomenclature.timeout", "60s")
	v.SetDefault("nomenclature.rate_limit", 5)
	v.SetDefault("nomenclature.retry_count", 3)
	v.SetDefault("nomenclature.circuit_breaker.max_requests", 1)
	v.SetDefault("nomenclature.circuit_breaker.interval", "60s")
	v.SetDefault("nomenclature.circuit_breaker.timeout", "30s")
	v.SetDefault("nomenclature.circuit_breaker.failure_threshold", 5)
	v.SetDefault("nomenclature.s3.bucket", "")
	v.SetDefault("nomenclature.s3.prefix", "nomenclature")
	v.SetDefault("nomenclature.s3.region", "us-east-1")
	v.SetDefault("nomenclature.s3.endpoint", "")
	v.SetDefault("nomenclature.s3.path_style", false)
	v.SetDefault("nomenclature.resident_datasets", 1)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "hla_matching")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.migrations_path", "migrations")

	// Storage defaults
	v.SetDefault("storage.backend", BackendSQLite)
	v.SetDefault("storage.sqlite_path", DefaultLiteConfig().MetadataDBPath())

	// Cache defaults
	v.SetDefault("cache.redis_url", "redis://localhost:6379")
	v.SetDefault("cache.redis_enabled", false)
	v.SetDefault("cache.default_ttl", "24h")
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")
	v.SetDefault("cache.resident_versions", 2)
	v.SetDefault("cache.active_version_ttl", "30s")
	v.SetDefault("cache.grade_memo_size", scoring.DefaultGradeMemoSize)

	// Scoring defaults. Weight tables are overlays on the built-in tables, so only
	// overridden grades need configuring.
	v.SetDefault("scoring.excluded_loci", []string{string(domain.LocusDPB1)})
	v.SetDefault("scoring.max_concurrency", 8)
	v.SetDefault("scoring.tce_permissive_mismatch", false)

	// Generation defaults
	v.SetDefault("generation.loci", []string{})
	v.SetDefault("generation.max_concurrency", 3)
	v.SetDefault("generation.auto_activate", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.filename", "")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetNomenclatureConfig returns the nomenclature source configuration
func (m *Manager) GetNomenclatureConfig() *domain.NomenclatureConfig {
	return &m.config.Nomenclature
}

// GetScoringConfig returns the scoring configuration
func (m *Manager) GetScoringConfig() *domain.ScoringConfig {
	return &m.config.Scoring
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	return Validate(m.config)
}

// Validate checks a configuration regardless of where it was loaded from.
func Validate(config *domain.Config) error {
	switch config.Nomenclature.Source {
	case SourceDirectory:
		if config.Nomenclature.Directory == "" {
			return fmt.Errorf("nomenclature directory is required")
		}
	case SourceHTTP:
		if config.Nomenclature.BaseURL == "" {
			return fmt.Errorf("nomenclature base URL is required")
		}
	case SourceS3:
		if config.Nomenclature.S3.Bucket == "" {
			return fmt.Errorf("nomenclature S3 bucket is required")
		}
	default:
		return fmt.Errorf("invalid nomenclature source: %q", config.Nomenclature.Source)
	}

	switch config.Storage.Backend {
	case BackendMemory:
	case BackendSQLite:
		if config.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case BackendPostgres:
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if config.Database.Port <= 0 || config.Database.Port > 65535 {
			return fmt.Errorf("invalid database port: %d", config.Database.Port)
		}
		if config.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	default:
		return fmt.Errorf("invalid storage backend: %q", config.Storage.Backend)
	}

	if config.Cache.RedisEnabled && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when Redis caching is enabled")
	}

	if _, err := scoring.NewAggregator(config.Scoring); err != nil {
		return fmt.Errorf("invalid scoring configuration: %w", err)
	}
	for _, l := range config.Generation.Loci {
		if _, err := domain.ParseLocus(l); err != nil {
			return fmt.Errorf("invalid generation locus: %w", err)
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetRedisConnectionString returns the Redis connection string
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// ConfigFile returns the file the configuration was read from, if any.
func (m *Manager) ConfigFile() string {
	return m.v.ConfigFileUsed()
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}
