package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment  string             `mapstructure:"environment"`
	Nomenclature NomenclatureConfig `mapstructure:"nomenclature"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Scoring      ScoringConfig      `mapstructure:"scoring"`
	Generation   GenerationConfig   `mapstructure:"generation"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// NomenclatureConfig selects where nomenclature files are read from.
type NomenclatureConfig struct {
	Source           string               `mapstructure:"source"` // "directory", "http", "s3"
	Directory        string               `mapstructure:"directory"`
	BaseURL          string               `mapstructure:"base_url"`
	Timeout          time.Duration        `mapstructure:"timeout"`
	RateLimit        int                  `mapstructure:"rate_limit"`
	RetryCount       int                  `mapstructure:"retry_count"`
	CircuitBreaker   CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	S3               S3Config             `mapstructure:"s3"`
	ResidentDatasets int                  `mapstructure:"resident_datasets"`
}

// S3Config locates nomenclature releases in an S3-compatible bucket.
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"` // optional, e.g. MinIO
	PathStyle bool   `mapstructure:"path_style"`
}

// CircuitBreakerConfig represents circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// StorageConfig selects the metadata store backend.
type StorageConfig struct {
	Backend    string `mapstructure:"backend"` // "memory", "sqlite", "postgres"
	SQLitePath string `mapstructure:"sqlite_path"`
}

// CacheConfig represents cache configuration
type CacheConfig struct {
	RedisURL         string        `mapstructure:"redis_url"`
	RedisEnabled     bool          `mapstructure:"redis_enabled"`
	DefaultTTL       time.Duration `mapstructure:"default_ttl"`
	MaxRetries       int           `mapstructure:"max_retries"`
	PoolSize         int           `mapstructure:"pool_size"`
	PoolTimeout      time.Duration `mapstructure:"pool_timeout"`
	ResidentVersions int           `mapstructure:"resident_versions"`
	ActiveVersionTTL time.Duration `mapstructure:"active_version_ttl"`
	GradeMemoSize    int           `mapstructure:"grade_memo_size"`
}

// ScoringConfig holds the weight tables and policies used for aggregation.
// TcePermissiveMismatch lets a mismatch at a TCE-permissive DPB1 locus count as a
// permissive mismatch.
type ScoringConfig struct {
	GradeWeights          map[string]int `mapstructure:"grade_weights"`
	ConfidenceWeights     map[string]int `mapstructure:"confidence_weights"`
	ExcludedLoci          []string       `mapstructure:"excluded_loci"`
	MaxConcurrency        int            `mapstructure:"max_concurrency"`
	TcePermissiveMismatch bool           `mapstructure:"tce_permissive_mismatch"`
}

// GenerationConfig controls dictionary generation.
type GenerationConfig struct {
	Loci           []string `mapstructure:"loci"`
	MaxConcurrency int      `mapstructure:"max_concurrency"`
	AutoActivate   bool     `mapstructure:"auto_activate"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	Filename string `mapstructure:"filename"`
}
