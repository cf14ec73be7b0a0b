package domain

import (
	"context"
)

// NomenclatureSource provides raw line access to the files of a nomenclature release.
// Implementations strip comment lines.
type NomenclatureSource interface {
	ReadLines(ctx context.Context, version, fileName string) ([]string, error)
}

// MetadataStore durably stores generated matching and scoring metadata.
type MetadataStore interface {
	// Persist replaces every entry of the given version and locus.
	Persist(ctx context.Context, version string, locus Locus, entries []MetadataEntry) error
	// Fetch returns the entries stored under one key, or ErrNotFound.
	Fetch(ctx context.Context, version string, locus Locus, method TypingMethod, name string) ([]MetadataEntry, error)
	// FetchAll returns every entry of a version.
	FetchAll(ctx context.Context, version string) ([]MetadataEntry, error)
}

// VersionStore records which nomenclature versions are fully generated and which is active.
type VersionStore interface {
	MarkReady(ctx context.Context, version string) error
	IsReady(ctx context.Context, version string) (bool, error)
	Activate(ctx context.Context, version string) error
	ActiveVersion(ctx context.Context) (string, error)
}

// DonorSource streams candidate donors to be scored. It is lazy and restartable.
type DonorSource interface {
	ForEachCandidate(ctx context.Context, fn func(DonorTyping) error) error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetNomenclatureConfig() *NomenclatureConfig
	GetScoringConfig() *ScoringConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
}
