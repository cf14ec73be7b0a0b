// Package setup assembles the matching engine from configuration and exposes it on the
// command line.
package setup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/hla-matching-engine/internal/config"
	"github.com/hla-matching-engine/internal/database"
	"github.com/hla-matching-engine/internal/dictionary"
	"github.com/hla-matching-engine/internal/domain"
	"github.com/hla-matching-engine/internal/health"
	"github.com/hla-matching-engine/internal/lookup"
	"github.com/hla-matching-engine/internal/metrics"
	"github.com/hla-matching-engine/internal/nomenclature"
	"github.com/hla-matching-engine/internal/repository"
	"github.com/hla-matching-engine/internal/service"
)

// Latencies above these raise a health warning.
const (
	databaseMaxLatency = 500 * time.Millisecond
	redisMaxLatency    = 100 * time.Millisecond
)

// Engine is a fully wired matching engine together with the resources it owns.
type Engine struct {
	Config   *domain.Config
	Logger   *logrus.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Collectors
	Service  *service.MatchingService
	Versions domain.VersionStore

	health  *health.HealthChecker
	closers []func() error
}

// NewEngine builds the nomenclature source, the metadata and version stores, the
// dictionary generator and the lookup layer described by cfg. On error every
// resource opened so far is released.
func NewEngine(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (*Engine, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	e := &Engine{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  metrics.New(reg),
		health:   health.NewHealthChecker(health.DefaultTimeout, logger),
	}
	if err := e.wire(ctx); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) wire(ctx context.Context) error {
	cfg := e.Config

	source, err := NewSource(ctx, cfg.Nomenclature, e.Logger)
	if err != nil {
		return err
	}
	store, versions, err := e.openStores(ctx)
	if err != nil {
		return err
	}
	e.Versions = versions

	repo, err := nomenclature.NewRepository(source, cfg.Nomenclature.ResidentDatasets, e.Logger, e.Metrics)
	if err != nil {
		return err
	}
	generator, err := dictionary.NewGenerator(repo, store, versions, cfg.Generation, e.Logger, e.Metrics)
	if err != nil {
		return err
	}
	dictionaries, err := lookup.NewDictionaryCache(store, versions, cfg.Cache.ResidentVersions, e.Logger)
	if err != nil {
		return err
	}
	active := lookup.NewActiveVersionAccessor(versions, cfg.Cache.ActiveVersionTTL, e.Logger, e.Metrics)
	lookups := lookup.NewService(dictionaries, active, e.Logger, e.Metrics)

	svc, err := service.NewMatchingService(generator, lookups, cfg, e.Logger, e.Metrics)
	if err != nil {
		return err
	}
	e.Service = svc
	return nil
}

// NewSource creates the nomenclature source selected by cfg.Source.
func NewSource(ctx context.Context, cfg domain.NomenclatureConfig, logger *logrus.Logger) (domain.NomenclatureSource, error) {
	switch cfg.Source {
	case config.SourceDirectory:
		return nomenclature.NewDirectorySource(cfg.Directory, logger), nil
	case config.SourceHTTP:
		return nomenclature.NewHTTPSource(cfg, logger), nil
	case config.SourceS3:
		return nomenclature.NewS3Source(ctx, cfg.S3, logger)
	default:
		return nil, fmt.Errorf("invalid nomenclature source: %q", cfg.Source)
	}
}

// openStores opens the metadata and version stores of the configured backend and,
// when Redis is enabled, fronts the metadata store with the shared cache.
func (e *Engine) openStores(ctx context.Context) (domain.MetadataStore, domain.VersionStore, error) {
	cfg := e.Config
	var (
		store    domain.MetadataStore
		versions domain.VersionStore
	)

	switch cfg.Storage.Backend {
	case config.BackendMemory:
		mem := repository.NewMemoryStore()
		store, versions = mem, mem

	case config.BackendSQLite:
		lite, err := repository.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		e.closers = append(e.closers, lite.Close)
		e.health.RegisterCheck(&health.PingCheck{Component: "metadata_database", Ping: lite.Ping, MaxLatency: databaseMaxLatency})
		store, versions = lite, lite

	case config.BackendPostgres:
		dbConfig := database.ConfigFrom(cfg.Database)
		migrationsPath := cfg.Database.MigrationsPath
		if migrationsPath == "" {
			migrationsPath = database.DefaultMigrationsPath
		}
		if err := database.Migrate(ctx, dbConfig.URL(), migrationsPath, e.Logger); err != nil {
			return nil, nil, err
		}
		db, err := database.NewConnection(ctx, dbConfig, e.Logger)
		if err != nil {
			return nil, nil, err
		}
		e.closers = append(e.closers, func() error { db.Close(); return nil })

		pgVersions, err := repository.NewPostgresVersionStoreFromURL(dbConfig.URL())
		if err != nil {
			return nil, nil, err
		}
		e.closers = append(e.closers, pgVersions.Close)
		e.health.RegisterCheck(&health.PingCheck{Component: "metadata_database", Ping: db.Health, MaxLatency: databaseMaxLatency})
		e.health.RegisterCheck(&health.PingCheck{Component: "version_database", Ping: pgVersions.Ping, MaxLatency: databaseMaxLatency})
		store, versions = repository.NewPostgresMetadataStore(db.Pool, e.Logger), pgVersions

	default:
		return nil, nil, fmt.Errorf("invalid storage backend: %q", cfg.Storage.Backend)
	}

	if cfg.Cache.RedisEnabled {
		client, err := repository.NewRedisClient(ctx, cfg.Cache)
		if err != nil {
			return nil, nil, err
		}
		e.closers = append(e.closers, client.Close)
		e.health.RegisterCheck(&health.PingCheck{
			Component:  "redis",
			Ping:       func(ctx context.Context) error { return client.Ping(ctx).Err() },
			MaxLatency: redisMaxLatency,
		})
		store = repository.NewRedisCachedStore(store, client, cfg.Cache.DefaultTTL, e.Logger)
	}

	e.health.RegisterCheck(&health.PingCheck{
		Component: "version_store",
		Ping: func(ctx context.Context) error {
			_, err := versions.ActiveVersion(ctx)
			return err
		},
		Warn: func(err error) bool { return errors.Is(err, domain.ErrNoActiveVersion) },
	})
	if cfg.Nomenclature.Source == config.SourceDirectory {
		dir := cfg.Nomenclature.Directory
		e.health.RegisterCheck(&health.PingCheck{
			Component: "nomenclature_source",
			Ping: func(context.Context) error {
				_, err := os.Stat(dir)
				return err
			},
		})
	}

	e.Logger.WithFields(logrus.Fields{
		"backend": cfg.Storage.Backend,
		"redis":   cfg.Cache.RedisEnabled,
	}).Debug("Metadata storage opened")
	return store, versions, nil
}

// EnsureVersion generates version unless it is already ready. It reports whether a
// generation ran.
func (e *Engine) EnsureVersion(ctx context.Context, version string) (bool, error) {
	ready, err := e.Versions.IsReady(ctx, version)
	if err != nil {
		return false, err
	}
	if ready {
		return false, nil
	}
	if _, err := e.Service.GenerateDictionary(ctx, version); err != nil {
		return false, err
	}
	return true, nil
}

// Health runs the component checks of the configured stores.
func (e *Engine) Health(ctx context.Context) *health.HealthStatus {
	return e.health.Run(ctx)
}

// WriteMetrics dumps the engine metrics in the Prometheus text format.
func (e *Engine) WriteMetrics(path string) error {
	return prometheus.WriteToTextfile(path, e.Registry)
}

// Close releases every resource opened by the engine, newest first.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// Status summarises the engine configuration and its active version.
type Status struct {
	Environment      string   `json:"environment"`
	ConfigFile       string   `json:"config_file,omitempty"`
	Source           string   `json:"source"`
	SourceLocation   string   `json:"source_location"`
	Backend          string   `json:"backend"`
	RedisEnabled     bool     `json:"redis_enabled"`
	ActiveVersion    string   `json:"active_version,omitempty"`
	ResidentVersions int      `json:"resident_versions"`
	ExcludedLoci     []string `json:"excluded_loci"`
	Issues           []string `json:"issues,omitempty"`
}

// GetStatus reports the engine state. A missing active version or an unreachable
// source directory is reported as an issue rather than an error.
func (e *Engine) GetStatus(ctx context.Context, configFile string) (*Status, error) {
	cfg := e.Config
	status := &Status{
		Environment:      cfg.Environment,
		ConfigFile:       configFile,
		Source:           cfg.Nomenclature.Source,
		SourceLocation:   sourceLocation(cfg.Nomenclature),
		Backend:          cfg.Storage.Backend,
		RedisEnabled:     cfg.Cache.RedisEnabled,
		ResidentVersions: cfg.Cache.ResidentVersions,
		ExcludedLoci:     cfg.Scoring.ExcludedLoci,
	}

	active, err := e.Versions.ActiveVersion(ctx)
	switch {
	case err == nil:
		status.ActiveVersion = active
	case errors.Is(err, domain.ErrNoActiveVersion):
		status.Issues = append(status.Issues, "no nomenclature version is active; run generate first")
	default:
		return nil, err
	}

	if cfg.Nomenclature.Source == config.SourceDirectory {
		if _, err := os.Stat(cfg.Nomenclature.Directory); err != nil {
			status.Issues = append(status.Issues, fmt.Sprintf("nomenclature directory %s is not readable", cfg.Nomenclature.Directory))
		}
	}
	return status, nil
}

func sourceLocation(cfg domain.NomenclatureConfig) string {
	switch cfg.Source {
	case config.SourceDirectory:
		return cfg.Directory
	case config.SourceHTTP:
		if cfg.BaseURL == "" {
			return nomenclature.DefaultBaseURL
		}
		return cfg.BaseURL
	case config.SourceS3:
		return fmt.Sprintf("s3://%s/%s", cfg.S3.Bucket, cfg.S3.Prefix)
	}
	return ""
}
