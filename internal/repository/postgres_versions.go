package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/hla-matching-engine/internal/domain"
)

// PostgresVersionStore tracks generated and active nomenclature versions in PostgreSQL.
type PostgresVersionStore struct {
	db *sql.DB
}

// NewPostgresVersionStore wraps an open connection. The schema is expected to exist.
func NewPostgresVersionStore(db *sql.DB) (*PostgresVersionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresVersionStore{db: db}, nil
}

// NewPostgresVersionStoreFromURL opens a connection from a postgres:// URL.
func NewPostgresVersionStoreFromURL(databaseURL string) (*PostgresVersionStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Version bookkeeping is low traffic.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresVersionStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// MarkReady records that a version is fully generated.
func (s *PostgresVersionStore) MarkReady(ctx context.Context, version string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nomenclature_versions (version, ready, updated_at)
		VALUES ($1, TRUE, $2)
		ON CONFLICT (version) DO UPDATE SET
			ready = TRUE,
			updated_at = EXCLUDED.updated_at
	`, version, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark %s ready: %w", version, err)
	}
	return nil
}

// IsReady reports whether a version is fully generated.
func (s *PostgresVersionStore) IsReady(ctx context.Context, version string) (bool, error) {
	var ready bool
	err := s.db.QueryRowContext(ctx,
		"SELECT ready FROM nomenclature_versions WHERE version = $1", version,
	).Scan(&ready)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read version %s: %w", version, err)
	}
	return ready, nil
}

// Activate makes a ready version the active one. The version row is locked so a
// concurrent regeneration cannot interleave.
func (s *PostgresVersionStore) Activate(ctx context.Context, version string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var ready bool
	err = tx.QueryRowContext(ctx,
		"SELECT ready FROM nomenclature_versions WHERE version = $1 FOR UPDATE", version,
	).Scan(&ready)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read version %s: %w", version, err)
	}
	if !ready {
		return fmt.Errorf("activating %s: %w", version, domain.ErrVersionNotReady)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE nomenclature_versions SET active = FALSE WHERE active AND version <> $1", version,
	); err != nil {
		return fmt.Errorf("failed to deactivate versions: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE nomenclature_versions SET active = TRUE, updated_at = $2 WHERE version = $1",
		version, time.Now(),
	); err != nil {
		return fmt.Errorf("failed to activate %s: %w", version, err)
	}
	return tx.Commit()
}

// ActiveVersion returns the active version, or ErrNoActiveVersion.
func (s *PostgresVersionStore) ActiveVersion(ctx context.Context) (string, error) {
	var version string
	err := s.db.QueryRowContext(ctx,
		"SELECT version FROM nomenclature_versions WHERE active LIMIT 1",
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNoActiveVersion
	}
	if err != nil {
		return "", fmt.Errorf("failed to read active version: %w", err)
	}
	return version, nil
}

// Ping checks that the database is reachable.
func (s *PostgresVersionStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying connection.
func (s *PostgresVersionStore) Close() error {
	return s.db.Close()
}
