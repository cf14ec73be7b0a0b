package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hla-matching-engine/internal/domain"
)

// SQLiteStore is a file-backed MetadataStore and VersionStore for single-node use.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens the database at dbPath, creating the file and schema if needed.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL lets lookups read while a generation run is writing.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS metadata_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version TEXT NOT NULL,
		locus TEXT NOT NULL,
		method TEXT NOT NULL,
		lookup_name TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_metadata_lookup ON metadata_entries(version, locus, method, lookup_name);
	CREATE INDEX IF NOT EXISTS idx_metadata_version ON metadata_entries(version);

	CREATE TABLE IF NOT EXISTS nomenclature_versions (
		version TEXT PRIMARY KEY,
		ready INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := db.Exec(schema)
	return err
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(s scanner) (domain.MetadataEntry, error) {
	var r row
	if err := s.Scan(&r.Locus, &r.Method, &r.LookupName, &r.Kind, &r.Payload); err != nil {
		return domain.MetadataEntry{}, err
	}
	return decodeEntry(r)
}

// Persist replaces every entry of a version and locus in one transaction.
func (s *SQLiteStore) Persist(ctx context.Context, version string, locus domain.Locus, entries []domain.MetadataEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM metadata_entries WHERE version = ? AND locus = ?",
		version, string(locus),
	); err != nil {
		return fmt.Errorf("failed to clear %s@%s: %w", locus, version, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO metadata_entries (version, locus, method, lookup_name, kind, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		r, err := encodeEntry(e)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, version, r.Locus, r.Method, r.LookupName, r.Kind, r.Payload); err != nil {
			return fmt.Errorf("failed to insert %s*%s: %w", r.Locus, r.LookupName, err)
		}
	}
	return tx.Commit()
}

// Fetch returns the entries stored under one key, or ErrNotFound.
func (s *SQLiteStore) Fetch(ctx context.Context, version string, locus domain.Locus, method domain.TypingMethod, name string) ([]domain.MetadataEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT locus, method, lookup_name, kind, payload
		FROM metadata_entries
		WHERE version = ? AND locus = ? AND method = ? AND lookup_name = ?
		ORDER BY id
	`, version, string(locus), string(method), name)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	out, err := collectEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("metadata %s %s*%s@%s: %w", method, locus, name, version, domain.ErrNotFound)
	}
	return out, nil
}

// FetchAll returns every entry of a version in locus order.
func (s *SQLiteStore) FetchAll(ctx context.Context, version string) ([]domain.MetadataEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT locus, method, lookup_name, kind, payload
		FROM metadata_entries
		WHERE version = ?
		ORDER BY id
	`, version)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	out, err := collectEntries(rows)
	if err != nil {
		return nil, err
	}
	sortByLocus(out)
	return out, nil
}

func collectEntries(rows *sql.Rows) ([]domain.MetadataEntry, error) {
	var out []domain.MetadataEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkReady records that a version is fully generated.
func (s *SQLiteStore) MarkReady(ctx context.Context, version string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nomenclature_versions (version, ready, updated_at) VALUES (?, 1, ?)
		ON CONFLICT(version) DO UPDATE SET ready = 1, updated_at = excluded.updated_at
	`, version, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark %s ready: %w", version, err)
	}
	return nil
}

// IsReady reports whether a version is fully generated.
func (s *SQLiteStore) IsReady(ctx context.Context, version string) (bool, error) {
	var ready bool
	err := s.db.QueryRowContext(ctx,
		"SELECT ready FROM nomenclature_versions WHERE version = ?", version,
	).Scan(&ready)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read version %s: %w", version, err)
	}
	return ready, nil
}

// Activate makes a ready version the active one.
func (s *SQLiteStore) Activate(ctx context.Context, version string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var ready bool
	err = tx.QueryRowContext(ctx,
		"SELECT ready FROM nomenclature_versions WHERE version = ?", version,
	).Scan(&ready)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read version %s: %w", version, err)
	}
	if !ready {
		return fmt.Errorf("activating %s: %w", version, domain.ErrVersionNotReady)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE nomenclature_versions SET active = 0 WHERE active = 1"); err != nil {
		return fmt.Errorf("failed to deactivate versions: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE nomenclature_versions SET active = 1, updated_at = ? WHERE version = ?",
		time.Now(), version,
	); err != nil {
		return fmt.Errorf("failed to activate %s: %w", version, err)
	}
	return tx.Commit()
}

// ActiveVersion returns the active version, or ErrNoActiveVersion.
func (s *SQLiteStore) ActiveVersion(ctx context.Context) (string, error) {
	var version string
	err := s.db.QueryRowContext(ctx,
		"SELECT version FROM nomenclature_versions WHERE active = 1 LIMIT 1",
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
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
