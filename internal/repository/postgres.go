package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/hla-matching-engine/internal/domain"
)

// PostgresMetadataStore persists generated dictionaries in PostgreSQL. Entries are
// bulk loaded with COPY, which keeps regenerating a large locus fast.
type PostgresMetadataStore struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPostgresMetadataStore creates a store on an open pool. The schema is expected to
// have been migrated.
func NewPostgresMetadataStore(db *pgxpool.Pool, logger *logrus.Logger) *PostgresMetadataStore {
	return &PostgresMetadataStore{
		db:  db,
		log: logger,
	}
}

var metadataColumns = []string{"version", "locus", "method", "lookup_name", "kind", "payload"}

// Persist replaces every entry of a version and locus in one transaction.
func (r *PostgresMetadataStore) Persist(ctx context.Context, version string, locus domain.Locus, entries []domain.MetadataEntry) error {
	rows := make([][]interface{}, 0, len(entries))
	for _, e := range entries {
		enc, err := encodeEntry(e)
		if err != nil {
			return err
		}
		rows = append(rows, []interface{}{version, enc.Locus, enc.Method, enc.LookupName, enc.Kind, enc.Payload})
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		"DELETE FROM metadata_entries WHERE version = $1 AND locus = $2",
		version, string(locus),
	); err != nil {
		return fmt.Errorf("clearing %s@%s: %w", locus, version, err)
	}

	copied, err := tx.CopyFrom(ctx, pgx.Identifier{"metadata_entries"}, metadataColumns, pgx.CopyFromRows(rows))
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"version": version,
			"locus":   locus,
			"error":   err,
		}).Error("Failed to copy metadata entries")
		return fmt.Errorf("copying %s@%s: %w", locus, version, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing %s@%s: %w", locus, version, err)
	}

	r.log.WithFields(logrus.Fields{
		"version": version,
		"locus":   locus,
		"entries": copied,
	}).Debug("Metadata entries persisted")
	return nil
}

// Fetch returns the entries stored under one key, or ErrNotFound.
func (r *PostgresMetadataStore) Fetch(ctx context.Context, version string, locus domain.Locus, method domain.TypingMethod, name string) ([]domain.MetadataEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT locus, method, lookup_name, kind, payload
		FROM metadata_entries
		WHERE version = $1 AND locus = $2 AND method = $3 AND lookup_name = $4
		ORDER BY id`,
		version, string(locus), string(method), name,
	)
	if err != nil {
		return nil, fmt.Errorf("querying metadata: %w", err)
	}
	out, err := collectPgxEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("metadata %s %s*%s@%s: %w", method, locus, name, version, domain.ErrNotFound)
	}
	return out, nil
}

// FetchAll returns every entry of a version in locus order.
func (r *PostgresMetadataStore) FetchAll(ctx context.Context, version string) ([]domain.MetadataEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT locus, method, lookup_name, kind, payload
		FROM metadata_entries
		WHERE version = $1
		ORDER BY id`,
		version,
	)
	if err != nil {
		return nil, fmt.Errorf("querying metadata: %w", err)
	}
	out, err := collectPgxEntries(rows)
	if err != nil {
		return nil, err
	}
	sortByLocus(out)
	return out, nil
}

func collectPgxEntries(rows pgx.Rows) ([]domain.MetadataEntry, error) {
	defer rows.Close()
	var out []domain.MetadataEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning metadata: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
