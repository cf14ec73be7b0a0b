package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hla-matching-engine/internal/domain"
)

// MemoryStore is an in-process MetadataStore and VersionStore. It is used by tests and
// by the CLI when no database is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[string]map[domain.Locus][]domain.MetadataEntry
	ready    map[string]bool
	active   string
	persists int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]map[domain.Locus][]domain.MetadataEntry),
		ready:   make(map[string]bool),
	}
}

// Persist replaces the entries of a version and locus.
func (m *MemoryStore) Persist(ctx context.Context, version string, locus domain.Locus, entries []domain.MetadataEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	copied := make([]domain.MetadataEntry, len(entries))
	copy(copied, entries)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[version] == nil {
		m.entries[version] = make(map[domain.Locus][]domain.MetadataEntry)
	}
	m.entries[version][locus] = copied
	m.persists++
	return nil
}

// Fetch returns the entries stored under one key.
func (m *MemoryStore) Fetch(ctx context.Context, version string, locus domain.Locus, method domain.TypingMethod, name string) ([]domain.MetadataEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.MetadataEntry
	for _, e := range m.entries[version][locus] {
		if e.Method == method && e.LookupName == name {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("metadata %s %s*%s@%s: %w", method, locus, name, version, domain.ErrNotFound)
	}
	return out, nil
}

// FetchAll returns every entry of a version in locus order.
func (m *MemoryStore) FetchAll(ctx context.Context, version string) ([]domain.MetadataEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.MetadataEntry
	for _, locus := range domain.AllLoci {
		out = append(out, m.entries[version][locus]...)
	}
	return out, nil
}

// Persists returns the number of Persist calls, for tests.
func (m *MemoryStore) Persists() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.persists
}

// Versions returns the versions that have stored entries.
func (m *MemoryStore) Versions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.entries))
	for v := range m.entries {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// MarkReady records that a version is fully generated.
func (m *MemoryStore) MarkReady(ctx context.Context, version string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready[version] = true
	return nil
}

// IsReady reports whether a version is fully generated.
func (m *MemoryStore) IsReady(ctx context.Context, version string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready[version], nil
}

// Activate makes a ready version the active one.
func (m *MemoryStore) Activate(ctx context.Context, version string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready[version] {
		return fmt.Errorf("activating %s: %w", version, domain.ErrVersionNotReady)
	}
	m.active = version
	return nil
}

// ActiveVersion returns the active version, or ErrNoActiveVersion.
func (m *MemoryStore) ActiveVersion(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == "" {
		return "", domain.ErrNoActiveVersion
	}
	return m.active, nil
}
