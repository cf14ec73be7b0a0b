package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hla-matching-engine/internal/domain"
	"github.com/hla-matching-engine/internal/repository"
)

// metadataStore is the combined contract every backend implements.
type metadataStore interface {
	domain.MetadataStore
	domain.VersionStore
}

var (
	_ metadataStore        = (*repository.MemoryStore)(nil)
	_ metadataStore        = (*repository.SQLiteStore)(nil)
	_ domain.MetadataStore = (*repository.PostgresMetadataStore)(nil)
	_ domain.VersionStore  = (*repository.PostgresVersionStore)(nil)
	_ domain.MetadataStore = (*repository.RedisCachedStore)(nil)
)

func matchingEntry(locus domain.Locus, name string, pGroups ...string) domain.MetadataEntry {
	return domain.MetadataEntry{
		Locus:      locus,
		LookupName: name,
		Method:     domain.Molecular,
		Matching: &domain.MatchingMetadata{
			Locus:           locus,
			LookupName:      name,
			Method:          domain.Molecular,
			MatchingPGroups: pGroups,
		},
	}
}

func scoringEntry(locus domain.Locus, name, gGroup, pGroup string) domain.MetadataEntry {
	return domain.MetadataEntry{
		Locus:      locus,
		LookupName: name,
		Method:     domain.Molecular,
		Scoring: &domain.ScoringMetadata{
			Locus:      locus,
			LookupName: name,
			Method:     domain.Molecular,
			Kind:       domain.ScoringSingleAllele,
			Alleles: []domain.SingleAlleleInfo{{
				AlleleName:     name,
				MatchingGGroup: gGroup,
				MatchingPGroup: pGroup,
				MatchingSerologies: []domain.SerologyEntry{
					{Name: "1", Subtype: domain.SubtypeNotSplit, IsDirectMapping: true},
				},
			}},
		},
	}
}

func tceEntry(name, group string) domain.MetadataEntry {
	return domain.MetadataEntry{
		Locus:      domain.LocusDPB1,
		LookupName: name,
		Method:     domain.Molecular,
		Tce:        &domain.TceGroupEntry{LookupName: name, TceGroup: group},
	}
}

func alleleCodeEntry(locus domain.Locus, code string, members ...string) domain.MetadataEntry {
	return domain.MetadataEntry{
		Locus:      locus,
		LookupName: code,
		Method:     domain.Molecular,
		AlleleCode: &domain.AlleleCodeEntry{Code: code, Members: members},
	}
}

// runMetadataStoreContract exercises the MetadataStore behaviour shared by all backends.
func runMetadataStoreContract(t *testing.T, store domain.MetadataStore) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.Persist(ctx, "3330", domain.LocusDPB1, []domain.MetadataEntry{
		tceEntry("01:01:01:01", "3"),
		alleleCodeEntry(domain.LocusDPB1, "AFC", "01:01", "02:01"),
	}))
	require.NoError(t, store.Persist(ctx, "3330", domain.LocusA, []domain.MetadataEntry{
		matchingEntry(domain.LocusA, "01:01:01:01", "01:01P"),
		scoringEntry(domain.LocusA, "01:01:01:01", "01:01:01G", "01:01P"),
		matchingEntry(domain.LocusA, "01:04N"),
	}))

	t.Run("fetch returns every entry of a key", func(t *testing.T) {
		got, err := store.Fetch(ctx, "3330", domain.LocusA, domain.Molecular, "01:01:01:01")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, []string{"01:01P"}, got[0].Matching.MatchingPGroups)
		require.NotNil(t, got[1].Scoring)
		assert.Equal(t, domain.ScoringSingleAllele, got[1].Scoring.Kind)
		assert.Equal(t, "01:01:01G", got[1].Scoring.Alleles[0].MatchingGGroup)
		assert.True(t, got[1].Scoring.Alleles[0].MatchingSerologies[0].IsDirectMapping)
	})

	t.Run("null allele keeps an empty P group set", func(t *testing.T) {
		got, err := store.Fetch(ctx, "3330", domain.LocusA, domain.Molecular, "01:04N")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, got[0].Matching.IsNullExpressing())
	})

	t.Run("missing key is not found", func(t *testing.T) {
		_, err := store.Fetch(ctx, "3330", domain.LocusA, domain.Serology, "01:01:01:01")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		_, err = store.Fetch(ctx, "3340", domain.LocusA, domain.Molecular, "01:01:01:01")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("fetch all follows locus order", func(t *testing.T) {
		all, err := store.FetchAll(ctx, "3330")
		require.NoError(t, err)
		require.Len(t, all, 5)
		assert.Equal(t, domain.LocusA, all[0].Locus)
		assert.Equal(t, domain.LocusDPB1, all[3].Locus)
		assert.Equal(t, "3", all[3].Tce.TceGroup)
		assert.Equal(t, "AFC", all[4].AlleleCode.Code)
	})

	t.Run("allele codes keep their members", func(t *testing.T) {
		got, err := store.Fetch(ctx, "3330", domain.LocusDPB1, domain.Molecular, "AFC")
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.NotNil(t, got[0].AlleleCode)
		assert.Equal(t, "AFC", got[0].AlleleCode.Code)
		assert.Equal(t, []string{"01:01", "02:01"}, got[0].AlleleCode.Members)
	})

	t.Run("persist replaces a locus", func(t *testing.T) {
		require.NoError(t, store.Persist(ctx, "3330", domain.LocusA, []domain.MetadataEntry{
			matchingEntry(domain.LocusA, "02:01:01:01", "02:01P"),
		}))
		_, err := store.Fetch(ctx, "3330", domain.LocusA, domain.Molecular, "01:01:01:01")
		assert.True(t, errors.Is(err, domain.ErrNotFound))

		all, err := store.FetchAll(ctx, "3330")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("unknown version is empty", func(t *testing.T) {
		all, err := store.FetchAll(ctx, "9999")
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}

// runVersionStoreContract exercises the VersionStore behaviour shared by all backends.
func runVersionStoreContract(t *testing.T, store domain.VersionStore) {
	t.Helper()
	ctx := context.Background()

	_, err := store.ActiveVersion(ctx)
	assert.True(t, errors.Is(err, domain.ErrNoActiveVersion))

	ready, err := store.IsReady(ctx, "3330")
	require.NoError(t, err)
	assert.False(t, ready)

	err = store.Activate(ctx, "3330")
	assert.True(t, errors.Is(err, domain.ErrVersionNotReady))

	require.NoError(t, store.MarkReady(ctx, "3330"))
	require.NoError(t, store.MarkReady(ctx, "3330"))
	require.NoError(t, store.MarkReady(ctx, "3340"))
	ready, err = store.IsReady(ctx, "3330")
	require.NoError(t, err)
	assert.True(t, ready)

	require.NoError(t, store.Activate(ctx, "3330"))
	active, err := store.ActiveVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "3330", active)

	require.NoError(t, store.Activate(ctx, "3340"))
	active, err = store.ActiveVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "3340", active)
}

func TestMemoryStore(t *testing.T) {
	t.Run("metadata", func(t *testing.T) {
		runMetadataStoreContract(t, repository.NewMemoryStore())
	})
	t.Run("versions", func(t *testing.T) {
		runVersionStoreContract(t, repository.NewMemoryStore())
	})
}
