package dictionary_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hla-matching-engine/internal/dictionary"
	"github.com/hla-matching-engine/internal/domain"
	"github.com/hla-matching-engine/internal/nomenclature"
	"github.com/hla-matching-engine/internal/nomenclature/nomenclaturetest"
	"github.com/hla-matching-engine/internal/repository"
	"github.com/hla-matching-engine/internal/serology"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func newRepository(t *testing.T, src domain.NomenclatureSource) *nomenclature.Repository {
	t.Helper()
	repo, err := nomenclature.NewRepository(src, 2, testLogger(), nil)
	require.NoError(t, err)
	return repo
}

func loadFixture(t *testing.T) (*nomenclature.Dataset, *serology.Resolver) {
	t.Helper()
	ds, err := newRepository(t, nomenclaturetest.Source()).Load(context.Background(), nomenclaturetest.Version)
	require.NoError(t, err)
	return ds, serology.NewResolver(ds)
}

func TestGenerator_Generate(t *testing.T) {
	store := repository.NewMemoryStore()
	gen, err := dictionary.NewGenerator(newRepository(t, nomenclaturetest.Source()), store, store,
		domain.GenerationConfig{}, testLogger(), nil)
	require.NoError(t, err)

	report, err := gen.Generate(context.Background(), nomenclaturetest.Version)
	require.NoError(t, err)

	_, err = uuid.Parse(report.RunID)
	assert.NoError(t, err)
	assert.Equal(t, nomenclaturetest.Version, report.Version)
	assert.Len(t, report.Loci, len(domain.AllLoci))
	assert.Equal(t, nomenclaturetest.SkippedLines, report.SkippedLines)
	assert.Equal(t, 7, report.TotalSkippedLines())

	a := report.Loci[domain.LocusA]
	assert.Equal(t, 35, a.Matching)
	assert.Equal(t, a.Matching, a.Scoring)
	assert.Zero(t, a.TceGroups)
	assert.Greater(t, report.Loci[domain.LocusDPB1].TceGroups, 0)
	assert.Equal(t, 3, a.AlleleCodes)

	ready, err := store.IsReady(context.Background(), nomenclaturetest.Version)
	require.NoError(t, err)
	assert.True(t, ready)

	entries, err := store.FetchAll(context.Background(), nomenclaturetest.Version)
	require.NoError(t, err)
	assert.Len(t, entries, report.TotalEntries())

	found, err := store.Fetch(context.Background(), nomenclaturetest.Version, domain.LocusA, domain.Molecular, "01:01:01:01")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "matching", found[0].EntryKind())
	assert.Equal(t, "scoring", found[1].EntryKind())

	code, err := store.Fetch(context.Background(), nomenclaturetest.Version, domain.LocusDPB1, domain.Molecular, "AFC")
	require.NoError(t, err)
	require.Len(t, code, 1)
	assert.Equal(t, "allele_code", code[0].EntryKind())
	assert.Equal(t, []string{"01:01", "02:01"}, code[0].AlleleCode.Members)
}

func TestGenerator_IsDeterministic(t *testing.T) {
	generate := func() []domain.MetadataEntry {
		store := repository.NewMemoryStore()
		gen, err := dictionary.NewGenerator(newRepository(t, nomenclaturetest.Source()), store, store,
			domain.GenerationConfig{MaxConcurrency: 6}, testLogger(), nil)
		require.NoError(t, err)
		_, err = gen.Generate(context.Background(), nomenclaturetest.Version)
		require.NoError(t, err)
		entries, err := store.FetchAll(context.Background(), nomenclaturetest.Version)
		require.NoError(t, err)
		return entries
	}

	first := generate()
	second := generate()
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestGenerator_RegenerationReplacesEntries(t *testing.T) {
	store := repository.NewMemoryStore()
	gen, err := dictionary.NewGenerator(newRepository(t, nomenclaturetest.Source()), store, store,
		domain.GenerationConfig{}, testLogger(), nil)
	require.NoError(t, err)

	first, err := gen.Generate(context.Background(), nomenclaturetest.Version)
	require.NoError(t, err)
	second, err := gen.Generate(context.Background(), nomenclaturetest.Version)
	require.NoError(t, err)

	entries, err := store.FetchAll(context.Background(), nomenclaturetest.Version)
	require.NoError(t, err)
	assert.Len(t, entries, first.TotalEntries())
	assert.Equal(t, first.TotalEntries(), second.TotalEntries())
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestGenerator_SelectedLoci(t *testing.T) {
	store := repository.NewMemoryStore()
	gen, err := dictionary.NewGenerator(newRepository(t, nomenclaturetest.Source()), store, store,
		domain.GenerationConfig{Loci: []string{"dpb1", "DR"}}, testLogger(), nil)
	require.NoError(t, err)

	report, err := gen.Generate(context.Background(), nomenclaturetest.Version)
	require.NoError(t, err)
	assert.Len(t, report.Loci, 2)
	assert.Contains(t, report.Loci, domain.LocusDPB1)
	assert.Contains(t, report.Loci, domain.LocusDRB1)
}

func TestNewGenerator_InvalidLocus(t *testing.T) {
	store := repository.NewMemoryStore()
	_, err := dictionary.NewGenerator(newRepository(t, nomenclaturetest.Source()), store, store,
		domain.GenerationConfig{Loci: []string{"DRB3"}}, testLogger(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidLocus)
}

// cancellingLoader cancels the run right after the dataset has been loaded, so the
// cancellation is observed between loci.
type cancellingLoader struct {
	repo   *nomenclature.Repository
	cancel context.CancelFunc
}

func (l *cancellingLoader) Load(_ context.Context, version string) (*nomenclature.Dataset, error) {
	ds, err := l.repo.Load(context.Background(), version)
	l.cancel()
	return ds, err
}

func TestGenerator_CancellationLeavesNothingVisible(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := repository.NewMemoryStore()
	loader := &cancellingLoader{repo: newRepository(t, nomenclaturetest.Source()), cancel: cancel}
	gen, err := dictionary.NewGenerator(loader, store, store, domain.GenerationConfig{MaxConcurrency: 1}, testLogger(), nil)
	require.NoError(t, err)

	_, err = gen.Generate(ctx, nomenclaturetest.Version)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Zero(t, store.Persists())
	ready, err := store.IsReady(context.Background(), nomenclaturetest.Version)
	require.NoError(t, err)
	assert.False(t, ready)
}

type failingStore struct {
	*repository.MemoryStore
	failOn domain.Locus
}

func (f *failingStore) Persist(ctx context.Context, version string, locus domain.Locus, entries []domain.MetadataEntry) error {
	if locus == f.failOn {
		return errors.New("disk full")
	}
	return f.MemoryStore.Persist(ctx, version, locus, entries)
}

func TestGenerator_PersistFailurePreventsReady(t *testing.T) {
	store := &failingStore{MemoryStore: repository.NewMemoryStore(), failOn: domain.LocusDRB1}
	gen, err := dictionary.NewGenerator(newRepository(t, nomenclaturetest.Source()), store, store,
		domain.GenerationConfig{}, testLogger(), nil)
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), nomenclaturetest.Version)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	ready, err := store.IsReady(context.Background(), nomenclaturetest.Version)
	require.NoError(t, err)
	assert.False(t, ready)
}

func TestGenerator_MissingVersion(t *testing.T) {
	store := repository.NewMemoryStore()
	gen, err := dictionary.NewGenerator(newRepository(t, nomenclaturetest.Source()), store, store,
		domain.GenerationConfig{}, testLogger(), nil)
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "9999")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, store.Versions())
}
