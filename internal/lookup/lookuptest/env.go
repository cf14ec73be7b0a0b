// Package lookuptest wires a lookup service over generated fixture dictionaries.
package lookuptest

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/hla-matching-engine/internal/dictionary"
	"github.com/hla-matching-engine/internal/domain"
	"github.com/hla-matching-engine/internal/lookup"
	"github.com/hla-matching-engine/internal/metrics"
	"github.com/hla-matching-engine/internal/nomenclature"
	"github.com/hla-matching-engine/internal/nomenclature/nomenclaturetest"
	"github.com/hla-matching-engine/internal/repository"
)

// Env is a lookup service backed by an in-memory store.
type Env struct {
	Logger       *logrus.Logger
	Metrics      *metrics.Collectors
	Store        *repository.MemoryStore
	Repository   *nomenclature.Repository
	Generator    *dictionary.Generator
	Dictionaries *lookup.DictionaryCache
	Active       *lookup.ActiveVersionAccessor
	Service      *lookup.Service
}

// New generates the fixture release under each version and activates the first one.
func New(t testing.TB, m *metrics.Collectors, versions ...string) *Env {
	t.Helper()
	if len(versions) == 0 {
		versions = []string{nomenclaturetest.Version}
	}
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	store := repository.NewMemoryStore()
	repo, err := nomenclature.NewRepository(nomenclaturetest.SourceAs(versions...), len(versions), logger, m)
	require.NoError(t, err)
	gen, err := dictionary.NewGenerator(repo, store, store, domain.GenerationConfig{}, logger, m)
	require.NoError(t, err)
	for _, v := range versions {
		_, err := gen.Generate(context.Background(), v)
		require.NoError(t, err)
	}

	dictionaries, err := lookup.NewDictionaryCache(store, store, len(versions), logger)
	require.NoError(t, err)
	active := lookup.NewActiveVersionAccessor(store, time.Minute, logger, m)
	svc := lookup.NewService(dictionaries, active, logger, m)
	require.NoError(t, svc.Activate(context.Background(), versions[0]))

	return &Env{
		Logger:       logger,
		Metrics:      m,
		Store:        store,
		Repository:   repo,
		Generator:    gen,
		Dictionaries: dictionaries,
		Active:       active,
		Service:      svc,
	}
}

// Pin pins the active version.
func (e *Env) Pin(t testing.TB) *lookup.Pinned {
	t.Helper()
	p, err := e.Service.Pin(context.Background(), "")
	require.NoError(t, err)
	return p
}
