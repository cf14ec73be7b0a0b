package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hla-matching-engine/internal/domain"
	"github.com/hla-matching-engine/internal/lookup/lookuptest"
	"github.com/hla-matching-engine/internal/metrics"
	"github.com/hla-matching-engine/internal/service"
)

func newMatchingService(t *testing.T, env *lookuptest.Env, cfg *domain.Config) *service.MatchingService {
	t.Helper()
	if cfg == nil {
		cfg = &domain.Config{}
	}
	svc, err := service.NewMatchingService(env.Generator, env.Service, cfg, env.Logger, env.Metrics)
	require.NoError(t, err)
	return svc
}

func phenotype(overrides map[domain.Locus]domain.LocusTyping) map[domain.Locus]domain.LocusTyping {
	hla := map[domain.Locus]domain.LocusTyping{
		domain.LocusA:    {Position1: "01:01:01:01", Position2: "02:01:01:01"},
		domain.LocusB:    {Position1: "07:02:01:01", Position2: "08:01:01:01"},
		domain.LocusC:    {Position1: "01:02:01:01", Position2: "07:01:01:01"},
		domain.LocusDPB1: {Position1: "01:01:01:01", Position2: "04:01:01:01"},
		domain.LocusDQB1: {Position1: "02:01:01", Position2: "03:01:01:01"},
		domain.LocusDRB1: {Position1: "01:01:01:01", Position2: "15:01:01:01"},
	}
	for locus, typing := range overrides {
		if typing == (domain.LocusTyping{}) {
			delete(hla, locus)
			continue
		}
		hla[locus] = typing
	}
	return hla
}

func resultIDs(results []*domain.SearchResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.DonorID
	}
	return ids
}

func TestMatchingService_Search(t *testing.T) {
	env := lookuptest.New(t, metrics.New(prometheus.NewRegistry()))
	svc := newMatchingService(t, env, nil)

	patient := domain.PatientTyping{PatientID: "p-1", Hla: phenotype(nil)}
	donors := service.StaticDonorSource{
		{DonorID: "mismatch", Hla: phenotype(map[domain.Locus]domain.LocusTyping{
			domain.LocusA: {Position1: "01:01:01:01", Position2: "03:01:01:01"},
		})},
		{DonorID: "untyped", Hla: phenotype(map[domain.Locus]domain.LocusTyping{
			domain.LocusDQB1: {},
		})},
		{DonorID: "exact", Hla: phenotype(map[domain.Locus]domain.LocusTyping{
			domain.LocusB: {Position1: "07:02", Position2: "08:01:01:01"},
		})},
		{DonorID: "unknown-allele", Hla: phenotype(map[domain.Locus]domain.LocusTyping{
			domain.LocusA: {Position1: "99:01", Position2: "01:01:01:01"},
		})},
		{DonorID: "identical", Hla: phenotype(nil)},
	}

	resp, err := svc.Search(context.Background(), patient, donors)
	require.NoError(t, err)

	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, "3330", resp.NomenclatureVersion)
	assert.Equal(t, []string{"identical", "exact", "untyped", "mismatch"}, resultIDs(resp.Results))
	require.Contains(t, resp.SkippedDonors, "unknown-allele")

	identical := resp.Results[0]
	assert.Equal(t, domain.CategoryDefinite, identical.Aggregate.OverallCategory)
	assert.Equal(t, 10, identical.Aggregate.MatchCount)
	assert.Equal(t, domain.TcePermissive, identical.LocusDetails(domain.LocusDPB1).TceMatchType)
	assert.False(t, identical.LocusDetails(domain.LocusDPB1).IsIncluded)

	assert.Equal(t, domain.CategoryExact, resp.Results[1].Aggregate.OverallCategory)
	assert.Equal(t, domain.CategoryPotential, resp.Results[2].Aggregate.OverallCategory)
	assert.Equal(t, domain.CategoryMismatch, resp.Results[3].Aggregate.OverallCategory)
	assert.Equal(t, 9, resp.Results[3].Aggregate.MatchCount)

	assert.Equal(t, float64(4), testutil.ToFloat64(env.Metrics.DonorsScored))
	assert.Greater(t, testutil.ToFloat64(env.Metrics.GradeMemo.WithLabelValues(metrics.LookupHit)), float64(0))
}

func TestMatchingService_Search_ManyDonors(t *testing.T) {
	env := lookuptest.New(t, nil)
	svc := newMatchingService(t, env, &domain.Config{Scoring: domain.ScoringConfig{MaxConcurrency: 2}})

	donors := make(service.StaticDonorSource, 50)
	for i := range donors {
		donors[i] = domain.DonorTyping{DonorID: fmt.Sprintf("d-%02d", i), Hla: phenotype(nil)}
	}
	resp, err := svc.Search(context.Background(), domain.PatientTyping{PatientID: "p", Hla: phenotype(nil)}, donors)
	require.NoError(t, err)
	require.Len(t, resp.Results, 50)
	assert.Empty(t, resp.SkippedDonors)
	for _, r := range resp.Results {
		assert.Equal(t, domain.CategoryDefinite, r.Aggregate.OverallCategory)
	}
}

func TestMatchingService_Search_Errors(t *testing.T) {
	env := lookuptest.New(t, nil)
	svc := newMatchingService(t, env, nil)
	donors := service.StaticDonorSource{{DonorID: "d", Hla: phenotype(nil)}}

	_, err := svc.Search(context.Background(), domain.PatientTyping{
		PatientID: "p",
		Hla:       phenotype(map[domain.Locus]domain.LocusTyping{domain.LocusB: {Position1: "99:01", Position2: "08:01:01:01"}}),
	}, donors)
	assert.True(t, errors.Is(err, domain.ErrLookupNotFound))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.Search(ctx, domain.PatientTyping{PatientID: "p", Hla: phenotype(nil)}, donors)
	assert.True(t, errors.Is(err, context.Canceled))
}

// failingSource fails after serving its donors.
type failingSource struct {
	service.StaticDonorSource
}

func (f failingSource) ForEachCandidate(ctx context.Context, fn func(domain.DonorTyping) error) error {
	if err := f.StaticDonorSource.ForEachCandidate(ctx, fn); err != nil {
		return err
	}
	return errors.New("donor store unavailable")
}

func TestMatchingService_Search_SourceFailure(t *testing.T) {
	env := lookuptest.New(t, nil)
	svc := newMatchingService(t, env, nil)

	_, err := svc.Search(context.Background(), domain.PatientTyping{PatientID: "p", Hla: phenotype(nil)},
		failingSource{service.StaticDonorSource{{DonorID: "d", Hla: phenotype(nil)}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "donor store unavailable")
}

func TestMatchingService_GradeAndScore(t *testing.T) {
	env := lookuptest.New(t, nil)
	svc := newMatchingService(t, env, nil)

	score, err := svc.GradeAndScore(context.Background(), domain.LocusA, "01:AB", "01:01:01:01", "")
	require.NoError(t, err)
	assert.Equal(t, domain.GradeGDna, score.Grade)
	assert.Equal(t, domain.ConfidencePotential, score.Confidence)

	_, err = svc.GradeAndScore(context.Background(), domain.LocusA, "01:01:01:01", "not-a-typing", "")
	assert.True(t, errors.Is(err, domain.ErrUnrecognizedTyping))
}

func TestMatchingService_Lookups(t *testing.T) {
	env := lookuptest.New(t, nil)
	svc := newMatchingService(t, env, nil)
	ctx := context.Background()

	category, err := svc.Classify("A*01:AB")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryNmdpCode, category)

	m, err := svc.LookupMatching(ctx, domain.LocusA, "01:XX", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"01:01P", "01:02"}, m.MatchingPGroups)

	s, err := svc.LookupScoring(ctx, domain.LocusA, "01:01:01:01", "3330")
	require.NoError(t, err)
	assert.Equal(t, domain.ScoringSingleAllele, s.Kind)

	g, err := svc.LookupTceGroup(ctx, "30:01:01:01", "")
	require.NoError(t, err)
	assert.Equal(t, "1", g)
}

func TestMatchingService_GenerateDictionary(t *testing.T) {
	env := lookuptest.New(t, nil, "3330", "3340")
	svc := newMatchingService(t, env, &domain.Config{Generation: domain.GenerationConfig{AutoActivate: true}})
	ctx := context.Background()

	report, err := svc.GenerateDictionary(ctx, "3340")
	require.NoError(t, err)
	assert.Equal(t, "3340", report.Version)

	active, err := env.Service.ActiveVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "3340", active)

	require.NoError(t, svc.ActivateVersion(ctx, "3330"))
	active, err = env.Service.ActiveVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "3330", active)

	readOnly, err := service.NewMatchingService(nil, env.Service, &domain.Config{}, env.Logger, nil)
	require.NoError(t, err)
	_, err = readOnly.GenerateDictionary(ctx, "3340")
	assert.Error(t, err)
}

func TestNewMatchingService_InvalidScoringConfig(t *testing.T) {
	env := lookuptest.New(t, nil)
	_, err := service.NewMatchingService(env.Generator, env.Service, &domain.Config{
		Scoring: domain.ScoringConfig{GradeWeights: map[string]int{"perfect": 1}},
	}, env.Logger, nil)
	assert.Error(t, err)
}
