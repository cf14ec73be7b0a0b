package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hla-matching-engine/internal/dictionary"
	"github.com/hla-matching-engine/internal/domain"
	"github.com/hla-matching-engine/internal/lookup"
	"github.com/hla-matching-engine/internal/metrics"
	"github.com/hla-matching-engine/internal/scoring"
	"github.com/hla-matching-engine/pkg/hlatyping"
)

// DefaultSearchConcurrency bounds the donors scored at once by a search.
const DefaultSearchConcurrency = 8

// MatchingService is the entry point of the matching engine: it compiles nomenclature
// releases into dictionaries, resolves typings and scores donors against a patient.
type MatchingService struct {
	generator   *dictionary.Generator
	lookups     *lookup.Service
	aggregator  *scoring.Aggregator
	concurrency int
	memoSize    int
	autoActive  bool
	logger      *logrus.Logger
	metrics     *metrics.Collectors
}

// NewMatchingService creates the service. generator may be nil for read-only deployments.
func NewMatchingService(
	generator *dictionary.Generator,
	lookups *lookup.Service,
	cfg *domain.Config,
	logger *logrus.Logger,
	m *metrics.Collectors,
) (*MatchingService, error) {
	aggregator, err := scoring.NewAggregator(cfg.Scoring)
	if err != nil {
		return nil, fmt.Errorf("invalid scoring configuration: %w", err)
	}
	concurrency := cfg.Scoring.MaxConcurrency
	if concurrency <= 0 {
		concurrency = DefaultSearchConcurrency
	}
	return &MatchingService{
		generator:   generator,
		lookups:     lookups,
		aggregator:  aggregator,
		concurrency: concurrency,
		memoSize:    cfg.Cache.GradeMemoSize,
		autoActive:  cfg.Generation.AutoActivate,
		logger:      logger,
		metrics:     m,
	}, nil
}

// Classify returns the typing category of an HLA name.
func (s *MatchingService) Classify(name string) (domain.TypingCategory, error) {
	return hlatyping.Classify(name)
}

// GenerateDictionary compiles a nomenclature version. With auto activation enabled the
// version becomes active once it is ready.
func (s *MatchingService) GenerateDictionary(ctx context.Context, version string) (*domain.DictionaryGenerationReport, error) {
	if s.generator == nil {
		return nil, errors.New("dictionary generation is not configured")
	}
	report, err := s.generator.Generate(ctx, version)
	if err != nil {
		return nil, err
	}
	s.lookups.Evict(version)
	if s.autoActive {
		if err := s.ActivateVersion(ctx, version); err != nil {
			return report, err
		}
	}
	return report, nil
}

// ActivateVersion hot swaps the active nomenclature version.
func (s *MatchingService) ActivateVersion(ctx context.Context, version string) error {
	if err := s.lookups.Activate(ctx, version); err != nil {
		return err
	}
	s.logger.WithField("version", version).Info("Activated nomenclature version")
	return nil
}

// LookupMatching resolves the matching metadata of a typing. An empty version uses the
// active one.
func (s *MatchingService) LookupMatching(ctx context.Context, locus domain.Locus, name, version string) (*domain.MatchingMetadata, error) {
	return s.lookups.GetMatchingMetadata(ctx, locus, name, version)
}

// LookupScoring resolves the scoring metadata of a typing.
func (s *MatchingService) LookupScoring(ctx context.Context, locus domain.Locus, name, version string) (*domain.ScoringMetadata, error) {
	return s.lookups.GetScoringMetadata(ctx, locus, name, version)
}

// LookupTceGroup resolves the TCE group of a DPB1 typing.
func (s *MatchingService) LookupTceGroup(ctx context.Context, name, version string) (string, error) {
	return s.lookups.GetDpb1TceGroup(ctx, name, version)
}

// GradeAndScore grades one donor typing against one patient typing at a locus.
func (s *MatchingService) GradeAndScore(ctx context.Context, locus domain.Locus, patient, donor, version string) (domain.PositionScore, error) {
	p, err := s.lookups.Pin(ctx, version)
	if err != nil {
		return domain.PositionScore{}, err
	}
	ps, err := p.Scoring(ctx, locus, patient)
	if err != nil {
		return domain.PositionScore{}, fmt.Errorf("patient typing: %w", err)
	}
	ds, err := p.Scoring(ctx, locus, donor)
	if err != nil {
		return domain.PositionScore{}, fmt.Errorf("donor typing: %w", err)
	}
	return scoring.Calculator{}.GradeAndScore(ps, ds), nil
}

// RankResults orders search results best first.
func (s *MatchingService) RankResults(results []*domain.SearchResult) []*domain.SearchResult {
	return scoring.RankResults(results)
}

// SearchResponse is the ranked outcome of one search.
type SearchResponse struct {
	RequestID           string                 `json:"request_id"`
	NomenclatureVersion string                 `json:"nomenclature_version"`
	Results             []*domain.SearchResult `json:"results"`
	SkippedDonors       map[string]string      `json:"skipped_donors,omitempty"`
	Duration            time.Duration          `json:"duration"`
}

// resolvedPhenotype holds the scoring metadata and DPB1 TCE groups of a typed person.
type resolvedPhenotype struct {
	loci map[domain.Locus]*[2]*domain.ScoringMetadata
	tce  *[2]string
}

// Search scores every candidate donor against the patient and ranks the results. The
// active version is pinned for the whole search. Donors whose typings cannot be
// resolved are skipped and reported; a patient typing that cannot be resolved fails
// the search.
func (s *MatchingService) Search(ctx context.Context, patient domain.PatientTyping, donors domain.DonorSource) (*SearchResponse, error) {
	start := time.Now()
	requestID := uuid.New().String()

	pinned, err := s.lookups.Pin(ctx, "")
	if err != nil {
		return nil, err
	}
	logger := s.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"patient_id": patient.PatientID,
		"version":    pinned.Version(),
	})
	logger.Info("Starting donor search")

	resolvedPatient, err := resolvePhenotype(ctx, pinned, patient.Hla)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve patient %s: %w", patient.PatientID, err)
	}
	memo, err := scoring.NewMemo(scoring.Calculator{}, s.memoSize, s.metrics)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		results []*domain.SearchResult
		skipped = make(map[string]string)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	err = donors.ForEachCandidate(gctx, func(donor domain.DonorTyping) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result, err := s.scoreDonor(gctx, pinned, memo, resolvedPatient, donor)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, domain.ErrUnrecognizedTyping) || errors.Is(err, domain.ErrLookupNotFound) {
					skipped[donor.DonorID] = err.Error()
					return nil
				}
				return err
			}
			results = append(results, result)
			return nil
		})
		return nil
	})
	// A failed donor cancels gctx, so its error is more telling than the source's.
	if waitErr := g.Wait(); waitErr != nil {
		err = waitErr
	}
	if err != nil {
		return nil, fmt.Errorf("search %s aborted: %w", requestID, err)
	}

	resp := &SearchResponse{
		RequestID:           requestID,
		NomenclatureVersion: pinned.Version(),
		Results:             scoring.RankResults(results),
		SkippedDonors:       skipped,
		Duration:            time.Since(start),
	}
	logger.WithFields(logrus.Fields{
		"scored":   len(results),
		"skipped":  len(skipped),
		"memoised": memo.Len(),
		"duration": resp.Duration,
	}).Info("Donor search completed")
	return resp, nil
}

func (s *MatchingService) scoreDonor(ctx context.Context, pinned *lookup.Pinned, memo scoring.Grader, patient *resolvedPhenotype, donor domain.DonorTyping) (*domain.SearchResult, error) {
	resolved, err := resolvePhenotype(ctx, pinned, donor.Hla)
	if err != nil {
		return nil, fmt.Errorf("donor %s: %w", donor.DonorID, err)
	}
	loci := make([]*domain.PerLocusScoreDetails, 0, len(domain.AllLoci))
	for _, locus := range domain.AllLoci {
		typings := scoring.LocusTypings{Patient: patient.loci[locus], Donor: resolved.loci[locus]}
		var tce *scoring.TceGroups
		if locus == domain.LocusDPB1 && patient.tce != nil && resolved.tce != nil {
			tce = &scoring.TceGroups{Patient: *patient.tce, Donor: *resolved.tce}
		}
		loci = append(loci, s.aggregator.ScoreLocus(memo, locus, typings, tce))
	}
	s.metrics.ObserveDonorScored()
	return s.aggregator.Result(donor.DonorID, pinned.Version(), loci), nil
}

// resolvePhenotype looks up both positions of every typed locus. Loci that are absent
// or only partially typed are left untyped.
func resolvePhenotype(ctx context.Context, pinned *lookup.Pinned, hla map[domain.Locus]domain.LocusTyping) (*resolvedPhenotype, error) {
	out := &resolvedPhenotype{loci: make(map[domain.Locus]*[2]*domain.ScoringMetadata)}
	for _, locus := range domain.AllLoci {
		typing, ok := hla[locus]
		if !ok || !typing.IsTyped() {
			continue
		}
		var pair [2]*domain.ScoringMetadata
		for i, name := range []string{typing.Position1, typing.Position2} {
			s, err := pinned.Scoring(ctx, locus, name)
			if err != nil {
				return nil, err
			}
			pair[i] = s
		}
		out.loci[locus] = &pair

		if locus == domain.LocusDPB1 {
			groups, err := resolveTceGroups(ctx, pinned, typing)
			if err != nil {
				return nil, err
			}
			out.tce = groups
		}
	}
	return out, nil
}

// tceResolver resolves the DPB1 TCE group of a typing.
type tceResolver interface {
	TceGroup(ctx context.Context, name string) (string, error)
}

// resolveTceGroups looks up the TCE groups of both DPB1 positions. A typing without a
// TCE assignment keeps an empty group, which leaves the match type Unknown.
func resolveTceGroups(ctx context.Context, r tceResolver, typing domain.LocusTyping) (*[2]string, error) {
	var groups [2]string
	for i, name := range []string{typing.Position1, typing.Position2} {
		g, err := r.TceGroup(ctx, name)
		if err != nil {
			if errors.Is(err, domain.ErrLookupNotFound) {
				continue
			}
			return nil, fmt.Errorf("resolving TCE group of %s: %w", name, err)
		}
		groups[i] = g
	}
	return &groups, nil
}

// StaticDonorSource serves a fixed list of donors.
type StaticDonorSource []domain.DonorTyping

// ForEachCandidate calls fn for each donor in order, stopping at the first error.
func (s StaticDonorSource) ForEachCandidate(ctx context.Context, fn func(domain.DonorTyping) error) error {
	for _, d := range s {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}
