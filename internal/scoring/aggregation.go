package scoring

import (
	"fmt"
	"strings"

	"github.com/hla-matching-engine/internal/domain"
)

// DefaultGradeWeights scores each grade for the aggregate grade score.
var DefaultGradeWeights = map[domain.MatchGrade]int{
	domain.GradeGDna:         30,
	domain.GradeCDna:         28,
	domain.GradeProtein:      26,
	domain.GradeGGroup:       24,
	domain.GradePGroup:       22,
	domain.GradeSerology:     15,
	domain.GradeUnknown:      0,
	domain.GradeNullGDna:     30,
	domain.GradeNullCDna:     28,
	domain.GradeNullPartial:  24,
	domain.GradeNullMismatch: 0,
	domain.GradeMismatch:     0,
}

// DefaultConfidenceWeights scores each confidence for the aggregate confidence score.
var DefaultConfidenceWeights = map[domain.MatchConfidence]int{
	domain.ConfidenceDefinite:  10,
	domain.ConfidenceExact:     8,
	domain.ConfidencePotential: 5,
	domain.ConfidenceMismatch:  0,
}

// DefaultExcludedLoci are scored but left out of the aggregate.
var DefaultExcludedLoci = []domain.Locus{domain.LocusDPB1}

// Weights are the table-driven grade and confidence scores.
type Weights struct {
	Grades      map[domain.MatchGrade]int
	Confidences map[domain.MatchConfidence]int
}

// NewWeights overlays configured weights on the defaults. Unknown keys are rejected.
func NewWeights(grades, confidences map[string]int) (*Weights, error) {
	w := &Weights{
		Grades:      make(map[domain.MatchGrade]int, len(DefaultGradeWeights)),
		Confidences: make(map[domain.MatchConfidence]int, len(DefaultConfidenceWeights)),
	}
	for g, v := range DefaultGradeWeights {
		w.Grades[g] = v
	}
	for c, v := range DefaultConfidenceWeights {
		w.Confidences[c] = v
	}
	for name, v := range grades {
		g, ok := parseGrade(name)
		if !ok {
			return nil, domain.NewValidationError("scoring.grade_weights", "unknown match grade", name)
		}
		w.Grades[g] = v
	}
	for name, v := range confidences {
		c, ok := parseConfidence(name)
		if !ok {
			return nil, domain.NewValidationError("scoring.confidence_weights", "unknown match confidence", name)
		}
		w.Confidences[c] = v
	}
	return w, nil
}

// Position returns the grade and confidence weights of one position.
func (w *Weights) Position(p domain.PositionScore) (grade, confidence int) {
	return w.Grades[p.Grade], w.Confidences[p.Confidence]
}

// viper lower-cases map keys, so weight names are matched case-insensitively.
func parseGrade(name string) (domain.MatchGrade, bool) {
	for _, g := range domain.AllMatchGrades {
		if strings.EqualFold(string(g), name) {
			return g, true
		}
	}
	return "", false
}

func parseConfidence(name string) (domain.MatchConfidence, bool) {
	for _, c := range domain.AllMatchConfidences {
		if strings.EqualFold(string(c), name) {
			return c, true
		}
	}
	return "", false
}

// Aggregator scores loci and combines them into aggregate scores.
type Aggregator struct {
	weights       *Weights
	excluded      map[domain.Locus]bool
	tcePermissive bool
}

// NewAggregator builds an Aggregator from the scoring configuration. A nil ExcludedLoci
// falls back to DefaultExcludedLoci; an empty non-nil list excludes nothing.
func NewAggregator(cfg domain.ScoringConfig) (*Aggregator, error) {
	weights, err := NewWeights(cfg.GradeWeights, cfg.ConfidenceWeights)
	if err != nil {
		return nil, err
	}
	excluded := make(map[domain.Locus]bool)
	if cfg.ExcludedLoci == nil {
		for _, l := range DefaultExcludedLoci {
			excluded[l] = true
		}
	}
	for _, name := range cfg.ExcludedLoci {
		locus, err := domain.ParseLocus(name)
		if err != nil {
			return nil, fmt.Errorf("invalid excluded locus: %w", err)
		}
		excluded[locus] = true
	}
	return &Aggregator{weights: weights, excluded: excluded, tcePermissive: cfg.TcePermissiveMismatch}, nil
}

// IsExcluded reports whether a locus is left out of the aggregate.
func (a *Aggregator) IsExcluded(locus domain.Locus) bool {
	return a.excluded[locus]
}

// Weights returns the weight tables in use.
func (a *Aggregator) Weights() *Weights {
	return a.weights
}

// Aggregate derives the aggregate score from per-locus details. Only loci marked as
// included contribute. With no included position the overall confidence is Potential.
// A Mismatch confidence is a permissive mismatch only when no included grade is a
// mismatch; with TcePermissiveMismatch set, mismatches at TCE-permissive loci are
// tolerated too.
func (a *Aggregator) Aggregate(loci []*domain.PerLocusScoreDetails) domain.AggregateScore {
	var agg domain.AggregateScore
	confidences := make([]domain.MatchConfidence, 0, 2*len(loci))
	permissive := true

	for _, d := range loci {
		if !d.IsIncluded {
			continue
		}
		agg.MatchCount += d.MatchCount
		agg.PotentialMatchCount += d.PotentialMatchCount
		for _, p := range d.Positions() {
			grade, confidence := a.weights.Position(p)
			agg.GradeScore += grade
			agg.ConfidenceScore += confidence
			confidences = append(confidences, p.Confidence)
			if p.Confidence == domain.ConfidenceExact || p.Confidence == domain.ConfidenceDefinite {
				agg.ExactMatchCount++
			}
			if p.Grade.IsMismatch() && !a.toleratesTce(d) {
				permissive = false
			}
		}
	}

	if len(confidences) == 0 {
		agg.OverallConfidence = domain.ConfidencePotential
	} else {
		agg.OverallConfidence = domain.MinConfidence(confidences...)
	}
	agg.OverallCategory = category(agg.OverallConfidence, permissive)
	return agg
}

func (a *Aggregator) toleratesTce(d *domain.PerLocusScoreDetails) bool {
	return a.tcePermissive && d.TceMatchType == domain.TcePermissive
}

func category(confidence domain.MatchConfidence, permissive bool) domain.MatchCategory {
	switch confidence {
	case domain.ConfidenceDefinite:
		return domain.CategoryDefinite
	case domain.ConfidenceExact:
		return domain.CategoryExact
	case domain.ConfidencePotential:
		return domain.CategoryPotential
	default:
		if permissive {
			return domain.CategoryPermissiveMismatch
		}
		return domain.CategoryMismatch
	}
}

// Result assembles a search result for one donor.
func (a *Aggregator) Result(donorID, version string, loci []*domain.PerLocusScoreDetails) *domain.SearchResult {
	return &domain.SearchResult{
		DonorID:             donorID,
		NomenclatureVersion: version,
		Loci:                loci,
		Aggregate:           a.Aggregate(loci),
	}
}
