package scoring

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hla-matching-engine/internal/domain"
	"github.com/hla-matching-engine/internal/metrics"
)

// DefaultGradeMemoSize bounds the request-scoped grade memo.
const DefaultGradeMemoSize = 4096

// Grader grades one patient typing against one donor typing at a locus.
type Grader interface {
	GradeAndScore(patient, donor *domain.ScoringMetadata) domain.PositionScore
}

// Calculator is the stateless Grader.
type Calculator struct{}

// GradeAndScore returns the grade and confidence of a typing pair.
func (Calculator) GradeAndScore(patient, donor *domain.ScoringMetadata) domain.PositionScore {
	return domain.PositionScore{
		Grade:      CalculateGrade(patient, donor),
		Confidence: CalculateConfidence(patient, donor),
	}
}

// Memo caches grades within one search. Lookup names are unique per locus and method
// within a pinned version, so they are a sufficient key.
type Memo struct {
	next    Grader
	cache   *lru.Cache[string, domain.PositionScore]
	metrics *metrics.Collectors
}

// NewMemo wraps a Grader with an LRU memo of the given size.
func NewMemo(next Grader, size int, m *metrics.Collectors) (*Memo, error) {
	if size <= 0 {
		size = DefaultGradeMemoSize
	}
	cache, err := lru.New[string, domain.PositionScore](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create grade memo: %w", err)
	}
	return &Memo{next: next, cache: cache, metrics: m}, nil
}

// GradeAndScore returns the memoised score of a typing pair, computing it on a miss.
func (m *Memo) GradeAndScore(patient, donor *domain.ScoringMetadata) domain.PositionScore {
	key := memoKey(patient, donor)
	if score, ok := m.cache.Get(key); ok {
		m.metrics.ObserveGradeMemo(true)
		return score
	}
	m.metrics.ObserveGradeMemo(false)
	score := m.next.GradeAndScore(patient, donor)
	m.cache.Add(key, score)
	return score
}

// Len returns the number of memoised pairs.
func (m *Memo) Len() int {
	return m.cache.Len()
}

func memoKey(patient, donor *domain.ScoringMetadata) string {
	return string(patient.Locus) + "|" + string(patient.Method) + "|" + patient.LookupName +
		"|" + string(donor.Method) + "|" + donor.LookupName
}
