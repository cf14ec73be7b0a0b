package scoring

import (
	"sort"

	"github.com/hla-matching-engine/internal/domain"
)

// RankResults orders results by match count, then grade score, then confidence score,
// all descending. Equal results keep their input order. The input slice is not modified.
func RankResults(results []*domain.SearchResult) []*domain.SearchResult {
	ranked := make([]*domain.SearchResult, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i].Aggregate, ranked[j].Aggregate
		if a.MatchCount != b.MatchCount {
			return a.MatchCount > b.MatchCount
		}
		if a.GradeScore != b.GradeScore {
			return a.GradeScore > b.GradeScore
		}
		return a.ConfidenceScore > b.ConfidenceScore
	})
	return ranked
}
