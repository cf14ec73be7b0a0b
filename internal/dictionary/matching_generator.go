package dictionary

import (
	"github.com/hla-matching-engine/internal/domain"
	"github.com/hla-matching-engine/internal/nomenclature"
)

// GenerateMatching converts every lookup group of a locus into its matching P-Groups.
// Null alleles contribute no P-Group, so a molecular group of only null alleles yields
// an empty, null-expressing set.
func GenerateMatching(ds *nomenclature.Dataset, locus domain.Locus, groups []LookupGroup) []domain.MatchingMetadata {
	out := make([]domain.MatchingMetadata, 0, len(groups))
	for _, g := range groups {
		out = append(out, domain.MatchingMetadata{
			Locus:           locus,
			LookupName:      g.Name,
			Method:          g.Method,
			MatchingPGroups: pGroupsOf(ds, locus, g.Alleles),
		})
	}
	return out
}

func pGroupsOf(ds *nomenclature.Dataset, locus domain.Locus, alleles []string) []string {
	set := make(map[string]struct{}, len(alleles))
	for _, a := range alleles {
		if p := ds.PGroupOf(locus, a); p != "" {
			set[p] = struct{}{}
		}
	}
	return domain.SortedKeys(set)
}
