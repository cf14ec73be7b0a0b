package lookup

import (
	"sort"

	"github.com/hla-matching-engine/internal/domain"
)

// mergeMatching unions the P-Groups of the members of a composite typing. Null members
// contribute nothing, so the result is null-expressing only if every member is.
func mergeMatching(locus domain.Locus, name string, method domain.TypingMethod, metas []*domain.MatchingMetadata) *domain.MatchingMetadata {
	set := make(map[string]struct{})
	for _, m := range metas {
		for _, p := range m.MatchingPGroups {
			set[p] = struct{}{}
		}
	}
	return &domain.MatchingMetadata{
		Locus:           locus,
		LookupName:      name,
		Method:          method,
		MatchingPGroups: domain.SortedKeys(set),
	}
}

// mergeScoring merges the members of a composite typing. Members that all carry allele
// level information become a MultipleAllele entry; otherwise the group sets are
// consolidated. Null members are dropped when any member is expressing.
func mergeScoring(locus domain.Locus, name string, metas []*domain.ScoringMetadata) *domain.ScoringMetadata {
	expressing := make([]*domain.ScoringMetadata, 0, len(metas))
	for _, m := range metas {
		if !m.IsNullExpressing() {
			expressing = append(expressing, m)
		}
	}
	if len(expressing) > 0 {
		metas = expressing
	}

	alleleLevel := true
	for _, m := range metas {
		if m.Kind != domain.ScoringSingleAllele && m.Kind != domain.ScoringMultipleAllele {
			alleleLevel = false
			break
		}
	}

	merged := &domain.ScoringMetadata{Locus: locus, LookupName: name, Method: domain.Molecular}
	if alleleLevel {
		merged.Kind = domain.ScoringMultipleAllele
		merged.Alleles = mergeAlleles(metas)
		return merged
	}

	gGroups := make(map[string]struct{})
	pGroups := make(map[string]struct{})
	serologies := make([][]domain.SerologyEntry, 0, len(metas))
	null := true
	for _, m := range metas {
		for _, g := range m.AllGGroups() {
			gGroups[g] = struct{}{}
		}
		for _, p := range m.AllPGroups() {
			pGroups[p] = struct{}{}
		}
		serologies = append(serologies, m.AllSerologies())
		null = null && m.IsNullExpressing()
	}
	merged.Kind = domain.ScoringConsolidated
	merged.MatchingGGroups = domain.SortedKeys(gGroups)
	merged.MatchingPGroups = domain.SortedKeys(pGroups)
	merged.MatchingSerologies = domain.MergeSerologies(serologies...)
	merged.IsNull = null
	return merged
}

func mergeAlleles(metas []*domain.ScoringMetadata) []domain.SingleAlleleInfo {
	byName := make(map[string]domain.SingleAlleleInfo)
	anyExpressing := false
	for _, m := range metas {
		for _, a := range m.Alleles {
			byName[a.AlleleName] = a
			anyExpressing = anyExpressing || !a.IsNull
		}
	}
	out := make([]domain.SingleAlleleInfo, 0, len(byName))
	for _, a := range byName {
		if anyExpressing && a.IsNull {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AlleleName < out[j].AlleleName })
	return out
}
