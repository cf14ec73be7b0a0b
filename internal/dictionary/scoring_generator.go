package dictionary

import (
	"github.com/hla-matching-engine/internal/domain"
	"github.com/hla-matching-engine/internal/nomenclature"
	"github.com/hla-matching-engine/internal/serology"
	"github.com/hla-matching-engine/pkg/hlatyping"
)

// scoringBuilder memoises the per-allele scoring info of one locus.
type scoringBuilder struct {
	ds       *nomenclature.Dataset
	resolver *serology.Resolver
	locus    domain.Locus
	infos    map[string]domain.SingleAlleleInfo
}

// GenerateScoring converts every lookup group of a locus into scoring metadata:
// SingleAllele for allele names, MultipleAllele for two-field names, Consolidated for
// XX, G-Group and P-Group names and Serology for serology names.
func GenerateScoring(ds *nomenclature.Dataset, resolver *serology.Resolver, locus domain.Locus, groups []LookupGroup) []domain.ScoringMetadata {
	b := &scoringBuilder{
		ds:       ds,
		resolver: resolver,
		locus:    locus,
		infos:    make(map[string]domain.SingleAlleleInfo),
	}
	out := make([]domain.ScoringMetadata, 0, len(groups))
	for _, g := range groups {
		out = append(out, b.build(g))
	}
	return out
}

func (b *scoringBuilder) build(g LookupGroup) domain.ScoringMetadata {
	meta := domain.ScoringMetadata{Locus: b.locus, LookupName: g.Name, Method: g.Method}

	switch g.Category {
	case domain.CategoryAllele:
		meta.Kind = domain.ScoringSingleAllele
		meta.Alleles = b.alleleInfos(g.Alleles[:1])
	case domain.CategoryNmdpCode:
		meta.Kind = domain.ScoringMultipleAllele
		meta.Alleles = b.alleleInfos(g.Alleles)
	case domain.CategorySerology:
		meta.Kind = domain.ScoringSerology
		meta.MatchingSerologies = b.resolver.MatchingSerologies(b.locus, g.Serology)
		meta.MatchingPGroups = pGroupsOf(b.ds, b.locus, g.Alleles)
		meta.MatchingGGroups = b.gGroupsOf(g.Alleles)
	default:
		meta.Kind = domain.ScoringConsolidated
		infos := b.alleleInfos(g.Alleles)
		consolidated := domain.ScoringMetadata{Kind: domain.ScoringMultipleAllele, Alleles: infos}
		meta.MatchingGGroups = consolidated.AllGGroups()
		meta.MatchingPGroups = consolidated.AllPGroups()
		meta.MatchingSerologies = consolidated.AllSerologies()
		meta.IsNull = consolidated.IsNullExpressing()
	}
	return meta
}

func (b *scoringBuilder) alleleInfos(alleles []string) []domain.SingleAlleleInfo {
	out := make([]domain.SingleAlleleInfo, len(alleles))
	for i, a := range alleles {
		out[i] = b.alleleInfo(a)
	}
	return out
}

func (b *scoringBuilder) alleleInfo(allele string) domain.SingleAlleleInfo {
	if info, ok := b.infos[allele]; ok {
		return info
	}
	info := domain.SingleAlleleInfo{
		AlleleName:         allele,
		Status:             b.ds.Status(b.locus, allele),
		IsNull:             hlatyping.IsNullAllele(allele),
		MatchingGGroup:     b.ds.GGroupOf(b.locus, allele),
		MatchingPGroup:     b.ds.PGroupOf(b.locus, allele),
		MatchingSerologies: b.alleleSerologies(allele),
	}
	b.infos[allele] = info
	return info
}

// alleleSerologies returns the serologies assigned to an allele as direct mappings,
// together with everything those serologies match as indirect ones.
func (b *scoringBuilder) alleleSerologies(allele string) []domain.SerologyEntry {
	assigned := b.ds.AssignedSerologies(b.locus, allele)
	if len(assigned) == 0 {
		return nil
	}
	lists := make([][]domain.SerologyEntry, 0, len(assigned))
	for _, s := range assigned {
		entries := b.resolver.MatchingSerologies(b.locus, s)
		for i := range entries {
			entries[i].IsDirectMapping = entries[i].Name == s
		}
		lists = append(lists, entries)
	}
	return domain.MergeSerologies(lists...)
}

func (b *scoringBuilder) gGroupsOf(alleles []string) []string {
	set := make(map[string]struct{}, len(alleles))
	for _, a := range alleles {
		set[b.ds.GGroupOf(b.locus, a)] = struct{}{}
	}
	return domain.SortedKeys(set)
}
