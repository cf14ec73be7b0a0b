// Package dictionary compiles a nomenclature dataset into versioned matching, scoring
// and DPB1 TCE lookup metadata.
package dictionary

import (
	"sort"

	"github.com/hla-matching-engine/internal/domain"
	"github.com/hla-matching-engine/internal/nomenclature"
	"github.com/hla-matching-engine/internal/serology"
	"github.com/hla-matching-engine/pkg/hlatyping"
)

// LookupGroup is one lookup name of a locus and the alleles it stands for.
type LookupGroup struct {
	Name     string
	Category domain.TypingCategory
	Method   domain.TypingMethod
	// Alleles are the candidate alleles after null filtering, sorted.
	Alleles []string
	// Members are the candidate alleles before null filtering, sorted.
	Members []string
	// Serology is set for serology lookup names.
	Serology string
}

// FilterNullAlleles drops null alleles from a multi-allele group if and only if the
// group has at least one expressing member. The input is not modified.
func FilterNullAlleles(alleles []string) []string {
	expressing := make([]string, 0, len(alleles))
	for _, a := range alleles {
		if !hlatyping.IsNullAllele(a) {
			expressing = append(expressing, a)
		}
	}
	if len(expressing) == 0 {
		out := make([]string, len(alleles))
		copy(out, alleles)
		return out
	}
	return expressing
}

// BuildLookupGroups returns every molecular and serology lookup name of a locus, sorted
// by method and name. When two sources produce the same molecular name the first in
// this order wins: full allele names, two-field names, first-field (XX) names,
// G-Group names, P-Group names, renamed alleles.
func BuildLookupGroups(ds *nomenclature.Dataset, resolver *serology.Resolver, locus domain.Locus) []LookupGroup {
	byName := make(map[string]LookupGroup)
	add := func(name string, category domain.TypingCategory, alleles []string) {
		if _, exists := byName[name]; exists || len(alleles) == 0 {
			return
		}
		members := make([]string, len(alleles))
		copy(members, alleles)
		sort.Strings(members)
		byName[name] = LookupGroup{
			Name:     name,
			Category: category,
			Method:   domain.Molecular,
			Alleles:  FilterNullAlleles(members),
			Members:  members,
		}
	}

	alleles := ds.Alleles(locus)
	twoField := make(map[string][]string)
	firstField := make(map[string][]string)
	for _, a := range alleles {
		add(a, domain.CategoryAllele, []string{a})
		parsed := hlatyping.ParseAlleleName(a)
		if parsed.FieldCount() >= 2 {
			key := parsed.FirstTwoFields()
			twoField[key] = append(twoField[key], a)
		}
		firstField[parsed.FirstField()] = append(firstField[parsed.FirstField()], a)
	}
	for _, name := range sortedKeys(twoField) {
		add(name, domain.CategoryNmdpCode, twoField[name])
	}
	for _, name := range sortedKeys(firstField) {
		add(name, domain.CategoryXxCode, firstField[name])
	}
	addGroups := func(groups map[string][]string, category domain.TypingCategory) {
		for _, name := range sortedKeys(groups) {
			if c, err := hlatyping.Classify(name); err == nil && c == category {
				add(name, category, groups[name])
			}
		}
	}
	addGroups(ds.GGroups(locus), domain.CategoryGGroup)
	addGroups(ds.PGroups(locus), domain.CategoryPGroup)
	renames := ds.Renames(locus)
	for _, former := range sortedKeys(renames) {
		add(former, domain.CategoryAllele, []string{renames[former]})
	}

	groups := make([]LookupGroup, 0, len(byName))
	for _, name := range sortedKeys(byName) {
		groups = append(groups, byName[name])
	}
	return append(groups, serologyLookupGroups(ds, resolver, locus)...)
}

// serologyLookupGroups returns one group per serology of the locus, holding every allele
// whose assigned serologies intersect the serology's matching set.
func serologyLookupGroups(ds *nomenclature.Dataset, resolver *serology.Resolver, locus domain.Locus) []LookupGroup {
	allelesBySerology := make(map[string][]string)
	for _, a := range ds.Alleles(locus) {
		for _, s := range ds.AssignedSerologies(locus, a) {
			allelesBySerology[s] = append(allelesBySerology[s], a)
		}
	}

	names := make(map[string]struct{})
	for _, s := range resolver.Names(locus) {
		names[s] = struct{}{}
	}
	for s := range allelesBySerology {
		names[s] = struct{}{}
	}
	ordered := domain.SortedKeys(names)
	sort.Slice(ordered, func(i, j int) bool { return domain.SerologyNameLess(ordered[i], ordered[j]) })

	groups := make([]LookupGroup, 0, len(ordered))
	for _, s := range ordered {
		members := make(map[string]struct{})
		for _, match := range resolver.MatchingSerologies(locus, s) {
			for _, a := range allelesBySerology[match.Name] {
				members[a] = struct{}{}
			}
		}
		sorted := domain.SortedKeys(members)
		groups = append(groups, LookupGroup{
			Name:     s,
			Category: domain.CategorySerology,
			Method:   domain.Serology,
			Alleles:  FilterNullAlleles(sorted),
			Members:  sorted,
			Serology: s,
		})
	}
	return groups
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
