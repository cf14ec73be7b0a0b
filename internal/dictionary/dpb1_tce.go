package dictionary

import (
	"sort"
	"strconv"

	"github.com/hla-matching-engine/internal/domain"
	"github.com/hla-matching-engine/internal/nomenclature"
	"github.com/hla-matching-engine/pkg/hlatyping"
)

// GenerateTceGroups resolves the DPB1 TCE group of every allele, two-field and XX lookup
// name. Lookup names whose alleles carry no assignment are omitted.
func GenerateTceGroups(ds *nomenclature.Dataset, groups []LookupGroup) []domain.TceGroupEntry {
	var out []domain.TceGroupEntry
	for _, g := range groups {
		switch g.Category {
		case domain.CategoryAllele, domain.CategoryNmdpCode, domain.CategoryXxCode:
		default:
			continue
		}
		if group := ResolveTceGroup(ds, g.Members); group != "" {
			out = append(out, domain.TceGroupEntry{LookupName: g.Name, TceGroup: group})
		}
	}
	return out
}

// ResolveTceGroup picks the TCE group of a set of alleles with a TceGroupPicker.
func ResolveTceGroup(ds *nomenclature.Dataset, alleles []string) string {
	var picker TceGroupPicker
	for _, a := range alleles {
		if assignment, ok := ds.TceAssignment(a); ok {
			picker.Add(a, assignment.Group())
		}
	}
	return picker.Pick()
}

// TceGroupPicker settles the TCE group of several alleles. Assignments of expressing
// alleles are preferred over those of null alleles; remaining disagreement is settled by
// the numerically highest group.
type TceGroupPicker struct {
	expressing []string
	null       []string
}

// Add records the group assigned to an allele. Empty groups are ignored.
func (p *TceGroupPicker) Add(allele, group string) {
	if group == "" {
		return
	}
	if hlatyping.IsNullAllele(allele) {
		p.null = append(p.null, group)
	} else {
		p.expressing = append(p.expressing, group)
	}
}

// Pick returns the settled group, or "" when nothing was added.
func (p *TceGroupPicker) Pick() string {
	if len(p.expressing) > 0 {
		return HighestTceGroup(p.expressing)
	}
	return HighestTceGroup(p.null)
}

// HighestTceGroup returns the numerically highest TCE group, or "" for none.
func HighestTceGroup(groups []string) string {
	if len(groups) == 0 {
		return ""
	}
	sorted := make([]string, len(groups))
	copy(sorted, groups)
	sort.Slice(sorted, func(i, j int) bool { return tceGroupLess(sorted[j], sorted[i]) })
	return sorted[0]
}

func tceGroupLess(a, b string) bool {
	x, errA := strconv.Atoi(a)
	y, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return x < y
	}
	return a < b
}
