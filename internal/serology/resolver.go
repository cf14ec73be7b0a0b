// Package serology resolves the matching sets of serological HLA typings from the WMDA
// serology relationship table.
package serology

import (
	"sort"

	"github.com/hla-matching-engine/internal/domain"
	"github.com/hla-matching-engine/internal/nomenclature"
)

// Info describes one serology of a locus and its direct relatives.
type Info struct {
	Name    string
	Subtype domain.SerologySubtype

	// Broad is the broad parent of a split.
	Broad string
	// Parent is the antigen an associated antigen belongs to.
	Parent     string
	Splits     []string
	Associated []string
}

// Resolver holds the relationship graph of every locus. It is immutable after creation.
type Resolver struct {
	infos map[domain.Locus]map[string]*Info
}

// NewResolver builds the relationship graph from a dataset.
func NewResolver(ds *nomenclature.Dataset) *Resolver {
	r := &Resolver{infos: make(map[domain.Locus]map[string]*Info)}
	for _, locus := range domain.AllLoci {
		r.infos[locus] = buildLocus(ds.SerologyRelationships(locus))
	}
	return r
}

func buildLocus(rows []nomenclature.SerologyRelationship) map[string]*Info {
	infos := make(map[string]*Info)
	get := func(name string) *Info {
		info, ok := infos[name]
		if !ok {
			info = &Info{Name: name}
			infos[name] = info
		}
		return info
	}

	for _, row := range rows {
		info := get(row.Name)
		info.Splits = appendUnique(info.Splits, row.Splits...)
		info.Associated = appendUnique(info.Associated, row.Associated...)
		for _, split := range row.Splits {
			get(split).Broad = row.Name
		}
		for _, assoc := range row.Associated {
			get(assoc).Parent = row.Name
		}
	}

	for _, info := range infos {
		switch {
		case len(info.Splits) > 0:
			info.Subtype = domain.SubtypeBroad
		case info.Broad != "":
			info.Subtype = domain.SubtypeSplit
		case info.Parent != "":
			info.Subtype = domain.SubtypeAssociated
		default:
			info.Subtype = domain.SubtypeNotSplit
		}
	}
	return infos
}

func appendUnique(list []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, existing := range list {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			list = append(list, v)
		}
	}
	return list
}

// Names returns every serology of a locus in ascending numeric order.
func (r *Resolver) Names(locus domain.Locus) []string {
	names := make([]string, 0, len(r.infos[locus]))
	for name := range r.infos[locus] {
		names = append(names, name)
	}
	sortSerologyNames(names)
	return names
}

// Info returns the relationship information of a serology.
func (r *Resolver) Info(locus domain.Locus, name string) (*Info, bool) {
	info, ok := r.infos[locus][name]
	return info, ok
}

// MatchingSerologies returns the serologies that name matches, itself included, sorted
// by name. The typing itself is marked as a direct mapping. Unknown serologies match
// only themselves, with subtype NotSplit.
func (r *Resolver) MatchingSerologies(locus domain.Locus, name string) []domain.SerologyEntry {
	infos := r.infos[locus]
	info, ok := infos[name]
	if !ok {
		return []domain.SerologyEntry{{Name: name, Subtype: domain.SubtypeNotSplit, IsDirectMapping: true}}
	}

	matches := map[string]struct{}{name: {}}
	add := func(names ...string) {
		for _, n := range names {
			if n != "" {
				matches[n] = struct{}{}
			}
		}
	}

	switch info.Subtype {
	case domain.SubtypeNotSplit:
		add(info.Associated...)
	case domain.SubtypeSplit:
		add(info.Broad)
		add(info.Associated...)
	case domain.SubtypeBroad:
		add(info.Associated...)
		for _, split := range info.Splits {
			add(split)
			if child, ok := infos[split]; ok {
				add(child.Associated...)
			}
		}
	case domain.SubtypeAssociated:
		add(info.Parent)
		if parent, ok := infos[info.Parent]; ok && parent.Subtype == domain.SubtypeSplit {
			add(parent.Broad)
		}
	}

	out := make([]domain.SerologyEntry, 0, len(matches))
	for n := range matches {
		subtype := domain.SubtypeNotSplit
		if i, ok := infos[n]; ok {
			subtype = i.Subtype
		}
		out = append(out, domain.SerologyEntry{Name: n, Subtype: subtype, IsDirectMapping: n == name})
	}
	sort.Slice(out, func(i, j int) bool { return domain.SerologyNameLess(out[i].Name, out[j].Name) })
	return out
}

// Matches reports whether two serologies of a locus match each other.
func (r *Resolver) Matches(locus domain.Locus, a, b string) bool {
	for _, e := range r.MatchingSerologies(locus, a) {
		if e.Name == b {
			return true
		}
	}
	return false
}

func sortSerologyNames(names []string) {
	sort.Slice(names, func(i, j int) bool { return domain.SerologyNameLess(names[i], names[j]) })
}
