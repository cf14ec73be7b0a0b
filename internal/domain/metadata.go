package domain

import (
	"sort"
)

// LookupKey addresses one entry of a nomenclature-versioned dictionary.
type LookupKey struct {
	Locus      Locus        `json:"locus"`
	LookupName string       `json:"lookup_name"`
	Method     TypingMethod `json:"method"`
}

// MatchingMetadata holds the P-Groups a typing matches. An empty set on a molecular
// typing means the typing is null-expressing.
type MatchingMetadata struct {
	Locus           Locus        `json:"locus"`
	LookupName      string       `json:"lookup_name"`
	Method          TypingMethod `json:"method"`
	MatchingPGroups []string     `json:"matching_p_groups"`
}

// Key returns the dictionary key of the entry.
func (m *MatchingMetadata) Key() LookupKey {
	return LookupKey{Locus: m.Locus, LookupName: m.LookupName, Method: m.Method}
}

// IsNullExpressing reports whether a molecular typing expresses no protein.
func (m *MatchingMetadata) IsNullExpressing() bool {
	return m.Method == Molecular && len(m.MatchingPGroups) == 0
}

// ScoringInfoKind tags the ScoringMetadata variant.
type ScoringInfoKind string

const (
	ScoringSingleAllele   ScoringInfoKind = "SingleAllele"
	ScoringMultipleAllele ScoringInfoKind = "MultipleAllele"
	ScoringConsolidated   ScoringInfoKind = "Consolidated"
	ScoringSerology       ScoringInfoKind = "Serology"
)

// SerologyEntry is one serology an allele or serology typing matches.
type SerologyEntry struct {
	Name            string          `json:"name"`
	Subtype         SerologySubtype `json:"subtype"`
	IsDirectMapping bool            `json:"is_direct_mapping"`
}

// SingleAlleleInfo is the scoring information of one concrete allele.
type SingleAlleleInfo struct {
	AlleleName         string             `json:"allele_name"`
	Status             AlleleTypingStatus `json:"status"`
	IsNull             bool               `json:"is_null"`
	MatchingGGroup     string             `json:"matching_g_group"`
	MatchingPGroup     string             `json:"matching_p_group,omitempty"`
	MatchingSerologies []SerologyEntry    `json:"matching_serologies"`
}

// ScoringMetadata is a closed tagged variant keyed like MatchingMetadata.
//
//   - SingleAllele: Alleles has exactly one element.
//   - MultipleAllele: Alleles holds every candidate allele (null-filtered).
//   - Consolidated: only the unioned G-Group, P-Group and serology sets are kept.
//   - Serology: MatchingSerologies, MatchingPGroups and MatchingGGroups of a serology typing.
type ScoringMetadata struct {
	Locus              Locus              `json:"locus"`
	LookupName         string             `json:"lookup_name"`
	Method             TypingMethod       `json:"method"`
	Kind               ScoringInfoKind    `json:"kind"`
	Alleles            []SingleAlleleInfo `json:"alleles,omitempty"`
	MatchingGGroups    []string           `json:"matching_g_groups,omitempty"`
	MatchingPGroups    []string           `json:"matching_p_groups,omitempty"`
	MatchingSerologies []SerologyEntry    `json:"matching_serologies,omitempty"`
	IsNull             bool               `json:"is_null,omitempty"`
}

// Key returns the dictionary key of the entry.
func (s *ScoringMetadata) Key() LookupKey {
	return LookupKey{Locus: s.Locus, LookupName: s.LookupName, Method: s.Method}
}

// IsSingleAllele reports whether the typing resolves to exactly one allele.
func (s *ScoringMetadata) IsSingleAllele() bool {
	return s.Kind == ScoringSingleAllele
}

// IsNullExpressing reports whether every candidate allele of the typing is null.
func (s *ScoringMetadata) IsNullExpressing() bool {
	switch s.Kind {
	case ScoringSingleAllele, ScoringMultipleAllele:
		if len(s.Alleles) == 0 {
			return false
		}
		for _, a := range s.Alleles {
			if !a.IsNull {
				return false
			}
		}
		return true
	case ScoringConsolidated:
		return s.IsNull
	default:
		return false
	}
}

// AllPGroups returns the union of P-Groups over all candidate alleles.
func (s *ScoringMetadata) AllPGroups() []string {
	if s.Kind != ScoringSingleAllele && s.Kind != ScoringMultipleAllele {
		return s.MatchingPGroups
	}
	set := make(map[string]struct{})
	for _, a := range s.Alleles {
		if a.MatchingPGroup != "" {
			set[a.MatchingPGroup] = struct{}{}
		}
	}
	return SortedKeys(set)
}

// AllGGroups returns the union of G-Groups over all candidate alleles.
func (s *ScoringMetadata) AllGGroups() []string {
	if s.Kind != ScoringSingleAllele && s.Kind != ScoringMultipleAllele {
		return s.MatchingGGroups
	}
	set := make(map[string]struct{})
	for _, a := range s.Alleles {
		if a.MatchingGGroup != "" {
			set[a.MatchingGGroup] = struct{}{}
		}
	}
	return SortedKeys(set)
}

// AllSerologies returns the union of matching serologies over all candidate alleles.
func (s *ScoringMetadata) AllSerologies() []SerologyEntry {
	if s.Kind != ScoringSingleAllele && s.Kind != ScoringMultipleAllele {
		return s.MatchingSerologies
	}
	lists := make([][]SerologyEntry, 0, len(s.Alleles))
	for _, a := range s.Alleles {
		lists = append(lists, a.MatchingSerologies)
	}
	return MergeSerologies(lists...)
}

// MergeSerologies unions serology entries by name. A direct mapping wins over an
// indirect one. The result is sorted with SerologyNameLess.
func MergeSerologies(lists ...[]SerologyEntry) []SerologyEntry {
	byName := make(map[string]SerologyEntry)
	for _, entries := range lists {
		for _, e := range entries {
			existing, ok := byName[e.Name]
			if !ok || (!existing.IsDirectMapping && e.IsDirectMapping) {
				byName[e.Name] = e
			}
		}
	}
	out := make([]SerologyEntry, 0, len(byName))
	for _, e := range byName {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return SerologyNameLess(out[i].Name, out[j].Name) })
	return out
}

// SerologyNameLess orders serology names numerically. Serology names are positive
// integers without leading zeros, so length decides first.
func SerologyNameLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

// TceGroupEntry is the DPB1 T-cell epitope group resolved for a lookup name.
type TceGroupEntry struct {
	LookupName string `json:"lookup_name"`
	TceGroup   string `json:"tce_group"`
}

// AlleleCodeEntry is one NMDP multiple allele code of a release. Members are either
// bare subtypes ("01") combined with the family of the typing, or family-qualified
// names ("01:01") used as they are.
type AlleleCodeEntry struct {
	Code    string   `json:"code"`
	Members []string `json:"members"`
}

// MetadataEntry is the unit persisted to and fetched from a MetadataStore.
// Exactly one of Matching, Scoring, Tce or AlleleCode is set.
type MetadataEntry struct {
	Locus      Locus             `json:"locus"`
	LookupName string            `json:"lookup_name"`
	Method     TypingMethod      `json:"method"`
	Matching   *MatchingMetadata `json:"matching,omitempty"`
	Scoring    *ScoringMetadata  `json:"scoring,omitempty"`
	Tce        *TceGroupEntry    `json:"tce,omitempty"`
	AlleleCode *AlleleCodeEntry  `json:"allele_code,omitempty"`
}

// EntryKind names the populated payload of a MetadataEntry.
func (e *MetadataEntry) EntryKind() string {
	switch {
	case e.Matching != nil:
		return "matching"
	case e.Scoring != nil:
		return "scoring"
	case e.Tce != nil:
		return "tce"
	case e.AlleleCode != nil:
		return "allele_code"
	default:
		return ""
	}
}

// SortedKeys returns the keys of a string set in ascending order.
func SortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
