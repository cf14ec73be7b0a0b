// Package lookup serves generated matching, scoring and DPB1 TCE metadata by locus,
// typing name and nomenclature version.
package lookup

import (
	"strings"

	"github.com/hla-matching-engine/internal/domain"
	"github.com/hla-matching-engine/internal/nomenclature"
)

// Dictionary is the complete, read-only metadata of one nomenclature version. Returned
// metadata is shared between callers and must not be modified.
type Dictionary struct {
	Version string

	matching map[domain.LookupKey]*domain.MatchingMetadata
	scoring  map[domain.LookupKey]*domain.ScoringMetadata
	tce      map[string]string
	codes    map[domain.Locus]map[string][]string
}

// NewDictionary indexes the stored entries of a version.
func NewDictionary(version string, entries []domain.MetadataEntry) *Dictionary {
	d := &Dictionary{
		Version:  version,
		matching: make(map[domain.LookupKey]*domain.MatchingMetadata),
		scoring:  make(map[domain.LookupKey]*domain.ScoringMetadata),
		tce:      make(map[string]string),
		codes:    make(map[domain.Locus]map[string][]string),
	}
	for _, e := range entries {
		key := domain.LookupKey{Locus: e.Locus, LookupName: e.LookupName, Method: e.Method}
		switch {
		case e.Matching != nil:
			d.matching[key] = e.Matching
		case e.Scoring != nil:
			d.scoring[key] = e.Scoring
		case e.Tce != nil && e.Locus == domain.LocusDPB1:
			d.tce[e.LookupName] = e.Tce.TceGroup
		case e.AlleleCode != nil:
			if d.codes[e.Locus] == nil {
				d.codes[e.Locus] = make(map[string][]string)
			}
			d.codes[e.Locus][e.AlleleCode.Code] = e.AlleleCode.Members
		}
	}
	return d
}

// Matching returns the matching metadata stored under a key.
func (d *Dictionary) Matching(key domain.LookupKey) (*domain.MatchingMetadata, bool) {
	m, ok := d.matching[key]
	return m, ok
}

// Scoring returns the scoring metadata stored under a key.
func (d *Dictionary) Scoring(key domain.LookupKey) (*domain.ScoringMetadata, bool) {
	s, ok := d.scoring[key]
	return s, ok
}

// TceGroup returns the DPB1 TCE group of a lookup name.
func (d *Dictionary) TceGroup(name string) (string, bool) {
	g, ok := d.tce[name]
	return g, ok
}

// ExpandAlleleCode expands an NMDP code against the allele families of a locus into
// two-field names.
func (d *Dictionary) ExpandAlleleCode(locus domain.Locus, family, code string) ([]string, bool) {
	members, ok := d.codes[locus][strings.ToUpper(code)]
	if !ok {
		return nil, false
	}
	return nomenclature.ExpandCodeMembers(family, members), true
}

// Len returns the number of indexed entries.
func (d *Dictionary) Len() int {
	n := len(d.matching) + len(d.scoring) + len(d.tce)
	for _, codes := range d.codes {
		n += len(codes)
	}
	return n
}
