package nomenclature

import (
	"sort"

	"github.com/hla-matching-engine/internal/domain"
	"github.com/hla-matching-engine/pkg/hlatyping"
)

// SerologyRelationship is one row of the WMDA serology-to-serology table: a serology and
// the splits and associated antigens declared for it.
type SerologyRelationship struct {
	Locus      domain.Locus
	Name       string
	Splits     []string
	Associated []string
}

// TceAssignment holds the DPB1 T-cell epitope groups of one allele under both schemes.
type TceAssignment struct {
	V1 string
	V2 string
}

// Group returns the V2 assignment, falling back to V1.
func (t TceAssignment) Group() string {
	if t.V2 != "" {
		return t.V2
	}
	return t.V1
}

// IngestionReport counts the lines dropped while parsing a release.
type IngestionReport struct {
	SkippedLines map[string]int
}

func (r *IngestionReport) skip(file string) {
	r.SkippedLines[file]++
}

// TotalSkipped returns the number of skipped lines over all files.
func (r *IngestionReport) TotalSkipped() int {
	total := 0
	for _, n := range r.SkippedLines {
		total += n
	}
	return total
}

// Dataset is an immutable nomenclature release. It is built once by Repository.Load and
// must not be modified afterwards.
type Dataset struct {
	Version string

	alleles     map[domain.Locus][]string
	alleleSet   map[domain.Locus]map[string]struct{}
	gGroups     map[domain.Locus]map[string][]string
	pGroups     map[domain.Locus]map[string][]string
	alleleToG   map[domain.Locus]map[string]string
	alleleToP   map[domain.Locus]map[string]string
	statuses    map[domain.Locus]map[string]domain.AlleleTypingStatus
	serologies  map[domain.Locus][]SerologyRelationship
	dnaSerology map[domain.Locus]map[string][]string
	renames     map[domain.Locus]map[string]string
	tce         map[string]TceAssignment
	macs        *MacDictionary

	Report IngestionReport
}

func newDataset(version string) *Dataset {
	return &Dataset{
		Version:     version,
		alleles:     make(map[domain.Locus][]string),
		alleleSet:   make(map[domain.Locus]map[string]struct{}),
		gGroups:     make(map[domain.Locus]map[string][]string),
		pGroups:     make(map[domain.Locus]map[string][]string),
		alleleToG:   make(map[domain.Locus]map[string]string),
		alleleToP:   make(map[domain.Locus]map[string]string),
		statuses:    make(map[domain.Locus]map[string]domain.AlleleTypingStatus),
		serologies:  make(map[domain.Locus][]SerologyRelationship),
		dnaSerology: make(map[domain.Locus]map[string][]string),
		renames:     make(map[domain.Locus]map[string]string),
		tce:         make(map[string]TceAssignment),
		macs:        NewMacDictionary(),
		Report:      IngestionReport{SkippedLines: make(map[string]int)},
	}
}

// Alleles returns the sorted allele names of a locus, without locus prefix.
func (d *Dataset) Alleles(locus domain.Locus) []string {
	return d.alleles[locus]
}

// HasAllele reports whether the allele is part of the release.
func (d *Dataset) HasAllele(locus domain.Locus, allele string) bool {
	_, ok := d.alleleSet[locus][allele]
	return ok
}

// GGroups returns G-Group name to member alleles for a locus.
func (d *Dataset) GGroups(locus domain.Locus) map[string][]string {
	return d.gGroups[locus]
}

// PGroups returns P-Group name to member alleles for a locus.
func (d *Dataset) PGroups(locus domain.Locus) map[string][]string {
	return d.pGroups[locus]
}

// GGroupOf returns the G-Group of an allele. An allele absent from the G-Group file is
// its own group.
func (d *Dataset) GGroupOf(locus domain.Locus, allele string) string {
	if g, ok := d.alleleToG[locus][allele]; ok {
		return g
	}
	return allele
}

// PGroupOf returns the P-Group of an expressing allele, or "" for a null allele.
// An expressing allele absent from the P-Group file is its own group.
func (d *Dataset) PGroupOf(locus domain.Locus, allele string) string {
	if hlatyping.IsNullAllele(allele) {
		return ""
	}
	if p, ok := d.alleleToP[locus][allele]; ok {
		return p
	}
	return allele
}

// Status returns the sequencing status of an allele.
func (d *Dataset) Status(locus domain.Locus, allele string) domain.AlleleTypingStatus {
	if s, ok := d.statuses[locus][allele]; ok {
		return s
	}
	return domain.UnknownTypingStatus
}

// SerologyRelationships returns the declared serology rows of a locus, sorted by name.
func (d *Dataset) SerologyRelationships(locus domain.Locus) []SerologyRelationship {
	return d.serologies[locus]
}

// AssignedSerologies returns the serologies an allele is assigned to by the WMDA
// DNA-to-serology table.
func (d *Dataset) AssignedSerologies(locus domain.Locus, allele string) []string {
	return d.dnaSerology[locus][allele]
}

// Renames returns former allele names mapped to their current names.
func (d *Dataset) Renames(locus domain.Locus) map[string]string {
	return d.renames[locus]
}

// TceAssignment returns the DPB1 TCE assignment of an allele.
func (d *Dataset) TceAssignment(allele string) (TceAssignment, bool) {
	t, ok := d.tce[allele]
	return t, ok
}

// MacCodes returns the NMDP allele code dictionary of the release.
func (d *Dataset) MacCodes() *MacDictionary {
	return d.macs
}

func (d *Dataset) addAllele(locus domain.Locus, allele string) {
	set := d.alleleSet[locus]
	if set == nil {
		set = make(map[string]struct{})
		d.alleleSet[locus] = set
	}
	if _, ok := set[allele]; ok {
		return
	}
	set[allele] = struct{}{}
	d.alleles[locus] = append(d.alleles[locus], allele)
}

func (d *Dataset) finalize() {
	for locus := range d.alleles {
		sort.Strings(d.alleles[locus])
	}
	for locus := range d.serologies {
		rows := d.serologies[locus]
		sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	}
}

func addGroup(groups map[domain.Locus]map[string][]string, index map[domain.Locus]map[string]string,
	locus domain.Locus, group string, members []string) {
	if groups[locus] == nil {
		groups[locus] = make(map[string][]string)
		index[locus] = make(map[string]string)
	}
	groups[locus][group] = append(groups[locus][group], members...)
	for _, m := range members {
		index[locus][m] = group
	}
}
