// Package domain contains core entities and types for HLA donor/patient matching.
//
// Matching is performed at six loci (A, B, C, DPB1, DQB1, DRB1). Typings are compared
// through pre-computed, nomenclature-versioned metadata: P-Groups are the matching
// currency, while G-Groups, serology equivalence and null expression feed scoring.
//
// Reference: WMDA Nomenclature Committee for Factors of the HLA System, IMGT/HLA database.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Locus represents an HLA locus considered by the matching engine.
type Locus string

const (
	LocusA    Locus = "A"
	LocusB    Locus = "B"
	LocusC    Locus = "C"
	LocusDPB1 Locus = "DPB1"
	LocusDQB1 Locus = "DQB1"
	LocusDRB1 Locus = "DRB1"
)

// AllLoci is the fixed, ordered set of loci. Iteration order over loci must follow it.
var AllLoci = []Locus{LocusA, LocusB, LocusC, LocusDPB1, LocusDQB1, LocusDRB1}

// legacyLocusAliases maps WMDA serology-era and shorthand locus names onto loci.
// It is the single fallback path consulted by ParseLocus.
var legacyLocusAliases = map[string]Locus{
	"CW": LocusC,
	"DR": LocusDRB1,
	"DQ": LocusDQB1,
	"DP": LocusDPB1,
}

// ParseLocus converts a locus name (optionally suffixed with "*") into a Locus.
func ParseLocus(s string) (Locus, error) {
	name := strings.ToUpper(strings.TrimSuffix(strings.TrimSpace(s), "*"))
	switch Locus(name) {
	case LocusA, LocusB, LocusC, LocusDPB1, LocusDQB1, LocusDRB1:
		return Locus(name), nil
	}
	if l, ok := legacyLocusAliases[name]; ok {
		return l, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLocus, s)
}

// IsValid reports whether the locus is one of the supported loci.
func (l Locus) IsValid() bool {
	switch l {
	case LocusA, LocusB, LocusC, LocusDPB1, LocusDQB1, LocusDRB1:
		return true
	default:
		return false
	}
}

func (l Locus) String() string {
	return string(l)
}

// TypingMethod distinguishes molecular typings from serological ones.
type TypingMethod string

const (
	Molecular TypingMethod = "Molecular"
	Serology  TypingMethod = "Serology"
)

// IsValid reports whether the typing method is known.
func (m TypingMethod) IsValid() bool {
	return m == Molecular || m == Serology
}

// TypingCategory is the syntactic category of an HLA typing string.
type TypingCategory string

const (
	CategoryAllele                 TypingCategory = "Allele"
	CategoryGGroup                 TypingCategory = "GGroup"
	CategoryPGroup                 TypingCategory = "PGroup"
	CategoryAlleleStringOfNames    TypingCategory = "AlleleStringOfNames"
	CategoryAlleleStringOfSubtypes TypingCategory = "AlleleStringOfSubtypes"
	CategoryNmdpCode               TypingCategory = "NmdpCode"
	CategoryXxCode                 TypingCategory = "XxCode"
	CategorySerology               TypingCategory = "Serology"
)

// Method returns the typing method implied by the category.
func (c TypingCategory) Method() TypingMethod {
	if c == CategorySerology {
		return Serology
	}
	return Molecular
}

// IsValid reports whether the category is known.
func (c TypingCategory) IsValid() bool {
	switch c {
	case CategoryAllele, CategoryGGroup, CategoryPGroup, CategoryAlleleStringOfNames,
		CategoryAlleleStringOfSubtypes, CategoryNmdpCode, CategoryXxCode, CategorySerology:
		return true
	default:
		return false
	}
}

// SerologySubtype describes how a serology relates to its WMDA relatives.
type SerologySubtype string

const (
	SubtypeNotSplit   SerologySubtype = "NotSplit"
	SubtypeSplit      SerologySubtype = "Split"
	SubtypeBroad      SerologySubtype = "Broad"
	SubtypeAssociated SerologySubtype = "Associated"
)

// SequenceCompleteness reports whether an allele sequence is fully known.
type SequenceCompleteness string

const (
	SequenceFull    SequenceCompleteness = "Full"
	SequencePartial SequenceCompleteness = "Partial"
	SequenceUnknown SequenceCompleteness = "Unknown"
)

// DnaCategory is the type of sequence an allele has been characterised with.
type DnaCategory string

const (
	GDna       DnaCategory = "gDNA"
	CDna       DnaCategory = "cDNA"
	DnaUnknown DnaCategory = "Unknown"
)

// AlleleTypingStatus holds the sequencing status of an allele, used to grade null matches.
type AlleleTypingStatus struct {
	Completeness SequenceCompleteness `json:"completeness"`
	DnaCategory  DnaCategory          `json:"dna_category"`
}

// UnknownTypingStatus is used when the status file has no entry for an allele.
var UnknownTypingStatus = AlleleTypingStatus{Completeness: SequenceUnknown, DnaCategory: DnaUnknown}

// MatchGrade is the specificity of a match between two typings.
type MatchGrade string

const (
	GradeGDna         MatchGrade = "GDna"
	GradeCDna         MatchGrade = "CDna"
	GradeProtein      MatchGrade = "Protein"
	GradeGGroup       MatchGrade = "GGroup"
	GradePGroup       MatchGrade = "PGroup"
	GradeSerology     MatchGrade = "Serology"
	GradeUnknown      MatchGrade = "Unknown"
	GradeNullGDna     MatchGrade = "NullGDna"
	GradeNullCDna     MatchGrade = "NullCDna"
	GradeNullPartial  MatchGrade = "NullPartial"
	GradeNullMismatch MatchGrade = "NullMismatch"
	GradeMismatch     MatchGrade = "Mismatch"
)

// AllMatchGrades lists grades from most to least specific.
var AllMatchGrades = []MatchGrade{
	GradeGDna, GradeCDna, GradeProtein, GradeGGroup, GradePGroup, GradeSerology, GradeUnknown,
	GradeNullGDna, GradeNullCDna, GradeNullPartial, GradeNullMismatch, GradeMismatch,
}

var gradeRanks = func() map[MatchGrade]int {
	ranks := make(map[MatchGrade]int, len(AllMatchGrades))
	for i, g := range AllMatchGrades {
		ranks[g] = len(AllMatchGrades) - i
	}
	return ranks
}()

// Rank returns a number that is larger for more specific grades. Unknown values rank 0.
func (g MatchGrade) Rank() int {
	return gradeRanks[g]
}

// IsBetterThan reports whether g is strictly more specific than other.
func (g MatchGrade) IsBetterThan(other MatchGrade) bool {
	return g.Rank() > other.Rank()
}

// IsValid reports whether the grade is known.
func (g MatchGrade) IsValid() bool {
	_, ok := gradeRanks[g]
	return ok
}

// IsMismatch reports whether the grade represents a mismatch.
func (g MatchGrade) IsMismatch() bool {
	return g == GradeMismatch || g == GradeNullMismatch
}

// MatchConfidence is the certainty of a match, taking typing ambiguity into account.
type MatchConfidence string

const (
	ConfidenceDefinite  MatchConfidence = "Definite"
	ConfidenceExact     MatchConfidence = "Exact"
	ConfidencePotential MatchConfidence = "Potential"
	ConfidenceMismatch  MatchConfidence = "Mismatch"
)

// AllMatchConfidences lists confidences from most to least confident.
var AllMatchConfidences = []MatchConfidence{
	ConfidenceDefinite, ConfidenceExact, ConfidencePotential, ConfidenceMismatch,
}

var confidenceRanks = map[MatchConfidence]int{
	ConfidenceDefinite:  4,
	ConfidenceExact:     3,
	ConfidencePotential: 2,
	ConfidenceMismatch:  1,
}

// Rank returns a number that is larger for more confident values.
func (c MatchConfidence) Rank() int {
	return confidenceRanks[c]
}

// IsValid reports whether the confidence is known.
func (c MatchConfidence) IsValid() bool {
	_, ok := confidenceRanks[c]
	return ok
}

// MinConfidence returns the least confident of the given values.
// With no arguments it returns ConfidenceDefinite.
func MinConfidence(values ...MatchConfidence) MatchConfidence {
	min := ConfidenceDefinite
	for _, v := range values {
		if v.Rank() < min.Rank() {
			min = v
		}
	}
	return min
}

// MatchCategory is the overall outcome of a donor search result.
type MatchCategory string

const (
	CategoryDefinite           MatchCategory = "Definite"
	CategoryExact              MatchCategory = "Exact"
	CategoryPotential          MatchCategory = "Potential"
	CategoryPermissiveMismatch MatchCategory = "PermissiveMismatch"
	CategoryMismatch           MatchCategory = "Mismatch"
)

// TceMatchType classifies a DPB1 mismatch by T-cell epitope group.
type TceMatchType string

const (
	TcePermissive       TceMatchType = "Permissive"
	TceNonPermissiveGvH TceMatchType = "NonPermissiveGvH"
	TceNonPermissiveHvG TceMatchType = "NonPermissiveHvG"
	TceUnknown          TceMatchType = "Unknown"
)

// LocusPosition identifies one of the two typed positions at a locus.
type LocusPosition int

const (
	PositionOne LocusPosition = 1
	PositionTwo LocusPosition = 2
)

// ErrInvalidLocus is returned when a locus name cannot be parsed.
var ErrInvalidLocus = errors.New("invalid HLA locus")
