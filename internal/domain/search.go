package domain

import (
	"time"
)

// LocusTyping holds the two typed positions of a locus. Empty strings mean untyped.
type LocusTyping struct {
	Position1 string `json:"position_1"`
	Position2 string `json:"position_2"`
}

// IsTyped reports whether both positions carry a typing.
func (t LocusTyping) IsTyped() bool {
	return t.Position1 != "" && t.Position2 != ""
}

// PatientTyping is the HLA phenotype of a patient.
type PatientTyping struct {
	PatientID string                `json:"patient_id"`
	Hla       map[Locus]LocusTyping `json:"hla"`
}

// DonorTyping is the HLA phenotype of a candidate donor.
type DonorTyping struct {
	DonorID string                `json:"donor_id"`
	Hla     map[Locus]LocusTyping `json:"hla"`
}

// PositionScore is the grade and confidence assigned to one locus position.
type PositionScore struct {
	Grade      MatchGrade      `json:"grade"`
	Confidence MatchConfidence `json:"confidence"`
}

// IsMatch reports whether the position counts as a match.
func (p PositionScore) IsMatch() bool {
	return p.Confidence != ConfidenceMismatch
}

// Orientation records how donor positions were paired with patient positions.
type Orientation string

const (
	OrientationDirect Orientation = "Direct"
	OrientationCross  Orientation = "Cross"
)

// PerLocusScoreDetails is the score of one locus for one donor.
type PerLocusScoreDetails struct {
	Locus               Locus         `json:"locus"`
	Position1           PositionScore `json:"position_1"`
	Position2           PositionScore `json:"position_2"`
	Orientation         Orientation   `json:"orientation"`
	IsTyped             bool          `json:"is_typed"`
	IsIncluded          bool          `json:"is_included_in_aggregate"`
	MatchCount          int           `json:"match_count"`
	PotentialMatchCount int           `json:"potential_match_count"`
	TceMatchType        TceMatchType  `json:"tce_match_type,omitempty"`
}

// Positions returns both position scores in order.
func (d *PerLocusScoreDetails) Positions() []PositionScore {
	return []PositionScore{d.Position1, d.Position2}
}

// AggregateScore is derived from the per-locus details of a search result.
type AggregateScore struct {
	MatchCount          int             `json:"match_count"`
	PotentialMatchCount int             `json:"potential_match_count"`
	ExactMatchCount     int             `json:"exact_match_count"`
	GradeScore          int             `json:"grade_score"`
	ConfidenceScore     int             `json:"confidence_score"`
	OverallConfidence   MatchConfidence `json:"overall_match_confidence"`
	OverallCategory     MatchCategory   `json:"overall_match_category"`
}

// SearchResult is the scored outcome of one donor against the patient.
type SearchResult struct {
	DonorID             string                  `json:"donor_id"`
	NomenclatureVersion string                  `json:"nomenclature_version"`
	Loci                []*PerLocusScoreDetails `json:"loci"`
	Aggregate           AggregateScore          `json:"aggregate"`
}

// LocusDetails returns the details for a locus, or nil.
func (r *SearchResult) LocusDetails(locus Locus) *PerLocusScoreDetails {
	for _, d := range r.Loci {
		if d.Locus == locus {
			return d
		}
	}
	return nil
}

// LocusGenerationCounts counts the dictionary entries generated for one locus.
type LocusGenerationCounts struct {
	Matching    int                    `json:"matching"`
	Scoring     int                    `json:"scoring"`
	TceGroups   int                    `json:"tce_groups"`
	AlleleCodes int                    `json:"allele_codes"`
	ByCategory  map[TypingCategory]int `json:"by_category"`
}

// DictionaryGenerationReport summarises one dictionary generation run.
type DictionaryGenerationReport struct {
	RunID        string                           `json:"run_id"`
	Version      string                           `json:"version"`
	Loci         map[Locus]*LocusGenerationCounts `json:"loci"`
	SkippedLines map[string]int                   `json:"skipped_lines"`
	StartedAt    time.Time                        `json:"started_at"`
	Duration     time.Duration                    `json:"duration"`
}

// TotalEntries returns the number of entries generated across all loci.
func (r *DictionaryGenerationReport) TotalEntries() int {
	total := 0
	for _, c := range r.Loci {
		total += c.Matching + c.Scoring + c.TceGroups + c.AlleleCodes
	}
	return total
}

// TotalSkippedLines returns the number of malformed nomenclature lines skipped.
func (r *DictionaryGenerationReport) TotalSkippedLines() int {
	total := 0
	for _, n := range r.SkippedLines {
		total += n
	}
	return total
}
