// Package scoring grades donor typings against patient typings and aggregates the
// per-locus outcomes into rankable search results.
//
// A grade is the best-case specificity of a match over every interpretation of the two
// typings. A confidence is the worst-case certainty over the same interpretations. The
// two are computed independently.
package scoring

import (
	"github.com/hla-matching-engine/internal/domain"
	"github.com/hla-matching-engine/pkg/hlatyping"
)

// CalculateGrade returns the most specific grade any interpretation pair of the two
// typings achieves. Null-expressing typings are handled by gradeNulls.
func CalculateGrade(patient, donor *domain.ScoringMetadata) domain.MatchGrade {
	if grade, ok := gradeNulls(patient, donor); ok {
		return grade
	}
	if patient.Kind == domain.ScoringSerology || donor.Kind == domain.ScoringSerology {
		return gradeSerology(patient, donor)
	}
	if isAlleleLevel(patient) && isAlleleLevel(donor) {
		best := domain.GradeMismatch
		for _, p := range patient.Alleles {
			for _, d := range donor.Alleles {
				if g := gradeAlleles(p, d); g.IsBetterThan(best) {
					best = g
				}
			}
		}
		return best
	}
	return gradeGroups(patient, donor)
}

// gradeNulls resolves pairs where at least one side is null-expressing.
func gradeNulls(patient, donor *domain.ScoringMetadata) (domain.MatchGrade, bool) {
	patientNull, donorNull := patient.IsNullExpressing(), donor.IsNullExpressing()
	switch {
	case patientNull && donorNull:
		status, same := sharedNullAllele(patient, donor)
		if !same {
			return domain.GradeNullMismatch, true
		}
		return nullGrade(status), true
	case patientNull || donorNull:
		return domain.GradeMismatch, true
	default:
		return "", false
	}
}

// sharedNullAllele reports whether two null typings can be the same allele. Each shared
// allele is graded by the less complete of its two statuses and the best one is returned.
func sharedNullAllele(patient, donor *domain.ScoringMetadata) (domain.AlleleTypingStatus, bool) {
	if !isAlleleLevel(patient) || !isAlleleLevel(donor) {
		// Consolidated null groups only keep their G-Groups.
		return domain.UnknownTypingStatus, intersects(patient.AllGGroups(), donor.AllGGroups())
	}
	var (
		status domain.AlleleTypingStatus
		found  bool
	)
	for _, p := range patient.Alleles {
		for _, d := range donor.Alleles {
			if p.AlleleName != d.AlleleName {
				continue
			}
			worse := worseStatus(p.Status, d.Status)
			if !found || nullGrade(worse).IsBetterThan(nullGrade(status)) {
				status = worse
			}
			found = true
		}
	}
	return status, found
}

func nullGrade(status domain.AlleleTypingStatus) domain.MatchGrade {
	switch {
	case status.Completeness != domain.SequenceFull:
		return domain.GradeNullPartial
	case status.DnaCategory == domain.GDna:
		return domain.GradeNullGDna
	default:
		return domain.GradeNullCDna
	}
}

func worseStatus(a, b domain.AlleleTypingStatus) domain.AlleleTypingStatus {
	if nullGrade(b).IsBetterThan(nullGrade(a)) {
		return a
	}
	return b
}

// gradeAlleles compares two concrete alleles by decreasing specificity.
func gradeAlleles(p, d domain.SingleAlleleInfo) domain.MatchGrade {
	if p.AlleleName == d.AlleleName {
		return domain.GradeGDna
	}
	pn, dn := hlatyping.ParseAlleleName(p.AlleleName), hlatyping.ParseAlleleName(d.AlleleName)
	if pn.FieldCount() >= 3 && dn.FieldCount() >= 3 && pn.FirstThreeFields() == dn.FirstThreeFields() {
		return domain.GradeCDna
	}
	if pn.FieldCount() >= 2 && dn.FieldCount() >= 2 && pn.FirstTwoFields() == dn.FirstTwoFields() {
		return domain.GradeProtein
	}
	if p.MatchingGGroup != "" && p.MatchingGGroup == d.MatchingGGroup {
		return domain.GradeGGroup
	}
	if p.MatchingPGroup != "" && p.MatchingPGroup == d.MatchingPGroup {
		return domain.GradePGroup
	}
	if intersects(serologyNames(p.MatchingSerologies), serologyNames(d.MatchingSerologies)) {
		return domain.GradeSerology
	}
	return domain.GradeMismatch
}

// gradeGroups compares typings of which at least one only carries group sets.
func gradeGroups(patient, donor *domain.ScoringMetadata) domain.MatchGrade {
	switch {
	case intersects(patient.AllGGroups(), donor.AllGGroups()):
		return domain.GradeGGroup
	case intersects(patient.AllPGroups(), donor.AllPGroups()):
		return domain.GradePGroup
	case intersects(serologyNames(patient.AllSerologies()), serologyNames(donor.AllSerologies())):
		return domain.GradeSerology
	default:
		return domain.GradeMismatch
	}
}

// gradeSerology caps the grade at Serology when either side was typed serologically.
func gradeSerology(patient, donor *domain.ScoringMetadata) domain.MatchGrade {
	if intersects(serologyNames(patient.AllSerologies()), serologyNames(donor.AllSerologies())) ||
		intersects(patient.AllPGroups(), donor.AllPGroups()) {
		return domain.GradeSerology
	}
	return domain.GradeMismatch
}

func isAlleleLevel(s *domain.ScoringMetadata) bool {
	return s.Kind == domain.ScoringSingleAllele || s.Kind == domain.ScoringMultipleAllele
}

func serologyNames(entries []domain.SerologyEntry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
