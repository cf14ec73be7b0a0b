package scoring

import (
	"github.com/hla-matching-engine/internal/domain"
)

// CalculateConfidence returns the worst-case certainty of a match over every P-Group
// interpretation of the two typings. Null-expressing typings are Definite when they can
// be the same allele and a Mismatch otherwise.
func CalculateConfidence(patient, donor *domain.ScoringMetadata) domain.MatchConfidence {
	patientNull, donorNull := patient.IsNullExpressing(), donor.IsNullExpressing()
	if patientNull || donorNull {
		if patientNull && donorNull {
			if _, same := sharedNullAllele(patient, donor); same {
				return domain.ConfidenceDefinite
			}
		}
		return domain.ConfidenceMismatch
	}

	pInterp, dInterp := interpretations(patient), interpretations(donor)
	if len(pInterp) == 0 || len(dInterp) == 0 {
		// A serology with no expressed alleles can still match by name.
		if intersects(serologyNames(patient.AllSerologies()), serologyNames(donor.AllSerologies())) {
			return domain.ConfidencePotential
		}
		return domain.ConfidenceMismatch
	}

	matched, total := 0, 0
	for _, p := range pInterp {
		for _, d := range dInterp {
			total++
			if p == d {
				matched++
			}
		}
	}

	switch {
	case matched == 0:
		return domain.ConfidenceMismatch
	case matched < total:
		return domain.ConfidencePotential
	case patient.Kind == domain.ScoringSerology || donor.Kind == domain.ScoringSerology:
		return domain.ConfidencePotential
	case patient.IsSingleAllele() && donor.IsSingleAllele():
		return domain.ConfidenceDefinite
	default:
		return domain.ConfidenceExact
	}
}

// interpretations returns the distinct P-Groups a typing may resolve to.
func interpretations(s *domain.ScoringMetadata) []string {
	return s.AllPGroups()
}
