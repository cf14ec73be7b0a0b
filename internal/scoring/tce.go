package scoring

import (
	"github.com/hla-matching-engine/internal/dictionary"
	"github.com/hla-matching-engine/internal/domain"
)

// TceGroups holds the DPB1 T-cell epitope groups of both positions of a patient and a
// donor. An empty string means the group is unknown.
type TceGroups struct {
	Patient [2]string
	Donor   [2]string
}

// TceMatchType classifies a DPB1 pairing. Group 1 is the most immunogenic, so each side
// is represented by its lowest group. A donor carrying a lower group than the patient is
// non-permissive in the host-versus-graft direction and vice versa.
func TceMatchType(groups TceGroups) domain.TceMatchType {
	patient, ok := lowestTceGroup(groups.Patient)
	if !ok {
		return domain.TceUnknown
	}
	donor, ok := lowestTceGroup(groups.Donor)
	if !ok {
		return domain.TceUnknown
	}
	switch {
	case patient == donor:
		return domain.TcePermissive
	case dictionary.HighestTceGroup([]string{patient, donor}) == patient:
		return domain.TceNonPermissiveHvG
	default:
		return domain.TceNonPermissiveGvH
	}
}

func lowestTceGroup(pair [2]string) (string, bool) {
	if pair[0] == "" || pair[1] == "" {
		return "", false
	}
	if dictionary.HighestTceGroup(pair[:]) == pair[0] {
		return pair[1], true
	}
	return pair[0], true
}
