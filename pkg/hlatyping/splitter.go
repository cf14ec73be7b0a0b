package hlatyping

import (
	"fmt"
	"strings"

	"github.com/hla-matching-engine/internal/domain"
)

// SplitAlleleString expands an allele string into its member allele names.
//
//	"01:01/01:02N" (names)    -> ["01:01", "01:02N"]
//	"01:01/02/03N" (subtypes) -> ["01:01", "01:02", "01:03N"]
//
// Any other category yields the normalised name as its only member.
func SplitAlleleString(name string, category domain.TypingCategory) ([]string, error) {
	normalized := Normalize(name)
	switch category {
	case domain.CategoryAlleleStringOfNames:
		return strings.Split(normalized, StringDelimiter), nil
	case domain.CategoryAlleleStringOfSubtypes:
		i := strings.Index(normalized, FieldDelimiter)
		if i < 0 {
			return nil, fmt.Errorf("splitting allele string %q: %w", name, &domain.UnrecognizedTypingError{Name: name})
		}
		family := normalized[:i]
		subtypes := strings.Split(normalized[i+1:], StringDelimiter)
		members := make([]string, len(subtypes))
		for j, sub := range subtypes {
			members[j] = family + FieldDelimiter + sub
		}
		return members, nil
	default:
		return []string{normalized}, nil
	}
}

// XxCodeLookupName returns the first-field lookup name of an XX code ("01:XX" -> "01").
func XxCodeLookupName(name string) string {
	normalized := Normalize(name)
	if i := strings.Index(normalized, FieldDelimiter); i >= 0 {
		return normalized[:i]
	}
	return normalized
}

// NmdpCodeParts splits an NMDP code into its family and letter code ("01:AB" -> "01", "AB").
func NmdpCodeParts(name string) (family, code string) {
	normalized := Normalize(name)
	i := strings.Index(normalized, FieldDelimiter)
	if i < 0 {
		return "", normalized
	}
	return normalized[:i], normalized[i+1:]
}
