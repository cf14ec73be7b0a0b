package hlatyping

// ExpressionSuffixes lists the recognised expression suffix characters.
const ExpressionSuffixes = "NCSLQA"

// NullExpressionSuffix marks an allele that expresses no protein.
const NullExpressionSuffix = "N"

// GetExpressionSuffix returns the trailing expression suffix of an allele name, or "".
// It runs for every allele at dictionary build time and for every comparison at grading
// time, so it inspects the last byte only. Lower-case characters are never suffixes.
func GetExpressionSuffix(name string) string {
	if len(name) == 0 {
		return ""
	}
	switch name[len(name)-1] {
	case 'N', 'C', 'S', 'L', 'Q', 'A':
		return name[len(name)-1:]
	default:
		return ""
	}
}

// IsNullSuffix reports whether a suffix denotes a null allele.
func IsNullSuffix(suffix string) bool {
	return suffix == NullExpressionSuffix
}

// IsNullAllele reports whether an allele name carries the null suffix.
func IsNullAllele(name string) bool {
	return IsNullSuffix(GetExpressionSuffix(name))
}

// RemoveExpressionSuffix returns the name without a trailing expression suffix.
func RemoveExpressionSuffix(name string) string {
	return name[:len(name)-len(GetExpressionSuffix(name))]
}
