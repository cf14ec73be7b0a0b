// Package hlatyping parses and classifies HLA typing strings.
package hlatyping

import (
	"strings"
)

const (
	// FieldDelimiter separates the fields of a molecular allele name.
	FieldDelimiter = ":"
	// LocusPrefixDelimiter separates an optional locus prefix from the typing ("A*01:01").
	LocusPrefixDelimiter = "*"
	// StringDelimiter separates the members of an allele string.
	StringDelimiter = "/"
)

// AlleleName is a molecular allele name split into positional fields and an optional
// expression suffix. Fields hold family, subtype, intronic and silent fields in order.
type AlleleName struct {
	fields []string
	suffix string
}

// ParseAlleleName decomposes an allele name, with or without a locus prefix.
// The expression suffix is removed before splitting, so "01:01:01:02N" yields four
// fields and suffix "N". Lower-case suffix characters are not suffixes.
func ParseAlleleName(name string) AlleleName {
	name = StripLocusPrefix(name)
	suffix := GetExpressionSuffix(name)
	trimmed := name[:len(name)-len(suffix)]
	var fields []string
	if trimmed != "" {
		fields = strings.Split(trimmed, FieldDelimiter)
	}
	return AlleleName{fields: fields, suffix: suffix}
}

// Fields returns a copy of the positional fields.
func (a AlleleName) Fields() []string {
	out := make([]string, len(a.fields))
	copy(out, a.fields)
	return out
}

// FieldCount returns the number of fields (1-4 for well-formed names).
func (a AlleleName) FieldCount() int {
	return len(a.fields)
}

// FirstField returns the allele family.
func (a AlleleName) FirstField() string {
	return a.firstFields(1)
}

// FirstTwoFields returns the family and subtype joined by ":".
func (a AlleleName) FirstTwoFields() string {
	return a.firstFields(2)
}

// FirstThreeFields returns the first three fields joined by ":".
func (a AlleleName) FirstThreeFields() string {
	return a.firstFields(3)
}

// AllButLastField returns every field but the last, joined by ":". It is empty for
// single-field names.
func (a AlleleName) AllButLastField() string {
	if len(a.fields) < 2 {
		return ""
	}
	return strings.Join(a.fields[:len(a.fields)-1], FieldDelimiter)
}

// ExpressionSuffix returns the expression suffix, or "".
func (a AlleleName) ExpressionSuffix() string {
	return a.suffix
}

// IsNull reports whether the suffix marks the allele as null-expressing.
func (a AlleleName) IsNull() bool {
	return IsNullSuffix(a.suffix)
}

// WithoutSuffix returns the name with its expression suffix removed.
func (a AlleleName) WithoutSuffix() string {
	return strings.Join(a.fields, FieldDelimiter)
}

// String returns the full name including the suffix.
func (a AlleleName) String() string {
	return a.WithoutSuffix() + a.suffix
}

func (a AlleleName) firstFields(n int) string {
	if len(a.fields) <= n {
		return strings.Join(a.fields, FieldDelimiter)
	}
	return strings.Join(a.fields[:n], FieldDelimiter)
}

// StripLocusPrefix removes a leading "LOCUS*" from a typing, if present.
func StripLocusPrefix(name string) string {
	if i := strings.Index(name, LocusPrefixDelimiter); i >= 0 {
		return name[i+1:]
	}
	return name
}

// LocusPrefix returns the locus part of a prefixed name ("A" for "A*01:01"), or "".
func LocusPrefix(name string) string {
	if i := strings.Index(name, LocusPrefixDelimiter); i >= 0 {
		return name[:i]
	}
	return ""
}
