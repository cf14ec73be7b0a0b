package hlatyping

import (
	"regexp"
	"strings"

	"github.com/hla-matching-engine/internal/domain"
)

// Building blocks of the typing grammar.
const (
	firstFieldPattern = `\d{2,3}`
	laterFieldPattern = `\d{2,4}`
	suffixPattern     = `[NCSLQA]?`
	allelePattern     = firstFieldPattern + `(?::` + laterFieldPattern + `){0,3}` + suffixPattern

	// String members always carry at least two fields; a bare "02" is a subtype.
	alleleMemberPattern  = firstFieldPattern + `(?::` + laterFieldPattern + `){1,3}` + suffixPattern
	subtypeMemberPattern = laterFieldPattern + suffixPattern
)

// Rule is one entry of the ordered classification table.
type Rule struct {
	Category domain.TypingCategory
	Pattern  *regexp.Regexp
	// Reject, when set, vetoes a pattern match.
	Reject func(name string) bool
}

// Matches reports whether the rule accepts the normalised name.
func (r Rule) Matches(name string) bool {
	if !r.Pattern.MatchString(name) {
		return false
	}
	return r.Reject == nil || !r.Reject(name)
}

// classificationRules is ordered from most to least specific. The patterns overlap, so
// the order is part of the contract: the first matching rule wins.
var classificationRules = []Rule{
	{
		Category: domain.CategoryNmdpCode,
		Pattern:  regexp.MustCompile(`^` + firstFieldPattern + `:[A-Z]{2,4}$`),
		Reject:   func(name string) bool { return strings.HasSuffix(name, ":XX") },
	},
	{
		Category: domain.CategoryXxCode,
		Pattern:  regexp.MustCompile(`^` + firstFieldPattern + `:XX$`),
	},
	{
		Category: domain.CategoryGGroup,
		Pattern:  regexp.MustCompile(`^` + firstFieldPattern + `:` + laterFieldPattern + `:` + laterFieldPattern + `G$`),
	},
	{
		Category: domain.CategoryPGroup,
		Pattern:  regexp.MustCompile(`^` + firstFieldPattern + `:` + laterFieldPattern + `P$`),
	},
	{
		Category: domain.CategorySerology,
		Pattern:  regexp.MustCompile(`^[1-9]\d*$`),
	},
	{
		Category: domain.CategoryAllele,
		Pattern:  regexp.MustCompile(`^` + allelePattern + `$`),
	},
	{
		Category: domain.CategoryAlleleStringOfNames,
		Pattern:  regexp.MustCompile(`^` + alleleMemberPattern + `(?:/` + alleleMemberPattern + `)+$`),
	},
	{
		Category: domain.CategoryAlleleStringOfSubtypes,
		Pattern:  regexp.MustCompile(`^` + firstFieldPattern + `:` + subtypeMemberPattern + `(?:/` + subtypeMemberPattern + `)+$`),
	},
}

// Rules returns a copy of the ordered classification table.
func Rules() []Rule {
	out := make([]Rule, len(classificationRules))
	copy(out, classificationRules)
	return out
}

// Normalize trims and upper-cases a typing and removes locus prefixes from every member.
func Normalize(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	if !strings.Contains(name, LocusPrefixDelimiter) {
		return name
	}
	members := strings.Split(name, StringDelimiter)
	for i, m := range members {
		members[i] = StripLocusPrefix(m)
	}
	return strings.Join(members, StringDelimiter)
}

// Classify returns the typing category of an HLA name. The name is normalised first.
func Classify(name string) (domain.TypingCategory, error) {
	normalized := Normalize(name)
	for _, rule := range classificationRules {
		if rule.Matches(normalized) {
			return rule.Category, nil
		}
	}
	return "", &domain.UnrecognizedTypingError{Name: name}
}

