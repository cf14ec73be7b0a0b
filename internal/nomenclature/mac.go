package nomenclature

import (
	"regexp"
	"sort"
	"strings"

	"github.com/hla-matching-engine/internal/domain"
	"github.com/hla-matching-engine/pkg/hlatyping"
)

var macCodePattern = regexp.MustCompile(`^[A-Z]{2,4}$`)

// MacDictionary expands NMDP multiple allele codes. A code maps to a list of members:
// bare subtypes ("01/02") are combined with the family of the typing being expanded,
// family-qualified names ("01:01/02:01") are used as they are.
type MacDictionary struct {
	codes map[string][]string
}

// NewMacDictionary creates an empty dictionary.
func NewMacDictionary() *MacDictionary {
	return &MacDictionary{codes: make(map[string][]string)}
}

// Add registers a code. It reports false if the code or members are malformed.
func (m *MacDictionary) Add(code, members string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !macCodePattern.MatchString(code) || code == "XX" {
		return false
	}
	parts := strings.Split(strings.TrimSpace(members), hlatyping.StringDelimiter)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return false
		}
		out = append(out, p)
	}
	m.codes[code] = out
	return true
}

// Len returns the number of known codes.
func (m *MacDictionary) Len() int {
	return len(m.codes)
}

// Entries returns every code with its raw members, ordered by code.
func (m *MacDictionary) Entries() []domain.AlleleCodeEntry {
	out := make([]domain.AlleleCodeEntry, 0, len(m.codes))
	for code, members := range m.codes {
		copied := make([]string, len(members))
		copy(copied, members)
		out = append(out, domain.AlleleCodeEntry{Code: code, Members: copied})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Expand returns the allele names an NMDP code stands for within a family.
func (m *MacDictionary) Expand(family, code string) ([]string, bool) {
	members, ok := m.codes[strings.ToUpper(code)]
	if !ok {
		return nil, false
	}
	return ExpandCodeMembers(family, members), true
}

// ExpandCodeMembers qualifies the members of an NMDP code with a family. Members that
// already carry a family are kept as they are.
func ExpandCodeMembers(family string, members []string) []string {
	out := make([]string, len(members))
	for i, member := range members {
		if strings.Contains(member, hlatyping.FieldDelimiter) {
			out[i] = member
		} else {
			out[i] = family + hlatyping.FieldDelimiter + member
		}
	}
	return out
}
