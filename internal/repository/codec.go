package repository

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hla-matching-engine/internal/domain"
)

// Entry kinds as stored in the kind column.
const (
	kindMatching   = "matching"
	kindScoring    = "scoring"
	kindTce        = "tce"
	kindAlleleCode = "allele_code"
)

// row is the flattened, storage-level form of a MetadataEntry.
type row struct {
	Locus      string
	Method     string
	LookupName string
	Kind       string
	Payload    []byte
}

// encodeEntry serialises the populated payload of an entry.
func encodeEntry(e domain.MetadataEntry) (row, error) {
	var (
		payload interface{}
		kind    = e.EntryKind()
	)
	switch kind {
	case kindMatching:
		payload = e.Matching
	case kindScoring:
		payload = e.Scoring
	case kindTce:
		payload = e.Tce
	case kindAlleleCode:
		payload = e.AlleleCode
	default:
		return row{}, fmt.Errorf("entry %s*%s has no payload", e.Locus, e.LookupName)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return row{}, fmt.Errorf("failed to marshal %s entry %s*%s: %w", kind, e.Locus, e.LookupName, err)
	}
	return row{
		Locus:      string(e.Locus),
		Method:     string(e.Method),
		LookupName: e.LookupName,
		Kind:       kind,
		Payload:    data,
	}, nil
}

// decodeEntry rebuilds an entry from its stored form.
func decodeEntry(r row) (domain.MetadataEntry, error) {
	e := domain.MetadataEntry{
		Locus:      domain.Locus(r.Locus),
		Method:     domain.TypingMethod(r.Method),
		LookupName: r.LookupName,
	}
	var target interface{}
	switch r.Kind {
	case kindMatching:
		e.Matching = &domain.MatchingMetadata{}
		target = e.Matching
	case kindScoring:
		e.Scoring = &domain.ScoringMetadata{}
		target = e.Scoring
	case kindTce:
		e.Tce = &domain.TceGroupEntry{}
		target = e.Tce
	case kindAlleleCode:
		e.AlleleCode = &domain.AlleleCodeEntry{}
		target = e.AlleleCode
	default:
		return e, fmt.Errorf("unknown entry kind %q for %s*%s", r.Kind, r.Locus, r.LookupName)
	}
	if err := json.Unmarshal(r.Payload, target); err != nil {
		return e, fmt.Errorf("failed to unmarshal %s entry %s*%s: %w", r.Kind, r.Locus, r.LookupName, err)
	}
	return e, nil
}

// locusOrder sorts loci in domain.AllLoci order.
var locusOrder = func() map[domain.Locus]int {
	m := make(map[domain.Locus]int, len(domain.AllLoci))
	for i, l := range domain.AllLoci {
		m[l] = i
	}
	return m
}()

// sortByLocus orders entries in domain.AllLoci order, keeping the stored order within
// a locus.
func sortByLocus(entries []domain.MetadataEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return locusOrder[entries[i].Locus] < locusOrder[entries[j].Locus]
	})
}
