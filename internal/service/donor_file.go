package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/hla-matching-engine/internal/domain"
)

// JSONFileDonorSource streams donors from a file holding a JSON array of donor typings.
// The file is reopened on every pass, so the source can be iterated more than once.
type JSONFileDonorSource struct {
	Path string
}

// ForEachCandidate decodes one donor at a time and calls fn with it.
func (s JSONFileDonorSource) ForEachCandidate(ctx context.Context, fn func(domain.DonorTyping) error) error {
	f, err := os.Open(s.Path)
	if err != nil {
		return fmt.Errorf("failed to open donor file: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("failed to read donor file %s: %w", s.Path, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return fmt.Errorf("donor file %s: expected a JSON array", s.Path)
	}

	for i := 0; dec.More(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		var donor domain.DonorTyping
		if err := dec.Decode(&donor); err != nil {
			return fmt.Errorf("donor file %s: record %d: %w", s.Path, i, err)
		}
		hla, err := CanonicalHla(donor.Hla)
		if err != nil {
			return fmt.Errorf("donor file %s: donor %s: %w", s.Path, donor.DonorID, err)
		}
		donor.Hla = hla
		if err := fn(donor); err != nil {
			return err
		}
	}
	return nil
}

// CanonicalHla rewrites locus keys such as "a", "Cw" or "DRB1*" to their canonical loci.
func CanonicalHla(hla map[domain.Locus]domain.LocusTyping) (map[domain.Locus]domain.LocusTyping, error) {
	out := make(map[domain.Locus]domain.LocusTyping, len(hla))
	for key, typing := range hla {
		locus, err := domain.ParseLocus(string(key))
		if err != nil {
			return nil, err
		}
		if _, dup := out[locus]; dup {
			return nil, fmt.Errorf("locus %s typed more than once", locus)
		}
		out[locus] = typing
	}
	return out, nil
}
