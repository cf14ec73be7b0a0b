package nomenclature

import (
	"strings"

	"github.com/hla-matching-engine/internal/domain"
	"github.com/hla-matching-engine/pkg/hlatyping"
)

const (
	csvSeparator   = ","
	wmdaSeparator  = ";"
	macSeparator   = "\t"
	historyDeleted = "NA"
)

// Values in rel_dna_ser.txt that carry no serology.
var unassignedSerologies = map[string]bool{"": true, "?": true, "0": true}

// isHeader reports whether line is the descriptive column header of a comma file.
func isHeader(index int, line string) bool {
	return index == 0 && !strings.Contains(line, hlatyping.LocusPrefixDelimiter)
}

// splitPrefixedAllele splits "A*01:01" into its locus and allele. known is false when the
// locus is not one the engine matches on; such lines are ignored rather than counted.
func splitPrefixedAllele(s string) (locus domain.Locus, allele string, known, ok bool) {
	prefix := hlatyping.LocusPrefix(s)
	if prefix == "" {
		return "", "", false, false
	}
	allele = hlatyping.StripLocusPrefix(s)
	if !isAlleleName(allele) {
		return "", "", false, false
	}
	l, err := domain.ParseLocus(prefix)
	if err != nil {
		return "", allele, false, true
	}
	return l, allele, true, true
}

func isAlleleName(s string) bool {
	category, err := hlatyping.Classify(s)
	return err == nil && category == domain.CategoryAllele && s == hlatyping.Normalize(s)
}

func isSerologyName(s string) bool {
	category, err := hlatyping.Classify(s)
	return err == nil && category == domain.CategorySerology
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, hlatyping.StringDelimiter) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseAlleleList reads "HLA_ID,LOCUS*allele".
func parseAlleleList(ds *Dataset, lines []string) {
	for i, line := range lines {
		if isHeader(i, line) {
			continue
		}
		fields := strings.Split(line, csvSeparator)
		if len(fields) < 2 {
			ds.Report.skip(FileAlleleList)
			continue
		}
		locus, allele, known, ok := splitPrefixedAllele(strings.TrimSpace(fields[1]))
		if !ok {
			ds.Report.skip(FileAlleleList)
			continue
		}
		if known {
			ds.addAllele(locus, allele)
		}
	}
}

// parseGroups reads "LOCUS*;a1/a2/...;group". An empty group field makes the joined member
// list the group name. P-Groups never contain null alleles.
func parseGroups(ds *Dataset, lines []string, file string) {
	pGroups := file == FilePGroups
	for _, line := range lines {
		fields := strings.Split(line, wmdaSeparator)
		if len(fields) != 3 {
			ds.Report.skip(file)
			continue
		}
		locus, err := domain.ParseLocus(fields[0])
		if err != nil {
			if !strings.HasSuffix(strings.TrimSpace(fields[0]), hlatyping.LocusPrefixDelimiter) {
				ds.Report.skip(file)
			}
			continue
		}
		members := splitList(fields[1])
		valid := len(members) > 0
		for _, m := range members {
			if !isAlleleName(m) {
				valid = false
				break
			}
		}
		if !valid {
			ds.Report.skip(file)
			continue
		}

		group := strings.TrimSpace(fields[2])
		if group == "" {
			group = strings.Join(members, hlatyping.StringDelimiter)
		}

		if pGroups {
			expressing := make([]string, 0, len(members))
			for _, m := range members {
				if !hlatyping.IsNullAllele(m) {
					expressing = append(expressing, m)
				}
			}
			if len(expressing) == 0 {
				continue
			}
			addGroup(ds.pGroups, ds.alleleToP, locus, group, expressing)
			continue
		}
		addGroup(ds.gGroups, ds.alleleToG, locus, group, members)
	}
}

// parseAlleleStatus reads "LOCUS*allele,...,Full|Partial,gDNA|cDNA".
func parseAlleleStatus(ds *Dataset, lines []string) {
	for i, line := range lines {
		if isHeader(i, line) {
			continue
		}
		fields := strings.Split(line, csvSeparator)
		if len(fields) < 3 {
			ds.Report.skip(FileAlleleStatus)
			continue
		}

		var locus domain.Locus
		var allele string
		var known, ok bool
		for _, f := range fields[:len(fields)-2] {
			if strings.Contains(f, hlatyping.LocusPrefixDelimiter) {
				locus, allele, known, ok = splitPrefixedAllele(strings.TrimSpace(f))
				break
			}
		}
		completeness, okC := parseCompleteness(fields[len(fields)-2])
		dna, okD := parseDnaCategory(fields[len(fields)-1])
		if !ok || !okC || !okD {
			ds.Report.skip(FileAlleleStatus)
			continue
		}
		if !known {
			continue
		}
		if ds.statuses[locus] == nil {
			ds.statuses[locus] = make(map[string]domain.AlleleTypingStatus)
		}
		ds.statuses[locus][allele] = domain.AlleleTypingStatus{Completeness: completeness, DnaCategory: dna}
	}
}

func parseCompleteness(s string) (domain.SequenceCompleteness, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full":
		return domain.SequenceFull, true
	case "partial":
		return domain.SequencePartial, true
	default:
		return "", false
	}
}

func parseDnaCategory(s string) (domain.DnaCategory, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gdna":
		return domain.GDna, true
	case "cdna":
		return domain.CDna, true
	default:
		return "", false
	}
}

// parseSerologyRelationships reads "LOCUS;serology;splits;associated".
func parseSerologyRelationships(ds *Dataset, lines []string) {
	for _, line := range lines {
		fields := strings.Split(line, wmdaSeparator)
		if len(fields) < 2 || len(fields) > 4 {
			ds.Report.skip(FileSerologyRels)
			continue
		}
		for len(fields) < 4 {
			fields = append(fields, "")
		}
		name := strings.TrimSpace(fields[1])
		splits := splitList(fields[2])
		associated := splitList(fields[3])
		if !isSerologyName(name) || !allSerologyNames(splits) || !allSerologyNames(associated) {
			ds.Report.skip(FileSerologyRels)
			continue
		}
		locus, err := domain.ParseLocus(fields[0])
		if err != nil {
			continue
		}
		ds.serologies[locus] = append(ds.serologies[locus], SerologyRelationship{
			Locus:      locus,
			Name:       name,
			Splits:     splits,
			Associated: associated,
		})
	}
}

func allSerologyNames(names []string) bool {
	for _, n := range names {
		if !isSerologyName(n) {
			return false
		}
	}
	return true
}

// parseDnaSerologyRelationships reads "LOCUS*;allele;unambiguous;possible;assumed;expert".
func parseDnaSerologyRelationships(ds *Dataset, lines []string) {
	for _, line := range lines {
		fields := strings.Split(line, wmdaSeparator)
		if len(fields) < 3 {
			ds.Report.skip(FileDnaSerologyRel)
			continue
		}
		allele := strings.TrimSpace(fields[1])
		if !isAlleleName(allele) {
			ds.Report.skip(FileDnaSerologyRel)
			continue
		}
		locus, err := domain.ParseLocus(fields[0])
		if err != nil {
			continue
		}

		seen := make(map[string]struct{})
		var assigned []string
		for _, column := range fields[2:] {
			for _, s := range splitList(column) {
				if unassignedSerologies[s] || !isSerologyName(s) {
					continue
				}
				if _, dup := seen[s]; dup {
					continue
				}
				seen[s] = struct{}{}
				assigned = append(assigned, s)
			}
		}
		if len(assigned) == 0 {
			continue
		}
		if ds.dnaSerology[locus] == nil {
			ds.dnaSerology[locus] = make(map[string][]string)
		}
		ds.dnaSerology[locus][allele] = assigned
	}
}

// parseAlleleHistory reads "HLA_ID,newest,...,oldest" and records every former name of a
// current allele that is not itself a current allele name.
func parseAlleleHistory(ds *Dataset, lines []string) {
	for i, line := range lines {
		if isHeader(i, line) {
			continue
		}
		fields := strings.Split(line, csvSeparator)
		if len(fields) < 2 {
			ds.Report.skip(FileAlleleHistory)
			continue
		}
		current := strings.TrimSpace(fields[1])
		if current == "" || current == historyDeleted {
			continue
		}
		locus, currentAllele, known, ok := splitPrefixedAllele(current)
		if !ok {
			ds.Report.skip(FileAlleleHistory)
			continue
		}
		if !known || !ds.HasAllele(locus, currentAllele) {
			continue
		}
		for _, former := range fields[2:] {
			former = hlatyping.StripLocusPrefix(strings.TrimSpace(former))
			if former == "" || former == historyDeleted || former == currentAllele {
				continue
			}
			if !isAlleleName(former) || ds.HasAllele(locus, former) {
				continue
			}
			if ds.renames[locus] == nil {
				ds.renames[locus] = make(map[string]string)
			}
			ds.renames[locus][former] = currentAllele
		}
	}
}

// parseDpb1Tce reads "DPB1*allele,V1,V2[,...]".
func parseDpb1Tce(ds *Dataset, lines []string) {
	for i, line := range lines {
		if isHeader(i, line) {
			continue
		}
		fields := strings.Split(line, csvSeparator)
		if len(fields) < 2 {
			ds.Report.skip(FileDpb1Tce)
			continue
		}
		locus, allele, known, ok := splitPrefixedAllele(strings.TrimSpace(fields[0]))
		if !ok || !known || locus != domain.LocusDPB1 {
			ds.Report.skip(FileDpb1Tce)
			continue
		}
		assignment := TceAssignment{V1: strings.TrimSpace(fields[1])}
		if len(fields) > 2 {
			assignment.V2 = strings.TrimSpace(fields[2])
		}
		if assignment.Group() == "" {
			continue
		}
		ds.tce[allele] = assignment
	}
}

// parseNmdpCodes reads "[*]<TAB>CODE<TAB>members".
func parseNmdpCodes(ds *Dataset, lines []string) {
	for _, line := range lines {
		fields := strings.Split(line, macSeparator)
		var code, members string
		switch len(fields) {
		case 2:
			code, members = fields[0], fields[1]
		case 3:
			code, members = fields[1], fields[2]
		default:
			ds.Report.skip(FileNmdpCodes)
			continue
		}
		if !ds.macs.Add(code, members) {
			ds.Report.skip(FileNmdpCodes)
		}
	}
}
