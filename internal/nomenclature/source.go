// Package nomenclature ingests versioned IMGT/HLA nomenclature releases into immutable
// in-memory datasets.
package nomenclature

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/hla-matching-engine/internal/domain"
)

// File names of a nomenclature release, relative to the release root.
const (
	FileAlleleList     = "Allelelist.txt"
	FileAlleleHistory  = "Allelelist_history.txt"
	FileAlleleStatus   = "Allele_status.txt"
	FileGGroups        = "wmda/hla_nom_g.txt"
	FilePGroups        = "wmda/hla_nom_p.txt"
	FileSerologyRels   = "wmda/rel_ser_ser.txt"
	FileDnaSerologyRel = "wmda/rel_dna_ser.txt"
	FileDpb1Tce        = "tce/dpb_tce.csv"
	FileNmdpCodes      = "mac/nmdp_codes.txt"
)

const commentPrefix = "#"

// readCleanLines scans r and returns its non-blank, non-comment lines with surrounding
// whitespace removed.
func readCleanLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, commentPrefix) {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// MemorySource serves nomenclature files held in memory, keyed by version and file name.
type MemorySource struct {
	mu    sync.RWMutex
	files map[string]map[string]string
}

// NewMemorySource creates an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{files: make(map[string]map[string]string)}
}

// Put stores the raw content of one file.
func (m *MemorySource) Put(version, fileName, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files[version] == nil {
		m.files[version] = make(map[string]string)
	}
	m.files[version][fileName] = content
}

// ReadLines implements domain.NomenclatureSource.
func (m *MemorySource) ReadLines(ctx context.Context, version, fileName string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	content, ok := m.files[version][fileName]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s@%s: %w", fileName, version, domain.ErrNotFound)
	}
	return readCleanLines(strings.NewReader(content))
}
