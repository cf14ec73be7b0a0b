package nomenclature

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/hla-matching-engine/internal/domain"
)

// DirectorySource reads releases laid out as <root>/<version>/<file>.
type DirectorySource struct {
	root   string
	logger *logrus.Logger
}

// NewDirectorySource creates a source rooted at dir.
func NewDirectorySource(dir string, logger *logrus.Logger) *DirectorySource {
	return &DirectorySource{root: dir, logger: logger}
}

// ReadLines implements domain.NomenclatureSource. A missing file yields domain.ErrNotFound.
func (d *DirectorySource) ReadLines(ctx context.Context, version, fileName string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(d.root, version, filepath.FromSlash(fileName))
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open nomenclature file %s: %w", path, err)
	}
	defer f.Close()

	lines, err := readCleanLines(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read nomenclature file %s: %w", path, err)
	}

	d.logger.WithFields(logrus.Fields{
		"version": version,
		"file":    fileName,
		"lines":   len(lines),
	}).Debug("Read nomenclature file")

	return lines, nil
}
