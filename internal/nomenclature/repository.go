package nomenclature

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/hla-matching-engine/internal/domain"
	"github.com/hla-matching-engine/internal/metrics"
)

// DefaultResidentDatasets bounds the number of parsed releases kept in memory.
const DefaultResidentDatasets = 2

type fileParser struct {
	name     string
	optional bool
	parse    func(ds *Dataset, lines []string)
}

// Order matters: the history parser needs the allele list.
var fileParsers = []fileParser{
	{name: FileAlleleList, parse: parseAlleleList},
	{name: FileGGroups, parse: func(ds *Dataset, lines []string) { parseGroups(ds, lines, FileGGroups) }},
	{name: FilePGroups, parse: func(ds *Dataset, lines []string) { parseGroups(ds, lines, FilePGroups) }},
	{name: FileAlleleStatus, optional: true, parse: parseAlleleStatus},
	{name: FileSerologyRels, optional: true, parse: parseSerologyRelationships},
	{name: FileDnaSerologyRel, optional: true, parse: parseDnaSerologyRelationships},
	{name: FileAlleleHistory, optional: true, parse: parseAlleleHistory},
	{name: FileDpb1Tce, optional: true, parse: parseDpb1Tce},
	{name: FileNmdpCodes, optional: true, parse: parseNmdpCodes},
}

// Repository loads nomenclature releases from a source and keeps recently used datasets
// resident. Concurrent loads of the same version share one parse.
type Repository struct {
	source  domain.NomenclatureSource
	logger  *logrus.Logger
	metrics *metrics.Collectors
	cache   *lru.Cache[string, *Dataset]
	loads   singleflight.Group
}

// NewRepository creates a repository keeping at most resident datasets in memory.
func NewRepository(source domain.NomenclatureSource, resident int, logger *logrus.Logger, m *metrics.Collectors) (*Repository, error) {
	if resident <= 0 {
		resident = DefaultResidentDatasets
	}
	cache, err := lru.New[string, *Dataset](resident)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset cache: %w", err)
	}
	return &Repository{
		source:  source,
		logger:  logger,
		metrics: m,
		cache:   cache,
	}, nil
}

// Load returns the dataset of a version, parsing it on first use.
func (r *Repository) Load(ctx context.Context, version string) (*Dataset, error) {
	if version == "" {
		return nil, domain.NewValidationError("version", "nomenclature version is required", version)
	}
	if ds, ok := r.cache.Get(version); ok {
		return ds, nil
	}

	v, err, _ := r.loads.Do(version, func() (interface{}, error) {
		if ds, ok := r.cache.Get(version); ok {
			return ds, nil
		}
		ds, err := r.load(ctx, version)
		if err != nil {
			return nil, err
		}
		r.cache.Add(version, ds)
		return ds, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Dataset), nil
}

func (r *Repository) load(ctx context.Context, version string) (*Dataset, error) {
	start := time.Now()
	ds := newDataset(version)

	for _, fp := range fileParsers {
		lines, err := r.source.ReadLines(ctx, version, fp.name)
		if err != nil {
			if fp.optional && errors.Is(err, domain.ErrNotFound) {
				r.logger.WithFields(logrus.Fields{
					"version": version,
					"file":    fp.name,
				}).Debug("Optional nomenclature file not present")
				continue
			}
			return nil, fmt.Errorf("failed to read %s for version %s: %w", fp.name, version, err)
		}
		fp.parse(ds, lines)
	}
	ds.finalize()

	for file, n := range ds.Report.SkippedLines {
		r.metrics.ObserveSkippedLines(file, n)
	}

	fields := logrus.Fields{
		"version":       version,
		"skipped_lines": ds.Report.TotalSkipped(),
		"duration_ms":   time.Since(start).Milliseconds(),
	}
	for _, locus := range domain.AllLoci {
		fields["alleles_"+locus.String()] = len(ds.Alleles(locus))
	}
	entry := r.logger.WithFields(fields)
	if ds.Report.TotalSkipped() > 0 {
		entry.Warn("Loaded nomenclature dataset with skipped lines")
	} else {
		entry.Info("Loaded nomenclature dataset")
	}

	return ds, nil
}
