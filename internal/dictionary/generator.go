package dictionary

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hla-matching-engine/internal/domain"
	"github.com/hla-matching-engine/internal/metrics"
	"github.com/hla-matching-engine/internal/nomenclature"
	"github.com/hla-matching-engine/internal/serology"
)

// DefaultMaxConcurrency bounds the number of loci generated in parallel.
const DefaultMaxConcurrency = 3

// DatasetLoader provides parsed nomenclature releases.
type DatasetLoader interface {
	Load(ctx context.Context, version string) (*nomenclature.Dataset, error)
}

// Generator compiles nomenclature releases into metadata stored in a MetadataStore.
type Generator struct {
	loader         DatasetLoader
	store          domain.MetadataStore
	versions       domain.VersionStore
	loci           []domain.Locus
	maxConcurrency int
	logger         *logrus.Logger
	metrics        *metrics.Collectors
}

// locusOutput is the staged result of one locus.
type locusOutput struct {
	entries []domain.MetadataEntry
	counts  *domain.LocusGenerationCounts
}

// NewGenerator creates a dictionary generator. An empty cfg.Loci generates every locus.
func NewGenerator(
	loader DatasetLoader,
	store domain.MetadataStore,
	versions domain.VersionStore,
	cfg domain.GenerationConfig,
	logger *logrus.Logger,
	m *metrics.Collectors,
) (*Generator, error) {
	loci := domain.AllLoci
	if len(cfg.Loci) > 0 {
		loci = make([]domain.Locus, 0, len(cfg.Loci))
		for _, name := range cfg.Loci {
			locus, err := domain.ParseLocus(name)
			if err != nil {
				return nil, fmt.Errorf("invalid generation locus: %w", err)
			}
			loci = append(loci, locus)
		}
	}
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	return &Generator{
		loader:         loader,
		store:          store,
		versions:       versions,
		loci:           loci,
		maxConcurrency: maxConcurrency,
		logger:         logger,
		metrics:        m,
	}, nil
}

// Generate builds and persists the dictionary of a nomenclature version, then marks the
// version ready. Every locus is computed before anything is persisted, and the version
// only becomes ready once all loci are stored, so a failed or cancelled run never leaves
// a readable partial dictionary. Regenerating a version replaces its entries.
func (g *Generator) Generate(ctx context.Context, version string) (*domain.DictionaryGenerationReport, error) {
	startedAt := time.Now()
	runID := uuid.New().String()
	log := g.logger.WithFields(logrus.Fields{
		"run_id":  runID,
		"version": version,
	})
	log.Info("Starting dictionary generation")

	ds, err := g.loader.Load(ctx, version)
	if err != nil {
		return nil, fmt.Errorf("failed to load nomenclature %s: %w", version, err)
	}
	resolver := serology.NewResolver(ds)
	codes := ds.MacCodes().Entries()

	outputs := make([]locusOutput, len(g.loci))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.maxConcurrency)
	for i, locus := range g.loci {
		i, locus := i, locus
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			outputs[i] = generateLocus(ds, resolver, codes, locus)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		log.WithError(err).Warn("Dictionary generation aborted")
		return nil, fmt.Errorf("dictionary generation for %s aborted: %w", version, err)
	}

	report := &domain.DictionaryGenerationReport{
		RunID:        runID,
		Version:      version,
		Loci:         make(map[domain.Locus]*domain.LocusGenerationCounts, len(g.loci)),
		SkippedLines: make(map[string]int, len(ds.Report.SkippedLines)),
		StartedAt:    startedAt,
	}
	for file, n := range ds.Report.SkippedLines {
		report.SkippedLines[file] = n
	}

	for i, locus := range g.loci {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("dictionary generation for %s aborted: %w", version, err)
		}
		out := outputs[i]
		if err := g.store.Persist(ctx, version, locus, out.entries); err != nil {
			return nil, fmt.Errorf("failed to persist %s metadata for %s: %w", locus, version, err)
		}
		report.Loci[locus] = out.counts
		g.metrics.ObserveGenerated(locus.String(), "matching", out.counts.Matching)
		g.metrics.ObserveGenerated(locus.String(), "scoring", out.counts.Scoring)
		g.metrics.ObserveGenerated(locus.String(), "tce", out.counts.TceGroups)
		g.metrics.ObserveGenerated(locus.String(), "allele_code", out.counts.AlleleCodes)
	}

	if err := g.versions.MarkReady(ctx, version); err != nil {
		return nil, fmt.Errorf("failed to mark version %s ready: %w", version, err)
	}

	report.Duration = time.Since(startedAt)
	g.metrics.ObserveGeneration(report.Duration)

	entry := log.WithFields(logrus.Fields{
		"entries":       report.TotalEntries(),
		"skipped_lines": report.TotalSkippedLines(),
		"duration":      report.Duration,
	})
	if report.TotalSkippedLines() > 0 {
		entry.Warn("Dictionary generation completed with skipped nomenclature lines")
	} else {
		entry.Info("Dictionary generation completed")
	}
	return report, nil
}

// generateLocus computes every entry of a locus. The NMDP code table is stored with each
// locus so a resident dictionary expands codes without the nomenclature release.
func generateLocus(ds *nomenclature.Dataset, resolver *serology.Resolver, codes []domain.AlleleCodeEntry, locus domain.Locus) locusOutput {
	groups := BuildLookupGroups(ds, resolver, locus)
	matching := GenerateMatching(ds, locus, groups)
	scoring := GenerateScoring(ds, resolver, locus, groups)
	var tce []domain.TceGroupEntry
	if locus == domain.LocusDPB1 {
		tce = GenerateTceGroups(ds, groups)
	}

	counts := &domain.LocusGenerationCounts{
		Matching:    len(matching),
		Scoring:     len(scoring),
		TceGroups:   len(tce),
		AlleleCodes: len(codes),
		ByCategory:  make(map[domain.TypingCategory]int),
	}
	for _, grp := range groups {
		counts.ByCategory[grp.Category]++
	}

	entries := make([]domain.MetadataEntry, 0, len(matching)+len(scoring)+len(tce)+len(codes))
	for i := range matching {
		m := matching[i]
		entries = append(entries, domain.MetadataEntry{Locus: locus, LookupName: m.LookupName, Method: m.Method, Matching: &m})
	}
	for i := range scoring {
		s := scoring[i]
		entries = append(entries, domain.MetadataEntry{Locus: locus, LookupName: s.LookupName, Method: s.Method, Scoring: &s})
	}
	for i := range tce {
		t := tce[i]
		entries = append(entries, domain.MetadataEntry{Locus: locus, LookupName: t.LookupName, Method: domain.Molecular, Tce: &t})
	}
	for i := range codes {
		c := codes[i]
		entries = append(entries, domain.MetadataEntry{Locus: locus, LookupName: c.Code, Method: domain.Molecular, AlleleCode: &c})
	}
	return locusOutput{entries: entries, counts: counts}
}
