package lookup

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hla-matching-engine/internal/dictionary"
	"github.com/hla-matching-engine/internal/domain"
	"github.com/hla-matching-engine/internal/metrics"
	"github.com/hla-matching-engine/pkg/hlatyping"
)

// Metadata kinds used for metrics labels.
const (
	kindMatching = "matching"
	kindScoring  = "scoring"
	kindTce      = "tce"
)

// Service resolves typings against the dictionary of a nomenclature version.
type Service struct {
	dictionaries *DictionaryCache
	active       *ActiveVersionAccessor
	logger       *logrus.Logger
	metrics      *metrics.Collectors
}

// NewService creates a lookup service.
func NewService(dictionaries *DictionaryCache, active *ActiveVersionAccessor, logger *logrus.Logger, m *metrics.Collectors) *Service {
	return &Service{
		dictionaries: dictionaries,
		active:       active,
		logger:       logger,
		metrics:      m,
	}
}

// Pin returns a lookup bound to one version. An empty version pins the active one.
func (s *Service) Pin(ctx context.Context, version string) (*Pinned, error) {
	if version == "" {
		active, err := s.active.Get(ctx)
		if err != nil {
			return nil, err
		}
		version = active
	}
	d, err := s.dictionaries.Get(ctx, version)
	if err != nil {
		return nil, err
	}
	return &Pinned{dict: d, metrics: s.metrics}, nil
}

// Activate loads a ready version's dictionary and then makes it the active version.
func (s *Service) Activate(ctx context.Context, version string) error {
	if _, err := s.dictionaries.Get(ctx, version); err != nil {
		return err
	}
	return s.active.Activate(ctx, version)
}

// Evict drops the resident dictionary of a regenerated version.
func (s *Service) Evict(version string) {
	s.dictionaries.Evict(version)
}

// ActiveVersion returns the active nomenclature version.
func (s *Service) ActiveVersion(ctx context.Context) (string, error) {
	return s.active.Get(ctx)
}

// GetMatchingMetadata resolves the matching P-Groups of a typing.
func (s *Service) GetMatchingMetadata(ctx context.Context, locus domain.Locus, name, version string) (*domain.MatchingMetadata, error) {
	p, err := s.Pin(ctx, version)
	if err != nil {
		return nil, err
	}
	return p.Matching(ctx, locus, name)
}

// GetScoringMetadata resolves the scoring metadata of a typing.
func (s *Service) GetScoringMetadata(ctx context.Context, locus domain.Locus, name, version string) (*domain.ScoringMetadata, error) {
	p, err := s.Pin(ctx, version)
	if err != nil {
		return nil, err
	}
	return p.Scoring(ctx, locus, name)
}

// GetDpb1TceGroup resolves the TCE group of a DPB1 typing.
func (s *Service) GetDpb1TceGroup(ctx context.Context, name, version string) (string, error) {
	p, err := s.Pin(ctx, version)
	if err != nil {
		return "", err
	}
	return p.TceGroup(ctx, name)
}

// Pinned resolves typings against a single dictionary.
type Pinned struct {
	dict    *Dictionary
	metrics *metrics.Collectors
}

// Version returns the pinned nomenclature version.
func (p *Pinned) Version() string {
	return p.dict.Version
}

// typing is a classified typing and the lookup names it expands to.
type typing struct {
	name      string
	category  domain.TypingCategory
	method    domain.TypingMethod
	members   []string
	composite bool
}

func (p *Pinned) parse(locus domain.Locus, name string) (*typing, error) {
	if !locus.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidLocus, locus)
	}
	category, err := hlatyping.Classify(name)
	if err != nil {
		return nil, err
	}
	t := &typing{
		name:     hlatyping.Normalize(name),
		category: category,
		method:   category.Method(),
	}

	switch category {
	case domain.CategoryXxCode:
		t.members = []string{hlatyping.XxCodeLookupName(t.name)}
	case domain.CategoryNmdpCode:
		family, code := hlatyping.NmdpCodeParts(t.name)
		members, ok := p.dict.ExpandAlleleCode(locus, family, code)
		if !ok {
			return nil, domain.NewLookupNotFoundError(locus, t.name, t.method, p.dict.Version)
		}
		t.members = members
		t.composite = true
	case domain.CategoryAlleleStringOfNames, domain.CategoryAlleleStringOfSubtypes:
		members, err := hlatyping.SplitAlleleString(t.name, category)
		if err != nil {
			return nil, err
		}
		t.members = members
		t.composite = true
	default:
		t.members = []string{t.name}
	}
	return t, nil
}

// FallbackNames returns the names tried for a molecular lookup, in order: the name, the
// name without expression suffix, then the name with trailing fields dropped one at a
// time down to a single field.
func FallbackNames(name string) []string {
	names := []string{name}
	parsed := hlatyping.ParseAlleleName(name)
	if parsed.ExpressionSuffix() != "" {
		names = append(names, parsed.WithoutSuffix())
	}
	fields := parsed.Fields()
	for n := len(fields) - 1; n >= 1; n-- {
		names = append(names, strings.Join(fields[:n], hlatyping.FieldDelimiter))
	}
	return names
}

func candidates(name string, method domain.TypingMethod) []string {
	if method == domain.Serology {
		return []string{name}
	}
	return FallbackNames(name)
}

func (p *Pinned) observe(kind string, index int, found bool) {
	switch {
	case !found:
		p.metrics.ObserveLookup(kind, metrics.LookupMiss)
	case index == 0:
		p.metrics.ObserveLookup(kind, metrics.LookupHit)
	default:
		p.metrics.ObserveLookup(kind, metrics.LookupFallback)
	}
}

func (p *Pinned) findMatching(locus domain.Locus, name string, method domain.TypingMethod) (*domain.MatchingMetadata, bool) {
	for i, candidate := range candidates(name, method) {
		if m, ok := p.dict.Matching(domain.LookupKey{Locus: locus, LookupName: candidate, Method: method}); ok {
			p.observe(kindMatching, i, true)
			return m, true
		}
	}
	p.observe(kindMatching, 0, false)
	return nil, false
}

func (p *Pinned) findScoring(locus domain.Locus, name string, method domain.TypingMethod) (*domain.ScoringMetadata, bool) {
	for i, candidate := range candidates(name, method) {
		if s, ok := p.dict.Scoring(domain.LookupKey{Locus: locus, LookupName: candidate, Method: method}); ok {
			p.observe(kindScoring, i, true)
			return s, true
		}
	}
	p.observe(kindScoring, 0, false)
	return nil, false
}

// Matching resolves the matching metadata of a typing. Composite typings are merged
// into one entry named after the typing.
func (p *Pinned) Matching(ctx context.Context, locus domain.Locus, name string) (*domain.MatchingMetadata, error) {
	t, err := p.parse(locus, name)
	if err != nil {
		return nil, err
	}
	metas := make([]*domain.MatchingMetadata, 0, len(t.members))
	for _, member := range t.members {
		m, ok := p.findMatching(locus, member, t.method)
		if !ok {
			return nil, domain.NewLookupNotFoundError(locus, t.name, t.method, p.dict.Version)
		}
		metas = append(metas, m)
	}
	if !t.composite {
		return metas[0], nil
	}
	return mergeMatching(locus, t.name, t.method, metas), nil
}

// Scoring resolves the scoring metadata of a typing. Composite typings are merged into
// one entry named after the typing.
func (p *Pinned) Scoring(ctx context.Context, locus domain.Locus, name string) (*domain.ScoringMetadata, error) {
	t, err := p.parse(locus, name)
	if err != nil {
		return nil, err
	}
	metas := make([]*domain.ScoringMetadata, 0, len(t.members))
	for _, member := range t.members {
		s, ok := p.findScoring(locus, member, t.method)
		if !ok {
			return nil, domain.NewLookupNotFoundError(locus, t.name, t.method, p.dict.Version)
		}
		metas = append(metas, s)
	}
	if !t.composite {
		return metas[0], nil
	}
	return mergeScoring(locus, t.name, metas), nil
}

// TceGroup resolves the TCE group of a DPB1 typing. The member groups of a composite
// typing are settled by dictionary.TceGroupPicker.
func (p *Pinned) TceGroup(ctx context.Context, name string) (string, error) {
	t, err := p.parse(domain.LocusDPB1, name)
	if err != nil {
		return "", err
	}
	var picker dictionary.TceGroupPicker
	if t.method == domain.Molecular {
		for _, member := range t.members {
			for i, candidate := range FallbackNames(member) {
				if g, ok := p.dict.TceGroup(candidate); ok {
					p.observe(kindTce, i, true)
					picker.Add(member, g)
					break
				}
			}
		}
	}
	group := picker.Pick()
	if group == "" {
		p.observe(kindTce, 0, false)
		return "", domain.NewLookupNotFoundError(domain.LocusDPB1, t.name, t.method, p.dict.Version)
	}
	return group, nil
}
