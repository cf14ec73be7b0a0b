package dictionary_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hla-matching-engine/internal/dictionary"
	"github.com/hla-matching-engine/internal/domain"
	"github.com/hla-matching-engine/internal/nomenclature"
	"github.com/hla-matching-engine/internal/serology"
)

func scoringFor(t *testing.T, locus domain.Locus) map[domain.LookupKey]domain.ScoringMetadata {
	t.Helper()
	ds, resolver := loadFixture(t)
	groups := dictionary.BuildLookupGroups(ds, resolver, locus)
	out := make(map[domain.LookupKey]domain.ScoringMetadata)
	for _, s := range dictionary.GenerateScoring(ds, resolver, locus, groups) {
		out[s.Key()] = s
	}
	return out
}

func molecularKey(locus domain.Locus, name string) domain.LookupKey {
	return domain.LookupKey{Locus: locus, LookupName: name, Method: domain.Molecular}
}

func TestGenerateScoring_SingleAllele(t *testing.T) {
	scoring := scoringFor(t, domain.LocusA)

	meta, ok := scoring[molecularKey(domain.LocusA, "01:01:01:01")]
	require.True(t, ok)
	assert.Equal(t, domain.ScoringSingleAllele, meta.Kind)
	require.Len(t, meta.Alleles, 1)
	assert.Equal(t, domain.SingleAlleleInfo{
		AlleleName:     "01:01:01:01",
		Status:         domain.AlleleTypingStatus{Completeness: domain.SequenceFull, DnaCategory: domain.GDna},
		MatchingGGroup: "01:01:01G",
		MatchingPGroup: "01:01P",
		MatchingSerologies: []domain.SerologyEntry{
			{Name: "1", Subtype: domain.SubtypeNotSplit, IsDirectMapping: true},
		},
	}, meta.Alleles[0])
}

func TestGenerateScoring_AlleleSerologiesIncludeRelatives(t *testing.T) {
	scoring := scoringFor(t, domain.LocusA)

	meta := scoring[molecularKey(domain.LocusA, "24:02:01:01")]
	require.Len(t, meta.Alleles, 1)
	assert.Equal(t, []domain.SerologyEntry{
		{Name: "9", Subtype: domain.SubtypeBroad},
		{Name: "24", Subtype: domain.SubtypeSplit, IsDirectMapping: true},
		{Name: "2403", Subtype: domain.SubtypeAssociated},
	}, meta.Alleles[0].MatchingSerologies)
}

func TestGenerateScoring_NullAllele(t *testing.T) {
	scoring := scoringFor(t, domain.LocusA)

	meta := scoring[molecularKey(domain.LocusA, "01:01:01:02N")]
	require.Len(t, meta.Alleles, 1)
	info := meta.Alleles[0]
	assert.True(t, info.IsNull)
	assert.Empty(t, info.MatchingPGroup)
	assert.Equal(t, "01:01:01G", info.MatchingGGroup)
	assert.Empty(t, info.MatchingSerologies)
	assert.True(t, meta.IsNullExpressing())
}

func TestGenerateScoring_MultipleAllele(t *testing.T) {
	scoring := scoringFor(t, domain.LocusA)

	meta := scoring[molecularKey(domain.LocusA, "01:01")]
	assert.Equal(t, domain.ScoringMultipleAllele, meta.Kind)
	names := make([]string, len(meta.Alleles))
	for i, a := range meta.Alleles {
		names[i] = a.AlleleName
	}
	assert.Equal(t, []string{"01:01:01:01", "01:01:38L"}, names)
	assert.Equal(t, []string{"01:01P"}, meta.AllPGroups())
	assert.False(t, meta.IsNullExpressing())
}

func TestGenerateScoring_Consolidated(t *testing.T) {
	scoring := scoringFor(t, domain.LocusA)

	meta := scoring[molecularKey(domain.LocusA, "01")]
	assert.Equal(t, domain.ScoringConsolidated, meta.Kind)
	assert.Empty(t, meta.Alleles)
	assert.Equal(t, []string{"01:01:01G", "01:02"}, meta.MatchingGGroups)
	assert.Equal(t, []string{"01:01P", "01:02"}, meta.MatchingPGroups)
	assert.Equal(t, []domain.SerologyEntry{{Name: "1", Subtype: domain.SubtypeNotSplit, IsDirectMapping: true}}, meta.MatchingSerologies)
	assert.False(t, meta.IsNull)

	gGroup := scoring[molecularKey(domain.LocusA, "02:01:01G")]
	assert.Equal(t, domain.ScoringConsolidated, gGroup.Kind)
	assert.Equal(t, []string{"02:01P"}, gGroup.MatchingPGroups)
}

func TestGenerateScoring_RenamedAllele(t *testing.T) {
	scoring := scoringFor(t, domain.LocusA)

	meta := scoring[molecularKey(domain.LocusA, "24:02:01")]
	assert.Equal(t, domain.ScoringSingleAllele, meta.Kind)
	assert.Equal(t, "24:02:01", meta.LookupName)
	require.Len(t, meta.Alleles, 1)
	assert.Equal(t, "24:02:01:01", meta.Alleles[0].AlleleName)
}

func TestGenerateScoring_Serology(t *testing.T) {
	scoring := scoringFor(t, domain.LocusA)

	meta, ok := scoring[domain.LookupKey{Locus: domain.LocusA, LookupName: "9", Method: domain.Serology}]
	require.True(t, ok)
	assert.Equal(t, domain.ScoringSerology, meta.Kind)
	assert.Equal(t, []domain.SerologyEntry{
		{Name: "9", Subtype: domain.SubtypeBroad, IsDirectMapping: true},
		{Name: "23", Subtype: domain.SubtypeSplit},
		{Name: "24", Subtype: domain.SubtypeSplit},
		{Name: "2403", Subtype: domain.SubtypeAssociated},
	}, meta.MatchingSerologies)
	assert.Equal(t, []string{"23:01:01", "24:02:01:01"}, meta.MatchingPGroups)
	assert.Equal(t, []string{"23:01:01", "24:02:01:01"}, meta.MatchingGGroups)
}

func TestGenerateScoring_AllNullGroupIsNull(t *testing.T) {
	src := nomenclature.NewMemorySource()
	src.Put("x", nomenclature.FileAlleleList, "HLA_ID,Allele\nHLA1,A*01:04N\nHLA2,A*01:05N\nHLA3,A*02:01\n")
	src.Put("x", nomenclature.FileGGroups, "")
	src.Put("x", nomenclature.FilePGroups, "")
	repo, err := nomenclature.NewRepository(src, 1, testLogger(), nil)
	require.NoError(t, err)
	ds, err := repo.Load(context.Background(), "x")
	require.NoError(t, err)
	resolver := serology.NewResolver(ds)

	groups := dictionary.BuildLookupGroups(ds, resolver, domain.LocusA)
	for _, meta := range dictionary.GenerateScoring(ds, resolver, domain.LocusA, groups) {
		switch meta.LookupName {
		case "01":
			assert.True(t, meta.IsNull, "an XX name of only null alleles is null")
			assert.True(t, meta.IsNullExpressing())
		case "02":
			assert.False(t, meta.IsNullExpressing())
		}
	}
}
