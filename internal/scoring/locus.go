package scoring

import (
	"github.com/hla-matching-engine/internal/domain"
)

// LocusTypings are the resolved scoring metadata of both positions of one locus.
// A nil pair marks the locus as untyped.
type LocusTypings struct {
	Patient *[2]*domain.ScoringMetadata
	Donor   *[2]*domain.ScoringMetadata
}

// untypedPosition is assigned to both positions of a locus either side did not type.
var untypedPosition = domain.PositionScore{Grade: domain.GradeUnknown, Confidence: domain.ConfidencePotential}

// ScoreLocus grades both positions of a locus in the orientation that maximises match
// count, then grade score, then confidence score. The direct orientation wins ties.
// tce is only consulted for DPB1 and may be nil.
func (a *Aggregator) ScoreLocus(g Grader, locus domain.Locus, typings LocusTypings, tce *TceGroups) *domain.PerLocusScoreDetails {
	d := &domain.PerLocusScoreDetails{
		Locus:       locus,
		Orientation: domain.OrientationDirect,
		IsIncluded:  !a.IsExcluded(locus),
	}
	if typings.Patient == nil || typings.Donor == nil {
		d.Position1, d.Position2 = untypedPosition, untypedPosition
		d.MatchCount, d.PotentialMatchCount = countMatches(d.Position1, d.Position2)
		return d
	}
	d.IsTyped = true
	p, dn := typings.Patient, typings.Donor

	direct := [2]domain.PositionScore{g.GradeAndScore(p[0], dn[0]), g.GradeAndScore(p[1], dn[1])}
	best := direct
	if !samePair(dn) {
		cross := [2]domain.PositionScore{g.GradeAndScore(p[0], dn[1]), g.GradeAndScore(p[1], dn[0])}
		if a.better(cross, direct) {
			best = cross
			d.Orientation = domain.OrientationCross
		}
	}
	d.Position1, d.Position2 = best[0], best[1]
	d.MatchCount, d.PotentialMatchCount = countMatches(d.Position1, d.Position2)

	if locus == domain.LocusDPB1 && tce != nil {
		d.TceMatchType = TceMatchType(*tce)
	}
	return d
}

// better reports whether orientation x strictly beats orientation y.
func (a *Aggregator) better(x, y [2]domain.PositionScore) bool {
	xm, _ := countMatches(x[0], x[1])
	ym, _ := countMatches(y[0], y[1])
	if xm != ym {
		return xm > ym
	}
	xg, xc := a.pairWeights(x)
	yg, yc := a.pairWeights(y)
	if xg != yg {
		return xg > yg
	}
	return xc > yc
}

func (a *Aggregator) pairWeights(pair [2]domain.PositionScore) (grade, confidence int) {
	for _, p := range pair {
		g, c := a.weights.Position(p)
		grade += g
		confidence += c
	}
	return grade, confidence
}

func countMatches(positions ...domain.PositionScore) (matches, potential int) {
	for _, p := range positions {
		if p.IsMatch() {
			matches++
		}
		if p.Confidence == domain.ConfidencePotential {
			potential++
		}
	}
	return matches, potential
}

func samePair(pair *[2]*domain.ScoringMetadata) bool {
	return pair[0].Key() == pair[1].Key()
}
