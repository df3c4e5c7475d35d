package engine

import (
	"math"

	"pathway/internal/domain"
)

// Score computes the eligibility of a profile against one visa node.
//
// Each required dimension contributes a fit ratio min(1, value/threshold);
// dimensions the visa does not require never penalize the applicant. The
// ratios are combined as a weighted mean over the required dimensions only
// (threshold 0 entries are excluded from the denominator), scaled to 0-100
// and rounded. A visa with no requirements scores 100 for everyone.
//
// Dimensions are visited in the fixed domain.Dimensions order so the float
// accumulation is deterministic across calls.
func (e Engine) Score(profile domain.ProfileAttributes, node domain.VisaNode) domain.MatchScore {
	var fitSum, weightSum float64
	for _, dim := range domain.Dimensions {
		threshold, required := node.Requirements[dim]
		if !required || threshold <= 0 {
			continue
		}
		ratio := float64(profile.Value(dim)) / float64(threshold)
		if ratio > 1 {
			ratio = 1
		}
		if ratio < 0 {
			ratio = 0
		}
		w := e.Config.Weight(dim)
		fitSum += w * ratio
		weightSum += w
	}
	pct := 100
	if weightSum > 0 {
		pct = int(math.Round(fitSum / weightSum * 100))
	}
	return domain.MatchScore{
		MatchPercentage: pct,
		Status:          e.Config.StatusFor(pct),
	}
}
