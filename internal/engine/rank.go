package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"pathway/internal/domain"
)

// Rank orders candidates and returns the best one as a RecommendedPath.
// Ordering: fewer steps first (shorter paths are simpler to execute), then
// higher average match, then lower total estimated months. The second return
// is false when the candidate set is empty.
func (e Engine) Rank(candidates []Candidate) (domain.RecommendedPath, bool) {
	if len(candidates) == 0 {
		return domain.RecommendedPath{}, false
	}
	sorted := append([]Candidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if len(a.Steps) != len(b.Steps) {
			return len(a.Steps) < len(b.Steps)
		}
		am, bm := a.AverageMatch(), b.AverageMatch()
		if am != bm {
			return am > bm
		}
		if a.TotalMonths() != b.TotalMonths() {
			return a.TotalMonths() < b.TotalMonths()
		}
		// Stable last resort so equal inputs always rank identically.
		return strings.Join(a.VisaIDs(), "/") < strings.Join(b.VisaIDs(), "/")
	})
	best := sorted[0]
	avg := int(math.Round(best.AverageMatch()))
	return domain.RecommendedPath{
		Steps:                best.Steps,
		Confidence:           e.Config.ConfidenceFor(avg),
		TotalEstimatedMonths: best.TotalMonths(),
		Description:          describe(best),
	}, true
}

func describe(c Candidate) string {
	codes := make([]string, len(c.Steps))
	for i, s := range c.Steps {
		codes[i] = s.VisaCode
	}
	noun := "steps"
	if len(c.Steps) == 1 {
		noun = "step"
	}
	return fmt.Sprintf("%s: %d %s, est. %d months", strings.Join(codes, " -> "), len(c.Steps), noun, c.TotalMonths())
}
