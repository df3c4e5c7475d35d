package engine

import (
	"pathway/internal/domain"
)

// Candidate is one simple path from the profile's current status to a node
// bearing the requested goal tag. Steps carry the score computed against the
// profile as it would stand upon reaching each step.
type Candidate struct {
	Steps []domain.PathStep
}

// VisaIDs returns the node ids along the candidate, in order.
func (c Candidate) VisaIDs() []string {
	ids := make([]string, len(c.Steps))
	for i, s := range c.Steps {
		ids[i] = s.VisaID
	}
	return ids
}

// TotalMonths sums the per-step time estimates.
func (c Candidate) TotalMonths() int {
	total := 0
	for _, s := range c.Steps {
		total += s.EstimatedTimeMonths
	}
	return total
}

// AverageMatch is the arithmetic mean of the step match percentages.
func (c Candidate) AverageMatch() float64 {
	if len(c.Steps) == 0 {
		return 0
	}
	sum := 0
	for _, s := range c.Steps {
		sum += s.Score.MatchPercentage
	}
	return float64(sum) / float64(len(c.Steps))
}

// FindCandidatePaths enumerates every simple path of at most maxDepth steps
// from the profile's current visa (or the entry state) to a node whose goal
// tags contain goalTag.
//
// The hypothetical profile used to score each step advances only its current
// visa id; attributes such as education or experience are not simulated to
// grow along the path. A step whose status is locked prunes the branch unless
// it is itself a goal-bearing terminal, so aspirational goals still surface
// with a locked final status while unreachable intermediates never anchor a
// recommendation. Returns nil when no path exists.
func (e Engine) FindCandidatePaths(profile domain.ProfileAttributes, goalTag string, maxDepth int) []Candidate {
	start := profile.StartNodeID()
	visited := map[string]bool{start: true}
	var candidates []Candidate
	e.explore(profile, goalTag, start, nil, visited, maxDepth, &candidates)
	return candidates
}

func (e Engine) explore(profile domain.ProfileAttributes, goalTag, current string, steps []domain.PathStep, visited map[string]bool, remaining int, out *[]Candidate) {
	if remaining <= 0 {
		return
	}
	for _, edge := range e.KB.Outgoing(current) {
		if visited[edge.To] {
			continue
		}
		node, ok := e.KB.Node(edge.To)
		if !ok {
			continue
		}
		hypothetical := profile
		hypothetical.CurrentVisaID = &current
		score := e.Score(hypothetical, node)
		step := domain.PathStep{
			VisaID:              node.ID,
			VisaName:            node.Name,
			VisaCode:            node.Code,
			Score:               score,
			EstimatedTimeMonths: node.TypicalDurationMonths,
		}
		path := append(append([]domain.PathStep(nil), steps...), step)
		if node.HasGoalTag(goalTag) {
			*out = append(*out, Candidate{Steps: path})
		}
		// A locked node cannot be an intermediate step.
		if score.Status == domain.StatusLocked {
			continue
		}
		visited[edge.To] = true
		e.explore(profile, goalTag, edge.To, path, visited, remaining-1, out)
		visited[edge.To] = false
	}
}
