// Package engine is the matching and path-recommendation core. Every
// operation is a pure computation over an immutable profile snapshot and the
// read-only knowledge base; nothing here blocks or performs I/O.
package engine

import (
	"errors"
	"fmt"

	"pathway/internal/config"
	"pathway/internal/domain"
	"pathway/internal/kb"
)

// ErrInvalidProfile is returned when a profile is missing its immigration
// goal. A goal is mandatory input; every other attribute degrades gracefully.
var ErrInvalidProfile = errors.New("immigration_goal is required")

// ErrUnknownVisa is returned when a visa id is not in the knowledge base.
var ErrUnknownVisa = errors.New("unknown visa id")

type Engine struct {
	KB     *kb.KnowledgeBase
	Config *config.Config
}

func New(base *kb.KnowledgeBase, cfg *config.Config) Engine {
	return Engine{KB: base, Config: cfg}
}

// VisaScore pairs a catalog node with its match for one profile. It is the
// map-coloring surface: one entry per visa, in catalog order.
type VisaScore struct {
	Visa  domain.VisaNode   `json:"visa"`
	Score domain.MatchScore `json:"score"`
}

// ScoreVisa scores a profile against a single visa.
func (e Engine) ScoreVisa(profile domain.ProfileAttributes, visaID string) (domain.MatchScore, error) {
	node, ok := e.KB.Node(visaID)
	if !ok {
		return domain.MatchScore{}, fmt.Errorf("%w: %s", ErrUnknownVisa, visaID)
	}
	return e.Score(profile, node), nil
}

// ScoreAll scores a profile against every visa in the catalog.
func (e Engine) ScoreAll(profile domain.ProfileAttributes) []VisaScore {
	nodes := e.KB.Nodes()
	res := make([]VisaScore, 0, len(nodes))
	for _, n := range nodes {
		res = append(res, VisaScore{Visa: n, Score: e.Score(profile, n)})
	}
	return res
}

// Recommend turns a profile into the single best multi-step path toward its
// immigration goal. The second return is false when no viable path exists,
// which is an ordinary outcome, not an error. Identical inputs always
// produce identical output.
func (e Engine) Recommend(profile domain.ProfileAttributes) (domain.RecommendedPath, bool, error) {
	if profile.ImmigrationGoal == "" {
		return domain.RecommendedPath{}, false, ErrInvalidProfile
	}
	candidates := e.FindCandidatePaths(profile, profile.ImmigrationGoal, e.Config.Search.MaxDepth)
	path, ok := e.Rank(candidates)
	return path, ok, nil
}
