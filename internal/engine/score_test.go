package engine_test

import (
	"testing"

	"pathway/internal/config"
	"pathway/internal/domain"
	"pathway/internal/engine"
	"pathway/internal/kb"
)

func setDim(p domain.ProfileAttributes, d domain.Dimension, v int) domain.ProfileAttributes {
	switch d {
	case domain.DimEducation:
		p.Education = v
	case domain.DimWorkExperience:
		p.WorkExperience = v
	case domain.DimFieldOfWork:
		p.FieldOfWork = v
	case domain.DimCitizenship:
		p.Citizenship = v
	case domain.DimInvestment:
		p.Investment = v
	case domain.DimLanguage:
		p.Language = v
	}
	return p
}

func TestScoreScenarioStrongApplicant(t *testing.T) {
	e := newDefaultEngine(t)
	node := domain.VisaNode{
		ID: "x", Name: "X", Code: "X",
		Requirements: map[domain.Dimension]int{
			domain.DimEducation: 3,
			domain.DimLanguage:  4,
		},
	}
	profile := domain.ProfileAttributes{
		Education:       5,
		WorkExperience:  4,
		FieldOfWork:     5,
		Citizenship:     3,
		Language:        5,
		ImmigrationGoal: "study",
	}
	score := e.Score(profile, node)
	if score.MatchPercentage != 100 {
		t.Fatalf("match %d, want 100", score.MatchPercentage)
	}
	if score.Status != domain.StatusRecommended {
		t.Fatalf("status %s, want recommended", score.Status)
	}
}

func TestScoreNoRequirements(t *testing.T) {
	e := newDefaultEngine(t)
	node := domain.VisaNode{ID: "open", Name: "Open", Code: "OP"}
	for _, profile := range []domain.ProfileAttributes{
		{},
		strongProfile("work"),
	} {
		score := e.Score(profile, node)
		if score.MatchPercentage != 100 {
			t.Fatalf("match %d, want 100", score.MatchPercentage)
		}
	}
}

func TestScoreMissingAttributeIsWorstCase(t *testing.T) {
	e := newDefaultEngine(t)
	node := domain.VisaNode{
		ID: "inv", Name: "Inv", Code: "IV",
		Requirements: map[domain.Dimension]int{domain.DimInvestment: 4},
	}
	// Zero-valued profile must score, not fail.
	score := e.Score(domain.ProfileAttributes{}, node)
	if score.MatchPercentage != 0 || score.Status != domain.StatusLocked {
		t.Fatalf("got %+v, want 0/locked", score)
	}
}

func TestScoreZeroThresholdExcluded(t *testing.T) {
	e := newDefaultEngine(t)
	node := domain.VisaNode{
		ID: "z", Name: "Z", Code: "Z",
		Requirements: map[domain.Dimension]int{
			domain.DimEducation: 4,
			domain.DimLanguage:  0,
		},
	}
	profile := domain.ProfileAttributes{Education: 4}
	score := e.Score(profile, node)
	if score.MatchPercentage != 100 {
		t.Fatalf("match %d, want 100 (zero threshold must not dilute)", score.MatchPercentage)
	}
}

func TestScoreMonotonicity(t *testing.T) {
	e := newDefaultEngine(t)
	base := domain.ProfileAttributes{
		Education:      2,
		WorkExperience: 2,
		FieldOfWork:    2,
		Citizenship:    2,
		Investment:     2,
		Language:       2,
	}
	for _, node := range e.KB.Nodes() {
		for dim := range node.Requirements {
			prev := -1
			for v := 0; v <= 5; v++ {
				score := e.Score(setDim(base, dim, v), node)
				if score.MatchPercentage < prev {
					t.Fatalf("visa %s dim %s: match dropped from %d to %d at value %d",
						node.ID, dim, prev, score.MatchPercentage, v)
				}
				prev = score.MatchPercentage
			}
		}
	}
}

func TestScoreRoundedWeightedMean(t *testing.T) {
	e := newDefaultEngine(t)
	node := domain.VisaNode{
		ID: "m", Name: "M", Code: "M",
		Requirements: map[domain.Dimension]int{
			domain.DimEducation: 5,
			domain.DimLanguage:  5,
		},
	}
	// (4/5 + 5/5) / 2 = 0.9 -> exactly the recommended boundary.
	score := e.Score(domain.ProfileAttributes{Education: 4, Language: 5}, node)
	if score.MatchPercentage != 90 {
		t.Fatalf("match %d, want 90", score.MatchPercentage)
	}
	if score.Status != domain.StatusRecommended {
		t.Fatalf("status %s, want recommended", score.Status)
	}
	// (2/5 + 5/5) / 2 = 0.7 -> exactly the available boundary.
	score = e.Score(domain.ProfileAttributes{Education: 2, Language: 5}, node)
	if score.MatchPercentage != 70 {
		t.Fatalf("match %d, want 70", score.MatchPercentage)
	}
	if score.Status != domain.StatusAvailable {
		t.Fatalf("status %s, want available", score.Status)
	}
}

func TestScoreSkewedWeights(t *testing.T) {
	node := domain.VisaNode{
		ID: "w", Name: "W", Code: "W",
		Requirements: map[domain.Dimension]int{
			domain.DimEducation: 5,
			domain.DimLanguage:  5,
		},
	}
	profile := domain.ProfileAttributes{Education: 5}

	// Uniform weights: (1*1 + 1*0) / 2 = 50.
	if got := newDefaultEngine(t).Score(profile, node).MatchPercentage; got != 50 {
		t.Fatalf("uniform match %d, want 50", got)
	}

	base, err := kb.Default()
	if err != nil {
		t.Fatalf("load default catalog: %v", err)
	}
	cfg := config.Default()
	cfg.Scoring.Weights = map[domain.Dimension]float64{domain.DimEducation: 3}
	skewed := engine.New(base, cfg)

	// Education weighted 3, language at the implicit 1: (3*1 + 1*0) / 4 = 75.
	score := skewed.Score(profile, node)
	if score.MatchPercentage != 75 {
		t.Fatalf("skewed match %d, want 75", score.MatchPercentage)
	}
	if score.Status != domain.StatusAvailable {
		t.Fatalf("status %s, want available", score.Status)
	}
}

func TestStatusBands(t *testing.T) {
	cfg := config.Default()
	cases := []struct {
		pct  int
		want domain.MatchStatus
	}{
		{100, domain.StatusRecommended},
		{90, domain.StatusRecommended},
		{89, domain.StatusAvailable},
		{70, domain.StatusAvailable},
		{69, domain.StatusLocked},
		{0, domain.StatusLocked},
	}
	for _, tc := range cases {
		if got := cfg.StatusFor(tc.pct); got != tc.want {
			t.Fatalf("StatusFor(%d) = %s, want %s", tc.pct, got, tc.want)
		}
	}
}

func TestConfidenceBands(t *testing.T) {
	cfg := config.Default()
	cases := []struct {
		avg  int
		want domain.Confidence
	}{
		{100, domain.ConfidenceHigh},
		{85, domain.ConfidenceHigh},
		{84, domain.ConfidenceMedium},
		{65, domain.ConfidenceMedium},
		{64, domain.ConfidenceLow},
	}
	for _, tc := range cases {
		if got := cfg.ConfidenceFor(tc.avg); got != tc.want {
			t.Fatalf("ConfidenceFor(%d) = %s, want %s", tc.avg, got, tc.want)
		}
	}
}
