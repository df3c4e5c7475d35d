package domain

// Dimension identifies one normalized profile attribute on the 0-5 scale.
type Dimension string

const (
	DimEducation      Dimension = "education"
	DimWorkExperience Dimension = "work_experience"
	DimFieldOfWork    Dimension = "field_of_work"
	DimCitizenship    Dimension = "citizenship"
	DimInvestment     Dimension = "investment"
	DimLanguage       Dimension = "language"
)

// Dimensions lists every known dimension in a stable order.
var Dimensions = []Dimension{
	DimEducation,
	DimWorkExperience,
	DimFieldOfWork,
	DimCitizenship,
	DimInvestment,
	DimLanguage,
}

// EntryStateID is the synthetic node id for a person holding no US visa.
const EntryStateID = "none"

// VisaNode is one immigration status/category in the knowledge base.
type VisaNode struct {
	ID                    string            `json:"id"`
	Name                  string            `json:"name"`
	Code                  string            `json:"code"`
	Requirements          map[Dimension]int `json:"requirements,omitempty"`
	TypicalDurationMonths int               `json:"typical_duration_months"`
	GoalTags              []string          `json:"goal_tags,omitempty"`
}

// HasGoalTag reports whether the node satisfies the goal as a terminal state.
func (n VisaNode) HasGoalTag(tag string) bool {
	for _, t := range n.GoalTags {
		if t == tag {
			return true
		}
	}
	return false
}

// TransitionEdge is a permitted move between visa statuses. From may be the
// entry state id "none".
type TransitionEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ProfileAttributes is the normalized snapshot fed to the engine. Attribute
// values are 0-5; a missing attribute decodes as 0 (worst case).
// CurrentVisaID nil means the entry state. The engine never mutates it.
type ProfileAttributes struct {
	Education       int     `json:"education" minimum:"0" maximum:"5"`
	WorkExperience  int     `json:"work_experience" minimum:"0" maximum:"5"`
	FieldOfWork     int     `json:"field_of_work" minimum:"0" maximum:"5"`
	Citizenship     int     `json:"citizenship" minimum:"0" maximum:"5"`
	Investment      int     `json:"investment" minimum:"0" maximum:"5"`
	Language        int     `json:"language" minimum:"0" maximum:"5"`
	CurrentVisaID   *string `json:"current_visa_id,omitempty"`
	ImmigrationGoal string  `json:"immigration_goal"`
}

// Value returns the profile's score for one dimension.
func (p ProfileAttributes) Value(d Dimension) int {
	switch d {
	case DimEducation:
		return p.Education
	case DimWorkExperience:
		return p.WorkExperience
	case DimFieldOfWork:
		return p.FieldOfWork
	case DimCitizenship:
		return p.Citizenship
	case DimInvestment:
		return p.Investment
	case DimLanguage:
		return p.Language
	}
	return 0
}

// StartNodeID resolves the search start: the current visa or the entry state.
func (p ProfileAttributes) StartNodeID() string {
	if p.CurrentVisaID == nil || *p.CurrentVisaID == "" {
		return EntryStateID
	}
	return *p.CurrentVisaID
}

// MatchStatus classifies a match percentage against the configured bands.
type MatchStatus string

const (
	StatusLocked      MatchStatus = "locked"
	StatusAvailable   MatchStatus = "available"
	StatusRecommended MatchStatus = "recommended"
)

// MatchScore is the computed eligibility of a profile against one visa node.
type MatchScore struct {
	MatchPercentage int         `json:"match_percentage" minimum:"0" maximum:"100"`
	Status          MatchStatus `json:"status" enum:"locked,available,recommended"`
}

// PathStep is one visa along a recommended path, scored against the profile
// as it would stand upon reaching this step.
type PathStep struct {
	VisaID              string     `json:"visa_id"`
	VisaName            string     `json:"visa_name"`
	VisaCode            string     `json:"visa_code"`
	Score               MatchScore `json:"score"`
	EstimatedTimeMonths int        `json:"estimated_time_months"`
}

// Confidence summarizes how well a path's steps match the profile.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// RecommendedPath is an ordered, edge-consistent, cycle-free sequence of visa
// steps from the person's current status to a goal-satisfying node.
type RecommendedPath struct {
	Steps                []PathStep `json:"steps"`
	Confidence           Confidence `json:"confidence" enum:"high,medium,low"`
	TotalEstimatedMonths int        `json:"total_estimated_months"`
	Description          string     `json:"description"`
}

// Profile is a stored profile snapshot owned by the persistence layer,
// never by the engine.
type Profile struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Attributes ProfileAttributes `json:"attributes"`
	CreatedAt  string            `json:"created_at" format:"date-time"`
	UpdatedAt  string            `json:"updated_at" format:"date-time"`
}

// RecommendationRecord is a persisted snapshot of one recommendation result
// computed for a stored profile.
type RecommendationRecord struct {
	ID         string `json:"id"`
	ProfileID  string `json:"profile_id"`
	Goal       string `json:"goal"`
	Found      bool   `json:"found"`
	ResultJSON string `json:"result_json,omitempty"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

// Event is one row of the append-only event log.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIKey authenticates a caller of the HTTP API.
type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
