package server

import (
	"encoding/json"

	"pathway/internal/domain"
)

// Request payloads

type ScoreRequest struct {
	Profile domain.ProfileAttributes `json:"profile"`
	VisaID  string                   `json:"visa_id"`
}

type ScoreAllRequest struct {
	Profile domain.ProfileAttributes `json:"profile"`
}

type RecommendRequest struct {
	Profile domain.ProfileAttributes `json:"profile"`
}

type CreateProfileRequest struct {
	ID         *string                  `json:"id,omitempty"`
	Name       string                   `json:"name"`
	Attributes domain.ProfileAttributes `json:"attributes"`
}

type UpdateProfileRequest struct {
	Name       *string                   `json:"name,omitempty"`
	Attributes *domain.ProfileAttributes `json:"attributes,omitempty"`
}

// Response payloads

type ProfileResponse struct {
	ID         string                   `json:"id"`
	Name       string                   `json:"name"`
	Attributes domain.ProfileAttributes `json:"attributes"`
	CreatedAt  string                   `json:"created_at" format:"date-time"`
	UpdatedAt  string                   `json:"updated_at" format:"date-time"`
}

type RecommendResponse struct {
	Found bool                    `json:"found"`
	Path  *domain.RecommendedPath `json:"path,omitempty"`
}

type ProfileRecommendResponse struct {
	RecommendationID string `json:"recommendation_id"`
	ProfileID        string `json:"profile_id"`
	Goal             string `json:"goal"`
	RecommendResponse
}

type RecommendationRecordResponse struct {
	ID        string                  `json:"id"`
	ProfileID string                  `json:"profile_id"`
	Goal      string                  `json:"goal"`
	Found     bool                    `json:"found"`
	Path      *domain.RecommendedPath `json:"path,omitempty"`
	CreatedAt string                  `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func profileResponse(p domain.Profile) ProfileResponse {
	return ProfileResponse(p)
}

func recommendResponse(path domain.RecommendedPath, found bool) RecommendResponse {
	if !found {
		return RecommendResponse{Found: false}
	}
	return RecommendResponse{Found: true, Path: &path}
}

func recommendationRecordResponse(rec domain.RecommendationRecord) RecommendationRecordResponse {
	res := RecommendationRecordResponse{
		ID:        rec.ID,
		ProfileID: rec.ProfileID,
		Goal:      rec.Goal,
		Found:     rec.Found,
		CreatedAt: rec.CreatedAt,
	}
	if rec.ResultJSON != "" {
		var path domain.RecommendedPath
		if err := json.Unmarshal([]byte(rec.ResultJSON), &path); err == nil {
			res.Path = &path
		}
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}
