package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pathway/internal/domain"
	"pathway/internal/engine"
	"pathway/internal/events"
	"pathway/internal/repo"
)

// Service wires the pure engine to profile storage, recommendation history
// and the event log. Every mutation appends its event in the same
// transaction as the row change.
type Service struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Engine engine.Engine
}

func NewService(conn *sql.DB, e engine.Engine) Service {
	return Service{
		DB:     conn,
		Repo:   repo.Repo{DB: conn},
		Events: events.Writer{DB: conn},
		Engine: e,
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (s Service) CreateProfile(ctx context.Context, id, name string, attrs domain.ProfileAttributes, actorID string) (domain.Profile, error) {
	if id == "" {
		id = uuid.NewString()
	}
	ts := now()
	p := domain.Profile{
		ID:         id,
		Name:       name,
		Attributes: attrs,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Profile{}, err
	}
	defer tx.Rollback()
	if err := s.Repo.InsertProfile(ctx, tx, p); err != nil {
		return domain.Profile{}, fmt.Errorf("insert profile: %w", err)
	}
	if err := s.Events.Append(ctx, tx, events.TypeProfileCreated, "profile", p.ID, actorID, events.EventPayload{
		"name": p.Name,
		"goal": p.Attributes.ImmigrationGoal,
	}); err != nil {
		return domain.Profile{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Profile{}, err
	}
	return p, nil
}

// UpdateProfile replaces name and/or attributes. Nil arguments leave the
// stored value untouched.
func (s Service) UpdateProfile(ctx context.Context, id string, name *string, attrs *domain.ProfileAttributes, actorID string) (domain.Profile, error) {
	p, err := s.Repo.GetProfile(ctx, id)
	if err != nil {
		return domain.Profile{}, err
	}
	if name != nil {
		p.Name = *name
	}
	if attrs != nil {
		p.Attributes = *attrs
	}
	p.UpdatedAt = now()
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Profile{}, err
	}
	defer tx.Rollback()
	if err := s.Repo.UpdateProfile(ctx, tx, p); err != nil {
		return domain.Profile{}, err
	}
	if err := s.Events.Append(ctx, tx, events.TypeProfileUpdated, "profile", p.ID, actorID, events.EventPayload{
		"goal": p.Attributes.ImmigrationGoal,
	}); err != nil {
		return domain.Profile{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Profile{}, err
	}
	return p, nil
}

func (s Service) DeleteProfile(ctx context.Context, id, actorID string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := s.Repo.DeleteProfile(ctx, tx, id); err != nil {
		return err
	}
	if err := s.Events.Append(ctx, tx, events.TypeProfileDeleted, "profile", id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// RecommendForProfile runs the engine against a stored profile, persists the
// outcome as a recommendation record and returns both. A no-path outcome is
// recorded with found=false, not treated as an error.
func (s Service) RecommendForProfile(ctx context.Context, profileID, actorID string) (domain.RecommendationRecord, domain.RecommendedPath, bool, error) {
	p, err := s.Repo.GetProfile(ctx, profileID)
	if err != nil {
		return domain.RecommendationRecord{}, domain.RecommendedPath{}, false, err
	}
	path, found, err := s.Engine.Recommend(p.Attributes)
	if err != nil {
		return domain.RecommendationRecord{}, domain.RecommendedPath{}, false, err
	}
	rec := domain.RecommendationRecord{
		ID:        uuid.NewString(),
		ProfileID: p.ID,
		Goal:      p.Attributes.ImmigrationGoal,
		Found:     found,
		CreatedAt: now(),
	}
	evtType := events.TypeRecommendationEmpty
	payload := events.EventPayload{"goal": rec.Goal, "found": found}
	if found {
		data, err := json.Marshal(path)
		if err != nil {
			return domain.RecommendationRecord{}, domain.RecommendedPath{}, false, fmt.Errorf("marshal path: %w", err)
		}
		rec.ResultJSON = string(data)
		evtType = events.TypeRecommendationComputed
		payload["steps"] = len(path.Steps)
		payload["confidence"] = path.Confidence
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.RecommendationRecord{}, domain.RecommendedPath{}, false, err
	}
	defer tx.Rollback()
	if err := s.Repo.InsertRecommendation(ctx, tx, rec); err != nil {
		return domain.RecommendationRecord{}, domain.RecommendedPath{}, false, fmt.Errorf("insert recommendation: %w", err)
	}
	if err := s.Events.Append(ctx, tx, evtType, "profile", p.ID, actorID, payload); err != nil {
		return domain.RecommendationRecord{}, domain.RecommendedPath{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return domain.RecommendationRecord{}, domain.RecommendedPath{}, false, err
	}
	return rec, path, found, nil
}
