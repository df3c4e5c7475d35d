package app

import (
	"context"
	"errors"
	"testing"

	"pathway/internal/domain"
	"pathway/internal/events"
	"pathway/internal/repo"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	conn, svc, err := Bootstrap(t.TempDir(), "", "")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return svc
}

func strongAttributes(goal string) domain.ProfileAttributes {
	return domain.ProfileAttributes{
		Education:       5,
		WorkExperience:  5,
		FieldOfWork:     5,
		Citizenship:     5,
		Investment:      5,
		Language:        5,
		ImmigrationGoal: goal,
	}
}

func TestProfileRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateProfile(ctx, "", "Ada", strongAttributes("work"), "tester")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}

	fetched, err := svc.Repo.GetProfile(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.Attributes != created.Attributes {
		t.Fatalf("attributes mismatch: %+v vs %+v", fetched.Attributes, created.Attributes)
	}

	name := "Ada Lovelace"
	updated, err := svc.UpdateProfile(ctx, created.ID, &name, nil, "tester")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != name || updated.Attributes != created.Attributes {
		t.Fatalf("update changed the wrong fields: %+v", updated)
	}

	if err := svc.DeleteProfile(ctx, created.ID, "tester"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Repo.GetProfile(ctx, created.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRecommendForProfilePersistsOutcome(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	p, err := svc.CreateProfile(ctx, "", "Ada", strongAttributes("permanent_residency"), "tester")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	rec, path, found, err := svc.RecommendForProfile(ctx, p.ID, "tester")
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if !found || len(path.Steps) == 0 {
		t.Fatalf("expected a found path")
	}
	if rec.ProfileID != p.ID || !rec.Found || rec.ResultJSON == "" {
		t.Fatalf("record not persisted correctly: %+v", rec)
	}

	history, err := svc.Repo.ListRecommendations(ctx, p.ID, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].ID != rec.ID {
		t.Fatalf("expected the stored record in history, got %+v", history)
	}
}

func TestRecommendForProfileNoPath(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	p, err := svc.CreateProfile(ctx, "", "Bob", domain.ProfileAttributes{ImmigrationGoal: "no-such-goal"}, "tester")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	rec, _, found, err := svc.RecommendForProfile(ctx, p.ID, "tester")
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if found || rec.Found || rec.ResultJSON != "" {
		t.Fatalf("expected an empty outcome, got %+v", rec)
	}
}

func TestMutationsAppendEvents(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	p, err := svc.CreateProfile(ctx, "", "Ada", strongAttributes("work"), "tester")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, _, err := svc.RecommendForProfile(ctx, p.ID, "tester"); err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if err := svc.DeleteProfile(ctx, p.ID, "tester"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := svc.Repo.EventsAfter(ctx, 0, 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	var types []string
	for _, e := range got {
		types = append(types, e.Type)
	}
	want := []string{
		events.TypeProfileCreated,
		events.TypeRecommendationComputed,
		events.TypeProfileDeleted,
	}
	if len(types) != len(want) {
		t.Fatalf("event types %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event types %v, want %v", types, want)
		}
	}
	for _, e := range got {
		if e.ActorID != "tester" {
			t.Fatalf("actor %s, want tester", e.ActorID)
		}
	}
}
