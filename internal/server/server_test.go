package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"pathway/internal/app"
	"pathway/internal/domain"
	"pathway/internal/repo"
)

type testServer struct {
	URL     string
	Service app.Service
	client  *http.Client
	close   func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, auth AuthConfig) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, svc, err := app.Bootstrap(workspace, "", "")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	handler, err := New(Config{Service: svc, BasePath: "/v0", Auth: auth})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:     "http://" + ln.Addr().String(),
		Service: svc,
		client:  &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.Close)
	return testSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func strongAttributes(goal string) map[string]any {
	return map[string]any{
		"education":        5,
		"work_experience":  5,
		"field_of_work":    5,
		"citizenship":      5,
		"investment":       5,
		"language":         5,
		"immigration_goal": goal,
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}

func TestProfileLifecycleAndRecommend(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	createRes, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/profiles", map[string]any{
		"name":       "Ada",
		"attributes": strongAttributes("work"),
	}, nil)
	if createRes.StatusCode != http.StatusCreated {
		t.Fatalf("create profile status %d: %s", createRes.StatusCode, string(data))
	}
	var created ProfileResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal profile: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated profile id")
	}

	recRes, recBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/profiles/"+created.ID+"/recommend", nil, nil)
	if recRes.StatusCode != http.StatusOK {
		t.Fatalf("recommend status %d: %s", recRes.StatusCode, string(recBody))
	}
	var rec ProfileRecommendResponse
	if err := json.Unmarshal(recBody, &rec); err != nil {
		t.Fatalf("unmarshal recommendation: %v", err)
	}
	if !rec.Found || rec.Path == nil || len(rec.Path.Steps) == 0 {
		t.Fatalf("expected a found path, got %s", string(recBody))
	}
	if rec.Goal != "work" {
		t.Fatalf("goal %s, want work", rec.Goal)
	}

	histRes, histBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/profiles/"+created.ID+"/recommendations", nil, nil)
	if histRes.StatusCode != http.StatusOK {
		t.Fatalf("history status %d: %s", histRes.StatusCode, string(histBody))
	}
	var history []RecommendationRecordResponse
	if err := json.Unmarshal(histBody, &history); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(history) != 1 || !history[0].Found {
		t.Fatalf("expected one found record, got %s", string(histBody))
	}

	evtRes, evtBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?entity_id="+created.ID, nil, nil)
	if evtRes.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", evtRes.StatusCode, string(evtBody))
	}
	var page paginatedEvents
	if err := json.Unmarshal(evtBody, &page); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(page.Items) < 2 {
		t.Fatalf("expected profile.created and recommendation.computed events, got %s", string(evtBody))
	}

	delRes, delBody := doJSON(t, client, http.MethodDelete, srv.URL+"/v0/profiles/"+created.ID, nil, nil)
	if delRes.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d: %s", delRes.StatusCode, string(delBody))
	}
	getRes, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/profiles/"+created.ID, nil, nil)
	if getRes.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", getRes.StatusCode)
	}
}

func TestRecommendMissingGoal(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/recommend", map[string]any{
		"profile": map[string]any{"education": 5},
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "invalid_profile" {
		t.Fatalf("code %s, want invalid_profile", envelope.Error.Code)
	}
}

func TestRecommendNoPathIsNotAnError(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/recommend", map[string]any{
		"profile": map[string]any{"immigration_goal": "no-such-goal"},
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.StatusCode, string(data))
	}
	var rec RecommendResponse
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.Found || rec.Path != nil {
		t.Fatalf("expected found=false with no path, got %s", string(data))
	}
}

func TestScoreUnknownVisa(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/score", map[string]any{
		"profile": strongAttributes("work"),
		"visa_id": "zz9",
	}, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
}

func TestScoreAllCoversCatalog(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/visas/scores", map[string]any{
		"profile": strongAttributes("work"),
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("score all status %d: %s", res.StatusCode, string(data))
	}
	var scores []struct {
		Visa  domain.VisaNode   `json:"visa"`
		Score domain.MatchScore `json:"score"`
	}
	if err := json.Unmarshal(data, &scores); err != nil {
		t.Fatalf("unmarshal scores: %v", err)
	}
	if len(scores) != len(srv.Service.Engine.KB.Nodes()) {
		t.Fatalf("expected one score per visa, got %d", len(scores))
	}
	for _, s := range scores {
		if s.Score.MatchPercentage != 100 {
			t.Fatalf("strong profile should score 100 on %s, got %d", s.Visa.ID, s.Score.MatchPercentage)
		}
	}
}

func TestAuthRequiredWhenEnabled(t *testing.T) {
	srv := newTestServer(t, AuthConfig{Enabled: true, JWTSecret: "test-secret"})
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/visas", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", res.StatusCode)
	}

	// Health stays open.
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should not require auth, got %d", res.StatusCode)
	}

	key := domain.APIKey{ID: "k1", ActorID: "ada", KeyHash: repo.HashAPIKey("s3cret")}
	if err := srv.Service.Repo.InsertAPIKey(context.Background(), nil, key); err != nil {
		t.Fatalf("insert api key: %v", err)
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/visas", nil, map[string]string{"X-Api-Key": "s3cret"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with api key, got %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/visas", nil, map[string]string{"X-Api-Key": "wrong"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad api key, got %d", res.StatusCode)
	}
}
