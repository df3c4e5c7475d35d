package pathwaysdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Pathway HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Profile is the API profile model.
type Profile struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Attributes ProfileAttributes `json:"attributes"`
	CreatedAt  string            `json:"created_at"`
	UpdatedAt  string            `json:"updated_at"`
}

// ProfileAttributes mirrors the engine's normalized profile snapshot.
type ProfileAttributes struct {
	Education       int     `json:"education"`
	WorkExperience  int     `json:"work_experience"`
	FieldOfWork     int     `json:"field_of_work"`
	Citizenship     int     `json:"citizenship"`
	Investment      int     `json:"investment"`
	Language        int     `json:"language"`
	CurrentVisaID   *string `json:"current_visa_id,omitempty"`
	ImmigrationGoal string  `json:"immigration_goal"`
}

// Visa is one catalog entry.
type Visa struct {
	ID                    string         `json:"id"`
	Name                  string         `json:"name"`
	Code                  string         `json:"code"`
	Requirements          map[string]int `json:"requirements,omitempty"`
	TypicalDurationMonths int            `json:"typical_duration_months"`
	GoalTags              []string       `json:"goal_tags,omitempty"`
}

// MatchScore is a computed eligibility result.
type MatchScore struct {
	MatchPercentage int    `json:"match_percentage"`
	Status          string `json:"status"`
}

// VisaScore pairs a visa with its score.
type VisaScore struct {
	Visa  Visa       `json:"visa"`
	Score MatchScore `json:"score"`
}

// PathStep is one visa along a recommended path.
type PathStep struct {
	VisaID              string     `json:"visa_id"`
	VisaName            string     `json:"visa_name"`
	VisaCode            string     `json:"visa_code"`
	Score               MatchScore `json:"score"`
	EstimatedTimeMonths int        `json:"estimated_time_months"`
}

// RecommendedPath is the engine's best path toward a goal.
type RecommendedPath struct {
	Steps                []PathStep `json:"steps"`
	Confidence           string     `json:"confidence"`
	TotalEstimatedMonths int        `json:"total_estimated_months"`
	Description          string     `json:"description"`
}

// Recommendation is the recommend response envelope.
type Recommendation struct {
	Found bool             `json:"found"`
	Path  *RecommendedPath `json:"path,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Visas returns the visa catalog.
func (c *Client) Visas(ctx context.Context) ([]Visa, error) {
	var resp []Visa
	err := c.do(ctx, http.MethodGet, "v0/visas", nil, &resp)
	return resp, err
}

// CreateProfile stores a profile.
func (c *Client) CreateProfile(ctx context.Context, name string, attrs ProfileAttributes) (Profile, error) {
	body := map[string]any{
		"name":       name,
		"attributes": attrs,
	}
	var resp Profile
	err := c.do(ctx, http.MethodPost, "v0/profiles", body, &resp)
	return resp, err
}

// GetProfile fetches a stored profile.
func (c *Client) GetProfile(ctx context.Context, id string) (Profile, error) {
	var resp Profile
	err := c.do(ctx, http.MethodGet, "v0/profiles/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Recommend computes a path for an ad-hoc profile without storing anything.
func (c *Client) Recommend(ctx context.Context, attrs ProfileAttributes) (Recommendation, error) {
	body := map[string]any{"profile": attrs}
	var resp Recommendation
	err := c.do(ctx, http.MethodPost, "v0/recommend", body, &resp)
	return resp, err
}

// RecommendForProfile computes and stores a recommendation for a stored
// profile.
func (c *Client) RecommendForProfile(ctx context.Context, profileID string) (Recommendation, error) {
	var resp Recommendation
	endpoint := fmt.Sprintf("v0/profiles/%s/recommend", url.PathEscape(profileID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// ScoreAll scores a profile against every visa.
func (c *Client) ScoreAll(ctx context.Context, attrs ProfileAttributes) ([]VisaScore, error) {
	body := map[string]any{"profile": attrs}
	var resp []VisaScore
	err := c.do(ctx, http.MethodPost, "v0/visas/scores", body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
