package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"pathway/internal/app"
	"pathway/internal/domain"
	"pathway/internal/engine"
	"pathway/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Service  app.Service
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_profile"`
	Message string         `json:"message" example:"immigration_goal is required"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"visa_id\":\"h1b\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Pathway API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Service.Repo))
	hcfg := huma.DefaultConfig("Pathway API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerVisas(group, cfg.Service)
	registerScoring(group, cfg.Service)
	registerRecommend(group, cfg.Service)
	registerProfiles(group, cfg.Service)
	registerEvents(group, cfg.Service)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Service)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, engine.ErrInvalidProfile) {
		return newAPIError(http.StatusBadRequest, "invalid_profile", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrUnknownVisa) {
		return newAPIError(http.StatusNotFound, "unknown_visa", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "unique constraint"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func bodyBytes(ctx context.Context) []byte {
	b, _ := ctx.Value(bodyBytesKey{}).([]byte)
	return b
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Pathway API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerVisas(api huma.API, svc app.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "list-visas",
		Method:      http.MethodGet,
		Path:        "/visas",
		Summary:     "List visa catalog",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.VisaNode `json:"body"`
	}, error) {
		return &struct {
			Body []domain.VisaNode `json:"body"`
		}{Body: svc.Engine.KB.Nodes()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-visa",
		Method:      http.MethodGet,
		Path:        "/visas/{visa_id}",
		Summary:     "Get visa",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		VisaID string `path:"visa_id"`
	}) (*struct {
		Body domain.VisaNode `json:"body"`
	}, error) {
		node, ok := svc.Engine.KB.Node(input.VisaID)
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "unknown_visa", fmt.Sprintf("unknown visa id: %s", input.VisaID), nil)
		}
		return &struct {
			Body domain.VisaNode `json:"body"`
		}{Body: node}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-goals",
		Method:      http.MethodGet,
		Path:        "/goals",
		Summary:     "List goal tags present in the catalog",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []string `json:"body"`
	}, error) {
		return &struct {
			Body []string `json:"body"`
		}{Body: svc.Engine.KB.GoalTags()}, nil
	})
}

func registerScoring(api huma.API, svc app.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "score-visa",
		Method:      http.MethodPost,
		Path:        "/score",
		Summary:     "Score a profile against one visa",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body ScoreRequest `json:"body"`
	}) (*struct {
		Body domain.MatchScore `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.VisaID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "visa_id is required", nil)
		}
		score, err := svc.Engine.ScoreVisa(input.Body.Profile, input.Body.VisaID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.MatchScore `json:"body"`
		}{Body: score}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "score-all-visas",
		Method:      http.MethodPost,
		Path:        "/visas/scores",
		Summary:     "Score a profile against every visa",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body ScoreAllRequest `json:"body"`
	}) (*struct {
		Body []engine.VisaScore `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		return &struct {
			Body []engine.VisaScore `json:"body"`
		}{Body: svc.Engine.ScoreAll(input.Body.Profile)}, nil
	})
}

func registerRecommend(api huma.API, svc app.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "recommend",
		Method:      http.MethodPost,
		Path:        "/recommend",
		Summary:     "Recommend a path for an ad-hoc profile",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body RecommendRequest `json:"body"`
	}) (*struct {
		Body RecommendResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		path, found, err := svc.Engine.Recommend(input.Body.Profile)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RecommendResponse `json:"body"`
		}{Body: recommendResponse(path, found)}, nil
	})
}

func registerProfiles(api huma.API, svc app.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-profile",
		Method:        http.MethodPost,
		Path:          "/profiles",
		Summary:       "Create profile",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateProfileRequest `json:"body"`
	}) (*struct {
		Body ProfileResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		actorID := actorIDOrDefault(ctx)
		id := ""
		if input.Body.ID != nil {
			id = *input.Body.ID
		}
		p, err := svc.CreateProfile(ctx, id, input.Body.Name, input.Body.Attributes, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProfileResponse `json:"body"`
		}{Body: profileResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-profiles",
		Method:      http.MethodGet,
		Path:        "/profiles",
		Summary:     "List profiles",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProfileResponse `json:"body"`
	}, error) {
		items, err := svc.Repo.ListProfiles(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]ProfileResponse, 0, len(items))
		for _, p := range items {
			res = append(res, profileResponse(p))
		}
		return &struct {
			Body []ProfileResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-profile",
		Method:      http.MethodGet,
		Path:        "/profiles/{profile_id}",
		Summary:     "Get profile",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProfileID string `path:"profile_id"`
	}) (*struct {
		Body ProfileResponse `json:"body"`
	}, error) {
		p, err := svc.Repo.GetProfile(ctx, input.ProfileID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProfileResponse `json:"body"`
		}{Body: profileResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-profile",
		Method:      http.MethodPatch,
		Path:        "/profiles/{profile_id}",
		Summary:     "Update profile",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProfileID string               `path:"profile_id"`
		Body      UpdateProfileRequest `json:"body"`
	}) (*struct {
		Body ProfileResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		p, err := svc.UpdateProfile(ctx, input.ProfileID, input.Body.Name, input.Body.Attributes, actorIDOrDefault(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProfileResponse `json:"body"`
		}{Body: profileResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-profile",
		Method:      http.MethodDelete,
		Path:        "/profiles/{profile_id}",
		Summary:     "Delete profile",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProfileID string `path:"profile_id"`
	}) (*struct{}, error) {
		if err := svc.DeleteProfile(ctx, input.ProfileID, actorIDOrDefault(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "recommend-for-profile",
		Method:      http.MethodPost,
		Path:        "/profiles/{profile_id}/recommend",
		Summary:     "Recommend a path for a stored profile",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProfileID string `path:"profile_id"`
	}) (*struct {
		Body ProfileRecommendResponse `json:"body"`
	}, error) {
		rec, path, found, err := svc.RecommendForProfile(ctx, input.ProfileID, actorIDOrDefault(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		res := ProfileRecommendResponse{
			RecommendationID:  rec.ID,
			ProfileID:         rec.ProfileID,
			Goal:              rec.Goal,
			RecommendResponse: recommendResponse(path, found),
		}
		return &struct {
			Body ProfileRecommendResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-profile-recommendations",
		Method:      http.MethodGet,
		Path:        "/profiles/{profile_id}/recommendations",
		Summary:     "List stored recommendations for a profile",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProfileID string `path:"profile_id"`
		Limit     int    `query:"limit" minimum:"0"`
	}) (*struct {
		Body []RecommendationRecordResponse `json:"body"`
	}, error) {
		if _, err := svc.Repo.GetProfile(ctx, input.ProfileID); err != nil {
			return nil, handleError(err)
		}
		items, err := svc.Repo.ListRecommendations(ctx, input.ProfileID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]RecommendationRecordResponse, 0, len(items))
		for _, rec := range items {
			res = append(res, recommendationRecordResponse(rec))
		}
		return &struct {
			Body []RecommendationRecordResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerEvents(api huma.API, svc app.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" minimum:"0"`
		Cursor     string `query:"cursor"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		var cursor int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", nil)
			}
			cursor = parsed
		}
		items, err := svc.Repo.LatestEventsFrom(ctx, limit, cursor, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		page := paginatedEvents{Items: make([]EventResponse, 0, len(items))}
		for _, e := range items {
			page.Items = append(page.Items, eventResponse(e))
		}
		if len(items) == limit {
			page.NextCursor = strconv.FormatInt(items[len(items)-1].ID, 10)
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: page}, nil
	})
}
