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

	"crisisline/internal/engine"
	"crisisline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"septe_pair_invalid"`
	Message string         `json:"message" example:"social percentages must sum to 100, got 110"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"pair\":\"social\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Crisisline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
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
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Crisisline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerAuth(group, cfg)
	registerMe(group, cfg)
	registerScenarios(group, cfg.Engine)
	registerAnalytics(group, cfg.Engine)
	registerCompanies(group, cfg.Engine)
	registerAdjustments(group, cfg.Engine)
	registerConsensus(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

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
	var se engine.SepteError
	if errors.As(err, &se) {
		return newAPIError(http.StatusBadRequest, "septe_pair_invalid", err.Error(), map[string]any{"pair": se.Pair})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "not in company"):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") || strings.Contains(lowered, "must be"):
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
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
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
	public := map[string]bool{}
	for _, suffix := range []string{"health", "auth/register", "auth/login"} {
		p := path.Join(basePath, suffix)
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		public[p] = true
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if public[route] {
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
    <title>Crisisline API Docs</title>
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
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
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

func registerScenarios(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-scenario",
		Method:        http.MethodPost,
		Path:          "/scenarios",
		Summary:       "Create scenario",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateScenarioRequest `json:"body"`
	}) (*struct {
		Body ScenarioResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.CreateScenario(ctx, engine.ScenarioCreateOptions{
			Title:             input.Body.Title,
			Description:       stringOrEmpty(input.Body.Description),
			CrisisType:        input.Body.CrisisType,
			Severity:          input.Body.Severity,
			AffectedRegions:   input.Body.AffectedRegions,
			KeyVariables:      input.Body.KeyVariables,
			AdditionalContext: stringOrEmpty(input.Body.AdditionalContext),
			Stakeholders:      stringOrEmpty(input.Body.Stakeholders),
			Timeline:          stringOrEmpty(input.Body.Timeline),
			UserID:            userID,
			ActorID:           userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScenarioResponse `json:"body"`
		}{Body: scenarioResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-scenarios",
		Method:      http.MethodGet,
		Path:        "/scenarios",
		Summary:     "List scenarios",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ScenarioResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListScenarios(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ScenarioResponse `json:"body"`
		}{Body: mapScenarios(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-scenario",
		Method:      http.MethodGet,
		Path:        "/scenarios/{id}",
		Summary:     "Get scenario",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ScenarioResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.Repo.GetScenario(ctx, input.ID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScenarioResponse `json:"body"`
		}{Body: scenarioResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "amend-scenario",
		Method:      http.MethodPatch,
		Path:        "/scenarios/{id}/amend",
		Summary:     "Amend scenario fields",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body AmendScenarioRequest `json:"body"`
	}) (*struct {
		Body ScenarioResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.AmendScenario(ctx, engine.ScenarioAmendOptions{
			ID:                input.ID,
			UserID:            userID,
			ActorID:           userID,
			AffectedRegions:   input.Body.AffectedRegions,
			KeyVariables:      input.Body.KeyVariables,
			AdditionalContext: input.Body.AdditionalContext,
			Stakeholders:      input.Body.Stakeholders,
			Timeline:          input.Body.Timeline,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScenarioResponse `json:"body"`
		}{Body: scenarioResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "manual-impact-update",
		Method:      http.MethodPost,
		Path:        "/scenarios/{id}/manual-impact-update",
		Summary:     "Set impact sub-scores directly",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body ManualImpactRequest `json:"body"`
	}) (*struct {
		Body ScenarioResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.ManualImpactUpdate(ctx, engine.ManualImpactOptions{
			ID:            input.ID,
			UserID:        userID,
			ActorID:       userID,
			Economic:      input.Body.EconomicImpact,
			Social:        input.Body.SocialImpact,
			Environmental: input.Body.EnvironmentalImpact,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScenarioResponse `json:"body"`
		}{Body: scenarioResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "scenario-change-history",
		Method:      http.MethodGet,
		Path:        "/scenarios/{id}/change-history",
		Summary:     "Scenario change ledger",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []ChangeRecordResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.Repo.GetScenario(ctx, input.ID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ChangeRecordResponse `json:"body"`
		}{Body: mapChangeRecords(s.ChangeHistory)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-scenario",
		Method:      http.MethodDelete,
		Path:        "/scenarios/{id}",
		Summary:     "Delete scenario",
		Errors: []int{
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteScenario(ctx, input.ID, userID, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerAnalytics(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "scenario-analytics",
		Method:      http.MethodGet,
		Path:        "/scenarios/{id}/analytics",
		Summary:     "Per-scenario analytics",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body engine.ScenarioAnalytics `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.ScenarioAnalytics(ctx, input.ID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ScenarioAnalytics `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "user-scenario-analytics",
		Method:      http.MethodGet,
		Path:        "/user/scenario-analytics",
		Summary:     "Aggregate analytics over the caller's scenarios",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.OwnerAnalytics `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.OwnerAnalytics(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.OwnerAnalytics `json:"body"`
		}{Body: a}, nil
	})
}

func registerCompanies(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-company",
		Method:        http.MethodPost,
		Path:          "/companies",
		Summary:       "Create company",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateCompanyRequest `json:"body"`
	}) (*struct {
		Body CompanyResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateCompany(ctx, input.Body.Name, stringOrEmpty(input.Body.Industry), stringOrEmpty(input.Body.Description), userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CompanyResponse `json:"body"`
		}{Body: companyResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-companies",
		Method:      http.MethodGet,
		Path:        "/companies",
		Summary:     "List companies",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []CompanyResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListCompanies(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]CompanyResponse, 0, len(items))
		for _, c := range items {
			res = append(res, companyResponse(c))
		}
		return &struct {
			Body []CompanyResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-company",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}",
		Summary:     "Get company",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
	}) (*struct {
		Body CompanyResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		c, err := e.Repo.GetCompany(ctx, input.CompanyID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CompanyResponse `json:"body"`
		}{Body: companyResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-company",
		Method:      http.MethodPut,
		Path:        "/companies/{company_id}",
		Summary:     "Update company",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string               `path:"company_id"`
		Body      CreateCompanyRequest `json:"body"`
	}) (*struct {
		Body CompanyResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.UpdateCompany(ctx, input.CompanyID, input.Body.Name, stringOrEmpty(input.Body.Industry), stringOrEmpty(input.Body.Description), userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CompanyResponse `json:"body"`
		}{Body: companyResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-company",
		Method:      http.MethodDelete,
		Path:        "/companies/{company_id}",
		Summary:     "Delete company",
		Errors: []int{
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteCompany(ctx, input.CompanyID, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-team",
		Method:        http.MethodPost,
		Path:          "/companies/{company_id}/teams",
		Summary:       "Create team",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string            `path:"company_id"`
		Body      CreateTeamRequest `json:"body"`
	}) (*struct {
		Body TeamResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTeam(ctx, input.CompanyID, input.Body.Name, stringOrEmpty(input.Body.LeadID), input.Body.MemberIDs, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TeamResponse `json:"body"`
		}{Body: teamResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-teams",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}/teams",
		Summary:     "List teams",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
	}) (*struct {
		Body []TeamResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListTeams(ctx, input.CompanyID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]TeamResponse, 0, len(items))
		for _, t := range items {
			res = append(res, teamResponse(t))
		}
		return &struct {
			Body []TeamResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerAdjustments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-adjustment",
		Method:        http.MethodPost,
		Path:          "/companies/{company_id}/scenario-adjustments",
		Summary:       "Create scenario adjustment",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string            `path:"company_id"`
		Body      AdjustmentRequest `json:"body"`
	}) (*struct {
		Body AdjustmentResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CreateAdjustment(ctx, engine.AdjustmentOptions{
			CompanyID:      input.CompanyID,
			ScenarioID:     input.Body.ScenarioID,
			AdjustmentName: input.Body.AdjustmentName,
			Settings:       input.Body.Settings,
			ActorID:        userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AdjustmentResponse `json:"body"`
		}{Body: adjustmentResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-adjustments",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}/scenario-adjustments",
		Summary:     "List scenario adjustments",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
	}) (*struct {
		Body []AdjustmentResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListAdjustments(ctx, input.CompanyID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]AdjustmentResponse, 0, len(items))
		for _, a := range items {
			res = append(res, adjustmentResponse(a))
		}
		return &struct {
			Body []AdjustmentResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-adjustment",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}/scenario-adjustments/{id}",
		Summary:     "Get scenario adjustment",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body AdjustmentResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		a, err := e.Repo.GetAdjustment(ctx, input.ID, input.CompanyID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AdjustmentResponse `json:"body"`
		}{Body: adjustmentResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-adjustment",
		Method:      http.MethodPut,
		Path:        "/companies/{company_id}/scenario-adjustments/{id}",
		Summary:     "Update scenario adjustment",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string            `path:"company_id"`
		ID        string            `path:"id"`
		Body      AdjustmentRequest `json:"body"`
	}) (*struct {
		Body AdjustmentResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.UpdateAdjustment(ctx, engine.AdjustmentOptions{
			ID:             input.ID,
			CompanyID:      input.CompanyID,
			ScenarioID:     input.Body.ScenarioID,
			AdjustmentName: input.Body.AdjustmentName,
			Settings:       input.Body.Settings,
			ActorID:        userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AdjustmentResponse `json:"body"`
		}{Body: adjustmentResponse(a)}, nil
	})
}

func registerConsensus(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-consensus",
		Method:        http.MethodPost,
		Path:          "/companies/{company_id}/consensus",
		Summary:       "Open a consensus round",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string                 `path:"company_id"`
		Body      CreateConsensusRequest `json:"body"`
	}) (*struct {
		Body ConsensusResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.AdjustmentID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "adjustment_id is required", nil)
		}
		c, err := e.CreateConsensus(ctx, engine.ConsensusCreateOptions{
			CompanyID:     input.CompanyID,
			AdjustmentID:  input.Body.AdjustmentID,
			TeamID:        input.Body.TeamID,
			ConsensusName: input.Body.ConsensusName,
			ActorID:       userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConsensusResponse `json:"body"`
		}{Body: consensusResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-consensus",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}/consensus",
		Summary:     "List consensus rounds",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
	}) (*struct {
		Body []ConsensusResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListConsensus(ctx, input.CompanyID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]ConsensusResponse, 0, len(items))
		for _, c := range items {
			res = append(res, consensusResponse(c))
		}
		return &struct {
			Body []ConsensusResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-consensus",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}/consensus/{id}",
		Summary:     "Get consensus round",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body ConsensusResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		c, err := e.Repo.GetConsensus(ctx, input.ID, input.CompanyID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConsensusResponse `json:"body"`
		}{Body: consensusResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "agree-consensus",
		Method:      http.MethodPost,
		Path:        "/companies/{company_id}/consensus/{id}/agree",
		Summary:     "Agree to a consensus round",
		Errors: []int{
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body ConsensusResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.AgreeConsensus(ctx, input.ID, input.CompanyID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConsensusResponse `json:"body"`
		}{Body: consensusResponse(c)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent engine events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		OwnerID    string `query:"owner_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.OwnerID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
