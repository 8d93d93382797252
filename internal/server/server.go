// Package server exposes the tracker over HTTP: huma-described operations
// mounted on chi, with JWT bearer auth and a periodic deadline sweeper.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"permitline/internal/store"
	"permitline/internal/tracker"
)

// Config for the HTTP API handler.
type Config struct {
	Tracker  *tracker.Tracker
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"application not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Permitline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
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
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Permitline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerApplications(group, cfg.Tracker)
	registerAlerts(group, cfg.Tracker)
	registerUsers(group, cfg.Tracker)
	registerScan(group, cfg.Tracker)
	registerOpenAPI(router, api, basePath)

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
	if errors.Is(err, store.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "unknown") || strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required"):
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
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
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

func registerApplications(api huma.API, tr *tracker.Tracker) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-application",
		Method:        http.MethodPost,
		Path:          "/applications",
		Summary:       "Register application",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateApplicationRequest `json:"body"`
	}) (*struct {
		Body ApplicationResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Reference == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "reference is required", nil)
		}
		opts := tracker.CreateOptions{
			Reference: input.Body.Reference,
			Address:   input.Body.Address,
			Postcode:  input.Body.Postcode,
			TypeCode:  input.Body.TypeCode,
			UserID:    userID,
			Borough:   input.Body.Borough,
			Ward:      input.Body.Ward,
		}
		if input.Body.UserID != "" {
			opts.UserID = input.Body.UserID
		}
		if input.Body.Description != nil {
			opts.Description = *input.Body.Description
		}
		if input.Body.SubmittedAt != nil {
			ts, err := time.Parse(time.RFC3339, *input.Body.SubmittedAt)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid submitted_at", map[string]any{"error": err.Error()})
			}
			opts.SubmittedAt = ts
		}
		app, err := tr.Create(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApplicationResponse `json:"body"`
		}{Body: applicationResponse(app)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-application",
		Method:      http.MethodGet,
		Path:        "/applications/{id}",
		Summary:     "Get application",
		Errors:      []int{http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ApplicationResponse `json:"body"`
	}, error) {
		app, err := tr.Get(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApplicationResponse `json:"body"`
		}{Body: applicationResponse(app)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-application-status",
		Method:      http.MethodPatch,
		Path:        "/applications/{id}/status",
		Summary:     "Apply authority status update",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body UpdateStatusRequest `json:"body"`
	}) (*struct {
		Body ApplicationResponse `json:"body"`
	}, error) {
		if input.Body.Status == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "status is required", nil)
		}
		app, err := tr.UpdateStatus(ctx, input.ID, input.Body.Status, input.Body.Notes)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApplicationResponse `json:"body"`
		}{Body: applicationResponse(app)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-document",
		Method:        http.MethodPost,
		Path:          "/applications/{id}/documents",
		Summary:       "Record document metadata",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body AddDocumentRequest `json:"body"`
	}) (*struct {
		Body ApplicationResponse `json:"body"`
	}, error) {
		app, err := tr.AddDocument(ctx, input.ID, input.Body.Name, input.Body.Category)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApplicationResponse `json:"body"`
		}{Body: applicationResponse(app)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "log-communication",
		Method:        http.MethodPost,
		Path:          "/applications/{id}/communications",
		Summary:       "Log communication",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                  `path:"id"`
		Body LogCommunicationRequest `json:"body"`
	}) (*struct {
		Body ApplicationResponse `json:"body"`
	}, error) {
		opts := tracker.CommunicationOptions{
			Direction:      input.Body.Direction,
			Summary:        input.Body.Summary,
			ActionRequired: input.Body.ActionRequired,
		}
		if input.Body.ActionDeadline != nil {
			ts, err := time.Parse(time.RFC3339, *input.Body.ActionDeadline)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid action_deadline", map[string]any{"error": err.Error()})
			}
			opts.ActionDeadline = &ts
		}
		app, err := tr.LogCommunication(ctx, input.ID, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApplicationResponse `json:"body"`
		}{Body: applicationResponse(app)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-communication",
		Method:      http.MethodPost,
		Path:        "/applications/{id}/communications/{comm_id}/resolve",
		Summary:     "Resolve communication",
		Errors:      []int{http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		CommID string `path:"comm_id"`
	}) (*struct {
		Body ApplicationResponse `json:"body"`
	}, error) {
		app, err := tr.ResolveCommunication(ctx, input.ID, input.CommID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApplicationResponse `json:"body"`
		}{Body: applicationResponse(app)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "application-timeline",
		Method:      http.MethodGet,
		Path:        "/applications/{id}/timeline",
		Summary:     "Timeline projection",
		Errors:      []int{http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TimelineResponse `json:"body"`
	}, error) {
		tl, err := tr.Timeline(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TimelineResponse `json:"body"`
		}{Body: timelineResponse(tl)}, nil
	})
}

func registerAlerts(api huma.API, tr *tracker.Tracker) {
	huma.Register(api, huma.Operation{
		OperationID: "pending-alerts",
		Method:      http.MethodGet,
		Path:        "/applications/{id}/alerts",
		Summary:     "Unread alerts",
		Errors:      []int{http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []AlertResponse `json:"body"`
	}, error) {
		alerts, err := tr.PendingAlerts(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []AlertResponse `json:"body"`
		}{Body: mapAlerts(alerts)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-alert-read",
		Method:      http.MethodPost,
		Path:        "/applications/{id}/alerts/{alert_id}/read",
		Summary:     "Mark alert read",
		Errors:      []int{http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ID      string `path:"id"`
		AlertID string `path:"alert_id"`
	}) (*struct {
		Body ApplicationResponse `json:"body"`
	}, error) {
		app, err := tr.MarkAlertRead(ctx, input.ID, input.AlertID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApplicationResponse `json:"body"`
		}{Body: applicationResponse(app)}, nil
	})
}

func registerUsers(api huma.API, tr *tracker.Tracker) {
	huma.Register(api, huma.Operation{
		OperationID: "user-applications",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/applications",
		Summary:     "List a user's applications",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body []ApplicationResponse `json:"body"`
	}, error) {
		apps, err := tr.UserApplications(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ApplicationResponse `json:"body"`
		}{Body: mapApplications(apps)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "user-stats",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/stats",
		Summary:     "Portfolio statistics",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body StatsResponse `json:"body"`
	}, error) {
		stats, err := tr.UserStats(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatsResponse `json:"body"`
		}{Body: statsResponse(stats)}, nil
	})
}

func registerScan(api huma.API, tr *tracker.Tracker) {
	type scanResponse struct {
		Raised []AlertResponse `json:"raised"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "scan-deadlines",
		Method:      http.MethodPost,
		Path:        "/deadlines/scan",
		Summary:     "Scan for deadline alerts",
		Errors:      []int{http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Record bool `query:"record" default:"true"`
	}) (*struct {
		Body scanResponse `json:"body"`
	}, error) {
		alerts, err := tr.CheckDeadlines(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if input.Record {
			if err := tr.RecordAlerts(ctx, alerts); err != nil {
				return nil, handleError(err)
			}
		}
		return &struct {
			Body scanResponse `json:"body"`
		}{Body: scanResponse{Raised: mapAlerts(alerts)}}, nil
	})
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
	security := []map[string][]string{{"bearerAuth": {}}}
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
    <title>Permitline API Docs</title>
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
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}
