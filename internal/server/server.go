package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ftops/internal/domain"
	"ftops/internal/engine"
	"ftops/internal/migrate"
	"ftops/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine engine.Engine
	// BasePath prefixes every route. Empty serves from the root, which is what the console expects.
	BasePath string
	Auth     AuthConfig
	Logger   *zap.Logger
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError is the flat error body: {error, message, details, counts}.
type apiError struct {
	status  int
	Code    string         `json:"error" example:"workspace_not_empty"`
	Message string         `json:"message,omitempty" example:"workspace still has data"`
	Details any            `json:"details,omitempty"`
	Counts  map[string]int `json:"counts,omitempty"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

// New returns an HTTP handler exposing the ops API.
func New(cfg Config) (http.Handler, error) {
	basePath := strings.TrimRight(cfg.BasePath, "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = cfg.Logger
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		var details any
		if len(errs) > 0 {
			msgs := make([]string, 0, len(errs))
			for _, err := range errs {
				msgs = append(msgs, err.Error())
			}
			details = msgs
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
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("ftops ops API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	var api huma.API = humachi.New(router, hcfg)
	if basePath != "" {
		api = huma.NewGroup(api, basePath)
	}

	registerDocs(router, basePath)
	registerHealth(api, cfg.Engine.DB)
	registerPlan(api, cfg.Engine)
	registerEvents(api, cfg.Engine)
	registerProjects(api, cfg.Engine)
	registerTasks(api, cfg.Engine)
	registerTemplates(api, cfg.Engine)
	registerIntegrations(api, cfg.Engine)
	registerIngest(api, cfg.Engine)
	registerWorkspaces(api, cfg.Engine)
	registerWebhooks(router, basePath, cfg.Engine, cfg.Logger)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{status: status, Code: code, Message: message, Details: details}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ee *engine.Error
	if errors.As(err, &ee) {
		status := http.StatusBadRequest
		switch ee.Kind {
		case engine.KindNotFound:
			status = http.StatusNotFound
		case engine.KindConflict:
			status = http.StatusConflict
		}
		return &apiError{status: status, Code: ee.Code, Message: ee.Error(), Counts: ee.Counts}
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join("/", basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	r.Get(path.Join("/", basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
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
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.Schemas != nil {
		oas.Components.Schemas.Map()["ApiError"] = &huma.Schema{
			Type: huma.TypeObject,
			Properties: map[string]*huma.Schema{
				"error":   {Type: huma.TypeString},
				"message": {Type: huma.TypeString},
				"details": {},
				"counts":  {Type: huma.TypeObject, AdditionalProperties: &huma.Schema{Type: huma.TypeInteger}},
			},
			Required: []string{"error"},
		}
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
	oas.Components.SecuritySchemes["sessionCookie"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "cookie",
		Name: SessionCookie,
	}
	security := []map[string][]string{{"sessionCookie": {}}}
	oas.Security = security
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if public(basePath, route) {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", basePath, "openapi.json")
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>ftops API Docs</title>
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
      Authenticate with the %s cookie, or X-Debug-Email when sessions are off.
    </p>
  </body>
</html>`, specURL, SessionCookie)
}

func registerHealth(api huma.API, db *sql.DB) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check with migration drift",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Health `json:"body"`
	}, error) {
		st, err := migrate.Check(db, migrate.DevAPI)
		if err != nil {
			return nil, handleError(err)
		}
		missing := st.Missing
		if missing == nil {
			missing = []string{}
		}
		return &struct {
			Body domain.Health `json:"body"`
		}{Body: domain.Health{
			OK: true,
			Migrations: domain.MigrationHealth{
				OK:             st.OK(),
				AppliedLatest:  fmt.Sprintf("%04d", st.Applied),
				ExpectedLatest: fmt.Sprintf("%04d", st.Expected),
				MissingCount:   len(missing),
				Missing:        missing,
			},
		}}, nil
	})
}

func registerPlan(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "plan-preview",
		Method:      http.MethodGet,
		Path:        "/plan/preview",
		Summary:     "Preview the task plan for a commercial record",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RecordURI string `query:"record_uri"`
	}) (*struct {
		Body domain.PlanPreview `json:"body"`
	}, error) {
		plan, err := e.Preview(ctx, input.RecordURI)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PlanPreview `json:"body"`
		}{Body: plan}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-commercial-records",
		Method:      http.MethodGet,
		Path:        "/commercial-records",
		Summary:     "List commercial records",
	}, func(ctx context.Context, input *struct {
		Limit  int    `query:"limit" default:"50"`
		Offset int    `query:"offset"`
		Query  string `query:"query"`
	}) (*struct {
		Body domain.RecordPage `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		offset := input.Offset
		if offset < 0 {
			offset = 0
		}
		records, err := e.Repo.ListRecords(ctx, input.Query, limit, offset)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.RecordPage `json:"body"`
		}{Body: domain.RecordPage{Records: records, Limit: limit, Offset: offset}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-commercial-record",
		Method:      http.MethodGet,
		Path:        "/commercial-records/{uri}",
		Summary:     "Get a commercial record with its line items",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		URI string `path:"uri"`
	}) (*struct {
		Body domain.CommercialRecordDetail `json:"body"`
	}, error) {
		uri := pathParam(input.URI)
		rec, err := e.Repo.GetRecord(ctx, uri)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, newAPIError(http.StatusNotFound, "record_not_found", "record not found", nil)
			}
			return nil, handleError(err)
		}
		items, err := e.Repo.LineItems(ctx, uri)
		if err != nil {
			return nil, handleError(err)
		}
		detail, err := recordDetail(rec, items)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CommercialRecordDetail `json:"body"`
		}{Body: detail}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent ingestion events",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"50"`
	}) (*struct {
		Body eventList `json:"body"`
	}, error) {
		items, err := e.Repo.ListEvents(ctx, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		resp := eventList{Events: make([]eventResponse, 0, len(items))}
		for _, ev := range items {
			resp.Events = append(resp.Events, newEventResponse(ev))
		}
		return &struct {
			Body eventList `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "send-test-event",
		Method:      http.MethodPost,
		Path:        "/events/test",
		Summary:     "Submit a synthetic ingestion event",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body testEventResponse `json:"body"`
	}, error) {
		var ev domain.TestEvent
		if err := decodeBody(ctx, &ev); err != nil {
			return nil, err
		}
		res, err := e.Ingest(ctx, ev)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body testEventResponse `json:"body"`
		}{Body: testEventResponse{OK: true, IngestResult: res}}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		items, err := e.Repo.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-from-record",
		Method:      http.MethodPost,
		Path:        "/projects/from-record",
		Summary:     "Get or create the project for a commercial record",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.FromRecordResult `json:"body"`
	}, error) {
		var in struct {
			RecordURI string `json:"recordUri"`
		}
		if err := decodeBody(ctx, &in); err != nil {
			return nil, err
		}
		res, err := e.FromRecord(ctx, in.RecordURI)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.FromRecordResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := e.Repo.GetProject(ctx, pathParam(input.ID))
		if err != nil {
			return nil, notFoundAs(err, "project_not_found")
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-project-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/tasks",
		Summary:     "List a project's tasks",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		id := pathParam(input.ID)
		if _, err := e.Repo.GetProject(ctx, id); err != nil {
			return nil, notFoundAs(err, "project_not_found")
		}
		items, err := e.Repo.ListTasks(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "materialize-project",
		Method:      http.MethodPost,
		Path:        "/projects/{id}/materialize",
		Summary:     "Create the project's tasks from its plan",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.MaterializeResult `json:"body"`
	}, error) {
		var in struct {
			DryRun bool `json:"dryRun"`
		}
		if err := decodeOptionalBody(ctx, &in); err != nil {
			return nil, err
		}
		res, err := e.Materialize(ctx, pathParam(input.ID), in.DryRun)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.MaterializeResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Update a task's status",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		var in struct {
			Status string `json:"status"`
		}
		if err := decodeBody(ctx, &in); err != nil {
			return nil, err
		}
		t, err := e.SetTaskStatus(ctx, pathParam(input.ID), strings.TrimSpace(in.Status))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-task-notes",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/notes",
		Summary:     "List a task's notes",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.TaskNote `json:"body"`
	}, error) {
		id := pathParam(input.ID)
		if _, err := e.Repo.GetTask(ctx, id); err != nil {
			return nil, notFoundAs(err, "task_not_found")
		}
		notes, err := e.Repo.ListNotes(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.TaskNote `json:"body"`
		}{Body: notes}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-task-note",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/notes",
		Summary:       "Add a note to a task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.TaskNote `json:"body"`
	}, error) {
		var in struct {
			Body string `json:"body"`
		}
		if err := decodeBody(ctx, &in); err != nil {
			return nil, err
		}
		n, err := e.AddNote(ctx, pathParam(input.ID), authorEmail(ctx), in.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskNote `json:"body"`
		}{Body: n}, nil
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

// decodeBody reads the captured request body into v. An empty body is rejected.
func decodeBody(ctx context.Context, v any) huma.StatusError {
	data := bytes.TrimSpace(bodyBytes(ctx))
	if len(data) == 0 {
		return newAPIError(http.StatusBadRequest, "invalid_request", "request body required", nil)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return newAPIError(http.StatusBadRequest, "invalid_json", "request body is not valid JSON", err.Error())
	}
	return nil
}

// decodeOptionalBody is decodeBody for endpoints whose body may be omitted.
func decodeOptionalBody(ctx context.Context, v any) huma.StatusError {
	if len(bytes.TrimSpace(bodyBytes(ctx))) == 0 {
		return nil
	}
	return decodeBody(ctx, v)
}

// pathParam undoes the escaping chi keeps when it routes on the raw path.
func pathParam(v string) string {
	if !strings.Contains(v, "%") {
		return v
	}
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func notFoundAs(err error, code string) huma.StatusError {
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, code, strings.ReplaceAll(code, "_", " "), nil)
	}
	return handleError(err)
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 500 {
		return 500
	}
	return in
}
