package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"ftops/internal/domain"
	"ftops/internal/engine"
)

func registerTemplates(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-templates",
		Method:      http.MethodGet,
		Path:        "/templates",
		Summary:     "List task templates",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Template `json:"body"`
	}, error) {
		items, err := e.Repo.ListTemplates(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Template `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-template",
		Method:        http.MethodPost,
		Path:          "/templates",
		Summary:       "Create task template",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.TemplateDetail `json:"body"`
	}, error) {
		var in domain.TemplateInput
		if err := decodeBody(ctx, &in); err != nil {
			return nil, err
		}
		detail, err := e.CreateTemplate(ctx, in)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TemplateDetail `json:"body"`
		}{Body: detail}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-template",
		Method:      http.MethodGet,
		Path:        "/templates/{key}",
		Summary:     "Get a template with its rules and steps",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Key string `path:"key"`
	}) (*struct {
		Body domain.TemplateDetail `json:"body"`
	}, error) {
		detail, err := e.TemplateDetail(ctx, pathParam(input.Key))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TemplateDetail `json:"body"`
		}{Body: detail}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-template",
		Method:      http.MethodPatch,
		Path:        "/templates/{key}",
		Summary:     "Update task template",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Key string `path:"key"`
	}) (*struct {
		Body domain.TemplateDetail `json:"body"`
	}, error) {
		var in domain.TemplateInput
		if err := decodeBody(ctx, &in); err != nil {
			return nil, err
		}
		detail, err := e.UpdateTemplate(ctx, pathParam(input.Key), in)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TemplateDetail `json:"body"`
		}{Body: detail}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-template",
		Method:        http.MethodDelete,
		Path:          "/templates/{key}",
		Summary:       "Delete task template with its rules and steps",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Key string `path:"key"`
	}) (*struct{}, error) {
		if err := e.DeleteTemplate(ctx, pathParam(input.Key)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-rule",
		Method:        http.MethodPost,
		Path:          "/templates/{key}/rules",
		Summary:       "Add a match rule to a template",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Key string `path:"key"`
	}) (*struct {
		Body domain.TemplateRule `json:"body"`
	}, error) {
		var in domain.RuleInput
		if err := decodeBody(ctx, &in); err != nil {
			return nil, err
		}
		rule, err := e.CreateRule(ctx, pathParam(input.Key), in)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TemplateRule `json:"body"`
		}{Body: rule}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-rule",
		Method:      http.MethodPatch,
		Path:        "/templates/{key}/rules/{id}",
		Summary:     "Update a template rule",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Key string `path:"key"`
		ID  string `path:"id"`
	}) (*struct {
		Body domain.TemplateRule `json:"body"`
	}, error) {
		var in domain.RuleInput
		if err := decodeBody(ctx, &in); err != nil {
			return nil, err
		}
		rule, err := e.UpdateRule(ctx, pathParam(input.Key), pathParam(input.ID), in)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TemplateRule `json:"body"`
		}{Body: rule}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-rule",
		Method:        http.MethodDelete,
		Path:          "/templates/{key}/rules/{id}",
		Summary:       "Delete a template rule",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Key string `path:"key"`
		ID  string `path:"id"`
	}) (*struct{}, error) {
		if err := e.DeleteRule(ctx, pathParam(input.Key), pathParam(input.ID)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-steps",
		Method:      http.MethodGet,
		Path:        "/templates/{key}/steps",
		Summary:     "List a template's steps",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Key string `path:"key"`
	}) (*struct {
		Body stepList `json:"body"`
	}, error) {
		steps, err := e.TemplateSteps(ctx, pathParam(input.Key))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body stepList `json:"body"`
		}{Body: stepList{Steps: steps}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "replace-steps",
		Method:      http.MethodPut,
		Path:        "/templates/{key}/steps",
		Summary:     "Replace a template's ordered steps",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Key string `path:"key"`
	}) (*struct {
		Body stepList `json:"body"`
	}, error) {
		var in stepList
		if err := decodeBody(ctx, &in); err != nil {
			return nil, err
		}
		steps, err := e.ReplaceSteps(ctx, pathParam(input.Key), in.Steps)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body stepList `json:"body"`
		}{Body: stepList{Steps: steps}}, nil
	})
}

func registerIntegrations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-integrations",
		Method:      http.MethodGet,
		Path:        "/integrations",
		Summary:     "List provider integrations",
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `query:"workspaceId"`
	}) (*struct {
		Body []domain.Integration `json:"body"`
	}, error) {
		items, err := e.Repo.ListIntegrations(ctx, input.WorkspaceID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Integration `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-integration",
		Method:        http.MethodPost,
		Path:          "/integrations",
		Summary:       "Create provider integration",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Integration `json:"body"`
	}, error) {
		var in domain.IntegrationInput
		if err := decodeBody(ctx, &in); err != nil {
			return nil, err
		}
		it, err := e.CreateIntegration(ctx, in)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Integration `json:"body"`
		}{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-integration",
		Method:      http.MethodPatch,
		Path:        "/integrations/{id}",
		Summary:     "Update provider integration",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Integration `json:"body"`
	}, error) {
		var in domain.IntegrationUpdate
		if err := decodeBody(ctx, &in); err != nil {
			return nil, err
		}
		it, err := e.UpdateIntegration(ctx, pathParam(input.ID), in)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Integration `json:"body"`
		}{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-integration",
		Method:        http.MethodDelete,
		Path:          "/integrations/{id}",
		Summary:       "Delete provider integration",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := e.DeleteIntegration(ctx, pathParam(input.ID)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerIngest(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-ingest-requests",
		Method:      http.MethodGet,
		Path:        "/ingest/requests",
		Summary:     "List received webhook deliveries",
	}, func(ctx context.Context, input *struct {
		Provider    string `query:"provider"`
		WorkspaceID string `query:"workspaceId"`
		Environment string `query:"environment"`
		Limit       int    `query:"limit" default:"50"`
	}) (*struct {
		Body domain.IngestPage `json:"body"`
	}, error) {
		f := domain.IngestFilter{
			Provider:    input.Provider,
			WorkspaceID: input.WorkspaceID,
			Environment: input.Environment,
			Limit:       normalizeLimit(input.Limit),
		}
		items, err := e.Repo.ListIngestRequests(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.IngestRequest{}
		}
		return &struct {
			Body domain.IngestPage `json:"body"`
		}{Body: domain.IngestPage{Requests: items, Limit: f.Limit}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-ingest-request",
		Method:      http.MethodGet,
		Path:        "/ingest/requests/{id}",
		Summary:     "Get one webhook delivery with headers and body",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.IngestRequest `json:"body"`
	}, error) {
		req, err := e.IngestDetail(ctx, pathParam(input.ID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.IngestRequest `json:"body"`
		}{Body: req}, nil
	})
}

func registerWorkspaces(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-workspaces",
		Method:      http.MethodGet,
		Path:        "/workspaces",
		Summary:     "List workspaces",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Workspace `json:"body"`
	}, error) {
		items, err := e.Repo.ListWorkspaces(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Workspace `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-workspace",
		Method:        http.MethodPost,
		Path:          "/workspaces",
		Summary:       "Create workspace",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Workspace `json:"body"`
	}, error) {
		var in domain.WorkspaceInput
		if err := decodeBody(ctx, &in); err != nil {
			return nil, err
		}
		ws, err := e.CreateWorkspace(ctx, in)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Workspace `json:"body"`
		}{Body: ws}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-workspace",
		Method:      http.MethodPatch,
		Path:        "/workspaces/{id}",
		Summary:     "Rename workspace",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Workspace `json:"body"`
	}, error) {
		var in domain.WorkspaceInput
		if err := decodeBody(ctx, &in); err != nil {
			return nil, err
		}
		ws, err := e.UpdateWorkspace(ctx, pathParam(input.ID), in)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Workspace `json:"body"`
		}{Body: ws}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-workspace",
		Method:        http.MethodDelete,
		Path:          "/workspaces/{id}",
		Summary:       "Delete an empty workspace",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := e.DeleteWorkspace(ctx, pathParam(input.ID)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
