package ftopssdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"ftops/internal/domain"
	"ftops/internal/fetch"
)

func (c *Client) Workspaces(ctx context.Context) ([]domain.Workspace, error) {
	var out []domain.Workspace
	_, err := c.do(ctx, http.MethodGet, "/workspaces", nil, nil, &out)
	return out, err
}

func (c *Client) CreateWorkspace(ctx context.Context, in domain.WorkspaceInput) (domain.Workspace, error) {
	var out domain.Workspace
	_, err := c.do(ctx, http.MethodPost, "/workspaces", nil, in, &out)
	return out, err
}

func (c *Client) UpdateWorkspace(ctx context.Context, id string, in domain.WorkspaceInput) (domain.Workspace, error) {
	var out domain.Workspace
	_, err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/workspaces/%s", url.PathEscape(id)), nil, in, &out)
	return out, err
}

func (c *Client) DeleteWorkspace(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/workspaces/%s", url.PathEscape(id)), nil, nil, nil)
	return err
}

// Integrations lists integrations, scoped to a workspace when workspaceID is set.
func (c *Client) Integrations(ctx context.Context, workspaceID string) ([]domain.Integration, error) {
	params := fetch.Params{}
	if workspaceID != "" {
		params["workspaceId"] = workspaceID
	}
	var out []domain.Integration
	_, err := c.do(ctx, http.MethodGet, "/integrations", params, nil, &out)
	return out, err
}

func (c *Client) CreateIntegration(ctx context.Context, in domain.IntegrationInput) (domain.Integration, error) {
	var out domain.Integration
	_, err := c.do(ctx, http.MethodPost, "/integrations", nil, in, &out)
	return out, err
}

func (c *Client) UpdateIntegration(ctx context.Context, id string, in domain.IntegrationUpdate) (domain.Integration, error) {
	var out domain.Integration
	_, err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/integrations/%s", url.PathEscape(id)), nil, in, &out)
	return out, err
}

func (c *Client) DeleteIntegration(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/integrations/%s", url.PathEscape(id)), nil, nil, nil)
	return err
}

func (c *Client) IngestRequests(ctx context.Context, f domain.IngestFilter) (domain.IngestPage, error) {
	params := fetch.Params{}
	if f.Provider != "" {
		params["provider"] = f.Provider
	}
	if f.WorkspaceID != "" {
		params["workspaceId"] = f.WorkspaceID
	}
	if f.Environment != "" {
		params["environment"] = f.Environment
	}
	if f.Limit > 0 {
		params["limit"] = f.Limit
	}
	var out domain.IngestPage
	_, err := c.do(ctx, http.MethodGet, "/ingest/requests", params, nil, &out)
	return out, err
}

// IngestRequest returns the full request detail as an untyped document.
func (c *Client) IngestRequest(ctx context.Context, id string) (map[string]any, error) {
	var out map[string]any
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/ingest/requests/%s", url.PathEscape(id)), nil, nil, &out)
	return out, err
}
