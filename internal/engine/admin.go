package engine

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"ftops/internal/admin"
	"ftops/internal/domain"
	"ftops/internal/repo"
)

// EnsureDefaultWorkspace creates the default workspace when missing.
func (e Engine) EnsureDefaultWorkspace(ctx context.Context) (domain.Workspace, error) {
	ws, err := e.Repo.WorkspaceBySlug(ctx, repo.DefaultWorkspaceSlug)
	if err == nil {
		return ws, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Workspace{}, err
	}
	now := e.stamp()
	ws = domain.Workspace{ID: "ws_default", Slug: repo.DefaultWorkspaceSlug, Name: "Default", CreatedAt: now, UpdatedAt: now}
	if err := e.Repo.InsertWorkspace(ctx, ws); err != nil {
		return domain.Workspace{}, err
	}
	return ws, nil
}

func (e Engine) slugTaken(ctx context.Context, slug, exceptID string) (bool, error) {
	ws, err := e.Repo.WorkspaceBySlug(ctx, slug)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ws.ID != exceptID, nil
}

func (e Engine) CreateWorkspace(ctx context.Context, in domain.WorkspaceInput) (domain.Workspace, error) {
	slug, name := strings.TrimSpace(in.Slug), strings.TrimSpace(in.Name)
	if err := admin.ValidateSlug(slug); err != nil {
		return domain.Workspace{}, invalid("invalid_slug", err.Error())
	}
	if name == "" {
		return domain.Workspace{}, invalid("invalid_request", "name is required")
	}
	if taken, err := e.slugTaken(ctx, slug, ""); err != nil {
		return domain.Workspace{}, err
	} else if taken {
		return domain.Workspace{}, conflict("workspace_slug_taken", "slug already in use")
	}
	now := e.stamp()
	ws := domain.Workspace{ID: "ws_" + shortHash(slug, now), Slug: slug, Name: name, CreatedAt: now, UpdatedAt: now}
	if err := e.Repo.InsertWorkspace(ctx, ws); err != nil {
		return domain.Workspace{}, err
	}
	return ws, nil
}

// UpdateWorkspace applies the non-empty fields of in.
func (e Engine) UpdateWorkspace(ctx context.Context, id string, in domain.WorkspaceInput) (domain.Workspace, error) {
	ws, err := e.Repo.GetWorkspace(ctx, id)
	if err != nil {
		return domain.Workspace{}, orNotFound(err, "workspace_not_found")
	}
	if slug := strings.TrimSpace(in.Slug); slug != "" && slug != ws.Slug {
		if ws.Slug == repo.DefaultWorkspaceSlug {
			return domain.Workspace{}, conflict("cannot_rename_default_workspace", "the default workspace keeps its slug")
		}
		if err := admin.ValidateSlug(slug); err != nil {
			return domain.Workspace{}, invalid("invalid_slug", err.Error())
		}
		if taken, err := e.slugTaken(ctx, slug, ws.ID); err != nil {
			return domain.Workspace{}, err
		} else if taken {
			return domain.Workspace{}, conflict("workspace_slug_taken", "slug already in use")
		}
		ws.Slug = slug
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		ws.Name = name
	}
	ws.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateWorkspace(ctx, ws); err != nil {
		return domain.Workspace{}, orNotFound(err, "workspace_not_found")
	}
	return ws, nil
}

// DeleteWorkspace refuses the default workspace and any workspace still owning rows.
func (e Engine) DeleteWorkspace(ctx context.Context, id string) error {
	ws, err := e.Repo.GetWorkspace(ctx, id)
	if err != nil {
		return orNotFound(err, "workspace_not_found")
	}
	if ws.Slug == repo.DefaultWorkspaceSlug {
		return conflict("cannot_delete_default_workspace", "the default workspace cannot be deleted")
	}
	counts, err := e.Repo.WorkspaceCounts(ctx, id)
	if err != nil {
		return err
	}
	if len(counts) > 0 {
		return &Error{Kind: KindConflict, Code: "workspace_not_empty", Message: "workspace still has data", Counts: counts}
	}
	return orNotFound(e.Repo.DeleteWorkspace(ctx, id), "workspace_not_found")
}

func validSecrets(secrets map[string]string) bool {
	if len(secrets) == 0 {
		return false
	}
	for _, v := range secrets {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

func (e Engine) CreateIntegration(ctx context.Context, in domain.IntegrationInput) (domain.Integration, error) {
	switch {
	case strings.TrimSpace(in.WorkspaceID) == "":
		return domain.Integration{}, invalid("invalid_request", "workspaceId is required")
	case !contains(domain.Providers, in.Provider):
		return domain.Integration{}, invalid("invalid_request", "provider must be one of "+strings.Join(domain.Providers, ", "))
	case !contains(domain.Environments, in.Environment):
		return domain.Integration{}, invalid("invalid_request", "environment must be one of "+strings.Join(domain.Environments, ", "))
	case strings.TrimSpace(in.ExternalAccountID) == "":
		return domain.Integration{}, invalid("invalid_request", "externalAccountId is required")
	case !validSecrets(in.Secrets):
		return domain.Integration{}, invalid("invalid_request", "secrets are required")
	}
	if _, err := e.Repo.GetWorkspace(ctx, in.WorkspaceID); err != nil {
		return domain.Integration{}, orNotFound(err, "workspace_not_found")
	}
	if existing, err := e.Repo.IntegrationByAccount(ctx, in.Provider, strings.TrimSpace(in.ExternalAccountID)); err == nil && existing.Environment == in.Environment {
		return domain.Integration{}, conflict("integration_exists", "an integration for this account already exists")
	}
	now := e.stamp()
	it, err := e.Repo.InsertIntegration(ctx, domain.Integration{
		ID:                newID(),
		WorkspaceID:       in.WorkspaceID,
		Provider:          in.Provider,
		Environment:       in.Environment,
		ExternalAccountID: strings.TrimSpace(in.ExternalAccountID),
		DisplayName:       strings.TrimSpace(in.DisplayName),
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, in.Secrets)
	if err != nil {
		return domain.Integration{}, err
	}
	e.Logger.Info("integration created", zap.String("id", it.ID), zap.String("provider", it.Provider), zap.String("environment", it.Environment))
	return it, nil
}

func (e Engine) UpdateIntegration(ctx context.Context, id string, in domain.IntegrationUpdate) (domain.Integration, error) {
	it, err := e.Repo.GetIntegration(ctx, id)
	if err != nil {
		return domain.Integration{}, orNotFound(err, "integration_not_found")
	}
	if in.DisplayName != nil {
		it.DisplayName = strings.TrimSpace(*in.DisplayName)
	}
	if in.IsActive != nil {
		it.IsActive = *in.IsActive != 0
	}
	if in.Secrets != nil && !validSecrets(in.Secrets) {
		return domain.Integration{}, invalid("invalid_request", "secrets must not be empty")
	}
	it.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateIntegration(ctx, it, in.Secrets); err != nil {
		return domain.Integration{}, orNotFound(err, "integration_not_found")
	}
	return e.Repo.GetIntegration(ctx, id)
}

func (e Engine) DeleteIntegration(ctx context.Context, id string) error {
	return orNotFound(e.Repo.DeleteIntegration(ctx, id), "integration_not_found")
}
