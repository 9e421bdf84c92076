// Package admin holds the workspace, integration and ingest panel logic.
package admin

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"ftops/internal/domain"
	"ftops/internal/jsontree"
	"ftops/internal/prefs"
	ftopssdk "ftops/sdk/go"
)

// DefaultSlug names the workspace chosen when no stored selection survives.
const DefaultSlug = "default"

var slugPattern = regexp.MustCompile(`^[a-z0-9-]{3,40}$`)

const (
	msgSlug = "Slug must be 3-40 chars: lowercase letters, digits, hyphens."
	msgName = "Name is required."
)

// ValidateSlug checks the workspace slug format.
func ValidateSlug(slug string) error {
	if !slugPattern.MatchString(slug) {
		return domain.Invalid(msgSlug)
	}
	return nil
}

// bodyOr returns the raw API body of a failed call, else fallback.
func bodyOr(err error, fallback string) string {
	var apiErr *ftopssdk.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Body != "" {
			return apiErr.Body
		}
		return fallback
	}
	var v *domain.ValidationError
	if errors.As(err, &v) {
		return v.Message
	}
	if err != nil {
		return err.Error()
	}
	return fallback
}

// ActionError carries the display message of a failed admin action.
type ActionError struct {
	Message string
	Err     error
}

func (e *ActionError) Error() string { return e.Message }
func (e *ActionError) Unwrap() error { return e.Err }

func actionError(err error, fallback string) error {
	var v *domain.ValidationError
	if errors.As(err, &v) {
		return err
	}
	return &ActionError{Message: bodyOr(err, fallback), Err: err}
}

// ResolveSelection keeps stored when it still exists, else picks the default slug, else the first workspace.
func ResolveSelection(list []domain.Workspace, stored string) string {
	if stored != "" {
		for _, w := range list {
			if w.ID == stored {
				return stored
			}
		}
	}
	for _, w := range list {
		if w.Slug == DefaultSlug {
			return w.ID
		}
	}
	if len(list) > 0 {
		return list[0].ID
	}
	return ""
}

// DeleteMessage maps a workspace delete failure to its display text.
// Counts keep the order the server sent them in.
func DeleteMessage(err error) string {
	var apiErr *ftopssdk.APIError
	if !errors.As(err, &apiErr) {
		return err.Error()
	}
	msg := apiErr.Body
	if msg == "" {
		msg = "Delete failed."
	}
	switch apiErr.Code {
	case "workspace_not_empty":
		if detail := orderedCounts(apiErr.Body); detail != "" {
			msg = "Workspace not empty. " + detail
		}
	case "cannot_delete_default_workspace":
		msg = "Default workspace cannot be deleted."
	}
	return msg
}

func orderedCounts(body string) string {
	root, err := jsontree.Parse([]byte(body))
	if err != nil {
		return ""
	}
	counts := root.Find([]string{"counts"})
	if counts == nil || counts.Kind != jsontree.Object {
		return ""
	}
	parts := make([]string, 0, len(counts.Children))
	for _, c := range counts.Children {
		parts = append(parts, fmt.Sprintf("%s: %s", c.Key, c.Label()))
	}
	return strings.Join(parts, ", ")
}

// WorkspaceAPI is the subset of the ops client used for workspaces.
type WorkspaceAPI interface {
	Workspaces(ctx context.Context) ([]domain.Workspace, error)
	CreateWorkspace(ctx context.Context, in domain.WorkspaceInput) (domain.Workspace, error)
	UpdateWorkspace(ctx context.Context, id string, in domain.WorkspaceInput) (domain.Workspace, error)
	DeleteWorkspace(ctx context.Context, id string) error
}

type Workspaces struct {
	API   WorkspaceAPI
	Prefs *prefs.Prefs
}

// List loads workspaces and settles the selected one, persisting any fallback.
func (w Workspaces) List(ctx context.Context) ([]domain.Workspace, string, error) {
	list, err := w.API.Workspaces(ctx)
	if err != nil {
		return nil, "", actionError(err, "Failed to load workspaces.")
	}
	selected := ResolveSelection(list, w.Prefs.WorkspaceID())
	if selected != w.Prefs.WorkspaceID() {
		if err := w.Prefs.SetOrUnset(ctx, prefs.KeyWorkspaceID, selected); err != nil {
			return nil, "", err
		}
	}
	return list, selected, nil
}

// Use selects a workspace by id or slug.
func (w Workspaces) Use(ctx context.Context, ref string) (domain.Workspace, error) {
	list, err := w.API.Workspaces(ctx)
	if err != nil {
		return domain.Workspace{}, actionError(err, "Failed to load workspaces.")
	}
	for _, ws := range list {
		if ws.ID == ref || ws.Slug == ref {
			return ws, w.Prefs.Set(ctx, prefs.KeyWorkspaceID, ws.ID)
		}
	}
	return domain.Workspace{}, fmt.Errorf("workspace %q not found", ref)
}

func (w Workspaces) Create(ctx context.Context, slug, name string) (domain.Workspace, error) {
	if err := ValidateSlug(slug); err != nil {
		return domain.Workspace{}, err
	}
	if strings.TrimSpace(name) == "" {
		return domain.Workspace{}, domain.Invalid(msgName)
	}
	ws, err := w.API.CreateWorkspace(ctx, domain.WorkspaceInput{Slug: slug, Name: name})
	if err != nil {
		return domain.Workspace{}, actionError(err, "Failed to create workspace.")
	}
	return ws, nil
}

// Update keeps the target's slug and name for empty fields.
func (w Workspaces) Update(ctx context.Context, target domain.Workspace, slug, name string) (domain.Workspace, error) {
	if slug != "" {
		if err := ValidateSlug(slug); err != nil {
			return domain.Workspace{}, err
		}
	} else {
		slug = target.Slug
	}
	if name == "" {
		name = target.Name
	}
	ws, err := w.API.UpdateWorkspace(ctx, target.ID, domain.WorkspaceInput{Slug: slug, Name: name})
	if err != nil {
		return domain.Workspace{}, actionError(err, "Failed to update workspace.")
	}
	return ws, nil
}

// Delete removes a workspace and clears the selection when it pointed at it.
func (w Workspaces) Delete(ctx context.Context, id string) error {
	if err := w.API.DeleteWorkspace(ctx, id); err != nil {
		return &ActionError{Message: DeleteMessage(err), Err: err}
	}
	if w.Prefs.WorkspaceID() == id {
		return w.Prefs.Unset(ctx, prefs.KeyWorkspaceID)
	}
	return nil
}
