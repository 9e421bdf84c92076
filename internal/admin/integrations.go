package admin

import (
	"context"
	"fmt"
	"strings"

	"ftops/internal/domain"
	"ftops/internal/prefs"
)

// WebhookHint is the inbound endpoint a provider should be configured with.
type WebhookHint struct {
	Provider string
	Label    string
	URL      string
}

var WebhookHints = []WebhookHint{
	{Provider: "shopify", Label: "Shopify", URL: "https://api.from-trees.com/ingest/shopify/webhook?env=production"},
	{Provider: "qbo", Label: "QBO", URL: "https://api.from-trees.com/ingest/qbo/webhook?env=production"},
}

// SecretsFor builds the write-only secrets object for a provider.
func SecretsFor(provider, value string) map[string]string {
	if provider == "shopify" {
		return map[string]string{"webhookSecret": value}
	}
	return map[string]string{"webhookVerifierToken": value}
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if a == v {
			return true
		}
	}
	return false
}

// IntegrationDraft is the create form.
type IntegrationDraft struct {
	Provider          string
	Environment       string
	ExternalAccountID string
	DisplayName       string
	Secret            string
}

func NewIntegrationDraft() IntegrationDraft {
	return IntegrationDraft{Provider: "shopify", Environment: "production"}
}

// IntegrationAPI is the subset of the ops client used for integrations.
type IntegrationAPI interface {
	Integrations(ctx context.Context, workspaceID string) ([]domain.Integration, error)
	CreateIntegration(ctx context.Context, in domain.IntegrationInput) (domain.Integration, error)
	UpdateIntegration(ctx context.Context, id string, in domain.IntegrationUpdate) (domain.Integration, error)
	DeleteIntegration(ctx context.Context, id string) error
}

// Integrations is scoped to the selected workspace.
type Integrations struct {
	API   IntegrationAPI
	Prefs *prefs.Prefs
}

func (s Integrations) List(ctx context.Context) ([]domain.Integration, error) {
	list, err := s.API.Integrations(ctx, s.Prefs.WorkspaceID())
	if err != nil {
		return nil, actionError(err, "Failed to load integrations.")
	}
	return list, nil
}

func (s Integrations) Create(ctx context.Context, d IntegrationDraft) (domain.Integration, error) {
	ws := s.Prefs.WorkspaceID()
	if ws == "" {
		return domain.Integration{}, domain.Invalid("Select a workspace first.")
	}
	if !oneOf(d.Provider, domain.Providers) {
		return domain.Integration{}, domain.Invalid(fmt.Sprintf("Provider must be one of %s.", strings.Join(domain.Providers, ", ")))
	}
	if !oneOf(d.Environment, domain.Environments) {
		return domain.Integration{}, domain.Invalid(fmt.Sprintf("Environment must be one of %s.", strings.Join(domain.Environments, ", ")))
	}
	in := domain.IntegrationInput{
		WorkspaceID:       ws,
		Provider:          d.Provider,
		Environment:       d.Environment,
		ExternalAccountID: d.ExternalAccountID,
		DisplayName:       d.DisplayName,
		Secrets:           SecretsFor(d.Provider, d.Secret),
	}
	out, err := s.API.CreateIntegration(ctx, in)
	if err != nil {
		return domain.Integration{}, actionError(err, "Failed to create integration.")
	}
	return out, nil
}

// ToggleActive flips is_active, sent as 0 or 1.
func (s Integrations) ToggleActive(ctx context.Context, it domain.Integration) (domain.Integration, error) {
	next := 1
	if it.IsActive {
		next = 0
	}
	out, err := s.API.UpdateIntegration(ctx, it.ID, domain.IntegrationUpdate{IsActive: &next})
	if err != nil {
		return domain.Integration{}, actionError(err, "Failed to update integration.")
	}
	return out, nil
}

// RotateSecret replaces the provider secret. The value is never read back.
func (s Integrations) RotateSecret(ctx context.Context, it domain.Integration, value string) (domain.Integration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return domain.Integration{}, domain.Invalid("Secret value is required.")
	}
	out, err := s.API.UpdateIntegration(ctx, it.ID, domain.IntegrationUpdate{Secrets: SecretsFor(it.Provider, value)})
	if err != nil {
		return domain.Integration{}, actionError(err, "Failed to update integration.")
	}
	return out, nil
}

// Rename sets the display name.
func (s Integrations) Rename(ctx context.Context, it domain.Integration, name string) (domain.Integration, error) {
	out, err := s.API.UpdateIntegration(ctx, it.ID, domain.IntegrationUpdate{DisplayName: &name})
	if err != nil {
		return domain.Integration{}, actionError(err, "Failed to update integration.")
	}
	return out, nil
}

func (s Integrations) Delete(ctx context.Context, id string) error {
	if err := s.API.DeleteIntegration(ctx, id); err != nil {
		return actionError(err, "Failed to delete integration.")
	}
	return nil
}

// IngestAPI is the subset of the ops client used by the ingest panel.
type IngestAPI interface {
	IngestRequests(ctx context.Context, f domain.IngestFilter) (domain.IngestPage, error)
	IngestRequest(ctx context.Context, id string) (map[string]any, error)
}

// IngestLimit is the page size of the ingest list.
const IngestLimit = 50

// Ingest is the read-only ingest request browser.
type Ingest struct {
	API   IngestAPI
	Prefs *prefs.Prefs
}

// DefaultFilter is shopify/production in the selected workspace.
func (s Ingest) DefaultFilter() domain.IngestFilter {
	return domain.IngestFilter{Provider: "shopify", Environment: "production", WorkspaceID: s.Prefs.WorkspaceID(), Limit: IngestLimit}
}

func (s Ingest) List(ctx context.Context, f domain.IngestFilter) ([]domain.IngestRequest, error) {
	if f.Limit <= 0 {
		f.Limit = IngestLimit
	}
	page, err := s.API.IngestRequests(ctx, f)
	if err != nil {
		return nil, actionError(err, "Failed to load ingest requests.")
	}
	return page.Requests, nil
}

func (s Ingest) Detail(ctx context.Context, id string) (map[string]any, error) {
	d, err := s.API.IngestRequest(ctx, id)
	if err != nil {
		return nil, actionError(err, "Failed to load detail.")
	}
	return d, nil
}
