package templates

import (
	"context"
	"errors"
	"fmt"

	"ftops/internal/domain"
	"ftops/internal/prefs"
	ftopssdk "ftops/sdk/go"
)

// API is the subset of the ops client the templates panel uses.
type API interface {
	Templates(ctx context.Context) ([]domain.Template, error)
	Template(ctx context.Context, key string) (domain.TemplateDetail, error)
	CreateTemplate(ctx context.Context, in domain.TemplateInput) (domain.TemplateDetail, error)
	UpdateTemplate(ctx context.Context, key string, in domain.TemplateInput) (domain.TemplateDetail, error)
	DeleteTemplate(ctx context.Context, key string) error
	CreateRule(ctx context.Context, templateKey string, in domain.RuleInput) (domain.TemplateRule, error)
	UpdateRule(ctx context.Context, templateKey, ruleID string, in domain.RuleInput) (domain.TemplateRule, error)
	DeleteRule(ctx context.Context, templateKey, ruleID string) error
	TemplateSteps(ctx context.Context, templateKey string) ([]domain.TemplateStep, error)
	ReplaceTemplateSteps(ctx context.Context, templateKey string, steps []domain.TemplateStep) ([]domain.TemplateStep, error)
}

// Service runs template mutations and reloads authoritative state after each one.
type Service struct {
	API   API
	Prefs *prefs.Prefs
}

// Message renders an error for display with a fallback for empty API bodies.
func Message(err error, fallback string) string {
	var v *domain.ValidationError
	if errors.As(err, &v) {
		return v.Message
	}
	var apiErr *ftopssdk.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Friendly(fallback)
	}
	return err.Error()
}

// List loads templates and applies the search term, which is persisted.
func (s Service) List(ctx context.Context, term string) ([]domain.Template, error) {
	if err := s.Prefs.SetOrUnset(ctx, prefs.KeyTemplateSearch, term); err != nil {
		return nil, err
	}
	all, err := s.API.Templates(ctx)
	if err != nil {
		return nil, err
	}
	return Filter(all, term), nil
}

// Search returns the persisted search term.
func (s Service) Search() string { return s.Prefs.String(prefs.KeyTemplateSearch, "") }

// Selected returns the persisted template key.
func (s Service) Selected() string { return s.Prefs.String(prefs.KeyTemplateSelected, "") }

// Load fetches one template with its steps and remembers it as selected.
func (s Service) Load(ctx context.Context, key string) (domain.TemplateDetail, error) {
	d, err := s.API.Template(ctx, key)
	if err != nil {
		return domain.TemplateDetail{}, err
	}
	if d.Steps == nil {
		steps, err := s.API.TemplateSteps(ctx, key)
		if err != nil && !ftopssdk.IsCode(err, "not_found") {
			return domain.TemplateDetail{}, err
		}
		d.Steps = steps
	}
	if err := s.Prefs.Set(ctx, prefs.KeyTemplateSelected, key); err != nil {
		return domain.TemplateDetail{}, err
	}
	return d, nil
}

func (s Service) Create(ctx context.Context, d Draft) (domain.TemplateDetail, error) {
	in, err := d.CreateInput()
	if err != nil {
		return domain.TemplateDetail{}, err
	}
	created, err := s.API.CreateTemplate(ctx, in)
	if err != nil {
		return domain.TemplateDetail{}, err
	}
	key := created.Template.Key
	if key == "" {
		key = in.Key
	}
	return s.Load(ctx, key)
}

func (s Service) Update(ctx context.Context, key string, d Draft) (domain.TemplateDetail, error) {
	in, err := d.UpdateInput()
	if err != nil {
		return domain.TemplateDetail{}, err
	}
	if _, err := s.API.UpdateTemplate(ctx, key, in); err != nil {
		return domain.TemplateDetail{}, err
	}
	return s.Load(ctx, key)
}

// Delete removes the template and clears the selection.
func (s Service) Delete(ctx context.Context, key string) error {
	if err := s.API.DeleteTemplate(ctx, key); err != nil {
		return err
	}
	if s.Selected() == key {
		return s.Prefs.Unset(ctx, prefs.KeyTemplateSelected)
	}
	return nil
}

func (s Service) AddRule(ctx context.Context, key string, r RuleDraft) (domain.TemplateDetail, error) {
	in, err := r.Input()
	if err != nil {
		return domain.TemplateDetail{}, err
	}
	if _, err := s.API.CreateRule(ctx, key, in); err != nil {
		return domain.TemplateDetail{}, err
	}
	return s.Load(ctx, key)
}

func (s Service) SaveRule(ctx context.Context, key, ruleID string, r RuleDraft) (domain.TemplateDetail, error) {
	in, err := r.Input()
	if err != nil {
		return domain.TemplateDetail{}, err
	}
	if _, err := s.API.UpdateRule(ctx, key, ruleID, in); err != nil {
		return domain.TemplateDetail{}, err
	}
	return s.Load(ctx, key)
}

func (s Service) DeleteRule(ctx context.Context, key, ruleID string) (domain.TemplateDetail, error) {
	if err := s.API.DeleteRule(ctx, key, ruleID); err != nil {
		return domain.TemplateDetail{}, err
	}
	return s.Load(ctx, key)
}

// SaveSteps renumbers the draft and replaces the stored list in one call.
func (s Service) SaveSteps(ctx context.Context, key string, e *StepEditor) (domain.TemplateDetail, error) {
	if _, err := s.API.ReplaceTemplateSteps(ctx, key, e.Steps()); err != nil {
		return domain.TemplateDetail{}, fmt.Errorf("save steps: %w", err)
	}
	return s.Load(ctx, key)
}
