package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"ftops/internal/domain"
	"ftops/internal/repo"
)

var templateScopes = []string{domain.ScopeProject, domain.ScopeShared, domain.ScopeDeliverable}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// templateFrom validates in and copies it onto t.
func templateFrom(t domain.Template, in domain.TemplateInput) (domain.Template, error) {
	t.Title = strings.TrimSpace(in.Title)
	if t.Title == "" {
		return t, invalid("invalid_request", "title is required")
	}
	t.Kind = in.Kind
	if t.Kind == "" {
		t.Kind = domain.TemplateKinds[0]
	}
	if !contains(domain.TemplateKinds, t.Kind) {
		return t, invalid("invalid_request", "kind must be one of "+strings.Join(domain.TemplateKinds, ", "))
	}
	t.Scope = in.Scope
	if t.Scope == "" {
		t.Scope = domain.ScopeProject
	}
	if !contains(templateScopes, t.Scope) {
		return t, invalid("invalid_request", "scope must be one of "+strings.Join(templateScopes, ", "))
	}
	t.CategoryKey = derefString(in.CategoryKey)
	t.DeliverableKey = derefString(in.DeliverableKey)
	t.DefaultPosition = in.DefaultPosition
	t.IsActive = domain.Flag(in.IsActive)
	t.DefaultStateJSON = ""
	if raw := bytes.TrimSpace(in.DefaultStateJSON); len(raw) > 0 && string(raw) != "null" {
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return t, invalid("invalid_request", "default_state_json must be valid JSON")
		}
		t.DefaultStateJSON = buf.String()
	}
	return t, nil
}

// TemplateDetail loads a template with its rules and steps.
func (e Engine) TemplateDetail(ctx context.Context, key string) (domain.TemplateDetail, error) {
	t, err := e.Repo.GetTemplate(ctx, key)
	if err != nil {
		return domain.TemplateDetail{}, orNotFound(err, "template_not_found")
	}
	rules, err := e.Repo.ListRules(ctx, key)
	if err != nil {
		return domain.TemplateDetail{}, err
	}
	steps, err := e.Repo.ListSteps(ctx, key)
	if err != nil {
		return domain.TemplateDetail{}, err
	}
	return domain.TemplateDetail{Template: t, Rules: rules, Steps: steps}, nil
}

func (e Engine) CreateTemplate(ctx context.Context, in domain.TemplateInput) (domain.TemplateDetail, error) {
	key := strings.TrimSpace(in.Key)
	if key == "" {
		return domain.TemplateDetail{}, invalid("invalid_request", "key is required")
	}
	if _, err := e.Repo.GetTemplate(ctx, key); err == nil {
		return domain.TemplateDetail{}, conflict("template_exists", "a template with this key already exists")
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.TemplateDetail{}, err
	}
	now := e.stamp()
	t, err := templateFrom(domain.Template{Key: key, CreatedAt: now, UpdatedAt: now}, in)
	if err != nil {
		return domain.TemplateDetail{}, err
	}
	if ws, err := e.Repo.WorkspaceBySlug(ctx, repo.DefaultWorkspaceSlug); err == nil {
		t.WorkspaceID = ws.ID
	}
	if err := e.Repo.InsertTemplate(ctx, t); err != nil {
		return domain.TemplateDetail{}, err
	}
	return e.TemplateDetail(ctx, key)
}

func (e Engine) UpdateTemplate(ctx context.Context, key string, in domain.TemplateInput) (domain.TemplateDetail, error) {
	current, err := e.Repo.GetTemplate(ctx, key)
	if err != nil {
		return domain.TemplateDetail{}, orNotFound(err, "template_not_found")
	}
	t, err := templateFrom(current, in)
	if err != nil {
		return domain.TemplateDetail{}, err
	}
	t.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateTemplate(ctx, t); err != nil {
		return domain.TemplateDetail{}, orNotFound(err, "template_not_found")
	}
	return e.TemplateDetail(ctx, key)
}

func (e Engine) DeleteTemplate(ctx context.Context, key string) error {
	return orNotFound(e.Repo.DeleteTemplate(ctx, key), "template_not_found")
}

func validMatch(matchJSON string) (string, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(matchJSON), &m); err != nil || m == nil {
		return "", invalid("invalid_request", "match_json must be a JSON object")
	}
	var buf bytes.Buffer
	_ = json.Compact(&buf, []byte(matchJSON))
	return buf.String(), nil
}

func (e Engine) CreateRule(ctx context.Context, templateKey string, in domain.RuleInput) (domain.TemplateRule, error) {
	if _, err := e.Repo.GetTemplate(ctx, templateKey); err != nil {
		return domain.TemplateRule{}, orNotFound(err, "template_not_found")
	}
	match, err := validMatch(in.MatchJSON)
	if err != nil {
		return domain.TemplateRule{}, err
	}
	now := e.stamp()
	rule := domain.TemplateRule{
		ID:          newID(),
		TemplateKey: templateKey,
		Priority:    in.Priority,
		MatchJSON:   match,
		IsActive:    domain.Flag(in.IsActive),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertRule(ctx, rule); err != nil {
		return domain.TemplateRule{}, err
	}
	return rule, nil
}

func (e Engine) UpdateRule(ctx context.Context, templateKey, ruleID string, in domain.RuleInput) (domain.TemplateRule, error) {
	rule, err := e.Repo.GetRule(ctx, templateKey, ruleID)
	if err != nil {
		return domain.TemplateRule{}, orNotFound(err, "rule_not_found")
	}
	match, err := validMatch(in.MatchJSON)
	if err != nil {
		return domain.TemplateRule{}, err
	}
	rule.Priority = in.Priority
	rule.MatchJSON = match
	rule.IsActive = domain.Flag(in.IsActive)
	rule.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateRule(ctx, rule); err != nil {
		return domain.TemplateRule{}, orNotFound(err, "rule_not_found")
	}
	return rule, nil
}

func (e Engine) DeleteRule(ctx context.Context, templateKey, ruleID string) error {
	return orNotFound(e.Repo.DeleteRule(ctx, templateKey, ruleID), "rule_not_found")
}

func (e Engine) TemplateSteps(ctx context.Context, templateKey string) ([]domain.TemplateStep, error) {
	if _, err := e.Repo.GetTemplate(ctx, templateKey); err != nil {
		return nil, orNotFound(err, "template_not_found")
	}
	return e.Repo.ListSteps(ctx, templateKey)
}

// ReplaceSteps swaps the template's step list for steps. Steps not present are
// dropped; positions follow list order, starting at 1.
func (e Engine) ReplaceSteps(ctx context.Context, templateKey string, steps []domain.TemplateStep) ([]domain.TemplateStep, error) {
	if _, err := e.Repo.GetTemplate(ctx, templateKey); err != nil {
		return nil, orNotFound(err, "template_not_found")
	}
	seen := map[string]bool{}
	for i := range steps {
		steps[i].Title = strings.TrimSpace(steps[i].Title)
		if steps[i].Title == "" {
			return nil, invalid("invalid_request", "every step needs a title")
		}
		if steps[i].ID == "" || seen[steps[i].ID] {
			steps[i].ID = newID()
		}
		seen[steps[i].ID] = true
		steps[i].TemplateKey = templateKey
		steps[i].Position = i + 1
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := e.Repo.ReplaceStepsTx(ctx, tx, templateKey, steps); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return e.Repo.ListSteps(ctx, templateKey)
}
