package ftopssdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"ftops/internal/domain"
)

func templatePath(key string) string {
	return fmt.Sprintf("/templates/%s", url.PathEscape(key))
}

func (c *Client) Templates(ctx context.Context) ([]domain.Template, error) {
	var out []domain.Template
	_, err := c.do(ctx, http.MethodGet, "/templates", nil, nil, &out)
	return out, err
}

func (c *Client) Template(ctx context.Context, key string) (domain.TemplateDetail, error) {
	var out domain.TemplateDetail
	_, err := c.do(ctx, http.MethodGet, templatePath(key), nil, nil, &out)
	return out, err
}

func (c *Client) CreateTemplate(ctx context.Context, in domain.TemplateInput) (domain.TemplateDetail, error) {
	var out domain.TemplateDetail
	_, err := c.do(ctx, http.MethodPost, "/templates", nil, in, &out)
	return out, err
}

func (c *Client) UpdateTemplate(ctx context.Context, key string, in domain.TemplateInput) (domain.TemplateDetail, error) {
	in.Key = ""
	var out domain.TemplateDetail
	_, err := c.do(ctx, http.MethodPatch, templatePath(key), nil, in, &out)
	return out, err
}

func (c *Client) DeleteTemplate(ctx context.Context, key string) error {
	_, err := c.do(ctx, http.MethodDelete, templatePath(key), nil, nil, nil)
	return err
}

func (c *Client) CreateRule(ctx context.Context, templateKey string, in domain.RuleInput) (domain.TemplateRule, error) {
	var out domain.TemplateRule
	_, err := c.do(ctx, http.MethodPost, templatePath(templateKey)+"/rules", nil, in, &out)
	return out, err
}

func (c *Client) UpdateRule(ctx context.Context, templateKey, ruleID string, in domain.RuleInput) (domain.TemplateRule, error) {
	var out domain.TemplateRule
	_, err := c.do(ctx, http.MethodPatch, templatePath(templateKey)+"/rules/"+url.PathEscape(ruleID), nil, in, &out)
	return out, err
}

func (c *Client) DeleteRule(ctx context.Context, templateKey, ruleID string) error {
	_, err := c.do(ctx, http.MethodDelete, templatePath(templateKey)+"/rules/"+url.PathEscape(ruleID), nil, nil, nil)
	return err
}

func (c *Client) TemplateSteps(ctx context.Context, templateKey string) ([]domain.TemplateStep, error) {
	var out struct {
		Steps []domain.TemplateStep `json:"steps"`
	}
	_, err := c.do(ctx, http.MethodGet, templatePath(templateKey)+"/steps", nil, nil, &out)
	return out.Steps, err
}

// ReplaceTemplateSteps sends the full ordered step list; the server drops steps not present.
func (c *Client) ReplaceTemplateSteps(ctx context.Context, templateKey string, steps []domain.TemplateStep) ([]domain.TemplateStep, error) {
	if steps == nil {
		steps = []domain.TemplateStep{}
	}
	var out struct {
		Steps []domain.TemplateStep `json:"steps"`
	}
	_, err := c.do(ctx, http.MethodPut, templatePath(templateKey)+"/steps", nil, map[string]any{"steps": steps}, &out)
	return out.Steps, err
}
