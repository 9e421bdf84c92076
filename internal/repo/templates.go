package repo

import (
	"context"
	"database/sql"

	"ftops/internal/domain"
)

const templateColumns = `key,COALESCE(workspace_id,''),title,kind,scope,COALESCE(category_key,''),COALESCE(deliverable_key,''),default_position,COALESCE(default_state_json,''),is_active,created_at,updated_at`

func scanTemplate(row interface{ Scan(...any) error }) (domain.Template, error) {
	var t domain.Template
	var pos sql.NullInt64
	var active int
	err := row.Scan(&t.Key, &t.WorkspaceID, &t.Title, &t.Kind, &t.Scope, &t.CategoryKey, &t.DeliverableKey, &pos, &t.DefaultStateJSON, &active, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	t.DefaultPosition = intPtr(pos)
	t.IsActive = active != 0
	return t, err
}

func (r Repo) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+templateColumns+` FROM templates ORDER BY default_position IS NULL, default_position, key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) GetTemplate(ctx context.Context, key string) (domain.Template, error) {
	return scanTemplate(r.DB.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE key=?`, key))
}

func (r Repo) InsertTemplate(ctx context.Context, t domain.Template) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO templates(key,workspace_id,title,kind,scope,category_key,deliverable_key,default_position,default_state_json,is_active,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.Key, nullable(t.WorkspaceID), t.Title, t.Kind, t.Scope, nullable(t.CategoryKey), nullable(t.DeliverableKey),
		nullableIntPtr(t.DefaultPosition), nullable(t.DefaultStateJSON), boolInt(bool(t.IsActive)), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) UpdateTemplate(ctx context.Context, t domain.Template) error {
	return affectedOrNotFound(r.DB.ExecContext(ctx, `UPDATE templates SET title=?, kind=?, scope=?, category_key=?, deliverable_key=?, default_position=?, default_state_json=?, is_active=?, updated_at=? WHERE key=?`,
		t.Title, t.Kind, t.Scope, nullable(t.CategoryKey), nullable(t.DeliverableKey), nullableIntPtr(t.DefaultPosition),
		nullable(t.DefaultStateJSON), boolInt(bool(t.IsActive)), t.UpdatedAt, t.Key))
}

// DeleteTemplate removes a template; its rules and steps cascade.
func (r Repo) DeleteTemplate(ctx context.Context, key string) error {
	return affectedOrNotFound(r.DB.ExecContext(ctx, `DELETE FROM templates WHERE key=?`, key))
}

// Rules

const ruleColumns = `id,template_key,priority,match_json,is_active,created_at,updated_at`

func scanRule(row interface{ Scan(...any) error }) (domain.TemplateRule, error) {
	var rule domain.TemplateRule
	var active int
	err := row.Scan(&rule.ID, &rule.TemplateKey, &rule.Priority, &rule.MatchJSON, &active, &rule.CreatedAt, &rule.UpdatedAt)
	if err == sql.ErrNoRows {
		return rule, ErrNotFound
	}
	rule.IsActive = active != 0
	return rule, err
}

func (r Repo) queryRules(ctx context.Context, query string, args ...any) ([]domain.TemplateRule, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.TemplateRule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rule)
	}
	return res, rows.Err()
}

// ListRules returns a template's rules, highest priority first.
func (r Repo) ListRules(ctx context.Context, templateKey string) ([]domain.TemplateRule, error) {
	return r.queryRules(ctx, `SELECT `+ruleColumns+` FROM template_rules WHERE template_key=? ORDER BY priority DESC, created_at, id`, templateKey)
}

// ActiveRules returns every active rule whose template is also active, highest priority first.
func (r Repo) ActiveRules(ctx context.Context) ([]domain.TemplateRule, error) {
	return r.queryRules(ctx, `SELECT r.id,r.template_key,r.priority,r.match_json,r.is_active,r.created_at,r.updated_at
FROM template_rules r JOIN templates t ON t.key = r.template_key
WHERE r.is_active = 1 AND t.is_active = 1 ORDER BY r.priority DESC, r.created_at, r.id`)
}

func (r Repo) GetRule(ctx context.Context, templateKey, id string) (domain.TemplateRule, error) {
	return scanRule(r.DB.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM template_rules WHERE template_key=? AND id=?`, templateKey, id))
}

func (r Repo) InsertRule(ctx context.Context, rule domain.TemplateRule) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO template_rules(id,template_key,priority,match_json,is_active,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		rule.ID, rule.TemplateKey, rule.Priority, rule.MatchJSON, boolInt(bool(rule.IsActive)), rule.CreatedAt, rule.UpdatedAt)
	return err
}

func (r Repo) UpdateRule(ctx context.Context, rule domain.TemplateRule) error {
	return affectedOrNotFound(r.DB.ExecContext(ctx, `UPDATE template_rules SET priority=?, match_json=?, is_active=?, updated_at=? WHERE template_key=? AND id=?`,
		rule.Priority, rule.MatchJSON, boolInt(bool(rule.IsActive)), rule.UpdatedAt, rule.TemplateKey, rule.ID))
}

func (r Repo) DeleteRule(ctx context.Context, templateKey, id string) error {
	return affectedOrNotFound(r.DB.ExecContext(ctx, `DELETE FROM template_rules WHERE template_key=? AND id=?`, templateKey, id))
}

// Steps

func (r Repo) ListSteps(ctx context.Context, templateKey string) ([]domain.TemplateStep, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,template_key,position,title,COALESCE(description,'') FROM template_steps WHERE template_key=? ORDER BY position, id`, templateKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.TemplateStep{}
	for rows.Next() {
		var s domain.TemplateStep
		if err := rows.Scan(&s.ID, &s.TemplateKey, &s.Position, &s.Title, &s.Description); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// ReplaceStepsTx drops every step of the template and inserts steps as given.
func (r Repo) ReplaceStepsTx(ctx context.Context, tx *sql.Tx, templateKey string, steps []domain.TemplateStep) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM template_steps WHERE template_key=?`, templateKey); err != nil {
		return err
	}
	for _, s := range steps {
		if _, err := tx.ExecContext(ctx, `INSERT INTO template_steps(id,template_key,position,title,description) VALUES (?,?,?,?,?)`,
			s.ID, templateKey, s.Position, s.Title, nullable(s.Description)); err != nil {
			return err
		}
	}
	return nil
}
