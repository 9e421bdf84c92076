package repo

import (
	"context"
	"database/sql"

	"ftops/internal/domain"
)

const projectColumns = `id,title,status,COALESCE(commercial_record_uri,''),COALESCE(workspace_id,''),created_at,updated_at`

func scanProject(row interface{ Scan(...any) error }) (domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.Title, &p.Status, &p.CommercialRecordURI, &p.WorkspaceID, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

func (r Repo) ProjectByRecord(ctx context.Context, tx *sql.Tx, recordURI string) (domain.Project, error) {
	return scanProject(r.q(tx).QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE commercial_record_uri=?`, recordURI))
}

func (r Repo) InsertProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO projects(id,workspace_id,title,status,commercial_record_uri,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		p.ID, nullable(p.WorkspaceID), p.Title, p.Status, nullable(p.CommercialRecordURI), p.CreatedAt, p.UpdatedAt)
	return err
}

// MaterializedAt returns the project's materialization timestamp, "" when never materialized.
func (r Repo) MaterializedAt(ctx context.Context, tx *sql.Tx, projectID string) (string, error) {
	var at sql.NullString
	err := r.q(tx).QueryRowContext(ctx, `SELECT materialized_at FROM projects WHERE id=?`, projectID).Scan(&at)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return at.String, err
}

func (r Repo) MarkMaterializedTx(ctx context.Context, tx *sql.Tx, projectID, at string) error {
	return affectedOrNotFound(tx.ExecContext(ctx, `UPDATE projects SET materialized_at=?, updated_at=? WHERE id=?`, at, at, projectID))
}

// Tasks

const taskColumns = `id,project_id,scope,COALESCE(group_key,''),COALESCE(line_item_uri,''),template_key,title,kind,status,position,created_at,updated_at`

func scanTask(row interface{ Scan(...any) error }) (domain.Task, error) {
	var t domain.Task
	var pos sql.NullInt64
	err := row.Scan(&t.ID, &t.ProjectID, &t.Scope, &t.GroupKey, &t.LineItemURI, &t.TemplateKey, &t.Title, &t.Kind, &t.Status, &pos, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	t.Position = intPtr(pos)
	return t, err
}

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,project_id,scope,group_key,line_item_uri,template_key,title,kind,status,position,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.Scope, nullable(t.GroupKey), nullable(t.LineItemURI), t.TemplateKey, t.Title, t.Kind, t.Status,
		nullableIntPtr(t.Position), t.CreatedAt, t.UpdatedAt)
	return err
}

// ListTasks returns a project's tasks in creation order.
func (r Repo) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id=? ORDER BY rowid`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

func (r Repo) UpdateTaskStatus(ctx context.Context, id, status, updatedAt string) error {
	return affectedOrNotFound(r.DB.ExecContext(ctx, `UPDATE tasks SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id))
}

// Notes

func (r Repo) ListNotes(ctx context.Context, taskID string) ([]domain.TaskNote, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,author_email,body,created_at FROM task_notes WHERE task_id=? ORDER BY created_at, rowid`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.TaskNote{}
	for rows.Next() {
		var n domain.TaskNote
		if err := rows.Scan(&n.ID, &n.TaskID, &n.AuthorEmail, &n.Body, &n.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) InsertNote(ctx context.Context, n domain.TaskNote) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO task_notes(id,task_id,author_email,body,created_at) VALUES (?,?,?,?,?)`,
		n.ID, n.TaskID, n.AuthorEmail, n.Body, n.CreatedAt)
	return err
}
