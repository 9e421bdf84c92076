package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ftops/internal/domain"
	"ftops/internal/repo"
)

// FromRecord returns the project bound to a record, creating it on first use.
func (e Engine) FromRecord(ctx context.Context, recordURI string) (domain.FromRecordResult, error) {
	recordURI = strings.TrimSpace(recordURI)
	if recordURI == "" {
		return domain.FromRecordResult{}, invalid("invalid_request", "recordUri is required")
	}
	rec, err := e.Repo.GetRecord(ctx, recordURI)
	if err != nil {
		return domain.FromRecordResult{}, orNotFound(err, "record_not_found")
	}
	workspaceID := ""
	if ws, err := e.Repo.WorkspaceBySlug(ctx, repo.DefaultWorkspaceSlug); err == nil {
		workspaceID = ws.ID
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.FromRecordResult{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.ProjectByRecord(ctx, tx, recordURI)
	if err == nil {
		return domain.FromRecordResult{Project: p}, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.FromRecordResult{}, err
	}
	title := rec.CustomerDisplay
	if title == "" {
		title = rec.ExternalID
	}
	now := e.stamp()
	p = domain.Project{
		ID:                  uuid.NewSHA1(uuid.NameSpaceURL, []byte(recordURI)).String(),
		Title:               title,
		Status:              "active",
		CommercialRecordURI: recordURI,
		WorkspaceID:         workspaceID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := e.Repo.InsertProjectTx(ctx, tx, p); err != nil {
		return domain.FromRecordResult{}, fmt.Errorf("insert project: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.FromRecordResult{}, err
	}
	e.Logger.Info("project created", zap.String("project_id", p.ID), zap.String("record_uri", recordURI))
	return domain.FromRecordResult{Project: p, Created: true}, nil
}

func taskTitle(m domain.MatchedTemplate, suffix string) string {
	title := m.Title
	if title == "" {
		title = m.TemplateKey
	}
	if suffix != "" {
		title += ": " + suffix
	}
	return title
}

// Materialize creates one task per (context, matched template) of the project's
// current plan. It runs once per project; later calls report AlreadyMaterialized.
// A dry run reports the count without writing.
func (e Engine) Materialize(ctx context.Context, projectID string, dryRun bool) (domain.MaterializeResult, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.MaterializeResult{}, orNotFound(err, "project_not_found")
	}
	if at, err := e.Repo.MaterializedAt(ctx, nil, projectID); err != nil {
		return domain.MaterializeResult{}, err
	} else if at != "" {
		return domain.MaterializeResult{AlreadyMaterialized: true}, nil
	}
	if p.CommercialRecordURI == "" {
		return domain.MaterializeResult{}, conflict("project_without_record", "project has no commercial record")
	}
	plan, err := e.Preview(ctx, p.CommercialRecordURI)
	if err != nil {
		return domain.MaterializeResult{}, err
	}

	now := e.stamp()
	var tasks []domain.Task
	add := func(scope, groupKey, lineItemURI, key, suffix string) {
		for _, m := range plan.Matches(scope, key) {
			tasks = append(tasks, domain.Task{
				ID:          newID(),
				ProjectID:   p.ID,
				Scope:       scope,
				GroupKey:    groupKey,
				LineItemURI: lineItemURI,
				TemplateKey: m.TemplateKey,
				Title:       taskTitle(m, suffix),
				Kind:        m.Kind,
				Status:      domain.StatusTodo,
				Position:    m.DefaultPosition,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}
	}
	add(domain.ScopeProject, "", "", domain.ScopeProject, "")
	for _, sc := range plan.Contexts.Shared {
		add(domain.ScopeShared, sc.GroupKey, "", sc.Key, sc.GroupKey)
	}
	for _, dc := range plan.Contexts.Deliverables {
		add(domain.ScopeDeliverable, dc.GroupKey, dc.LineItemURI, dc.Key, dc.Title)
	}

	if dryRun {
		return domain.MaterializeResult{TasksCreated: len(tasks)}, nil
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.MaterializeResult{}, err
	}
	defer tx.Rollback()
	// re-check inside the transaction so concurrent calls create tasks once
	if at, err := e.Repo.MaterializedAt(ctx, tx, projectID); err != nil {
		return domain.MaterializeResult{}, err
	} else if at != "" {
		return domain.MaterializeResult{AlreadyMaterialized: true}, nil
	}
	for _, t := range tasks {
		if t.Kind == "" {
			t.Kind = "task"
		}
		if err := e.Repo.InsertTaskTx(ctx, tx, t); err != nil {
			return domain.MaterializeResult{}, fmt.Errorf("insert task: %w", err)
		}
	}
	if err := e.Repo.MarkMaterializedTx(ctx, tx, projectID, now); err != nil {
		return domain.MaterializeResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.MaterializeResult{}, err
	}
	e.Logger.Info("project materialized", zap.String("project_id", projectID), zap.Int("tasks", len(tasks)))
	return domain.MaterializeResult{TasksCreated: len(tasks)}, nil
}

// SetTaskStatus changes a task's status and returns the updated task.
func (e Engine) SetTaskStatus(ctx context.Context, taskID, status string) (domain.Task, error) {
	if !domain.ValidTaskStatus(status) {
		return domain.Task{}, invalid("invalid_status", fmt.Sprintf("status must be one of %s", strings.Join(domain.TaskStatuses, ", ")))
	}
	if err := e.Repo.UpdateTaskStatus(ctx, taskID, status, e.stamp()); err != nil {
		return domain.Task{}, orNotFound(err, "task_not_found")
	}
	return e.Repo.GetTask(ctx, taskID)
}

// AddNote appends a note to a task on behalf of author.
func (e Engine) AddNote(ctx context.Context, taskID, author, body string) (domain.TaskNote, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return domain.TaskNote{}, invalid("invalid_request", "body is required")
	}
	if _, err := e.Repo.GetTask(ctx, taskID); err != nil {
		return domain.TaskNote{}, orNotFound(err, "task_not_found")
	}
	n := domain.TaskNote{
		ID:          newID(),
		TaskID:      taskID,
		AuthorEmail: author,
		Body:        body,
		CreatedAt:   e.stamp(),
	}
	if err := e.Repo.InsertNote(ctx, n); err != nil {
		return domain.TaskNote{}, err
	}
	return n, nil
}
