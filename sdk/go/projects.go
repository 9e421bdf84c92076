package ftopssdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"ftops/internal/domain"
)

func (c *Client) Projects(ctx context.Context) ([]domain.Project, error) {
	var out []domain.Project
	_, err := c.do(ctx, http.MethodGet, "/projects", nil, nil, &out)
	return out, err
}

func (c *Client) Project(ctx context.Context, id string) (domain.Project, error) {
	var out domain.Project
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/projects/%s", url.PathEscape(id)), nil, nil, &out)
	return out, err
}

func (c *Client) ProjectTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	var out []domain.Task
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/projects/%s/tasks", url.PathEscape(projectID)), nil, nil, &out)
	return out, err
}

// UpdateTaskStatus patches a task's status. Callers reload the task list afterwards.
func (c *Client) UpdateTaskStatus(ctx context.Context, taskID, status string) error {
	_, err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/tasks/%s", url.PathEscape(taskID)), nil, map[string]string{"status": status}, nil)
	return err
}

func (c *Client) TaskNotes(ctx context.Context, taskID string) ([]domain.TaskNote, error) {
	var out []domain.TaskNote
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/tasks/%s/notes", url.PathEscape(taskID)), nil, nil, &out)
	return out, err
}

func (c *Client) AddTaskNote(ctx context.Context, taskID, body string) (domain.TaskNote, error) {
	var out domain.TaskNote
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/tasks/%s/notes", url.PathEscape(taskID)), nil, map[string]string{"body": body}, &out)
	return out, err
}

// ProjectFromRecord returns the project for a record, creating it when missing.
func (c *Client) ProjectFromRecord(ctx context.Context, recordURI string) (domain.FromRecordResult, error) {
	var out domain.FromRecordResult
	_, err := c.do(ctx, http.MethodPost, "/projects/from-record", nil, map[string]string{"recordUri": recordURI}, &out)
	return out, err
}

// Materialize creates the project's tasks from its plan. Repeated calls create nothing.
func (c *Client) Materialize(ctx context.Context, projectID string) (domain.MaterializeResult, error) {
	var out domain.MaterializeResult
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/projects/%s/materialize", url.PathEscape(projectID)), nil, map[string]bool{"dryRun": false}, &out)
	return out, err
}
