// Package board groups a project's tasks and manages their status and notes.
package board

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"ftops/internal/domain"
	"ftops/internal/prefs"
)

const (
	UngroupedKey = "ungrouped"
	UnknownKey   = "unknown"
)

// Group is a run of tasks sharing a group key or line item.
type Group struct {
	Key string
	// Title is the deliverable title from the last plan preview, when known.
	Title string
	Tasks []domain.Task
}

// Label is the title when known, else the shortened key.
func (g Group) Label() string {
	if g.Title != "" {
		return g.Title
	}
	return ShortKey(g.Key)
}

type Board struct {
	Project     []domain.Task
	Shared      []Group
	Deliverable []Group
}

// Len counts every task on the board.
func (b Board) Len() int {
	n := len(b.Project)
	for _, g := range b.Shared {
		n += len(g.Tasks)
	}
	for _, g := range b.Deliverable {
		n += len(g.Tasks)
	}
	return n
}

// Build splits tasks by scope. Groups keep first-seen order; tasks keep server order.
func Build(tasks []domain.Task, titles map[string]string) Board {
	var b Board
	shared := map[string]int{}
	deliverable := map[string]int{}
	for _, t := range tasks {
		switch t.Scope {
		case domain.ScopeProject:
			b.Project = append(b.Project, t)
		case domain.ScopeShared:
			key := t.GroupKey
			if key == "" {
				key = UngroupedKey
			}
			i, ok := shared[key]
			if !ok {
				i = len(b.Shared)
				shared[key] = i
				b.Shared = append(b.Shared, Group{Key: key})
			}
			b.Shared[i].Tasks = append(b.Shared[i].Tasks, t)
		case domain.ScopeDeliverable:
			key := t.LineItemURI
			if key == "" {
				key = UnknownKey
			}
			i, ok := deliverable[key]
			if !ok {
				i = len(b.Deliverable)
				deliverable[key] = i
				b.Deliverable = append(b.Deliverable, Group{Key: key, Title: titles[key]})
			}
			b.Deliverable[i].Tasks = append(b.Deliverable[i].Tasks, t)
		}
	}
	return b
}

// ShortKey keeps the head and tail of long group keys.
func ShortKey(s string) string {
	r := []rune(s)
	if len(r) <= 42 {
		return s
	}
	return string(r[:18]) + "…" + string(r[len(r)-12:])
}

// API is the subset of the ops client the board uses.
type API interface {
	Projects(ctx context.Context) ([]domain.Project, error)
	Project(ctx context.Context, id string) (domain.Project, error)
	ProjectTasks(ctx context.Context, projectID string) ([]domain.Task, error)
	UpdateTaskStatus(ctx context.Context, taskID, status string) error
	TaskNotes(ctx context.Context, taskID string) ([]domain.TaskNote, error)
	AddTaskNote(ctx context.Context, taskID, body string) (domain.TaskNote, error)
}

// Service holds the session's note cache. Notes are fetched on first use per task.
type Service struct {
	API   API
	Prefs *prefs.Prefs

	mu    sync.Mutex
	notes map[string][]domain.TaskNote
}

func NewService(api API, p *prefs.Prefs) *Service {
	return &Service{API: api, Prefs: p, notes: map[string][]domain.TaskNote{}}
}

// Select loads a project and its tasks and remembers the selection.
func (s *Service) Select(ctx context.Context, projectID string) (domain.Project, []domain.Task, error) {
	if strings.TrimSpace(projectID) == "" {
		return domain.Project{}, nil, domain.Invalid("Select a project first.")
	}
	if err := s.Prefs.Set(ctx, prefs.KeyProjectID, projectID); err != nil {
		return domain.Project{}, nil, err
	}
	p, err := s.API.Project(ctx, projectID)
	if err != nil {
		return domain.Project{}, nil, err
	}
	tasks, err := s.API.ProjectTasks(ctx, projectID)
	if err != nil {
		return p, nil, err
	}
	return p, tasks, nil
}

// SetStatus changes a task's status and returns the reloaded task list.
func (s *Service) SetStatus(ctx context.Context, projectID, taskID, status string) ([]domain.Task, error) {
	if !domain.ValidTaskStatus(status) {
		return nil, domain.Invalid(fmt.Sprintf("Status must be one of %s.", strings.Join(domain.TaskStatuses, ", ")))
	}
	if err := s.API.UpdateTaskStatus(ctx, taskID, status); err != nil {
		return nil, err
	}
	return s.API.ProjectTasks(ctx, projectID)
}

// Notes returns the cached notes of a task, fetching them the first time.
func (s *Service) Notes(ctx context.Context, taskID string) ([]domain.TaskNote, error) {
	s.mu.Lock()
	cached, ok := s.notes[taskID]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}
	return s.refresh(ctx, taskID)
}

// Cached reports whether notes for taskID were already fetched.
func (s *Service) Cached(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.notes[taskID]
	return ok
}

func (s *Service) refresh(ctx context.Context, taskID string) ([]domain.TaskNote, error) {
	notes, err := s.API.TaskNotes(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []domain.TaskNote{}
	}
	s.mu.Lock()
	s.notes[taskID] = notes
	s.mu.Unlock()
	return notes, nil
}

// AddNote posts a note and refreshes that task's cache.
func (s *Service) AddNote(ctx context.Context, taskID, body string) ([]domain.TaskNote, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, domain.Invalid("Note body cannot be empty.")
	}
	if _, err := s.API.AddTaskNote(ctx, taskID, body); err != nil {
		return nil, err
	}
	return s.refresh(ctx, taskID)
}
