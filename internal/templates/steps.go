package templates

import (
	"fmt"
	"sort"
	"strings"

	"ftops/internal/domain"
	"ftops/internal/ordered"
)

type draftStep struct {
	ref  string
	step domain.TemplateStep
}

// StepEditor edits a template's steps as an ordered draft. Positions are assigned on Steps.
type StepEditor struct {
	list *ordered.List[draftStep]
	seq  int
}

// NewStepEditor loads steps sorted by their stored position.
func NewStepEditor(steps []domain.TemplateStep) *StepEditor {
	sorted := append([]domain.TemplateStep(nil), steps...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })
	e := &StepEditor{}
	items := make([]draftStep, 0, len(sorted))
	for _, s := range sorted {
		items = append(items, draftStep{ref: e.refFor(s), step: s})
	}
	e.list = ordered.New(items, func(d draftStep) string { return d.ref })
	return e
}

func (e *StepEditor) refFor(s domain.TemplateStep) string {
	if s.ID != "" {
		return s.ID
	}
	e.seq++
	return fmt.Sprintf("new-%d", e.seq)
}

// Add appends a step and returns its reference.
func (e *StepEditor) Add(title, description string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", domain.Invalid("Step title is required.")
	}
	s := domain.TemplateStep{Title: title, Description: description}
	ref := e.refFor(s)
	e.list.Append(draftStep{ref: ref, step: s})
	return ref, nil
}

// Edit replaces the title and description of a step.
func (e *StepEditor) Edit(ref, title, description string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Invalid("Step title is required.")
	}
	i := e.list.Index(ref)
	if i < 0 {
		return fmt.Errorf("step %q not found", ref)
	}
	items := e.list.Items()
	items[i].step.Title = title
	items[i].step.Description = description
	e.list = ordered.New(items, func(d draftStep) string { return d.ref })
	return nil
}

func (e *StepEditor) Remove(ref string) error { return e.list.Remove(ref) }
func (e *StepEditor) MoveUp(ref string) error { return e.list.MoveUp(ref) }
func (e *StepEditor) MoveDown(ref string) error { return e.list.MoveDown(ref) }
func (e *StepEditor) MoveBefore(ref, target string) error { return e.list.MoveBefore(ref, target) }
func (e *StepEditor) MoveAfter(ref, target string) error { return e.list.MoveAfter(ref, target) }

// Refs returns step references in current order. Unsaved steps use new-N references.
func (e *StepEditor) Refs() []string {
	var out []string
	for _, d := range e.list.Items() {
		out = append(out, d.ref)
	}
	return out
}

func (e *StepEditor) Len() int { return e.list.Len() }

// Steps returns the draft renumbered 1..n in current order.
func (e *StepEditor) Steps() []domain.TemplateStep {
	renumbered := ordered.Renumber(e.list, func(d draftStep, pos int) draftStep {
		d.step.Position = pos
		return d
	})
	out := make([]domain.TemplateStep, len(renumbered))
	for i, d := range renumbered {
		out[i] = d.step
	}
	return out
}
