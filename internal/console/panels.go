package console

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"ftops/internal/admin"
	"ftops/internal/board"
	"ftops/internal/demo"
	"ftops/internal/domain"
	"ftops/internal/fetch"
	"ftops/internal/planview"
	"ftops/internal/prefs"
	"ftops/internal/templates"
	"ftops/internal/view"
	ftopssdk "ftops/sdk/go"
)

// API is everything the panels call on the ops API.
type API interface {
	HealthAPI
	PlanPreview(ctx context.Context, recordURI string) (domain.PlanPreview, fetch.Result, error)
	Events(ctx context.Context) ([]domain.Event, fetch.Result, error)
	templates.API
	board.API
	admin.WorkspaceAPI
	admin.IntegrationAPI
	admin.IngestAPI
}

// titleCache holds deliverable titles from the last plan preview for the board.
type titleCache struct {
	mu     sync.Mutex
	titles planview.TitleLookup
}

func (c *titleCache) set(t planview.TitleLookup) {
	c.mu.Lock()
	c.titles = t
	c.mu.Unlock()
}

func (c *titleCache) get() planview.TitleLookup {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.titles
}

// Panels builds the eight panels in tab order.
func Panels(api API, p *prefs.Prefs, gen *demo.Generator) []Panel {
	titles := &titleCache{}
	return []Panel{
		&previewPanel{api: api, prefs: p, titles: titles},
		&eventsPanel{api: api},
		&demoPanel{gen: gen, prefs: p},
		&templatesPanel{svc: templates.Service{API: api, Prefs: p}},
		&projectsPanel{svc: board.NewService(api, p), prefs: p, titles: titles},
		&integrationsPanel{svc: admin.Integrations{API: api, Prefs: p}},
		&ingestPanel{svc: admin.Ingest{API: api, Prefs: p}},
		&workspacesPanel{svc: admin.Workspaces{API: api, Prefs: p}},
	}
}

func done(status string) tea.Cmd {
	return func() tea.Msg { return DoneMsg{Status: status} }
}

type previewPanel struct {
	api         API
	prefs       *prefs.Prefs
	titles      *titleCache
	showRuleIDs atomic.Bool
}

func (p *previewPanel) ID() string    { return prefs.TabPreview }
func (p *previewPanel) Title() string { return "Plan preview" }
func (p *previewPanel) Help() string  { return "i rule ids" }

func (p *previewPanel) HandleKey(_ context.Context, key string) (tea.Cmd, bool) {
	if key != "i" {
		return nil, false
	}
	on := !p.showRuleIDs.Load()
	p.showRuleIDs.Store(on)
	if on {
		return done("Showing rule ids."), true
	}
	return done("Hiding rule ids."), true
}

func (p *previewPanel) Render(ctx context.Context, depth int) (string, error) {
	uri, err := planview.ResolveURI("", p.prefs.RecordURI())
	if err != nil {
		return fmt.Sprintf("%s\nTry: %s\nSet one with ftops preview <uri>.\n", err, strings.Join(planview.ExampleURIs, ", ")), nil
	}
	plan, res, err := p.api.PlanPreview(ctx, uri)
	var b strings.Builder
	fmt.Fprintf(&b, "record: %s\n", uri)
	if err == nil {
		p.titles.set(planview.Lookup(plan))
		sum := planview.Summarize(plan)
		fmt.Fprintf(&b, "plan_id: %s\n", sum.PlanID)
		for _, w := range plan.Warnings {
			fmt.Fprintf(&b, "warning: %s\n", w)
		}
		b.WriteString("\n")
		if err := planview.Render(&b, plan, planview.Options{ShowRuleIDs: p.showRuleIDs.Load()}); err != nil {
			return "", err
		}
		b.WriteString("\nResponse\n")
	}
	if err := view.Snapshot(&b, ftopssdk.Snapshot(res, err), depth); err != nil {
		return "", err
	}
	return b.String(), nil
}

type eventsPanel struct {
	api API
}

func (p *eventsPanel) ID() string    { return prefs.TabEvents }
func (p *eventsPanel) Title() string { return "Events" }

func (p *eventsPanel) Render(ctx context.Context, depth int) (string, error) {
	events, res, err := p.api.Events(ctx)
	var b strings.Builder
	if err == nil {
		if err := view.Events(&b, events); err != nil {
			return "", err
		}
		b.WriteString("\n")
	}
	if err := view.Snapshot(&b, ftopssdk.Snapshot(res, err), depth); err != nil {
		return "", err
	}
	return b.String(), nil
}

type demoPanel struct {
	gen   *demo.Generator
	prefs *prefs.Prefs
}

func (p *demoPanel) ID() string    { return prefs.TabDemo }
func (p *demoPanel) Title() string { return "Demo" }
func (p *demoPanel) Help() string  { return "s send · S send batch · x stop · o open latest" }

func (p *demoPanel) Render(context.Context, int) (string, error) {
	var b strings.Builder
	if p.gen.Running() {
		b.WriteString("Sending...\n")
	}
	if err := view.DemoState(&b, demo.LoadState(p.prefs)); err != nil {
		return "", err
	}
	b.WriteString("\n")
	if err := view.DemoLog(&b, p.gen.Log()); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (p *demoPanel) HandleKey(ctx context.Context, key string) (tea.Cmd, bool) {
	switch key {
	case "s":
		return p.send(ctx, 1), true
	case "S":
		return p.send(ctx, demo.LoadState(p.prefs).RepeatCount), true
	case "x":
		p.gen.Stop()
		return done("Stopping after the current send."), true
	case "o":
		for _, e := range p.gen.Log() {
			if !e.Openable() {
				continue
			}
			id := e.ExternalID
			return func() tea.Msg {
				uri, err := demo.Open(ctx, p.prefs, id)
				if err != nil {
					return DoneMsg{Err: err}
				}
				return DoneMsg{Status: "Opened " + uri, Tab: prefs.TabPreview}
			}, true
		}
		return done("Nothing to open."), true
	}
	return nil, false
}

func (p *demoPanel) send(ctx context.Context, n int) tea.Cmd {
	if p.gen.Running() {
		return done(demo.ErrBusy.Error())
	}
	p.gen.Begin()
	return func() tea.Msg {
		run, err := p.gen.Send(ctx, n)
		status := fmt.Sprintf("Sent %d of %d.", run.Sent, n)
		if run.Stopped {
			status += " Stopped."
		}
		if err != nil {
			return DoneMsg{Status: status, Err: err}
		}
		return DoneMsg{Status: status}
	}
}

type templatesPanel struct {
	svc templates.Service
}

func (p *templatesPanel) ID() string    { return prefs.TabTemplates }
func (p *templatesPanel) Title() string { return "Templates" }

func (p *templatesPanel) Render(ctx context.Context, _ int) (string, error) {
	list, err := p.svc.List(ctx, p.svc.Search())
	if err != nil {
		return "", errors.New(templates.Message(err, "Failed to load templates."))
	}
	var b strings.Builder
	if term := p.svc.Search(); term != "" {
		fmt.Fprintf(&b, "search: %s\n", term)
	}
	if err := view.Templates(&b, list, p.svc.Selected()); err != nil {
		return "", err
	}
	if key := p.svc.Selected(); key != "" {
		d, err := p.svc.Load(ctx, key)
		if err != nil {
			fmt.Fprintf(&b, "\n%s\n", templates.Message(err, "Failed to load template."))
			return b.String(), nil
		}
		b.WriteString("\n")
		if err := view.TemplateDetail(&b, d); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

type projectsPanel struct {
	svc    *board.Service
	prefs  *prefs.Prefs
	titles *titleCache
}

func (p *projectsPanel) ID() string    { return prefs.TabProjects }
func (p *projectsPanel) Title() string { return "Projects" }

func (p *projectsPanel) Render(ctx context.Context, _ int) (string, error) {
	list, err := p.svc.API.Projects(ctx)
	if err != nil {
		return "", errors.New(templates.Message(err, "Failed to load projects."))
	}
	var b strings.Builder
	selected := p.prefs.ProjectID()
	if err := view.Projects(&b, list, selected); err != nil {
		return "", err
	}
	if selected == "" {
		b.WriteString("\nSelect a project with ftops projects show <id>.\n")
		return b.String(), nil
	}
	proj, tasks, err := p.svc.Select(ctx, selected)
	if err != nil {
		fmt.Fprintf(&b, "\n%s\n", templates.Message(err, "Failed to load project."))
		return b.String(), nil
	}
	b.WriteString("\n")
	if err := view.Board(&b, proj, board.Build(tasks, p.titles.get())); err != nil {
		return "", err
	}
	return b.String(), nil
}

type integrationsPanel struct {
	svc admin.Integrations
}

func (p *integrationsPanel) ID() string    { return prefs.TabIntegrations }
func (p *integrationsPanel) Title() string { return "Integrations" }

func (p *integrationsPanel) Render(ctx context.Context, _ int) (string, error) {
	list, err := p.svc.List(ctx)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := view.Integrations(&b, list); err != nil {
		return "", err
	}
	return b.String(), nil
}

type ingestPanel struct {
	svc admin.Ingest
}

func (p *ingestPanel) ID() string    { return prefs.TabIngest }
func (p *ingestPanel) Title() string { return "Ingest" }

func (p *ingestPanel) Render(ctx context.Context, _ int) (string, error) {
	f := p.svc.DefaultFilter()
	list, err := p.svc.List(ctx, f)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "provider: %s  environment: %s  limit: %d\n", f.Provider, f.Environment, f.Limit)
	if err := view.IngestRequests(&b, list); err != nil {
		return "", err
	}
	return b.String(), nil
}

type workspacesPanel struct {
	svc admin.Workspaces
}

func (p *workspacesPanel) ID() string    { return prefs.TabWorkspaces }
func (p *workspacesPanel) Title() string { return "Workspaces" }

func (p *workspacesPanel) Render(ctx context.Context, _ int) (string, error) {
	list, selected, err := p.svc.List(ctx)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := view.Workspaces(&b, list, selected); err != nil {
		return "", err
	}
	return b.String(), nil
}
