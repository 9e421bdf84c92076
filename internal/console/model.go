// Package console is the terminal shell: one tab per panel, one panel rendered at a time.
package console

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"ftops/internal/domain"
	"ftops/internal/prefs"
	"ftops/internal/view"
)

// Panel renders one tab. Render is called on entry and on every reload.
type Panel interface {
	ID() string
	Title() string
	Render(ctx context.Context, depth int) (string, error)
}

// KeyHandler is implemented by panels with their own keys.
// A handled key may return a command whose result arrives as a DoneMsg.
type KeyHandler interface {
	HandleKey(ctx context.Context, key string) (tea.Cmd, bool)
	Help() string
}

// HealthAPI reports migration drift.
type HealthAPI interface {
	Health(ctx context.Context) (domain.MigrationHealth, bool, error)
}

// DefaultDepth is how many tree levels start expanded.
const DefaultDepth = 3

type loadedMsg struct {
	tab     string
	content string
	err     error
}

type healthMsg struct {
	health domain.MigrationHealth
	ok     bool
	err    error
}

// DoneMsg reports a finished panel action. The active panel, or Tab when set, is reloaded afterwards.
type DoneMsg struct {
	Status string
	Err    error
	Tab    string
}

// Options configures a Model.
type Options struct {
	Prefs  *prefs.Prefs
	Health HealthAPI
	Dev    bool
	Panels []Panel
	Logger *zap.Logger
}

// Model is the bubbletea model of the console shell.
type Model struct {
	ctx    context.Context
	prefs  *prefs.Prefs
	health HealthAPI
	dev    bool
	logger *zap.Logger

	panels []Panel
	active int
	depth  int

	viewport viewport.Model
	styles   Styles
	loading  bool
	content  string
	err      string
	status   string
	banner   string
	width    int
	height   int
}

// New builds the shell with the persisted tab active.
func New(ctx context.Context, opts Options) Model {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := Model{
		ctx:      ctx,
		prefs:    opts.Prefs,
		health:   opts.Health,
		dev:      opts.Dev,
		logger:   logger,
		panels:   opts.Panels,
		depth:    DefaultDepth,
		viewport: viewport.New(100, 30),
		styles:   DefaultStyles(),
	}
	tab := opts.Prefs.ActiveTab()
	for i, p := range m.panels {
		if p.ID() == tab {
			m.active = i
		}
	}
	return m
}

// ActiveTab returns the id of the visible panel.
func (m Model) ActiveTab() string {
	if len(m.panels) == 0 {
		return ""
	}
	return m.panels[m.active].ID()
}

// Depth returns the current tree expansion depth.
func (m Model) Depth() int { return m.depth }

// Banner returns the migration drift banner, empty when migrations are current.
func (m Model) Banner() string { return m.banner }

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.load()}
	if m.dev && m.health != nil {
		cmds = append(cmds, m.checkHealth())
	}
	return tea.Batch(cmds...)
}

func (m *Model) load() tea.Cmd {
	if len(m.panels) == 0 {
		return nil
	}
	m.loading = true
	p := m.panels[m.active]
	ctx, depth := m.ctx, m.depth
	return func() tea.Msg {
		content, err := p.Render(ctx, depth)
		return loadedMsg{tab: p.ID(), content: content, err: err}
	}
}

func (m Model) checkHealth() tea.Cmd {
	ctx, api := m.ctx, m.health
	return func() tea.Msg {
		h, ok, err := api.Health(ctx)
		return healthMsg{health: h, ok: ok, err: err}
	}
}

func (m *Model) switchTo(i int) tea.Cmd {
	n := len(m.panels)
	if n == 0 {
		return nil
	}
	m.active = ((i % n) + n) % n
	m.status = ""
	if err := m.prefs.SetActiveTab(m.ctx, m.ActiveTab()); err != nil {
		m.logger.Warn("persist tab", zap.Error(err))
	}
	return m.load()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 6
		if m.viewport.Height < 1 {
			m.viewport.Height = 1
		}
		return m, nil

	case loadedMsg:
		if msg.tab != m.ActiveTab() {
			return m, nil
		}
		m.loading = false
		m.content = msg.content
		m.err = ""
		if msg.err != nil {
			m.err = msg.err.Error()
		}
		m.viewport.SetContent(m.content)
		return m, nil

	case healthMsg:
		if msg.err != nil {
			m.logger.Debug("health check failed", zap.Error(msg.err))
			return m, nil
		}
		if msg.ok && !msg.health.OK {
			m.banner = view.MigrationBanner(msg.health)
		} else {
			m.banner = ""
		}
		return m, nil

	case DoneMsg:
		m.status = msg.Status
		if msg.Err != nil {
			m.status = msg.Err.Error()
		}
		if msg.Tab != "" && msg.Tab != m.ActiveTab() {
			for i, p := range m.panels {
				if p.ID() == msg.Tab {
					status := m.status
					cmd := m.switchTo(i)
					m.status = status
					return m, cmd
				}
			}
		}
		return m, m.load()

	case tea.KeyMsg:
		key := msg.String()
		switch key {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab", "right":
			return m, m.switchTo(m.active + 1)
		case "shift+tab", "left":
			return m, m.switchTo(m.active - 1)
		case "r":
			m.status = ""
			return m, m.load()
		case "+", "=":
			m.depth++
			return m, m.load()
		case "-":
			if m.depth > 1 {
				m.depth--
			}
			return m, m.load()
		}
		if len(m.panels) > 0 {
			if h, ok := m.panels[m.active].(KeyHandler); ok {
				if cmd, handled := h.HandleKey(m.ctx, key); handled {
					return m, cmd
				}
			}
		}
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) tabs() string {
	parts := make([]string, len(m.panels))
	for i, p := range m.panels {
		if i == m.active {
			parts[i] = m.styles.ActiveTab.Render(p.Title())
		} else {
			parts[i] = m.styles.Tab.Render(p.Title())
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m Model) help() string {
	keys := []string{"tab/←→ switch", "r reload", "+/- depth", "↑↓ scroll", "q quit"}
	if len(m.panels) > 0 {
		if h, ok := m.panels[m.active].(KeyHandler); ok {
			keys = append([]string{h.Help()}, keys...)
		}
	}
	return strings.Join(keys, " · ")
}

func (m Model) View() string {
	var b strings.Builder
	if m.banner != "" {
		b.WriteString(m.styles.Banner.Render(m.banner))
		b.WriteString("\n")
	}
	b.WriteString(m.styles.Header.Render(m.tabs()))
	b.WriteString("\n")
	switch {
	case m.loading && m.content == "":
		b.WriteString(m.styles.Muted.Render("Loading..."))
	case m.err != "":
		b.WriteString(m.styles.Error.Render(m.err))
	default:
		b.WriteString(m.viewport.View())
	}
	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(m.status)
		b.WriteString("\n")
	}
	b.WriteString(m.styles.Footer.Render(m.help()))
	return b.String()
}
