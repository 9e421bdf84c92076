package console

import "github.com/charmbracelet/lipgloss"

var (
	accent      = lipgloss.Color("#8BC34A")
	muted       = lipgloss.Color("#6b7280")
	destructive = lipgloss.Color("#e53935")
	warning     = lipgloss.Color("#FFC107")
)

// Styles holds the shell's styled components.
type Styles struct {
	Tab       lipgloss.Style
	ActiveTab lipgloss.Style
	Header    lipgloss.Style
	Footer    lipgloss.Style
	Banner    lipgloss.Style
	Error     lipgloss.Style
	Muted     lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Tab:       lipgloss.NewStyle().Padding(0, 1).Foreground(muted),
		ActiveTab: lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(accent).Underline(true),
		Header:    lipgloss.NewStyle().Bold(true).MarginBottom(1),
		Footer:    lipgloss.NewStyle().Foreground(muted),
		Banner:    lipgloss.NewStyle().Bold(true).Foreground(warning),
		Error:     lipgloss.NewStyle().Foreground(destructive),
		Muted:     lipgloss.NewStyle().Foreground(muted),
	}
}
