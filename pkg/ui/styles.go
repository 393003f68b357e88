// Package ui is the terminal front end: hub, folder and template panes, a
// schema preview, the activity log and a settings form.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent   = lipgloss.AdaptiveColor{Light: "#101F38", Dark: "#8BC34A"}
	colorBorder   = lipgloss.AdaptiveColor{Light: "#dce0e5", Dark: "#2a3850"}
	colorMuted    = lipgloss.AdaptiveColor{Light: "#9aa1ab", Dark: "#5c6b82"}
	colorError    = lipgloss.Color("#e53935")
	colorSuccess  = lipgloss.Color("#8BC34A")
	colorSelected = lipgloss.AdaptiveColor{Light: "#2196F3", Dark: "#4db6ac"}
)

// Styles holds all the styled components.
type Styles struct {
	Header      lipgloss.Style
	Pane        lipgloss.Style
	FocusedPane lipgloss.Style
	PaneTitle   lipgloss.Style
	Disabled    lipgloss.Style
	Cursor      lipgloss.Style
	Selected    lipgloss.Style
	Muted       lipgloss.Style
	Button      lipgloss.Style
	ButtonOff   lipgloss.Style
	Success     lipgloss.Style
	Error       lipgloss.Style
	Form        lipgloss.Style
	Label       lipgloss.Style
}

// DefaultStyles returns the default styles.
func DefaultStyles() Styles {
	pane := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1)

	return Styles{
		Header: lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true).
			Padding(0, 1),

		Pane:        pane,
		FocusedPane: pane.BorderForeground(colorAccent),
		PaneTitle:   lipgloss.NewStyle().Bold(true),
		Disabled:    lipgloss.NewStyle().Foreground(colorMuted).Faint(true),

		Cursor:   lipgloss.NewStyle().Foreground(colorAccent).Bold(true),
		Selected: lipgloss.NewStyle().Foreground(colorSelected),
		Muted:    lipgloss.NewStyle().Foreground(colorMuted),

		Button: lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.NormalBorder(), false, true),
		ButtonOff: lipgloss.NewStyle().
			Foreground(colorMuted).
			Faint(true).
			Padding(0, 1).
			Border(lipgloss.NormalBorder(), false, true).
			BorderForeground(colorBorder),

		Success: lipgloss.NewStyle().Foreground(colorSuccess),
		Error:   lipgloss.NewStyle().Foreground(colorError).Bold(true),

		Form: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent).
			Padding(1, 2),
		Label: lipgloss.NewStyle().Bold(true).Width(16),
	}
}
