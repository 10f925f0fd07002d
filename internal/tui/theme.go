// Package tui implements the `go2voice monitor` dashboard: executor state,
// recent dispatch decisions and the live go2_motion output, fed by the
// operator API.
package tui

import "github.com/charmbracelet/lipgloss"

// Theme keeps every color the monitor uses in one place.
type Theme struct {
	Sent     lipgloss.Style
	Rejected lipgloss.Style
	Failed   lipgloss.Style
	Partial  lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style

	PulseOn  lipgloss.Style
	PulseOff lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		Sent:     lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		Rejected: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		Failed:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		Partial:  lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Italic(true),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),

		PulseOn:  lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		PulseOff: lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")),
	}
}
