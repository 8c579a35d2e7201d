package tui

import "github.com/charmbracelet/lipgloss"

type styles struct {
	Header      lipgloss.Style
	UserLabel   lipgloss.Style
	UserText    lipgloss.Style
	AILabel     lipgloss.Style
	Status      lipgloss.Style
	Ended       lipgloss.Style
	InputBorder lipgloss.Style
}

func defaultStyles() styles {
	primary := lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#60A5FA"}
	accent := lipgloss.AdaptiveColor{Light: "#047857", Dark: "#34D399"}
	muted := lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}

	return styles{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(primary).
			Padding(0, 1),
		UserLabel: lipgloss.NewStyle().
			Bold(true).
			Foreground(primary).
			MarginTop(1),
		UserText: lipgloss.NewStyle().
			PaddingLeft(2),
		AILabel: lipgloss.NewStyle().
			Bold(true).
			Foreground(accent).
			MarginTop(1),
		Status: lipgloss.NewStyle().
			Foreground(muted).
			Padding(0, 1),
		Ended: lipgloss.NewStyle().
			Italic(true).
			Foreground(muted).
			Padding(0, 1),
		InputBorder: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1),
	}
}
