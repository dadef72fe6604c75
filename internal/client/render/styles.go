package render

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#10B981")
	mutedColor     = lipgloss.Color("#9CA3AF")
	frameColor     = lipgloss.Color("#F59E0B")

	timeStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	aiNameStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)

	userNameStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Bold(true)

	localNameStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Italic(true)

	frameStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(frameColor).
			Padding(0, 1)
)
