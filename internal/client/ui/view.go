package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/cloudzz-dev/cldzlive/internal/client/conn"
	"github.com/cloudzz-dev/cldzlive/internal/client/message"
)

// --- Styles ---

var (
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#10B981")
	mutedColor     = lipgloss.Color("#9CA3AF")
	errorColor     = lipgloss.Color("#EF4444")
	warnColor      = lipgloss.Color("#F59E0B")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor)

	focusedPaneStyle = paneStyle.
				BorderForeground(primaryColor)

	liveStatusStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(warnColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)
)

// --- View ---

func (m *Model) View() string {
	var s strings.Builder

	name := m.sess.RoomName
	if name == "" {
		name = m.sess.RoomID
	}
	s.WriteString(titleStyle.Render(fmt.Sprintf("📺 %s", name)))
	s.WriteString("  ")
	s.WriteString(m.statusLine())
	s.WriteString("\n")

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.paneView(message.PaneLive),
		" ",
		m.paneView(message.PaneUser),
	))
	s.WriteString("\n")
	s.WriteString(m.input.View())
	s.WriteString("\n")

	if m.notice != "" {
		if m.noticeOK {
			s.WriteString(mutedStyle.Render(m.notice))
		} else {
			s.WriteString(errorStyle.Render(m.notice))
		}
		s.WriteString("\n")
	}
	s.WriteString(helpStyle.Render("Enter to send • Tab to switch pane • ↑/↓ scroll • Ctrl+Y copy • Ctrl+B branch • Esc to quit"))
	return s.String()
}

func (m *Model) paneView(p message.Pane) string {
	style := paneStyle
	if m.focus == p {
		style = focusedPaneStyle
	}
	return style.Render(m.renderer.View(p))
}

func (m *Model) statusLine() string {
	if m.degraded {
		return warnStyle.Render("degraded: polling only")
	}
	switch m.state {
	case conn.Open:
		return liveStatusStyle.Render("● live")
	case conn.Connecting:
		return mutedStyle.Render("○ connecting...")
	case conn.ReconnectPending:
		return warnStyle.Render("○ reconnecting...")
	case conn.Closing, conn.Terminated:
		return mutedStyle.Render("○ disconnected")
	}
	return mutedStyle.Render("○ idle")
}
