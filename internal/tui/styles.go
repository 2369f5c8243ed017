package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent = lipgloss.Color("69")
	colorMuted  = lipgloss.Color("244")
	colorMarked = lipgloss.Color("214") // orange
	colorNotice = lipgloss.Color("42")  // green
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	modeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Padding(0, 1)
	markedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorMarked)
	statusStyle = lipgloss.NewStyle().Foreground(colorNotice)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle   = lipgloss.NewStyle().Foreground(colorMuted)
)
