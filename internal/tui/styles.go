package tui

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("57")).Padding(0, 1)

	liveBadgeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("42")).Padding(0, 1)
	degradedBadgeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("214")).Padding(0, 1)
	offlineBadgeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255")).
				Background(lipgloss.Color("241")).Padding(0, 1)

	userLabelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	agentLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	agentMetaStyle  = lipgloss.NewStyle().Faint(true)
	systemStyle     = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("245"))
	failureStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("203"))

	statusStyle = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))

	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("57")).Padding(0, 1)
	panelTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("57"))
)
