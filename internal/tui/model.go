// Package tui renders the interactive chat view. It consumes the client's
// event stream through the bubbletea message loop and never touches
// transport internals directly.
package tui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/deskhaus/deskchat/internal/client"
	"github.com/deskhaus/deskchat/internal/domain"
	"github.com/deskhaus/deskchat/internal/transport"
)

// eventMsg wraps a transport event for delivery through the bubbletea
// message loop.
type eventMsg struct {
	ev transport.Event
}

// streamClosedMsg marks the end of the event stream.
type streamClosedMsg struct{}

// sendFailedMsg reports a rejected send.
type sendFailedMsg struct {
	err error
}

// Model is the chat screen: transcript viewport on top, input line below,
// with an optional analytics panel toggled by ctrl+a.
type Model struct {
	client *client.Client

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	turns   []domain.Turn
	state   transport.State
	loading bool
	status  string

	showAnalytics bool
	width         int
	height        int
	ready         bool
	quitting      bool
}

// NewModel builds the chat screen bound to a started client.
func NewModel(c *client.Client) Model {
	input := textinput.New()
	input.Placeholder = "Type your question and press enter"
	input.Focus()
	input.CharLimit = 2000

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("57"))

	return Model{
		client:  c,
		input:   input,
		spinner: sp,
		turns:   c.Turns(),
		state:   c.State(),
	}
}

// Run starts the interactive chat program and blocks until it exits.
func Run(c *client.Client) error {
	p := tea.NewProgram(NewModel(c), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func waitForEvent(ch <-chan transport.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg{ev: ev}
	}
}

func (m Model) sendCmd(text string) tea.Cmd {
	return func() tea.Msg {
		if err := m.client.Send(context.Background(), text); err != nil {
			return sendFailedMsg{err: err}
		}
		return nil
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForEvent(m.client.Events()))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "ctrl+a":
			m.showAnalytics = !m.showAnalytics
			m.layout()
			return m, nil
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.Reset()
			m.status = ""
			return m, m.sendCmd(text)
		}

	case eventMsg:
		cmd := waitForEvent(m.client.Events())
		switch ev := msg.ev.(type) {
		case transport.TurnAppended:
			m.turns = append(m.turns, ev.Turn)
			m.refreshTranscript()
		case transport.LoadingChanged:
			m.loading = ev.Loading
			if ev.Loading {
				return m, tea.Batch(cmd, m.spinner.Tick)
			}
		case transport.ConnectionChanged:
			m.state = ev.State
		}
		return m, cmd

	case streamClosedMsg:
		m.quitting = true
		return m, tea.Quit

	case sendFailedMsg:
		switch {
		case errors.Is(msg.err, transport.ErrSendPending):
			m.status = "Still waiting for the previous reply."
		case errors.Is(msg.err, transport.ErrEmptyQuery):
			m.status = ""
		default:
			m.status = "Send failed: " + msg.err.Error()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.loading {
			return m, cmd
		}
		return m, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}
	// Header, status line, and input each take one row.
	contentHeight := m.height - 3
	if m.showAnalytics {
		contentHeight -= m.analyticsPanelHeight()
	}
	if contentHeight < 1 {
		contentHeight = 1
	}
	if !m.ready {
		m.viewport = viewport.New(m.width, contentHeight)
		m.ready = true
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = contentHeight
	}
	m.input.Width = m.width - 4
	m.refreshTranscript()
}

func (m *Model) refreshTranscript() {
	if !m.ready {
		return
	}
	var b strings.Builder
	for _, turn := range m.turns {
		b.WriteString(renderTurn(turn, m.viewport.Width))
		b.WriteString("\n")
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func renderTurn(turn domain.Turn, width int) string {
	wrap := lipgloss.NewStyle().Width(width)
	switch t := turn.(type) {
	case domain.UserTurn:
		return wrap.Render(userLabelStyle.Render("You: ") + t.Content)
	case domain.AgentTurn:
		label := agentLabelStyle.Render(agentLabel(t.AgentKind) + ": ")
		meta := ""
		if t.Confidence != nil {
			meta = agentMetaStyle.Render(fmt.Sprintf("  (confidence %.0f%%)", *t.Confidence*100))
		}
		return wrap.Render(label + t.Content + meta)
	case domain.SystemTurn:
		if t.Failure {
			return wrap.Render(failureStyle.Render(t.Content))
		}
		return wrap.Render(systemStyle.Render(t.Content))
	default:
		return wrap.Render(turn.Text())
	}
}

func agentLabel(kind string) string {
	if kind == "" {
		return "Support"
	}
	return "Support (" + kind + ")"
}

func (m Model) View() string {
	if m.quitting {
		return "Chat ended.\n"
	}
	if !m.ready {
		return "Connecting...\n"
	}

	sections := []string{m.headerView(), m.viewport.View()}
	if m.showAnalytics {
		sections = append(sections, m.analyticsView())
	}
	sections = append(sections, m.statusView(), m.input.View())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) headerView() string {
	var badge string
	switch m.state {
	case transport.StateLive:
		badge = liveBadgeStyle.Render("LIVE")
	case transport.StateDegraded:
		badge = degradedBadgeStyle.Render("DEGRADED")
	case transport.StateConnecting:
		badge = offlineBadgeStyle.Render("CONNECTING")
	default:
		badge = offlineBadgeStyle.Render("OFFLINE")
	}
	title := headerStyle.Render("DeskChat Support")
	session := statusStyle.Render(" " + m.client.Session().SessionID)
	return lipgloss.JoinHorizontal(lipgloss.Top, title, " ", badge, session)
}

func (m Model) statusView() string {
	if m.loading {
		return m.spinner.View() + statusStyle.Render(" Waiting for support...")
	}
	if m.status != "" {
		return errorStyle.Render(m.status)
	}
	return statusStyle.Render("enter to send, ctrl+a analytics, ctrl+c to quit")
}

func (m Model) analyticsPanelHeight() int {
	// Border rows plus title, three metric lines, and the distribution.
	snap, ok := m.client.Analytics()
	lines := 5
	if ok {
		lines += len(snap.AgentDistribution)
	}
	return lines + 2
}

func (m Model) analyticsView() string {
	snap, ok := m.client.Analytics()
	if !ok {
		return panelStyle.Render(panelTitleStyle.Render("Analytics") + "\n" +
			statusStyle.Render("No snapshot yet."))
	}

	var b strings.Builder
	b.WriteString(panelTitleStyle.Render("Analytics"))
	b.WriteString(fmt.Sprintf("\nTotal queries:  %d", snap.TotalQueries))
	b.WriteString(fmt.Sprintf("\nAvg response:   %.2fs", snap.AvgResponseTimeSeconds))
	b.WriteString(fmt.Sprintf("\nSatisfaction:   %.1f", snap.SatisfactionScore))

	agents := make([]string, 0, len(snap.AgentDistribution))
	for agent := range snap.AgentDistribution {
		agents = append(agents, agent)
	}
	sort.Strings(agents)
	for _, agent := range agents {
		b.WriteString(fmt.Sprintf("\n  %-12s %d", agent, snap.AgentDistribution[agent]))
	}
	return panelStyle.Width(m.width - 2).Render(b.String())
}
