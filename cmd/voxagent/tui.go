package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	orchestration "github.com/m15labs/voxagent-core/core"
	"github.com/m15labs/voxagent-core/core/conversations"
	"github.com/muesli/reflow/wordwrap"
)

type (
	partialTranscriptMsg string
	assistantDeltaMsg    string
	turnAppendedMsg      conversations.Turn
	speakingStateMsg     bool
	bargeInMsg           struct{}
	pipelineErrMsg       struct{ err error }
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1)
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	partialStyle   = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("243"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Padding(0, 1)
)

type model struct {
	orchestrator *orchestration.Orchestrator

	viewport viewport.Model
	spinner  spinner.Model

	turns         []conversations.Turn
	livePartial   string
	assistantLive string
	userSpeaking  bool
	lastErr       error

	width  int
	height int
	ready  bool
}

func newModel(orchestrator *orchestration.Orchestrator) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{
		orchestrator: orchestrator,
		spinner:      s,
	}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.orchestrator.Stop()
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		contentHeight := msg.Height - 3
		if contentHeight < 1 {
			contentHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, contentHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = contentHeight
		}
		m.refreshTranscript()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case partialTranscriptMsg:
		m.livePartial = string(msg)
		m.refreshTranscript()

	case assistantDeltaMsg:
		m.assistantLive += string(msg)
		m.refreshTranscript()

	case turnAppendedMsg:
		turn := conversations.Turn(msg)
		m.turns = append(m.turns, turn)
		switch turn.Role {
		case conversations.RoleUser:
			m.livePartial = ""
		case conversations.RoleAssistant:
			m.assistantLive = ""
		}
		m.refreshTranscript()

	case speakingStateMsg:
		m.userSpeaking = bool(msg)

	case bargeInMsg:
		m.assistantLive = ""
		m.refreshTranscript()

	case pipelineErrMsg:
		m.lastErr = msg.err
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *model) refreshTranscript() {
	if !m.ready {
		return
	}

	wrapWidth := m.viewport.Width - 2
	if wrapWidth < 20 {
		wrapWidth = 20
	}

	var b strings.Builder
	for _, turn := range m.turns {
		label := userStyle.Render("You")
		if turn.Role == conversations.RoleAssistant {
			label = assistantStyle.Render("Assistant")
		}
		b.WriteString(label + "\n")
		b.WriteString(wordwrap.String(turn.Text, wrapWidth) + "\n\n")
	}

	if m.livePartial != "" {
		b.WriteString(userStyle.Render("You") + "\n")
		b.WriteString(partialStyle.Render(wordwrap.String(m.livePartial, wrapWidth)) + "\n\n")
	}
	if m.assistantLive != "" {
		b.WriteString(assistantStyle.Render("Assistant") + "\n")
		b.WriteString(wordwrap.String(m.assistantLive, wrapWidth) + "\n\n")
	}

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m model) View() string {
	if !m.ready {
		return "Starting..."
	}

	status := m.spinner.View() + " listening"
	if m.userSpeaking {
		status = m.spinner.View() + " hearing you"
	}
	footer := statusStyle.Render(fmt.Sprintf("%s · q to quit", status))
	if m.lastErr != nil {
		footer = errorStyle.Render("error: " + m.lastErr.Error())
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("voxagent"),
		m.viewport.View(),
		footer,
	)
}
