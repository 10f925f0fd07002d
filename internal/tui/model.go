package tui

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/go2voice/internal/api"
	"github.com/mattjoyce/go2voice/internal/engine"
	"github.com/mattjoyce/go2voice/internal/events"
	"github.com/mattjoyce/go2voice/internal/policy"
	"github.com/mattjoyce/go2voice/internal/transcript"
)

const (
	maxDecisions  = 50
	maxOutput     = 200
	statusRefresh = 5 * time.Second
)

type decision struct {
	At      time.Time
	Outcome engine.Outcome
}

// Model is the monitor's bubbletea model.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	status    api.StatusResponse
	connected bool
	lastID    int64

	decisions []decision
	partial   string
	output    []string

	table    table.Model
	viewport viewport.Model
	pulse    Pulse
	theme    Theme

	hubEvents chan events.Event
	lastError string
	now       func() time.Time
}

// New creates a monitor for the API at apiURL.
func New(apiURL, apiKey string) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Time", Width: 8},
			{Title: "Heard", Width: 24},
			{Title: "Intent", Width: 14},
			{Title: "Sent", Width: 14},
			{Title: "Score", Width: 6},
			{Title: "Reason", Width: 18},
		}),
		table.WithHeight(10),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	t.SetStyles(s)

	return &Model{
		apiURL:    strings.TrimRight(apiURL, "/"),
		apiKey:    apiKey,
		table:     t,
		viewport:  viewport.New(80, 8),
		theme:     NewDefaultTheme(),
		hubEvents: make(chan events.Event, 100),
		now:       time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribe(m.apiURL, m.apiKey, 0, m.hubEvents),
		receive(m.hubEvents),
		func() tea.Msg { return fetchStatus(m.apiURL, m.apiKey) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(max(20, m.width-6))
		m.viewport.Width = max(20, m.width-6)
		m.viewport.Height = max(3, m.height/3)

	case tickMsg:
		m.pulse.Decay(time.Time(msg))
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		m.apply(events.Event(msg))
		m.connected = true
		m.lastError = ""
		return m, receive(m.hubEvents)

	case statusMsg:
		m.status = api.StatusResponse(msg)
		m.connected = true
		m.lastError = ""
		m.setOutput(m.status.Executor.Output)
		return m, tea.Tick(statusRefresh, func(time.Time) tea.Msg {
			return fetchStatus(m.apiURL, m.apiKey)
		})

	case streamClosedMsg:
		m.connected = false
		m.lastID = msg.lastID
		m.lastError = "event stream disconnected, reconnecting..."
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, subscribe(m.apiURL, m.apiKey, m.lastID, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(statusRefresh, func(time.Time) tea.Msg {
			return fetchStatus(m.apiURL, m.apiKey)
		})
	}

	return m, nil
}

// apply folds one hub event into the model.
func (m *Model) apply(e events.Event) {
	if e.ID > m.lastID {
		m.lastID = e.ID
	}

	switch e.Type {
	case events.TypeDispatch:
		var out engine.Outcome
		if err := json.Unmarshal(e.Data, &out); err != nil {
			return
		}
		m.decisions = append([]decision{{At: e.At, Outcome: out}}, m.decisions...)
		if len(m.decisions) > maxDecisions {
			m.decisions = m.decisions[:maxDecisions]
		}
		m.partial = ""
		m.status.Policy.Posture = out.Posture
		m.pulse.Heard(m.now())
		m.table.SetRows(m.rows())

	case events.TypeUtterancePartial:
		var t transcript.Transcript
		if err := json.Unmarshal(e.Data, &t); err != nil {
			return
		}
		m.partial = t.Text
		m.pulse.Heard(m.now())

	case events.TypeExecutorOutput:
		var line events.ExecutorOutput
		if err := json.Unmarshal(e.Data, &line); err != nil {
			return
		}
		m.setOutput(append(m.output, line.Line))

	case events.TypeExecutorState:
		var st events.ExecutorState
		if err := json.Unmarshal(e.Data, &st); err != nil {
			return
		}
		m.status.Executor.State = st.State
		m.status.Executor.PID = st.PID
		m.status.Executor.ExitCode = st.ExitCode
	}
}

func (m *Model) setOutput(lines []string) {
	if len(lines) > maxOutput {
		lines = lines[len(lines)-maxOutput:]
	}
	m.output = lines
	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

func (m *Model) rows() []table.Row {
	rows := make([]table.Row, 0, len(m.decisions))
	for _, d := range m.decisions {
		o := d.Outcome
		sent := "-"
		if o.Sent {
			sent = o.Decision.Action.String()
		}
		intentName := "-"
		if o.Decision.Intent != 0 {
			intentName = o.Decision.Intent.String()
		}
		rows = append(rows, table.Row{
			d.At.Local().Format("15:04:05"),
			o.Text,
			intentName,
			sent,
			fmt.Sprintf("%.1f", o.Best.Score),
			string(o.Decision.Reason),
		})
	}
	return rows
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to go2voice..."
	}

	parts := []string{
		m.renderHeader(),
		m.renderDecisions(),
		m.renderOutput(),
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.Failed.Render(" ⚠ "+m.lastError))
	}
	parts = append(parts, m.theme.Dim.Render(" [q] Quit • [↑/↓] Scroll output"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

func (m Model) renderHeader() string {
	st := m.status
	state := st.Executor.State
	if state == "" {
		state = "unknown"
	}
	stateStyle := m.theme.Rejected
	switch state {
	case "ready", "active":
		stateStyle = m.theme.Sent
	case "terminated":
		stateStyle = m.theme.Failed
	}
	if !m.connected {
		state = "connecting"
		stateStyle = m.theme.Failed
	}

	fp := st.Fingerprint
	if len(fp) > 12 {
		fp = fp[:12]
	}

	title := m.theme.Title.Render("GO2VOICE") + " " + m.theme.Dim.Render(m.apiURL)
	exec := fmt.Sprintf(" go2_motion %s  pid %d  posture %s  threshold %.1f  vocab %s",
		stateStyle.Render(state), st.Executor.PID, st.Policy.Posture, st.Threshold, fp)

	heard := "never"
	if !m.pulse.LastHeard().IsZero() {
		heard = m.now().Sub(m.pulse.LastHeard()).Round(time.Second).String() + " ago"
	}
	listening := fmt.Sprintf(" heard %s %s", heard, m.pulse.Render(m.theme))
	if m.partial != "" {
		listening += "  " + m.theme.Partial.Render("… "+m.partial)
	}

	return m.theme.Border.Width(max(20, m.width-4)).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, exec, listening),
	)
}

func (m Model) renderDecisions() string {
	body := m.table.View()
	if len(m.decisions) == 0 {
		body = m.theme.Dim.Render("  Waiting for speech...")
	} else {
		last := m.decisions[0].Outcome
		body = lipgloss.JoinVertical(lipgloss.Left, m.reasonStyle(last).Render(" last: "+describe(last)), body)
	}
	return m.theme.Border.Width(max(20, m.width-4)).Render(
		lipgloss.JoinVertical(lipgloss.Left, m.theme.Title.Render("DECISIONS"), body),
	)
}

func (m Model) renderOutput() string {
	return m.theme.Border.Width(max(20, m.width-4)).Render(
		lipgloss.JoinVertical(lipgloss.Left, m.theme.Title.Render("GO2_MOTION"), m.viewport.View()),
	)
}

func (m Model) reasonStyle(o engine.Outcome) lipgloss.Style {
	switch {
	case o.Sent:
		return m.theme.Sent
	case o.Decision.Reason == policy.ReasonSendFailed:
		return m.theme.Failed
	default:
		return m.theme.Rejected
	}
}

func describe(o engine.Outcome) string {
	switch {
	case o.Quit:
		return fmt.Sprintf("%q → QUIT", o.Text)
	case o.Sent && o.Decision.Action != o.Decision.Intent:
		return fmt.Sprintf("%q → %s (as %s)", o.Text, o.Decision.Intent, o.Decision.Action)
	case o.Sent:
		return fmt.Sprintf("%q → %s", o.Text, o.Decision.Action)
	default:
		return fmt.Sprintf("%q ✗ %s", o.Text, o.Decision.Reason)
	}
}
