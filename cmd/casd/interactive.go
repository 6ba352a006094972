package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/cas-bridge/ca"
	"github.com/wippyai/cas-bridge/codec"
	"github.com/wippyai/cas-bridge/engine/enginetest"
	"github.com/wippyai/cas-bridge/server"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	minorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	majorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type monitorModel struct {
	err        error
	configFile string
	lb         *enginetest.Loopback
	srv        *server.Server
	pvs        []*server.PV
	rows       []pvRow
	events     chan enginetest.PostedEvent
	input      textinput.Model
	selected   int
	editing    bool
	putErr     string
}

type pvRow struct {
	name     string
	value    string
	unit     string
	status   ca.Status
	severity ca.Severity
}

type startedMsg struct {
	err    error
	lb     *enginetest.Loopback
	srv    *server.Server
	pvs    []*server.PV
	rows   []pvRow
	events chan enginetest.PostedEvent
}

type eventMsg enginetest.PostedEvent

type putDoneMsg struct{ err error }

func newMonitorModel(configFile string) *monitorModel {
	return &monitorModel{configFile: configFile}
}

func (m *monitorModel) Init() tea.Cmd {
	return m.start
}

func (m *monitorModel) start() tea.Msg {
	cfg, err := loadConfig(m.configFile)
	if err != nil {
		return startedMsg{err: err}
	}

	lb := enginetest.NewLoopback()
	srv, err := server.NewServer(lb, codec.Std{})
	if err != nil {
		return startedMsg{err: err}
	}
	pvs, err := createPVs(srv, cfg)
	if err != nil {
		srv.Shutdown(context.Background())
		return startedMsg{err: err}
	}

	events := make(chan enginetest.PostedEvent, 64)
	rows := make([]pvRow, len(pvs))
	for i, pv := range pvs {
		attrs := pv.Attributes()
		rows[i] = pvRow{
			name:     pv.Name(),
			value:    formatValue(attrs.Value),
			unit:     attrs.Unit,
			status:   attrs.Status,
			severity: attrs.Severity,
		}

		ch := lb.Connect(pv.Name()).Wait()
		if ch == nil {
			srv.Shutdown(context.Background())
			return startedMsg{err: fmt.Errorf("pv %s: attach failed", pv.Name())}
		}
		_, sub := ch.Monitor(16)
		go func() {
			for ev := range sub {
				events <- ev
			}
		}()
	}

	return startedMsg{lb: lb, srv: srv, pvs: pvs, rows: rows, events: events}
}

func waitEvent(events chan enginetest.PostedEvent) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-events)
	}
}

func (m *monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.editing {
			return m.updateEditing(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q":
			if m.srv != nil {
				m.lb.Shutdown(context.Background())
				m.srv.Shutdown(context.Background())
			}
			return m, tea.Quit

		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.selected < len(m.rows)-1 {
				m.selected++
			}

		case "enter":
			if len(m.pvs) == 0 {
				return m, nil
			}
			m.input = textinput.New()
			m.input.Prompt = m.rows[m.selected].name + " = "
			m.input.Placeholder = m.rows[m.selected].value
			m.input.Width = 40
			m.input.Focus()
			m.editing = true
			m.putErr = ""
		}

	case startedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.lb = msg.lb
		m.srv = msg.srv
		m.pvs = msg.pvs
		m.rows = msg.rows
		m.events = msg.events
		return m, waitEvent(m.events)

	case eventMsg:
		for i := range m.rows {
			if m.rows[i].name == msg.PV {
				m.rows[i].value = formatValue(msg.Buf.Value)
				m.rows[i].unit = msg.Buf.Unit
				m.rows[i].status = msg.Buf.Status
				m.rows[i].severity = msg.Buf.Severity
			}
		}
		return m, waitEvent(m.events)

	case putDoneMsg:
		if msg.err != nil {
			m.putErr = msg.err.Error()
		}
	}

	return m, nil
}

func (m *monitorModel) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.editing = false
		return m, nil

	case "enter":
		m.editing = false
		pv := m.pvs[m.selected]
		raw := m.input.Value()
		return m, func() tea.Msg {
			value, err := parseValue(pv.Type(), raw)
			if err != nil {
				return putDoneMsg{err: err}
			}
			return putDoneMsg{err: pv.SetValue(context.Background(), value)}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func parseValue(t ca.DataType, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch t {
	case ca.TypeString:
		return raw, nil
	case ca.TypeFloat, ca.TypeDouble:
		return strconv.ParseFloat(raw, 64)
	default:
		return strconv.ParseInt(raw, 10, 64)
	}
}

func formatValue(v any) string {
	switch s := v.(type) {
	case []int64, []float64, []string:
		return strings.Trim(fmt.Sprintf("%v", s), "[]")
	}
	return fmt.Sprintf("%v", v)
}

func severityLabel(sev ca.Severity) string {
	switch sev {
	case ca.SeverityMinor:
		return minorStyle.Render("MINOR")
	case ca.SeverityMajor:
		return majorStyle.Render("MAJOR")
	case ca.SeverityInvalid:
		return majorStyle.Render("INVALID")
	}
	return "OK"
}

func (m *monitorModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if len(m.rows) == 0 {
		return "Starting server..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("CAS Monitor"))
	b.WriteString(" ")
	b.WriteString(m.configFile)
	b.WriteString("\n\n")

	for i, row := range m.rows {
		line := fmt.Sprintf("%s  %s %s  %s",
			nameStyle.Render(fmt.Sprintf("%-16s", row.name)),
			valueStyle.Render(fmt.Sprintf("%12s", row.value)),
			fmt.Sprintf("%-6s", row.unit),
			severityLabel(row.severity),
		)
		if i == m.selected && !m.editing {
			b.WriteString(selectedStyle.Render("> "))
		} else {
			b.WriteString("  ")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.editing {
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter write • esc cancel"))
	} else {
		if m.putErr != "" {
			b.WriteString(errorStyle.Render(m.putErr))
			b.WriteString("\n\n")
		}
		b.WriteString(helpStyle.Render("↑/↓ select • enter write value • q quit"))
	}

	return b.String()
}

func runInteractive(configFile string) error {
	p := tea.NewProgram(newMonitorModel(configFile), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
