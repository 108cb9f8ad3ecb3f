package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"rolloutctl/pkg/logging"
)

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.help.Width = msg.Width
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case snapshotMsg:
		m.outcomes = msg.outcomes
		m.clampSelection()
		m.layout()
		if m.state == stateRunning || m.state == stateCancelling {
			return m, pollSnapshotCmd(m.cfg.Recorder)
		}
		return m, nil

	case logMsg:
		m.appendLog(msg.entry)
		return m, waitForLogCmd(m.cfg.Logs)

	case logClosedMsg:
		m.logsClosed = true
		return m, nil

	case runDoneMsg:
		return m.handleRunDone(msg)

	case clearStatusMsg:
		m.statusMessage = ""
		m.statusIsErr = false
		m.statusCancel = nil
		return m, nil

	case spinner.TickMsg:
		if m.state != stateRunning && m.state != stateCancelling {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ForceQuit):
		if m.cfg.Cancel != nil && !m.state.terminal() {
			m.cfg.Cancel()
		}
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Quit):
		if m.state == stateRunning {
			if m.cfg.Cancel != nil {
				m.cfg.Cancel()
			}
			m.state = stateCancelling
			cmd := m.setStatus("Cancelling rollout. Press q again to leave without waiting.", false)
			return m, cmd
		}
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.selected < len(m.outcomes)-1 {
			m.selected++
		}
		return m, nil

	case key.Matches(msg, m.keys.Yank):
		return m.yankSelected()

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		m.layout()
		return m, nil
	}

	return m, nil
}

// yankSelected copies the selected unit's endpoint URL to the clipboard and
// reports the result in the status bar.
func (m model) yankSelected() (tea.Model, tea.Cmd) {
	if len(m.outcomes) == 0 {
		return m, nil
	}
	outcome := m.outcomes[m.selected]
	if outcome.EndpointURL == "" {
		cmd := m.setStatus(fmt.Sprintf("No endpoint recorded for %s yet", outcome.Service), true)
		return m, cmd
	}
	if err := clipboardWriteAll(outcome.EndpointURL); err != nil {
		cmd := m.setStatus(fmt.Sprintf("Copying endpoint for %s failed: %v", outcome.Service, err), true)
		return m, cmd
	}
	cmd := m.setStatus(fmt.Sprintf("Copied %s to clipboard", outcome.EndpointURL), false)
	return m, cmd
}

func (m model) handleRunDone(msg runDoneMsg) (tea.Model, tea.Cmd) {
	m.failed = msg.failed
	m.runErr = msg.err
	m.finishedAt = time.Now()
	m.outcomes = m.cfg.Recorder.Snapshot()
	m.clampSelection()
	m.layout()

	var cmd tea.Cmd
	switch {
	case msg.err != nil:
		m.state = stateFailed
		cmd = m.setStatus(fmt.Sprintf("Rollout aborted: %v. Press q to quit.", msg.err), true)
	case msg.failed > 0:
		m.state = stateFailed
		noun := "units"
		if msg.failed == 1 {
			noun = "unit"
		}
		cmd = m.setStatus(fmt.Sprintf("Rollout finished, %d %s failed. Press q to quit.", msg.failed, noun), true)
	default:
		m.state = stateSucceeded
		cmd = m.setStatus("Rollout finished, all units succeeded. Press q to quit.", false)
	}
	return m, cmd
}

func (s runState) terminal() bool {
	return s == stateSucceeded || s == stateFailed
}

func (m *model) clampSelection() {
	if m.selected >= len(m.outcomes) {
		m.selected = len(m.outcomes) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

func (m *model) appendLog(entry logging.LogEntry) {
	m.logLines = append(m.logLines, formatLogLine(entry))
	if len(m.logLines) > maxLogLines {
		m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
	}
	m.syncLogView()
}

// layout sizes the log viewport from the terminal dimensions and the number
// of table rows. Called on resize and whenever the row count can change.
func (m *model) layout() {
	if !m.ready {
		return
	}
	width := m.width - 4
	if width < 10 {
		width = 10
	}
	rows := len(m.outcomes)
	if rows == 0 {
		rows = 1
	}
	height := m.height - rows - chromeLines
	if height < minLogPanelHeight {
		height = minLogPanelHeight
	}
	m.logView.Width = width
	m.logView.Height = height
	m.syncLogView()
}

// syncLogView pushes the styled log lines into the viewport, pinned to the
// newest entry.
func (m *model) syncLogView() {
	m.logView.SetContent(prepareLogContent(m.logLines, m.logView.Width))
	m.logView.GotoBottom()
}
