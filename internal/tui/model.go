package tui

import (
	"fmt"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"rolloutctl/internal/manifest"
	"rolloutctl/pkg/logging"
)

// clipboardWriteAll is a variable so tests can intercept clipboard writes.
var clipboardWriteAll = clipboard.WriteAll

// Config wires the dashboard to a running rollout. Start is executed inside
// the program as a command; its return value is delivered back to the caller
// through whatever channel the Start closure writes to.
type Config struct {
	// Environment is the target environment name shown in the header.
	Environment string

	// RunID identifies the rollout run; only the first 8 characters are shown.
	RunID string

	// Recorder is polled for outcome snapshots while the run progresses.
	Recorder *manifest.Recorder

	// Logs is the entry channel from logging.InitForTUI. May be nil, in which
	// case the activity log stays empty.
	Logs <-chan logging.LogEntry

	// Start launches the rollout and blocks until it finishes, returning the
	// number of failed units.
	Start func() (int, error)

	// Cancel stops the rollout. Invoked on the first q press and on ctrl+c.
	Cancel func()
}

// runState tracks where the rollout is in its lifecycle.
type runState int

const (
	stateRunning runState = iota
	stateCancelling
	stateSucceeded
	stateFailed
)

// snapshotMsg carries a fresh copy of every unit outcome.
type snapshotMsg struct {
	outcomes []manifest.Outcome
}

// logMsg carries one entry from the logging channel.
type logMsg struct {
	entry logging.LogEntry
}

// logClosedMsg signals that the logging channel was closed.
type logClosedMsg struct{}

// runDoneMsg is delivered when the Start closure returns.
type runDoneMsg struct {
	failed int
	err    error
}

// clearStatusMsg expires the status bar message.
type clearStatusMsg struct{}

type model struct {
	cfg Config

	state      runState
	failed     int
	runErr     error
	startedAt  time.Time
	finishedAt time.Time

	outcomes []manifest.Outcome
	selected int

	logLines   []string
	logsClosed bool
	logView    viewport.Model

	width  int
	height int
	ready  bool

	spinner  spinner.Model
	keys     KeyMap
	help     help.Model
	showHelp bool

	statusMessage string
	statusIsErr   bool
	statusCancel  chan struct{}

	quitting bool
}

func newModel(cfg Config) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{
		cfg:       cfg,
		state:     stateRunning,
		startedAt: time.Now(),
		outcomes:  cfg.Recorder.Snapshot(),
		spinner:   sp,
		keys:      DefaultKeyMap(),
		help:      help.New(),
		logView:   viewport.New(0, 0),
	}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.spinner.Tick,
		startRolloutCmd(m.cfg.Start),
		pollSnapshotCmd(m.cfg.Recorder),
	}
	if m.cfg.Logs != nil {
		cmds = append(cmds, waitForLogCmd(m.cfg.Logs))
	}
	return tea.Batch(cmds...)
}

// startRolloutCmd runs the rollout and reports its result. The rollout keeps
// running even if the user resizes or navigates; only Cancel stops it.
func startRolloutCmd(start func() (int, error)) tea.Cmd {
	return func() tea.Msg {
		failed, err := start()
		return runDoneMsg{failed: failed, err: err}
	}
}

// pollSnapshotCmd schedules the next outcome refresh.
func pollSnapshotCmd(rec *manifest.Recorder) tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return snapshotMsg{outcomes: rec.Snapshot()}
	})
}

// waitForLogCmd blocks on the log channel for the next entry. It is re-armed
// after every logMsg and retired once the channel closes.
func waitForLogCmd(ch <-chan logging.LogEntry) tea.Cmd {
	return func() tea.Msg {
		entry, ok := <-ch
		if !ok {
			return logClosedMsg{}
		}
		return logMsg{entry: entry}
	}
}

// setStatus replaces the status bar message and returns the command that
// clears it after a few seconds. Replacing a message cancels the previous
// expiry so an old timer cannot wipe a newer message.
func (m *model) setStatus(message string, isErr bool) tea.Cmd {
	if m.statusCancel != nil {
		close(m.statusCancel)
	}
	cancel := make(chan struct{})
	m.statusCancel = cancel
	m.statusMessage = message
	m.statusIsErr = isErr
	return func() tea.Msg {
		select {
		case <-time.After(statusMessageTTL):
			return clearStatusMsg{}
		case <-cancel:
			return nil
		}
	}
}

// Run starts the dashboard and blocks until it exits. The terminal is
// switched to the alternate screen for the duration.
func Run(cfg Config) error {
	if cfg.Recorder == nil {
		return fmt.Errorf("watch dashboard requires a recorder")
	}
	if cfg.Start == nil {
		return fmt.Errorf("watch dashboard requires a start function")
	}
	p := tea.NewProgram(newModel(cfg), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running watch dashboard: %w", err)
	}
	return nil
}
