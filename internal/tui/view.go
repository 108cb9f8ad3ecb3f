package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"rolloutctl/internal/manifest"
	"rolloutctl/pkg/logging"
)

var tableColumns = []string{"SERVICE", "PHASE", "STATUS", "HEALTH", "DURATION", "ENDPOINT"}

func (m model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Starting rollout dashboard..."
	}

	sections := []string{
		m.renderHeader(),
		"",
		neutralStyle.Render(phaseSummary(m.outcomes)),
		"",
		m.renderTable(),
		"",
	}
	if m.height >= minHeightForLogPanel {
		sections = append(sections, m.renderLogPanel(), "")
	}
	sections = append(sections, m.renderStatusBar(), m.help.View(m.keys))
	return strings.Join(sections, "\n")
}

func (m model) renderHeader() string {
	runID := m.cfg.RunID
	if len(runID) > 8 {
		runID = runID[:8]
	}

	var state string
	switch m.state {
	case stateRunning:
		state = m.spinner.View() + " rolling out"
	case stateCancelling:
		state = m.spinner.View() + " cancelling"
	case stateSucceeded:
		state = successStyle.Render("succeeded")
	case stateFailed:
		state = failureStyle.Render("failed")
	}

	title := fmt.Sprintf("rolloutctl  %s  run %s", m.cfg.Environment, runID)
	elapsed := m.elapsed().Truncate(time.Second).String()
	return headerStyle.Render(title) + "  " + state + "  " + mutedStyle.Render(elapsed)
}

func (m model) elapsed() time.Duration {
	if !m.finishedAt.IsZero() {
		return m.finishedAt.Sub(m.startedAt)
	}
	return time.Since(m.startedAt)
}

// phaseSummary is the one-line progress report under the header.
func phaseSummary(outcomes []manifest.Outcome) string {
	if len(outcomes) == 0 {
		return "Waiting for units to register..."
	}

	var done, inFlight, succeeded, validated, failed, rolledBack, pending int
	for _, o := range outcomes {
		if o.Status.Terminal() {
			done++
		}
		switch o.Status {
		case manifest.StatusSucceeded:
			succeeded++
		case manifest.StatusDryRun:
			validated++
		case manifest.StatusFailed:
			failed++
		case manifest.StatusRolledBack:
			rolledBack++
		case manifest.StatusPending:
			pending++
		default:
			inFlight++
		}
	}

	parts := []string{fmt.Sprintf("%d/%d done", done, len(outcomes))}
	if inFlight > 0 {
		parts = append(parts, fmt.Sprintf("%d in flight", inFlight))
	}
	if succeeded > 0 {
		parts = append(parts, fmt.Sprintf("%d succeeded", succeeded))
	}
	if validated > 0 {
		parts = append(parts, fmt.Sprintf("%d validated", validated))
	}
	if failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", failed))
	}
	if rolledBack > 0 {
		parts = append(parts, fmt.Sprintf("%d rolled back", rolledBack))
	}
	if pending > 0 {
		parts = append(parts, fmt.Sprintf("%d pending", pending))
	}
	return strings.Join(parts, ", ")
}

func (m model) renderTable() string {
	rows := make([][]string, 0, len(m.outcomes))
	for _, o := range m.outcomes {
		rows = append(rows, []string{
			o.Service,
			fmt.Sprintf("%d", o.Phase),
			string(o.Status),
			healthCell(o),
			durationCell(o),
			o.EndpointURL,
		})
	}

	widths := make([]int, len(tableColumns))
	for i, col := range tableColumns {
		widths[i] = runewidth.StringWidth(col)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	header := "  "
	for i, col := range tableColumns {
		header += runewidth.FillRight(col, widths[i]+2)
	}
	b.WriteString(tableHeaderStyle.Render(strings.TrimRight(header, " ")))

	if len(m.outcomes) == 0 {
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("  (no units yet)"))
		return b.String()
	}

	for idx, o := range m.outcomes {
		b.WriteString("\n")
		marker := "  "
		if idx == m.selected {
			marker = "▸ "
		}
		if idx == m.selected {
			line := marker
			for i, cell := range rows[idx] {
				line += runewidth.FillRight(cell, widths[i]+2)
			}
			b.WriteString(selectedRowStyle.Render(strings.TrimRight(line, " ")))
			continue
		}
		line := marker
		for i, cell := range rows[idx] {
			padded := runewidth.FillRight(cell, widths[i]+2)
			if i == 2 {
				padded = statusStyle(o.Status).Render(padded)
			}
			line += padded
		}
		b.WriteString(strings.TrimRight(line, " "))
	}
	return b.String()
}

func healthCell(o manifest.Outcome) string {
	if o.Health == "" {
		return manifest.HealthUnknown
	}
	return o.Health
}

func durationCell(o manifest.Outcome) string {
	if o.Status.Terminal() {
		if o.Duration <= 0 {
			return "-"
		}
		return o.Duration.Round(100 * time.Millisecond).String()
	}
	if o.StartedAt.IsZero() || o.Status == manifest.StatusPending {
		return "-"
	}
	return time.Since(o.StartedAt).Truncate(time.Second).String()
}

func (m model) renderLogPanel() string {
	title := panelTitleStyle.Render("Activity")
	if m.logsClosed {
		title += "  " + mutedStyle.Render("(stream closed)")
	}
	if n := logging.DroppedEntries(); n > 0 {
		title += "  " + mutedStyle.Render(fmt.Sprintf("(%d entries dropped)", n))
	}
	return title + "\n" + logPanelStyle.Render(m.logView.View())
}

func (m model) renderStatusBar() string {
	if m.statusMessage == "" {
		return ""
	}
	style := statusBarStyle
	if m.statusIsErr {
		style = statusBarErrStyle
	}
	msg := m.statusMessage
	if m.width > 4 {
		msg = runewidth.Truncate(msg, m.width-4, "…")
	}
	return style.Render(msg)
}

// prepareLogContent truncates each line to the viewport width and applies
// level styling.
func prepareLogContent(lines []string, width int) string {
	if len(lines) == 0 {
		return "Waiting for activity..."
	}
	styled := make([]string, 0, len(lines))
	for _, line := range lines {
		if width > 0 && runewidth.StringWidth(line) > width {
			line = runewidth.Truncate(line, width, "…")
		}
		styled = append(styled, styleLogLine(line))
	}
	return strings.Join(styled, "\n")
}

// styleLogLine picks a style from the level tag embedded in the line.
func styleLogLine(line string) string {
	switch {
	case strings.Contains(line, "[ERROR]"):
		return logErrorStyle.Render(line)
	case strings.Contains(line, "[WARN]"):
		return logWarnStyle.Render(line)
	case strings.Contains(line, "[DEBUG]"):
		return logDebugStyle.Render(line)
	default:
		return logInfoStyle.Render(line)
	}
}

func formatLogLine(entry logging.LogEntry) string {
	line := fmt.Sprintf("%s [%s] %s: %s",
		entry.Timestamp.Format("15:04:05"), entry.Level, entry.Subsystem, entry.Message)
	if entry.Err != nil {
		line += ": " + entry.Err.Error()
	}
	return line
}
