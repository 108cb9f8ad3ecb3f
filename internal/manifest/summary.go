package manifest

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// Status colors for the run summary table.
var (
	successColor = lipgloss.AdaptiveColor{Light: "#05A167", Dark: "#05D176"}
	failureColor = lipgloss.AdaptiveColor{Light: "#E06A56", Dark: "#F97171"}
	warningColor = lipgloss.AdaptiveColor{Light: "#E0A956", Dark: "#F9C171"}
	neutralColor = lipgloss.AdaptiveColor{Light: "#5A9FE0", Dark: "#71B7F9"}

	successStyle = lipgloss.NewStyle().Foreground(successColor)
	failureStyle = lipgloss.NewStyle().Foreground(failureColor)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	neutralStyle = lipgloss.NewStyle().Foreground(neutralColor)
	headerStyle  = lipgloss.NewStyle().Bold(true)
)

func statusStyle(s Status) lipgloss.Style {
	switch s {
	case StatusSucceeded:
		return successStyle
	case StatusFailed:
		return failureStyle
	case StatusRolledBack:
		return warningStyle
	default:
		return neutralStyle
	}
}

var summaryColumns = []string{"SERVICE", "PHASE", "STATUS", "HEALTH", "DURATION", "URL"}

// WriteSummary renders the human-readable run table, always printed to
// stdout regardless of outcome. Columns are fixed; widths adapt to content
// with the header as the minimum.
func WriteSummary(w io.Writer, m Manifest) {
	rows := make([][]string, 0, len(m.Services))
	for _, svc := range m.Services {
		rows = append(rows, []string{
			svc.Service,
			fmt.Sprintf("%d", svc.Phase),
			string(svc.Status),
			svc.Health,
			formatDuration(svc.DurationSeconds),
			svc.URL,
		})
	}

	widths := make([]int, len(summaryColumns))
	for i, col := range summaryColumns {
		widths[i] = runewidth.StringWidth(col)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	fmt.Fprintf(w, "\nRollout %s (%s)\n", m.Environment, m.RunID)

	header := ""
	for i, col := range summaryColumns {
		header += runewidth.FillRight(col, widths[i]+2)
	}
	fmt.Fprintln(w, headerStyle.Render(header))

	for idx, svc := range m.Services {
		line := ""
		for i, cell := range rows[idx] {
			padded := runewidth.FillRight(cell, widths[i]+2)
			if i == 2 {
				padded = statusStyle(svc.Status).Render(padded)
			}
			line += padded
		}
		fmt.Fprintln(w, line)
		for _, warning := range svc.Warnings {
			fmt.Fprintln(w, warningStyle.Render("  warning: "+warning))
		}
		if svc.Error != "" {
			fmt.Fprintln(w, failureStyle.Render("  error: "+svc.Error))
		}
	}

	succeeded, failed, rolledBack, dryRun := 0, 0, 0, 0
	for _, svc := range m.Services {
		switch svc.Status {
		case StatusSucceeded:
			succeeded++
		case StatusFailed:
			failed++
		case StatusRolledBack:
			rolledBack++
		case StatusDryRun:
			dryRun++
		}
	}
	if dryRun > 0 {
		fmt.Fprintf(w, "\n%d units validated, nothing deployed (dry run)\n", dryRun)
		return
	}
	fmt.Fprintf(w, "\n%d succeeded, %d failed, %d rolled back\n", succeeded, failed, rolledBack)
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	return time.Duration(seconds * float64(time.Second)).Round(100 * time.Millisecond).String()
}
