package tui

import (
	"time"

	"github.com/charmbracelet/lipgloss"

	"rolloutctl/internal/manifest"
)

const (
	// refreshInterval is how often the dashboard polls the recorder for a
	// fresh outcome snapshot.
	refreshInterval = 500 * time.Millisecond

	// maxLogLines bounds the activity log; older lines are evicted.
	maxLogLines = 200

	// minHeightForLogPanel is the terminal height below which the activity
	// log is dropped from the layout to keep the unit table readable.
	minHeightForLogPanel = 20

	// chromeLines counts the fixed lines around the unit table rows and the
	// log panel content: header, spacers, table header, panel title and
	// border, status bar and help line.
	chromeLines = 12

	// minLogPanelHeight is the smallest viewport the activity log renders in.
	minLogPanelHeight = 3

	// statusMessageTTL is how long a status bar message stays visible.
	statusMessageTTL = 4 * time.Second
)

// Status colors match the post-run summary table so the live dashboard and
// the final printout read the same.
var (
	successColor = lipgloss.AdaptiveColor{Light: "#05A167", Dark: "#05D176"}
	failureColor = lipgloss.AdaptiveColor{Light: "#E06A56", Dark: "#F97171"}
	warningColor = lipgloss.AdaptiveColor{Light: "#E0A956", Dark: "#F9C171"}
	neutralColor = lipgloss.AdaptiveColor{Light: "#5A9FE0", Dark: "#71B7F9"}
	mutedColor   = lipgloss.AdaptiveColor{Light: "#606060", Dark: "#909090"}

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#FFFFFF"}).
			Background(lipgloss.AdaptiveColor{Light: "#D0D0D0", Dark: "#303030"}).
			Padding(0, 1)

	tableHeaderStyle = lipgloss.NewStyle().Bold(true)

	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Background(lipgloss.AdaptiveColor{Light: "#E8F4FF", Dark: "#2A3450"})

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#FFFFFF"})

	logPanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	successStyle = lipgloss.NewStyle().Foreground(successColor)
	failureStyle = lipgloss.NewStyle().Foreground(failureColor).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	neutralStyle = lipgloss.NewStyle().Foreground(neutralColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)

	logInfoStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#E0E0E0"})
	logWarnStyle  = lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	logErrorStyle = lipgloss.NewStyle().Foreground(failureColor).Bold(true)
	logDebugStyle = lipgloss.NewStyle().Foreground(mutedColor).Italic(true)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#F0F0F0"}).
			Background(lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#374151"}).
			Padding(0, 1)

	statusBarErrStyle = statusBarStyle.
				Background(lipgloss.AdaptiveColor{Light: "#EF4444", Dark: "#DC2626"})
)

// statusStyle picks the color for one unit status cell.
func statusStyle(s manifest.Status) lipgloss.Style {
	switch s {
	case manifest.StatusSucceeded, manifest.StatusDryRun:
		return successStyle
	case manifest.StatusFailed:
		return failureStyle
	case manifest.StatusRolledBack:
		return warningStyle
	case manifest.StatusPending:
		return mutedStyle
	default:
		return neutralStyle
	}
}
