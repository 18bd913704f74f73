package ui

import "github.com/charmbracelet/lipgloss"

const (
	spotifyGreen = lipgloss.Color("#1DB954")
	successGreen = lipgloss.Color("#04B575")
	failureRed   = lipgloss.Color("#FF5F56")
	warningAmber = lipgloss.Color("#FFA500")
	mutedGrey    = lipgloss.Color("#626262")
)

// palette holds the styles shared by every view.
type palette struct {
	title lipgloss.Style // view headings
	ok    lipgloss.Style // completed run
	err   lipgloss.Style // fatal failure
	warn  lipgloss.Style // overwrite notice, cancellation, failed batches
	help  lipgloss.Style // progress log
	box   lipgloss.Style // run summary panel
}

var styles = palette{
	title: lipgloss.NewStyle().Foreground(spotifyGreen).Bold(true).MarginBottom(1),
	ok:    lipgloss.NewStyle().Foreground(successGreen).Bold(true),
	err:   lipgloss.NewStyle().Foreground(failureRed).Bold(true),
	warn:  lipgloss.NewStyle().Foreground(warningAmber),
	help:  lipgloss.NewStyle().Foreground(mutedGrey).Italic(true),
	box:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(mutedGrey).Padding(0, 1),
}
