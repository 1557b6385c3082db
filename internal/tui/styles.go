package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorRed    = lipgloss.Color("#FF0000")
	colorGreen  = lipgloss.Color("#00FF00")
	colorYellow = lipgloss.Color("#FFFF00")
	colorCyan   = lipgloss.Color("#00FFFF")
	colorGray   = lipgloss.Color("#666666")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	hintStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	transcriptStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorGray)
)

var stateStyles = map[string]lipgloss.Style{
	"ready":        lipgloss.NewStyle().Foreground(colorGreen).Bold(true),
	"recording":    lipgloss.NewStyle().Foreground(colorRed).Bold(true),
	"transcribing": lipgloss.NewStyle().Foreground(colorYellow).Bold(true),
	"error":        lipgloss.NewStyle().Foreground(colorRed).Bold(true).Underline(true),
}
