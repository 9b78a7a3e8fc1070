package cmd

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	primary   = lipgloss.Color("#FF6B9D")
	secondary = lipgloss.Color("#C792EA")
	success   = lipgloss.Color("#C3E88D")
	failure   = lipgloss.Color("#F07178")
	info      = lipgloss.Color("#82AAFF")
	muted     = lipgloss.Color("#546E7A")
)

var (
	titleStyle = lipgloss.NewStyle().
		Foreground(primary).
		Bold(true)

	subtleStyle = lipgloss.NewStyle().
		Foreground(secondary).
		Italic(true)

	contentStyle = lipgloss.NewStyle().Width(80)

	progressBarStyle   = lipgloss.NewStyle().Foreground(primary)
	progressEmptyStyle = lipgloss.NewStyle().Foreground(muted)
)

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "downloading", "saving":
		return lipgloss.NewStyle().Foreground(info).Bold(true)
	case "complete":
		return lipgloss.NewStyle().Foreground(success).Bold(true)
	case "error":
		return lipgloss.NewStyle().Foreground(failure).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(muted)
	}
}

func progressBar(current, total, width int) string {
	if total <= 0 || width <= 0 {
		return ""
	}
	filled := int(float64(current) / float64(total) * float64(width))
	if filled > width {
		filled = width
	}
	return progressBarStyle.Render(strings.Repeat("█", filled)) +
		progressEmptyStyle.Render(strings.Repeat("░", width-filled))
}
