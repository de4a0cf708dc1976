package cmd

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	createdStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	modifiedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	deletedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

// statusStyle picks a style for a scan status string.
func statusStyle(status string) lipgloss.Style {
	switch status {
	case "completed":
		return successStyle
	case "completed_with_errors":
		return warnStyle
	case "failed":
		return errorStyle
	default:
		return dimStyle
	}
}

// changeStyle picks a style for a change type.
func changeStyle(changeType string) lipgloss.Style {
	switch changeType {
	case "created":
		return createdStyle
	case "deleted":
		return deletedStyle
	default:
		return modifiedStyle
	}
}
