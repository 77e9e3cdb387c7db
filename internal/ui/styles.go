package ui

import (
	"charm.land/lipgloss/v2"

	"github.com/zhubert/arbor/internal/session"
)

// Color palette - Purple + Cyan/Teal theme
var (
	ColorPrimary   = lipgloss.Color("#7C3AED") // Purple
	ColorSecondary = lipgloss.Color("#06B6D4") // Cyan
	ColorMuted     = lipgloss.Color("#6B7280") // Gray
	ColorText      = lipgloss.Color("#F9FAFB") // Light text
	ColorWarning   = lipgloss.Color("#F59E0B") // Amber
	ColorError     = lipgloss.Color("#EF4444") // Red
	ColorSuccess   = lipgloss.Color("#10B981") // Green
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSecondary)

	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorError)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	SuccessStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSuccess)

	BranchStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary)
)

var statusStyles = map[session.Status]lipgloss.Style{
	session.StatusActive:    lipgloss.NewStyle().Bold(true).Foreground(ColorSuccess),
	session.StatusPaused:    lipgloss.NewStyle().Foreground(ColorWarning),
	session.StatusCompleted: lipgloss.NewStyle().Foreground(ColorSecondary),
	session.StatusMerged:    lipgloss.NewStyle().Foreground(ColorPrimary),
	session.StatusAbandoned: lipgloss.NewStyle().Foreground(ColorMuted).Strikethrough(true),
}

// StatusBadge renders a session status in its color.
func StatusBadge(s session.Status) string {
	style, ok := statusStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(string(s))
}
