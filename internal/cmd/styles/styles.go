// Package styles holds the lipgloss styles shared by the CLI commands.
package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Colors meet WCAG AA contrast on dark terminals
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	BlueColor      = lipgloss.Color("#60A5FA")
	BorderColor    = lipgloss.Color("#6B7280")

	Primary   = lipgloss.NewStyle().Foreground(PrimaryColor)
	Secondary = lipgloss.NewStyle().Foreground(SecondaryColor)
	Warning   = lipgloss.NewStyle().Foreground(WarningColor)
	Error     = lipgloss.NewStyle().Foreground(ErrorColor)
	Muted     = lipgloss.NewStyle().Foreground(MutedColor)

	Title      = lipgloss.NewStyle().Bold(true).Foreground(PrimaryColor)
	Phase      = lipgloss.NewStyle().Bold(true).Foreground(BlueColor).Width(18)
	Label      = lipgloss.NewStyle().Foreground(MutedColor).Width(22)
	SummaryBox = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(BorderColor).Padding(0, 1)

	SuccessMsg = lipgloss.NewStyle().Foreground(SecondaryColor).Bold(true)
	WarningMsg = lipgloss.NewStyle().Foreground(WarningColor).Bold(true)
	ErrorMsg   = lipgloss.NewStyle().Foreground(ErrorColor).Bold(true)
)

// FinalStatus renders a run's final status (success, partial, failed).
func FinalStatus(status string) string {
	switch status {
	case "success":
		return SuccessMsg.Render(status)
	case "partial":
		return WarningMsg.Render(status)
	case "":
		return Muted.Render("unknown")
	default:
		return ErrorMsg.Render(status)
	}
}

// TrackStatus renders a track status (pending, working, completed, failed).
func TrackStatus(status string) string {
	switch status {
	case "completed":
		return Secondary.Render(status)
	case "working":
		return Primary.Render(status)
	case "failed":
		return Error.Render(status)
	default:
		return Muted.Render(status)
	}
}

// Check renders a pass/fail mark.
func Check(ok bool) string {
	if ok {
		return Secondary.Render("✓")
	}
	return Error.Render("✗")
}

// Row renders a "label value" line for summaries.
func Row(label, value string) string {
	return Label.Render(label) + value
}

// List joins items for a one-line display, or a muted dash when empty.
func List(items []string) string {
	if len(items) == 0 {
		return Muted.Render("-")
	}
	return strings.Join(items, ", ")
}
