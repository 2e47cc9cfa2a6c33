package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	// Colors
	ColorNeonPurple = lipgloss.Color("#bd93f9")
	ColorNeonPink   = lipgloss.Color("#ff79c6")
	ColorNeonCyan   = lipgloss.Color("#8be9fd")
	ColorGray       = lipgloss.Color("#44475a")
	ColorLightGray  = lipgloss.Color("#a0a4c0")
	ColorText       = lipgloss.Color("#f8f8f2")

	// Item states
	ColorStatePending     = lipgloss.Color("#6272a4")
	ColorStateDownloading = lipgloss.Color("#8be9fd")
	ColorStateDone        = lipgloss.Color("#50fa7b")
	ColorStateError       = lipgloss.Color("#ff5555")
	ColorStateCancelled   = lipgloss.Color("#ffb86c")

	LogoStyle = lipgloss.NewStyle().
			Foreground(ColorNeonPurple).
			Bold(true)

	StatsStyle = lipgloss.NewStyle().
			Foreground(ColorLightGray)

	TabStyle = lipgloss.NewStyle().
			Foreground(ColorLightGray).
			Padding(0, 1)

	ActiveTabStyle = lipgloss.NewStyle().
			Foreground(ColorNeonPink).
			Bold(true).
			Underline(true).
			Padding(0, 1)

	SelectedRowStyle = lipgloss.NewStyle().
				Foreground(ColorNeonPink).
				Bold(true)

	RowStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	StatsLabelStyle = lipgloss.NewStyle().
			Foreground(ColorLightGray).
			Width(10)

	StatsValueStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	NotificationStyle = lipgloss.NewStyle().
				Foreground(ColorNeonCyan).
				Bold(true)

	RetryStyle = lipgloss.NewStyle().
			Foreground(ColorStateCancelled)
)

// ApplyColorProfile picks the terminal color profile. NO_COLOR and
// CLICOLOR_FORCE are honored; plain forces uncolored output.
func ApplyColorProfile(plain bool) {
	if plain {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.EnvColorProfile())
}
