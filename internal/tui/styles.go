package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/streamtts/internal/stats"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#FE2C55")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#25F4EE"))
	cursorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FE2C55"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func levelStyle(l stats.Level) lipgloss.Style {
	switch l {
	case stats.LevelSuccess:
		return successStyle
	case stats.LevelWarning:
		return warningStyle
	case stats.LevelError:
		return errorStyle
	case stats.LevelTTS, stats.LevelWelcome:
		return headerStyle
	default:
		return lipgloss.NewStyle()
	}
}

func connectionStyle(state string) lipgloss.Style {
	switch state {
	case "connected":
		return successStyle
	case "connecting", "rate_limited":
		return warningStyle
	case "error":
		return errorStyle
	default:
		return mutedStyle
	}
}
