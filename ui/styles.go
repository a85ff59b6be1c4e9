package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/agentradio/radio/internal/ttypes"
)

const (
	orbLight = "#A0A0A0"
	orbDark  = "#232323"

	stateIconError = "✗"
)

var (
	mintGreen = lipgloss.AdaptiveColor{Light: "#89F0CB", Dark: "#89F0CB"}
	darkGreen = lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}
	dimGray   = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}

	logoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ECFD65")).
			Background(lipgloss.Color(orbDark)).
			Bold(true)

	orbStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: orbDark, Dark: orbLight})

	spectrumStyle = lipgloss.NewStyle().Foreground(dimGray)
	dimStyle      = lipgloss.NewStyle().Foreground(dimGray)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF8800"))
	loadingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#00AAFF"))
	liveDotStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))

	statusBarMessageStyle = lipgloss.NewStyle().
				Foreground(mintGreen).
				Background(darkGreen)

	statusBarErrorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#FFFDF5", Dark: "#FFFDF5"}).
				Background(lipgloss.Color("#A52A2A"))

	labelStyle = lipgloss.NewStyle().Bold(true)

	suggestionStyle         = lipgloss.NewStyle().Foreground(dimGray)
	selectedSuggestionStyle = lipgloss.NewStyle().Foreground(mintGreen).Underline(true)
)

// stateColor returns the color for a playback state.
func stateColor(s ttypes.State) lipgloss.Color {
	switch s {
	case ttypes.StatePlaying:
		return lipgloss.Color("#00FF00") // Green
	case ttypes.StatePaused:
		return lipgloss.Color("#FFFF00") // Yellow
	case ttypes.StateLoading:
		return lipgloss.Color("#00AAFF") // Blue
	case ttypes.StateIdle:
		return lipgloss.Color("#888888") // Gray
	default:
		return lipgloss.Color("#666666")
	}
}

func stateStyle(s ttypes.State) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(stateColor(s)).Bold(true)
}

// stateIcon returns an icon for a playback state.
func stateIcon(s ttypes.State) string {
	switch s {
	case ttypes.StatePlaying:
		return "▶"
	case ttypes.StatePaused:
		return "⏸"
	case ttypes.StateLoading:
		return "⟳"
	case ttypes.StateIdle:
		return "■"
	default:
		return "○"
	}
}
