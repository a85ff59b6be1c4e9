package ui

import "time"

// Config contains TUI-specific configuration.
type Config struct {
	GlamourMaxWidth uint
	GlamourStyle    string `env:"GLAMOUR_STYLE"`
	EnableMouse     bool

	// Voices are the presets offered by the settings panel, as
	// "Name=voiceID" pairs or bare IDs
	Voices []string `env:"RADIO_VOICES" envSeparator:","`

	// FrameInterval is how often the visualizer redraws
	FrameInterval time.Duration `env:"RADIO_FRAME_INTERVAL" envDefault:"50ms"`

	// For debugging the UI
	GlamourEnabled bool `env:"RADIO_ENABLE_GLAMOUR" envDefault:"true"`
}
