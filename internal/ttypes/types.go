// Package ttypes contains shared types for the radio pipeline.
// This package is used to break import cycles between radio, fetcher, audio, and queue packages.
package ttypes

import "strings"

// DefaultVoiceID is the synthesis voice used when none is configured (George).
const DefaultVoiceID = "JBFqnCBsd6RMkjVDRZzb"

// DefaultInstructions is the persona used when no instructions are configured.
const DefaultInstructions = `You are a late-night philosophical radio host named "The Midnight Oracle".
Your style is calm, thoughtful, and introspective.

You discuss topics like:
- The nature of consciousness and existence
- Finding meaning in everyday moments
- Philosophy made accessible
- Thought experiments and paradoxes
- Reflections on technology and humanity

Speak in a warm, contemplative tone. Each segment should be 2-3 paragraphs.
Start naturally, as if continuing a conversation with your listeners.
Never use phrases like "Welcome back" or "In this segment".`

// State represents the playback state of a radio session
type State int

const (
	// StateIdle is the initial state, nothing has been played yet
	StateIdle State = iota

	// StateLoading indicates the player is waiting for its first segment
	StateLoading

	// StatePlaying indicates the station is live
	StatePlaying

	// StatePaused indicates the listener paused playback
	StatePaused
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Label returns the listener-facing status label for the state.
func (s State) Label() string {
	switch s {
	case StateIdle:
		return "Ready"
	case StateLoading:
		return "Loading..."
	case StatePlaying:
		return "Live"
	case StatePaused:
		return "Paused"
	default:
		return ""
	}
}

// Settings is the live configuration used by every fetch.
// It is a value type: callers replace it as a whole, never field by field.
type Settings struct {
	// Instructions describe the persona and topics of the station
	Instructions string

	// VoiceID selects the synthesis voice
	VoiceID string
}

// DefaultSettings returns the settings of a fresh station.
func DefaultSettings() Settings {
	return Settings{
		Instructions: DefaultInstructions,
		VoiceID:      DefaultVoiceID,
	}
}

// Normalize trims surrounding whitespace and fills in the default voice.
func (s Settings) Normalize() Settings {
	s.Instructions = strings.TrimSpace(s.Instructions)
	s.VoiceID = strings.TrimSpace(s.VoiceID)
	if s.VoiceID == "" {
		s.VoiceID = DefaultVoiceID
	}
	return s
}
