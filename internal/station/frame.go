package station

import (
	"math"

	"github.com/agentradio/radio/internal/radio"
	"github.com/agentradio/radio/internal/ttypes"
)

// Frame is one snapshot of the station sent to feed clients.
type Frame struct {
	State      string       `json:"state"`
	Label      string       `json:"label"`
	Volume     float64      `json:"volume"`
	Amplitude  float64      `json:"amplitude"`
	QueueDepth int          `json:"queueDepth"`
	Muted      bool         `json:"muted"`
	Fetching   bool         `json:"fetching"`
	Segment    *SegmentInfo `json:"segment,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// SegmentInfo describes the segment on air.
type SegmentInfo struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
	Script string `json:"script"`
}

// SettingsBody is the JSON form of the station settings.
type SettingsBody struct {
	Instructions string `json:"instructions"`
	VoiceID      string `json:"voiceId"`
}

// NewFrame builds a frame from a status and the current amplitude.
func NewFrame(st radio.Status, amplitude float64) Frame {
	f := Frame{
		State:      st.State.String(),
		Label:      st.State.Label(),
		Volume:     st.Volume,
		Amplitude:  round3(amplitude),
		QueueDepth: st.QueueDepth,
		Muted:      st.Muted,
		Fetching:   st.Fetching,
		Error:      st.LastError,
	}
	if st.SegmentID != "" {
		f.Segment = &SegmentInfo{
			ID:     st.SegmentID,
			Handle: ttypes.HandleFor(st.SegmentID),
			Script: st.Script,
		}
	}
	return f
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func settingsBody(s ttypes.Settings) SettingsBody {
	return SettingsBody{Instructions: s.Instructions, VoiceID: s.VoiceID}
}
