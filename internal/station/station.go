// Package station exposes a running radio session over HTTP: a websocket
// feed of state and amplitude frames plus control endpoints mirroring the
// player controls.
package station

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/agentradio/radio/internal/radio"
	"github.com/agentradio/radio/internal/ttypes"
)

// Controls is the part of a radio session the station drives.
type Controls interface {
	Play() error
	Pause() error
	Toggle() error
	ToggleMute() error
	SetVolume(v float64) error
	Apply(settings ttypes.Settings) ttypes.Settings
	Settings() ttypes.Settings
	Status() radio.Status
	Amplitude() float64
	Subscribe() (<-chan radio.Status, func())
}

var _ Controls = (*radio.Session)(nil)

// Config holds station configuration.
type Config struct {
	// FrameInterval is the amplitude frame period
	FrameInterval time.Duration

	// Clock drives the frame ticker
	Clock clockwork.Clock

	// CheckOrigin overrides the websocket origin check; same-origin when nil
	CheckOrigin func(r *http.Request) bool

	Logger *log.Logger
}

// Station serves one session.
type Station struct {
	controls Controls
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// New creates a station for controls.
func New(controls Controls, cfg Config) *Station {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Station{
		controls: controls,
		hub:      NewHub(controls, cfg.Clock, cfg.FrameInterval, logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
		logger: logger.WithPrefix("station"),
	}
}

// Run serves the feed until ctx is cancelled.
func (s *Station) Run(ctx context.Context) {
	s.hub.Run(ctx)
}

// Hub returns the feed hub.
func (s *Station) Hub() *Hub {
	return s.hub
}

// Register mounts the station routes on mux.
func (s *Station) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /station/events", s.handleEvents)
	mux.HandleFunc("GET /station/status", s.handleStatus)
	mux.HandleFunc("POST /station/toggle", s.command(func() error { return s.controls.Toggle() }))
	mux.HandleFunc("POST /station/play", s.command(func() error { return s.controls.Play() }))
	mux.HandleFunc("POST /station/pause", s.command(func() error { return s.controls.Pause() }))
	mux.HandleFunc("POST /station/mute", s.command(func() error { return s.controls.ToggleMute() }))
	mux.HandleFunc("POST /station/volume", s.handleVolume)
	mux.HandleFunc("GET /station/settings", s.handleGetSettings)
	mux.HandleFunc("POST /station/settings", s.handleApplySettings)
}

func (s *Station) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(s.hub, conn, s.exec)
	if !s.hub.Register(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (s *Station) exec(cmd Command) error {
	switch cmd.Type {
	case "toggle":
		return s.controls.Toggle()
	case "play":
		return s.controls.Play()
	case "pause":
		return s.controls.Pause()
	case "mute":
		return s.controls.ToggleMute()
	case "volume":
		return s.controls.SetVolume(cmd.Volume)
	default:
		return fmt.Errorf("unknown command %q", cmd.Type)
	}
}

func (s *Station) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.frame())
}

func (s *Station) command(fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.frame())
	}
}

func (s *Station) handleVolume(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Volume *float64 `json:"volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Volume == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Volume is required"})
		return
	}
	if err := s.controls.SetVolume(*body.Volume); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.frame())
}

func (s *Station) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, settingsBody(s.controls.Settings()))
}

// handleApplySettings replaces both fields at once. Audio already queued is
// kept; only later fetches use the new values.
func (s *Station) handleApplySettings(w http.ResponseWriter, r *http.Request) {
	var body SettingsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid settings"})
		return
	}

	applied := s.controls.Apply(ttypes.Settings{
		Instructions: body.Instructions,
		VoiceID:      body.VoiceID,
	})
	writeJSON(w, http.StatusOK, settingsBody(applied))
}

func (s *Station) frame() Frame {
	return NewFrame(s.controls.Status(), s.controls.Amplitude())
}

func (s *Station) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, ttypes.ErrSessionClosed) {
		status = http.StatusServiceUnavailable
	}
	s.logger.Warn("station command failed", "error", err)
	writeJSON(w, status, errorBody{Error: err.Error()})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
