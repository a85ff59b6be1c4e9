// Package api serves the two collaborator routes the radio fetches from and
// provides the HTTP client the fetcher uses to call them.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/agentradio/radio/internal/cache"
	"github.com/agentradio/radio/internal/metrics"
	"github.com/agentradio/radio/internal/ttypes"
)

// DefaultTimeout bounds every upstream request.
const DefaultTimeout = 60 * time.Second

// Route error messages
const (
	MsgInstructionsRequired = "Instructions are required"
	MsgGoogleKeyMissing     = "GOOGLE_API_KEY not configured"
	MsgGenerateFailed       = "Failed to generate content"
	MsgTextRequired         = "Text is required"
	MsgElevenLabsKeyMissing = "ELEVENLABS_API_KEY not configured"
	MsgSpeakFailed          = "Failed to generate speech"
)

// GenerateRequest is the body of POST /api/generate.
type GenerateRequest struct {
	Instructions string `json:"instructions"`
}

// GenerateResponse is the success body of POST /api/generate.
type GenerateResponse struct {
	Text string `json:"text"`
}

// SpeakRequest is the body of POST /api/speak.
type SpeakRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voiceId,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SpeechCache keeps synthesized audio by cache.Key.
type SpeechCache interface {
	Get(key string) ([]byte, cache.Level, bool)
	Put(key string, audio []byte) error
}

var _ SpeechCache = (*cache.SpeechCache)(nil)

// Server handles the collaborator routes.
type Server struct {
	writer  Writer
	voice   Voice
	secrets SecretsFunc
	speech  SpeechCache
	logger  *log.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithSecrets overrides where credentials come from.
func WithSecrets(fn SecretsFunc) ServerOption {
	return func(s *Server) {
		s.secrets = fn
	}
}

// WithSpeechCache serves repeated speak requests from c.
func WithSpeechCache(c SpeechCache) ServerOption {
	return func(s *Server) {
		s.speech = c
	}
}

// WithServerLogger sets the server logger.
func WithServerLogger(l *log.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a server over the two upstreams.
func NewServer(writer Writer, voice Voice, opts ...ServerOption) *Server {
	s := &Server{
		writer:  writer,
		voice:   voice,
		secrets: EnvSecrets,
		logger:  log.Default().WithPrefix("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register mounts the routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/speak", s.handleSpeak)
	mux.HandleFunc("GET /health", HealthCheckHandler())
	mux.HandleFunc("GET /ready", ReadinessHandler(s.readinessChecks()))
}

// Handler returns a mux serving only this server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Error("error decoding generate request", "error", err)
		writeError(w, http.StatusInternalServerError, MsgGenerateFailed)
		return
	}

	if strings.TrimSpace(req.Instructions) == "" {
		writeError(w, http.StatusBadRequest, MsgInstructionsRequired)
		return
	}

	secrets, err := s.secrets()
	if err != nil || secrets.GoogleAPIKey == "" {
		if err != nil {
			s.logger.Error("unable to read secrets", "error", err)
		}
		writeError(w, http.StatusInternalServerError, MsgGoogleKeyMissing)
		return
	}

	start := time.Now()
	text, err := s.writer.Write(r.Context(), secrets.GoogleAPIKey, BuildPrompt(req.Instructions))
	if err != nil {
		s.logger.Error("error generating content", "error", err, "duration", time.Since(start))
		writeError(w, http.StatusInternalServerError, MsgGenerateFailed)
		return
	}

	writeJSON(w, http.StatusOK, GenerateResponse{Text: text})
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req SpeakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Error("error decoding speak request", "error", err)
		writeError(w, http.StatusInternalServerError, MsgSpeakFailed)
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, MsgTextRequired)
		return
	}
	if req.VoiceID == "" {
		req.VoiceID = ttypes.DefaultVoiceID
	}

	secrets, err := s.secrets()
	if err != nil || secrets.ElevenLabsAPIKey == "" {
		if err != nil {
			s.logger.Error("unable to read secrets", "error", err)
		}
		writeError(w, http.StatusInternalServerError, MsgElevenLabsKeyMissing)
		return
	}

	start := time.Now()
	key := cache.Key(req.VoiceID, req.Text)
	audio, hit := s.cachedSpeech(key)
	if !hit {
		audio, err = s.voice.Speak(r.Context(), secrets.ElevenLabsAPIKey, req.Text, req.VoiceID)
		if err != nil {
			s.logger.Error("error generating speech", "voice", req.VoiceID, "error", err, "duration", time.Since(start))
			writeError(w, http.StatusInternalServerError, MsgSpeakFailed)
			return
		}
		if s.speech != nil && len(audio) > 0 {
			if err := s.speech.Put(key, audio); err != nil {
				s.logger.Warn("unable to cache speech", "error", err)
			}
		}
	}

	w.Header().Set("Content-Type", ttypes.ContentTypeMPEG)
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio); err != nil {
		s.logger.Warn("unable to write audio", "error", err)
		return
	}
	metrics.RecordAudioBytes("out", len(audio))
	s.logger.Debug("speech served", "voice", req.VoiceID, "bytes", len(audio), "cached", hit, "duration", time.Since(start))
}

func (s *Server) cachedSpeech(key string) ([]byte, bool) {
	if s.speech == nil {
		return nil, false
	}
	audio, level, ok := s.speech.Get(key)
	if !ok {
		metrics.RecordSpeechCacheLookup("miss")
		return nil, false
	}
	metrics.RecordSpeechCacheLookup(level.String())
	return audio, true
}

func (s *Server) readinessChecks() map[string]HealthCheckFunc {
	return map[string]HealthCheckFunc{
		"gemini": func() (bool, error) {
			secrets, err := s.secrets()
			if err != nil {
				return false, err
			}
			return secrets.GoogleAPIKey != "", nil
		},
		"elevenlabs": func() (bool, error) {
			secrets, err := s.secrets()
			if err != nil {
				return false, err
			}
			return secrets.ElevenLabsAPIKey != "", nil
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
