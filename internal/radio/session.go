// Package radio runs stations: a segment queue kept full by a fetcher,
// played back-to-back through a sink by a single controller loop.
package radio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/agentradio/radio/internal/fetcher"
	"github.com/agentradio/radio/internal/metrics"
	"github.com/agentradio/radio/internal/queue"
	"github.com/agentradio/radio/internal/ttypes"
)

// Config holds session configuration.
type Config struct {
	// Settings are the initial instructions and voice
	Settings ttypes.Settings

	// Volume is the initial output volume, DefaultVolume when zero
	Volume float64

	// ReplenishInterval is the scheduler period
	ReplenishInterval time.Duration

	// SampleInterval is the amplitude sampling period
	SampleInterval time.Duration

	// Clock drives the scheduler and sampler
	Clock clockwork.Clock

	Logger *log.Logger
}

// DefaultConfig returns the configuration of a fresh station.
func DefaultConfig() Config {
	return Config{
		Settings:          ttypes.DefaultSettings(),
		Volume:            DefaultVolume,
		ReplenishInterval: DefaultReplenishInterval,
		SampleInterval:    DefaultSampleInterval,
		Clock:             clockwork.NewRealClock(),
	}
}

// Session is one station. It owns its queue, controller, fetcher, sampler,
// scheduler and sink; sessions share nothing and can run side by side.
type Session struct {
	ID string

	queue      *queue.SegmentQueue
	controller *Controller
	fetcher    SegmentFetcher
	sampler    *Sampler
	scheduler  *Scheduler
	sink       Sink
	logger     *log.Logger
	volume     float64

	settings atomic.Pointer[ttypes.Settings]

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	closed  bool
}

// NewSession creates a station fetching through its own fetcher over the
// two collaborators and playing through sink.
func NewSession(script fetcher.ScriptGenerator, speech fetcher.SpeechSynthesizer, sink Sink, cfg Config) *Session {
	id := uuid.NewString()
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.With("session", id[:8])

	f := fetcher.New(script, speech, fetcher.WithLogger(logger.WithPrefix("fetcher")))
	return newSession(id, f, sink, cfg, logger)
}

// NewSessionWithFetcher creates a station around an existing fetcher.
func NewSessionWithFetcher(f SegmentFetcher, sink Sink, cfg Config) *Session {
	id := uuid.NewString()
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return newSession(id, f, sink, cfg, logger.With("session", id[:8]))
}

func newSession(id string, f SegmentFetcher, sink Sink, cfg Config, logger *log.Logger) *Session {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	s := &Session{
		ID:      id,
		queue:   queue.NewSegmentQueue(),
		fetcher: f,
		sink:    sink,
		logger:  logger,
		volume:  cfg.Volume,
	}

	settings := cfg.Settings.Normalize()
	s.settings.Store(&settings)

	s.controller = NewController(id, s.queue, sink, f, s.Settings, logger)
	s.scheduler = NewScheduler(s.controller.Tick, cfg.Clock, cfg.ReplenishInterval, logger)
	s.sampler = NewSampler(sink, s.controller.State, cfg.Clock, cfg.SampleInterval)

	return s
}

// Start launches the controller loop, the scheduler and the sampler.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ttypes.ErrSessionClosed
	}
	if s.started {
		return nil
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		if err := s.controller.Run(ctx); err != nil {
			s.logger.Error("controller stopped", "error", err)
		}
	}()
	go func() {
		defer s.wg.Done()
		s.scheduler.Run(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.sampler.Run(ctx)
	}()

	if s.volume > 0 && s.volume != DefaultVolume {
		return s.controller.SetVolume(s.volume)
	}
	return nil
}

// Close stops the session and releases every segment and the sink.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.controller.Close()

	s.queue.Close()
	metrics.ForgetSession(s.ID)
	return s.sink.Close()
}

// Play starts or resumes playback.
func (s *Session) Play() error { return s.control(s.controller.Start) }

// Pause pauses playback.
func (s *Session) Pause() error { return s.control(s.controller.Pause) }

// Toggle switches between playing and paused.
func (s *Session) Toggle() error { return s.control(s.controller.Toggle) }

// SetVolume sets the output volume.
func (s *Session) SetVolume(v float64) error {
	return s.control(func() error { return s.controller.SetVolume(v) })
}

// AdjustVolume nudges the output volume by delta.
func (s *Session) AdjustVolume(delta float64) error {
	return s.control(func() error { return s.controller.AdjustVolume(delta) })
}

// ToggleMute mutes or restores the last audible volume.
func (s *Session) ToggleMute() error { return s.control(s.controller.ToggleMute) }

// control runs fn once the session is started and until it is closed.
func (s *Session) control(fn func() error) error {
	s.mu.Lock()
	closed, started := s.closed, s.started
	s.mu.Unlock()

	switch {
	case closed:
		return ttypes.ErrSessionClosed
	case !started:
		return ttypes.ErrSessionNotStarted
	}
	return fn()
}

// Settings returns the settings the next fetch will use.
func (s *Session) Settings() ttypes.Settings {
	return *s.settings.Load()
}

// Apply replaces the settings as a whole. Queued segments are kept;
// only fetches started afterwards see the new values.
func (s *Session) Apply(settings ttypes.Settings) ttypes.Settings {
	settings = settings.Normalize()
	s.settings.Store(&settings)
	s.logger.Info("settings applied", "voice", settings.VoiceID, "instructions", len(settings.Instructions))
	return settings
}

// Status returns the last published status.
func (s *Session) Status() Status { return s.controller.Status() }

// State returns the playback state.
func (s *Session) State() ttypes.State { return s.controller.State() }

// Subscribe streams status changes; call cancel to stop.
func (s *Session) Subscribe() (<-chan Status, func()) { return s.controller.Subscribe() }

// Amplitude returns the scalar visualizer level in [0,1].
func (s *Session) Amplitude() float64 { return s.sampler.Volume() }

// Spectrum returns the latest per-bin snapshot.
func (s *Session) Spectrum() []float64 { return s.sampler.Bins() }

// QueueStats returns statistics of the segment queue.
func (s *Session) QueueStats() queue.Stats { return s.queue.GetStats() }
