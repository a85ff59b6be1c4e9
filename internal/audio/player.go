package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/jonboulle/clockwork"

	"github.com/agentradio/radio/internal/ttypes"
)

var (
	// ErrPlayerClosed is returned by operations on a closed player
	ErrPlayerClosed = errors.New("player is closed")

	// ErrEmptyAudio is returned when a segment has no audio left to play
	ErrEmptyAudio = errors.New("audio data is empty")

	// ErrNoDevice is returned when the audio device cannot be opened
	ErrNoDevice = errors.New("no audio device")
)

// Player plays one segment at a time on the system audio device.
// When a segment finishes on its own the segment ID is delivered on Ended.
// Stopping or replacing a segment does not report an end.
type Player struct {
	// OTO context - initialized once and reused
	context *oto.Context

	// Current segment being played, nil when idle
	active *activeStream

	state  atomic.Int32  // PlayerState
	volume atomic.Uint64 // volume * 1e6

	analyser *Analyser
	ended    chan string
	clock    clockwork.Clock
	logger   *log.Logger

	// Synchronization
	mu      sync.RWMutex
	stateMu sync.Mutex // Separate mutex for state changes

	// Configuration
	sampleRate   int
	channels     int
	bufferFrames int
	pollInterval time.Duration
	resampleQ    int
}

// activeStream keeps a decoded segment alive while oto pulls from it.
type activeStream struct {
	segmentID string
	decoder   beep.StreamSeekCloser
	tap       *Tap
	reader    *pcmReader
	player    *oto.Player

	done      chan struct{}
	closeOnce sync.Once
}

// PlayerConfig contains configuration for the audio player.
type PlayerConfig struct {
	SampleRate   int           // 44100 or 48000 Hz only
	Channels     int           // always 2, segments are decoded to stereo
	BufferFrames int           // frames decoded per read
	PollInterval time.Duration // how often end of playback is checked
	Quality      int           // resampling quality, 1 to 6
}

// DefaultPlayerConfig returns the default player configuration.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate:   44100,
		Channels:     2,
		BufferFrames: 2048,
		PollInterval: 50 * time.Millisecond,
		Quality:      4,
	}
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithClock sets the clock driving end-of-playback detection.
func WithClock(c clockwork.Clock) PlayerOption {
	return func(p *Player) {
		p.clock = c
	}
}

// WithLogger sets the player logger.
func WithLogger(l *log.Logger) PlayerOption {
	return func(p *Player) {
		p.logger = l
	}
}

// NewPlayer opens the audio device with the specified configuration.
func NewPlayer(config PlayerConfig, opts ...PlayerOption) (*Player, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	op := &oto.NewContextOptions{
		SampleRate:   config.SampleRate,
		ChannelCount: config.Channels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create oto context: %w", ErrNoDevice, err)
	}
	<-readyChan

	player := &Player{
		context:      ctx,
		analyser:     NewAnalyser(),
		ended:        make(chan string, 8),
		clock:        clockwork.NewRealClock(),
		logger:       log.Default().WithPrefix("audio"),
		sampleRate:   config.SampleRate,
		channels:     config.Channels,
		bufferFrames: config.BufferFrames,
		pollInterval: config.PollInterval,
		resampleQ:    config.Quality,
	}
	for _, opt := range opts {
		opt(player)
	}

	player.state.Store(int32(StateStopped))
	player.SetVolume(1.0)

	return player, nil
}

// validateConfig validates the player configuration.
func validateConfig(config PlayerConfig) error {
	// OTO only supports specific sample rates reliably
	if config.SampleRate != 44100 && config.SampleRate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", config.SampleRate)
	}

	if config.Channels != 2 {
		return fmt.Errorf("channels must be 2 (stereo), got %d", config.Channels)
	}

	if config.BufferFrames <= 0 {
		return errors.New("buffer frames must be positive")
	}

	if config.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}

	if config.Quality < 1 || config.Quality > 6 {
		return fmt.Errorf("resample quality must be between 1 and 6, got %d", config.Quality)
	}

	return nil
}

// Play decodes a segment and starts playing it, replacing anything loaded.
func (p *Player) Play(seg *ttypes.Segment) error {
	if seg == nil || len(seg.Audio()) == 0 {
		return ErrEmptyAudio
	}

	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if PlayerState(p.state.Load()) == StateClosed {
		return ErrPlayerClosed
	}

	p.stopInternal()

	stream, err := p.openStream(seg)
	if err != nil {
		return fmt.Errorf("failed to decode segment %s: %w", seg.ID, err)
	}

	stream.player.SetVolume(p.getVolume())

	p.mu.Lock()
	p.active = stream
	p.mu.Unlock()
	p.analyser.Reset()

	stream.player.Play()
	p.state.Store(int32(StatePlaying))

	go p.monitor(stream)

	p.logger.Debug("playing segment", "id", seg.ID, "bytes", seg.Size())
	return nil
}

// openStream builds the decode, resample, tap and oto chain for a segment.
func (p *Player) openStream(seg *ttypes.Segment) (*activeStream, error) {
	decoder, format, err := mp3.Decode(io.NopCloser(seg.Reader()))
	if err != nil {
		return nil, err
	}

	var s beep.Streamer = decoder
	if int(format.SampleRate) != p.sampleRate {
		s = beep.Resample(p.resampleQ, format.SampleRate, beep.SampleRate(p.sampleRate), s)
	}

	tap := NewTap(s, FFTSize*4)
	reader := newPCMReader(tap, p.bufferFrames)

	return &activeStream{
		segmentID: seg.ID,
		decoder:   decoder,
		tap:       tap,
		reader:    reader,
		player:    p.context.NewPlayer(reader),
		done:      make(chan struct{}),
	}, nil
}

// monitor reports the natural end of a stream. oto reports not playing both
// when paused and when drained, so only a drained decoder counts as an end.
func (p *Player) monitor(stream *activeStream) {
	ticker := p.clock.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stream.done:
			return
		case <-ticker.Chan():
			if PlayerState(p.state.Load()) != StatePlaying {
				continue
			}
			if !stream.reader.Drained() || stream.player.IsPlaying() {
				continue
			}

			p.stateMu.Lock()
			p.mu.Lock()
			current := p.active == stream
			if current {
				p.active = nil
				p.state.Store(int32(StateStopped))
			}
			p.mu.Unlock()
			p.stateMu.Unlock()

			stream.close()
			if !current {
				return
			}

			if err := stream.reader.Err(); err != nil {
				p.logger.Warn("segment ended with decode error", "id", stream.segmentID, "error", err)
			}

			select {
			case p.ended <- stream.segmentID:
			default:
				p.logger.Warn("dropped end notification", "id", stream.segmentID)
			}
			return
		}
	}
}

// Ended delivers the ID of each segment that finished playing on its own.
func (p *Player) Ended() <-chan string {
	return p.ended
}

// Pause pauses the current playback, keeping the segment loaded.
func (p *Player) Pause() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	currentState := PlayerState(p.state.Load())
	if currentState != StatePlaying {
		return fmt.Errorf("cannot pause: player is %s", currentState)
	}

	p.mu.RLock()
	if p.active != nil {
		p.active.player.Pause()
	}
	p.mu.RUnlock()

	p.state.Store(int32(StatePaused))
	return nil
}

// Resume continues the loaded segment from where it was paused.
func (p *Player) Resume() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	currentState := PlayerState(p.state.Load())
	if currentState != StatePaused {
		return fmt.Errorf("cannot resume: player is %s", currentState)
	}

	p.mu.RLock()
	if p.active != nil {
		p.active.player.Play()
	}
	p.mu.RUnlock()

	p.state.Store(int32(StatePlaying))
	return nil
}

// Stop stops playback and releases the decoded stream.
func (p *Player) Stop() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	p.stopInternal()
	return nil
}

// stopInternal stops playback without taking stateMu.
func (p *Player) stopInternal() {
	currentState := PlayerState(p.state.Load())
	if currentState == StateStopped || currentState == StateClosed {
		return
	}

	p.mu.Lock()
	stream := p.active
	p.active = nil
	p.mu.Unlock()

	if stream != nil {
		stream.close()
	}

	p.state.Store(int32(StateStopped))
}

// IsPlaying returns whether audio is currently playing.
func (p *Player) IsPlaying() bool {
	return PlayerState(p.state.Load()) == StatePlaying
}

// GetState returns the current player state.
func (p *Player) GetState() PlayerState {
	return PlayerState(p.state.Load())
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (p *Player) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}

	p.volume.Store(uint64(volume * 1000000))

	p.mu.RLock()
	if p.active != nil {
		p.active.player.SetVolume(volume)
	}
	p.mu.RUnlock()

	return nil
}

// GetVolume returns the current volume.
func (p *Player) GetVolume() float64 {
	return p.getVolume()
}

func (p *Player) getVolume() float64 {
	return float64(p.volume.Load()) / 1000000.0
}

// FrequencyData writes the analyser bins of the audible signal into dst.
// Nothing audible yields all zeros.
func (p *Player) FrequencyData(dst []float64) int {
	p.mu.RLock()
	stream := p.active
	p.mu.RUnlock()

	if stream == nil || !p.IsPlaying() {
		n := min(len(dst), FrequencyBins)
		clear(dst[:n])
		return n
	}

	return p.analyser.Process(stream.tap.Samples(FFTSize), dst)
}

// Close stops playback and marks the player unusable.
func (p *Player) Close() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	p.stopInternal()

	// oto.Context has no Close in v3, the device is released when the process exits
	p.mu.Lock()
	p.context = nil
	p.mu.Unlock()

	p.state.Store(int32(StateClosed))
	return nil
}

func (s *activeStream) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.player.Pause()
		if err := s.player.Close(); err != nil {
			log.Debug("closing oto player", "error", err)
		}
		s.decoder.Close()
	})
}
