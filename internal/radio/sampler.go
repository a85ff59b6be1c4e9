package radio

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/agentradio/radio/internal/audio"
	"github.com/agentradio/radio/internal/ttypes"
)

// DefaultSampleInterval is one display frame at 60 Hz.
const DefaultSampleInterval = time.Second / 60

// FrequencySource exposes normalized frequency bins of what is audible.
type FrequencySource interface {
	FrequencyData(dst []float64) int
}

// Sampler periodically captures frequency energy for the visualizer.
// It reads the playback state without going through the controller loop,
// so it never delays playback.
type Sampler struct {
	source   FrequencySource
	state    func() ttypes.State
	clock    clockwork.Clock
	interval time.Duration

	mu    sync.RWMutex
	buf   []float64
	bins  []float64
	level atomic.Uint64 // float64 bits
}

// NewSampler creates a sampler reading source while state reports playing.
func NewSampler(source FrequencySource, state func() ttypes.State, clock clockwork.Clock, interval time.Duration) *Sampler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &Sampler{
		source:   source,
		state:    state,
		clock:    clock,
		interval: interval,
		buf:      make([]float64, audio.FrequencyBins),
		bins:     make([]float64, audio.FrequencyBins),
	}
}

// Run samples on every frame until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.reset()
			return
		case <-ticker.Chan():
			s.Sample()
		}
	}
}

// Sample takes one reading. Anything other than playing reads as silence.
func (s *Sampler) Sample() {
	if s.state() != ttypes.StatePlaying {
		s.reset()
		return
	}

	n := s.source.FrequencyData(s.buf)

	var sum float64
	for _, v := range s.buf[:n] {
		sum += v
	}

	s.mu.Lock()
	copy(s.bins, s.buf[:n])
	clear(s.bins[n:])
	s.mu.Unlock()

	s.level.Store(math.Float64bits(Level(sum, n)))
}

// Level maps the summed bins to a scalar in [0,1]: twice the mean, clamped.
func Level(sum float64, n int) float64 {
	if n <= 0 {
		return 0
	}
	return math.Max(0, math.Min(1, sum/float64(n)*2))
}

// Volume returns the latest scalar amplitude in [0,1].
func (s *Sampler) Volume() float64 {
	return math.Float64frombits(s.level.Load())
}

// Bins returns a copy of the latest per-bin snapshot.
func (s *Sampler) Bins() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]float64(nil), s.bins...)
}

func (s *Sampler) reset() {
	s.mu.Lock()
	clear(s.bins)
	s.mu.Unlock()
	s.level.Store(0)
}
