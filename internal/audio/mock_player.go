package audio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/agentradio/radio/internal/ttypes"
)

// MockPlayer simulates a sink without producing sound.
// Playback ends when the test calls Finish, or after a fixed duration of
// playing time when auto-finish is enabled.
type MockPlayer struct {
	state atomic.Int32 // PlayerState

	current *ttypes.Segment
	played  []string
	volume  float64
	freq    []float64
	failErr error
	ended   chan string

	// Auto-finish
	clock     clockwork.Clock
	duration  time.Duration
	remaining time.Duration
	startedAt time.Time
	timerStop chan struct{}

	// Test callbacks
	callbacks MockCallbacks

	// Synchronization
	mu sync.RWMutex

	// Metrics for testing
	playCount   atomic.Int64
	pauseCount  atomic.Int64
	resumeCount atomic.Int64
	stopCount   atomic.Int64
	finishCount atomic.Int64
}

// MockCallbacks provides hooks for testing.
type MockCallbacks struct {
	OnPlay   func(seg *ttypes.Segment)
	OnPause  func()
	OnResume func()
	OnStop   func()
	OnFinish func(id string)
}

// DefaultMockPlayer creates a new mock player with default settings.
func DefaultMockPlayer() *MockPlayer {
	mp := &MockPlayer{
		volume: 1.0,
		ended:  make(chan string, 8),
	}
	mp.state.Store(int32(StateStopped))
	return mp
}

// NewMockPlayer creates a new mock player with custom callbacks.
func NewMockPlayer(callbacks MockCallbacks) *MockPlayer {
	mp := DefaultMockPlayer()
	mp.callbacks = callbacks
	return mp
}

// SetAutoFinish makes every segment end after d of playing time on clock.
// Paused time does not count.
func (mp *MockPlayer) SetAutoFinish(clock clockwork.Clock, d time.Duration) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.clock = clock
	mp.duration = d
}

// FailNext makes the next Play call return err.
func (mp *MockPlayer) FailNext(err error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.failErr = err
}

// SetFrequencyData sets the bins returned while playing.
func (mp *MockPlayer) SetFrequencyData(bins []float64) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.freq = append(mp.freq[:0], bins...)
}

// Play loads a segment and starts playing it.
func (mp *MockPlayer) Play(seg *ttypes.Segment) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if PlayerState(mp.state.Load()) == StateClosed {
		return ErrPlayerClosed
	}
	if seg == nil || seg.Released() {
		return ErrEmptyAudio
	}

	if mp.failErr != nil {
		err := mp.failErr
		mp.failErr = nil
		return err
	}

	mp.stopTimerLocked()
	mp.current = seg
	mp.played = append(mp.played, seg.ID)
	mp.remaining = mp.duration
	mp.state.Store(int32(StatePlaying))
	mp.playCount.Add(1)
	mp.startTimerLocked(seg.ID)

	if mp.callbacks.OnPlay != nil {
		mp.callbacks.OnPlay(seg)
	}
	return nil
}

// Pause pauses the current playback.
func (mp *MockPlayer) Pause() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	currentState := PlayerState(mp.state.Load())
	if currentState != StatePlaying {
		return fmt.Errorf("cannot pause: player is %s", currentState)
	}

	if mp.clock != nil && mp.duration > 0 {
		mp.remaining -= mp.clock.Since(mp.startedAt)
	}
	mp.stopTimerLocked()
	mp.state.Store(int32(StatePaused))
	mp.pauseCount.Add(1)

	if mp.callbacks.OnPause != nil {
		mp.callbacks.OnPause()
	}
	return nil
}

// Resume resumes paused playback.
func (mp *MockPlayer) Resume() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	currentState := PlayerState(mp.state.Load())
	if currentState != StatePaused {
		return fmt.Errorf("cannot resume: player is %s", currentState)
	}

	mp.state.Store(int32(StatePlaying))
	mp.resumeCount.Add(1)
	if mp.current != nil {
		mp.startTimerLocked(mp.current.ID)
	}

	if mp.callbacks.OnResume != nil {
		mp.callbacks.OnResume()
	}
	return nil
}

// Stop unloads the current segment without reporting an end.
func (mp *MockPlayer) Stop() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	currentState := PlayerState(mp.state.Load())
	if currentState == StateStopped || currentState == StateClosed {
		return nil
	}

	mp.stopTimerLocked()
	mp.current = nil
	mp.state.Store(int32(StateStopped))
	mp.stopCount.Add(1)

	if mp.callbacks.OnStop != nil {
		mp.callbacks.OnStop()
	}
	return nil
}

// Finish simulates the current segment playing to its natural end.
// It returns false when nothing is playing.
func (mp *MockPlayer) Finish() bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if PlayerState(mp.state.Load()) != StatePlaying || mp.current == nil {
		return false
	}
	mp.finishLocked()
	return true
}

func (mp *MockPlayer) finishLocked() {
	id := mp.current.ID
	mp.stopTimerLocked()
	mp.current = nil
	mp.state.Store(int32(StateStopped))
	mp.finishCount.Add(1)

	select {
	case mp.ended <- id:
	default:
	}

	if mp.callbacks.OnFinish != nil {
		mp.callbacks.OnFinish(id)
	}
}

func (mp *MockPlayer) startTimerLocked(id string) {
	if mp.clock == nil || mp.duration <= 0 {
		return
	}

	stop := make(chan struct{})
	mp.timerStop = stop
	mp.startedAt = mp.clock.Now()
	after := mp.clock.After(mp.remaining)

	go func() {
		select {
		case <-stop:
		case <-after:
			mp.mu.Lock()
			defer mp.mu.Unlock()
			if mp.timerStop != stop || mp.current == nil || mp.current.ID != id {
				return
			}
			if PlayerState(mp.state.Load()) == StatePlaying {
				mp.finishLocked()
			}
		}
	}()
}

func (mp *MockPlayer) stopTimerLocked() {
	if mp.timerStop != nil {
		close(mp.timerStop)
		mp.timerStop = nil
	}
}

// Ended delivers the ID of each segment that finished on its own.
func (mp *MockPlayer) Ended() <-chan string {
	return mp.ended
}

// IsPlaying returns whether audio is currently playing.
func (mp *MockPlayer) IsPlaying() bool {
	return PlayerState(mp.state.Load()) == StatePlaying
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (mp *MockPlayer) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.volume = volume
	return nil
}

// FrequencyData copies the configured bins while playing, zeros otherwise.
func (mp *MockPlayer) FrequencyData(dst []float64) int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	n := min(len(dst), FrequencyBins)
	if PlayerState(mp.state.Load()) != StatePlaying || len(mp.freq) == 0 {
		clear(dst[:n])
		return n
	}

	n = copy(dst, mp.freq)
	return n
}

// Close releases the player.
func (mp *MockPlayer) Close() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.stopTimerLocked()
	mp.current = nil
	mp.state.Store(int32(StateClosed))
	return nil
}

// Test helper methods

// GetState returns the current player state for testing.
func (mp *MockPlayer) GetState() PlayerState {
	return PlayerState(mp.state.Load())
}

// GetVolume returns the current volume for testing.
func (mp *MockPlayer) GetVolume() float64 {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.volume
}

// Current returns the loaded segment, or nil.
func (mp *MockPlayer) Current() *ttypes.Segment {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.current
}

// Played returns the IDs of every segment handed to Play, in order.
func (mp *MockPlayer) Played() []string {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return append([]string(nil), mp.played...)
}

// GetMetrics returns playback metrics for testing.
func (mp *MockPlayer) GetMetrics() MockPlayerMetrics {
	return MockPlayerMetrics{
		PlayCount:   mp.playCount.Load(),
		PauseCount:  mp.pauseCount.Load(),
		ResumeCount: mp.resumeCount.Load(),
		StopCount:   mp.stopCount.Load(),
		FinishCount: mp.finishCount.Load(),
	}
}

// MockPlayerMetrics contains playback metrics for testing.
type MockPlayerMetrics struct {
	PlayCount   int64
	PauseCount  int64
	ResumeCount int64
	StopCount   int64
	FinishCount int64
}

// ErrSimulatedPlayback is a convenience error for FailNext.
var ErrSimulatedPlayback = errors.New("simulated playback error")
