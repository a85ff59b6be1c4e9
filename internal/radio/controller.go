package radio

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/agentradio/radio/internal/metrics"
	"github.com/agentradio/radio/internal/queue"
	"github.com/agentradio/radio/internal/ttypes"
)

const lowWaterMark = queue.LowWaterMark

// Volume defaults
const (
	DefaultVolume = 0.8
	VolumeStep    = 0.05
)

// Sink plays one segment at a time. Implementations report the natural end
// of a segment by sending its ID on Ended; Stop and Play do not report ends.
type Sink interface {
	Play(seg *ttypes.Segment) error
	Pause() error
	Resume() error
	Stop() error
	SetVolume(volume float64) error
	Ended() <-chan string
	FrequencyData(dst []float64) int
	Close() error
}

// SegmentFetcher produces one segment per call.
type SegmentFetcher interface {
	Fetch(ctx context.Context, settings ttypes.Settings) (*ttypes.Segment, error)
}

// Status is a point-in-time view of a station.
type Status struct {
	State      ttypes.State
	QueueDepth int
	Fetching   bool
	Volume     float64
	Muted      bool
	SegmentID  string
	Script     string
	LastError  string
}

type fetchResult struct {
	seg *ttypes.Segment
	err error
}

// Controller drives playback for one session. Every mutation of the queue,
// the sink and the fetch flag happens on the goroutine running Run.
type Controller struct {
	id       string
	queue    *queue.SegmentQueue
	sink     Sink
	fetcher  SegmentFetcher
	settings func() ttypes.Settings
	logger   *log.Logger

	cmds      chan func()
	ticks     chan struct{}
	fetchDone chan fetchResult
	stopped   chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	running   atomic.Bool

	// Loop-owned state
	state      ttypes.State
	fetching   bool
	current    *ttypes.Segment
	volume     float64
	lastVolume float64
	lastErr    string
	ctx        context.Context

	// Published for readers on other goroutines
	status atomic.Pointer[Status]

	subMu  sync.Mutex
	subs   map[int]chan Status
	nextID int
}

// NewController creates a controller. settings is read once per fetch.
func NewController(id string, q *queue.SegmentQueue, sink Sink, f SegmentFetcher, settings func() ttypes.Settings, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	c := &Controller{
		id:         id,
		queue:      q,
		sink:       sink,
		fetcher:    f,
		settings:   settings,
		logger:     logger.WithPrefix("controller"),
		cmds:       make(chan func(), 16),
		ticks:      make(chan struct{}, 1),
		fetchDone:  make(chan fetchResult, 1),
		stopped:    make(chan struct{}),
		closed:     make(chan struct{}),
		state:      ttypes.StateIdle,
		volume:     DefaultVolume,
		lastVolume: DefaultVolume,
		subs:       make(map[int]chan Status),
	}
	c.status.Store(&Status{State: ttypes.StateIdle, Volume: DefaultVolume})
	return c
}

// Run processes events until ctx is cancelled. It stops the sink and
// releases every segment it still owns before returning.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("controller already running")
	}
	defer close(c.stopped)

	c.ctx = ctx
	if err := c.sink.SetVolume(c.volume); err != nil {
		c.logger.Warn("unable to set initial volume", "error", err)
	}
	c.publish()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil

		case fn := <-c.cmds:
			fn()

		case <-c.ticks:
			c.dispatch(EventTick)

		case res := <-c.fetchDone:
			c.handleFetch(res)

		case id := <-c.sink.Ended():
			if c.current == nil || c.current.ID != id {
				c.logger.Debug("ignoring stale end", "id", id)
				continue
			}
			c.dispatch(EventSegmentEnded)
		}
	}
}

// Start begins or resumes playback.
func (c *Controller) Start() error {
	return c.do(func() { c.dispatch(EventStart) })
}

// Pause pauses playback.
func (c *Controller) Pause() error {
	return c.do(func() { c.dispatch(EventPause) })
}

// Toggle pauses while live and starts otherwise.
func (c *Controller) Toggle() error {
	return c.do(func() {
		switch c.state {
		case ttypes.StatePlaying:
			c.dispatch(EventPause)
		case ttypes.StateIdle, ttypes.StatePaused:
			c.dispatch(EventStart)
		}
	})
}

// Tick asks the controller to check replenishment. It never blocks.
func (c *Controller) Tick() {
	select {
	case c.ticks <- struct{}{}:
	default:
	}
}

// SetVolume sets the output volume, clamped to [0,1].
func (c *Controller) SetVolume(v float64) error {
	return c.do(func() { c.applyVolume(v) })
}

// AdjustVolume changes the volume by delta, clamped to [0,1].
func (c *Controller) AdjustVolume(delta float64) error {
	return c.do(func() { c.applyVolume(c.volume + delta) })
}

// ToggleMute switches between silence and the last audible volume.
func (c *Controller) ToggleMute() error {
	return c.do(func() {
		if c.volume > 0 {
			c.applyVolume(0)
			return
		}
		c.applyVolume(c.lastVolume)
	})
}

func (c *Controller) applyVolume(v float64) {
	if math.IsNaN(v) {
		return
	}
	v = math.Max(0, math.Min(1, v))
	// round away float drift from repeated steps
	v = math.Round(v*1000) / 1000

	c.volume = v
	if v > 0 {
		c.lastVolume = v
	}
	if err := c.sink.SetVolume(v); err != nil {
		c.logger.Warn("unable to set volume", "volume", v, "error", err)
	}
	c.publish()
}

// State returns the current playback state without waiting on the loop.
func (c *Controller) State() ttypes.State {
	return c.status.Load().State
}

// Status returns the last published status.
func (c *Controller) Status() Status {
	return *c.status.Load()
}

// Subscribe returns a channel receiving the latest status after every change.
// Slow subscribers only ever see the newest status. Call cancel to stop.
func (c *Controller) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 1)
	ch <- c.Status()

	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
		})
	}
}

// do runs fn on the loop goroutine and waits for it.
func (c *Controller) do(fn func()) error {
	select {
	case <-c.closed:
		return ttypes.ErrSessionClosed
	default:
	}

	done := make(chan struct{})
	select {
	case c.cmds <- func() { fn(); close(done) }:
	case <-c.stopped:
		return ttypes.ErrSessionClosed
	case <-c.closed:
		return ttypes.ErrSessionClosed
	}
	select {
	case <-done:
		return nil
	case <-c.stopped:
		return ttypes.ErrSessionClosed
	case <-c.closed:
		return ttypes.ErrSessionClosed
	}
}

// Close makes every later control return ErrSessionClosed, whether or not
// Run was ever called. A running loop is stopped through its context.
func (c *Controller) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *Controller) snapshot() Snapshot {
	return Snapshot{
		State:      c.state,
		QueueDepth: c.queue.Len(),
		InFlight:   c.fetching,
		Loaded:     c.current != nil,
	}
}

// dispatch feeds an event through the machine and performs the resulting
// actions. Actions that fail raise follow-up events in the same pass.
func (c *Controller) dispatch(ev Event) {
	pending := []Event{ev}
	for len(pending) > 0 {
		ev := pending[0]
		pending = pending[1:]

		snap := c.snapshot()
		next, actions := Transition(snap, ev)
		if next != snap.State {
			c.logger.Debug("state change", "event", ev, "from", snap.State, "to", next)
			c.state = next
		}

		for _, a := range actions {
			if follow, ok := c.perform(a); ok {
				pending = append(pending, follow)
			}
		}
	}
	c.publish()
}

func (c *Controller) perform(a Action) (Event, bool) {
	switch a {
	case ActionFetch:
		c.startFetch()

	case ActionPlayNext:
		if c.current != nil {
			c.releaseCurrent()
		}
		seg, ok := c.queue.Dequeue()
		if !ok {
			return 0, false
		}
		c.current = seg
		if err := c.sink.Play(seg); err != nil {
			c.logger.Warn("sink refused segment", "id", seg.ID, "error", err)
			c.lastErr = err.Error()
			metrics.RecordPlaybackFailure()
			return EventPlaybackFailed, true
		}
		metrics.RecordSegmentPlayed()
		c.logger.Debug("playing segment", "id", seg.ID, "queued", c.queue.Len())

	case ActionResume:
		if err := c.sink.Resume(); err != nil {
			c.logger.Warn("sink could not resume", "error", err)
			c.lastErr = err.Error()
			return EventPlaybackFailed, true
		}

	case ActionPauseSink:
		if err := c.sink.Pause(); err != nil {
			c.logger.Warn("sink could not pause", "error", err)
		}

	case ActionRelease:
		c.releaseCurrent()
	}
	return 0, false
}

func (c *Controller) releaseCurrent() {
	if c.current == nil {
		return
	}
	c.current.Release()
	c.current = nil
}

// startFetch launches one fetch unless one is outstanding. The flag is set
// here and cleared only when the result is handled on the loop.
func (c *Controller) startFetch() {
	if c.fetching {
		return
	}
	c.fetching = true

	ctx := c.ctx
	settings := c.settings()
	go func() {
		seg, err := c.fetcher.Fetch(ctx, settings)
		if ctx.Err() != nil {
			if seg != nil {
				seg.Release()
			}
			return
		}
		select {
		case c.fetchDone <- fetchResult{seg: seg, err: err}:
		case <-ctx.Done():
			if seg != nil {
				seg.Release()
			}
		}
	}()
}

func (c *Controller) handleFetch(res fetchResult) {
	c.fetching = false

	if res.err != nil {
		if errors.Is(res.err, ttypes.ErrFetchInFlight) {
			c.logger.Debug("fetch skipped, another is in flight")
		} else {
			c.logger.Warn("fetch failed", "error", res.err)
			c.lastErr = res.err.Error()
		}
		c.dispatch(EventFetchFailed)
		return
	}

	// Results are kept whatever the state: a fetch started before a pause
	// still lands in the queue.
	if err := c.queue.Enqueue(res.seg); err != nil {
		c.logger.Warn("unable to queue segment", "id", res.seg.ID, "error", err)
		res.seg.Release()
		c.dispatch(EventFetchFailed)
		return
	}
	c.lastErr = ""
	c.dispatch(EventFetchSucceeded)
}

func (c *Controller) publish() {
	st := Status{
		State:      c.state,
		QueueDepth: c.queue.Len(),
		Fetching:   c.fetching,
		Volume:     c.volume,
		Muted:      c.volume == 0,
		LastError:  c.lastErr,
	}
	if c.current != nil {
		st.SegmentID = c.current.ID
		st.Script = c.current.Script
	}
	c.status.Store(&st)

	metrics.SetQueueDepth(c.id, st.QueueDepth)
	metrics.SetPlaybackState(c.id, int(st.State))

	c.subMu.Lock()
	for _, ch := range c.subs {
		select {
		case ch <- st:
		default:
			// drop the stale status, keep the newest
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
	c.subMu.Unlock()
}

func (c *Controller) shutdown() {
	if err := c.sink.Stop(); err != nil {
		c.logger.Warn("unable to stop sink", "error", err)
	}
	c.releaseCurrent()
	// a fetch that finished as the context was cancelled may still be buffered
	select {
	case res := <-c.fetchDone:
		if res.seg != nil {
			res.seg.Release()
		}
	default:
	}
	dropped := c.queue.Clear()
	c.state = ttypes.StateIdle
	c.fetching = false
	c.publish()
	c.logger.Debug("controller stopped", "dropped", dropped)
}
