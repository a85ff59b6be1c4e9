package radio

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentradio/radio/internal/audio"
	"github.com/agentradio/radio/internal/queue"
	"github.com/agentradio/radio/internal/ttypes"
)

type fetchReply struct {
	seg *ttypes.Segment
	err error
}

// stubFetcher blocks every Fetch until the test replies
type stubFetcher struct {
	calls   atomic.Int32
	last    atomic.Pointer[ttypes.Settings]
	replies chan fetchReply
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{replies: make(chan fetchReply)}
}

func (f *stubFetcher) Fetch(ctx context.Context, settings ttypes.Settings) (*ttypes.Segment, error) {
	f.calls.Add(1)
	f.last.Store(&settings)
	select {
	case r := <-f.replies:
		return r.seg, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *stubFetcher) reply(t *testing.T, seg *ttypes.Segment, err error) {
	t.Helper()
	select {
	case f.replies <- fetchReply{seg: seg, err: err}:
	case <-time.After(2 * time.Second):
		t.Fatal("no fetch waiting for a reply")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newSeg(script string) *ttypes.Segment {
	return ttypes.NewSegment(script, ttypes.DefaultVoiceID, []byte("ID3"+script))
}

type harness struct {
	c      *Controller
	q      *queue.SegmentQueue
	sink   *audio.MockPlayer
	f      *stubFetcher
	cancel context.CancelFunc
	done   chan struct{}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		q:    queue.NewSegmentQueue(),
		sink: audio.DefaultMockPlayer(),
		f:    newStubFetcher(),
		done: make(chan struct{}),
	}
	h.c = NewController("test-"+t.Name(), h.q, h.sink, h.f, ttypes.DefaultSettings, nil)

	var ctx context.Context
	ctx, h.cancel = context.WithCancel(context.Background())
	go func() {
		defer close(h.done)
		h.c.Run(ctx)
	}()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.cancel()
	<-h.done
}

// tick runs a replenishment tick synchronously on the loop
func (h *harness) tick(t *testing.T) {
	t.Helper()
	if err := h.c.do(func() { h.c.dispatch(EventTick) }); err != nil {
		t.Fatalf("tick: %v", err)
	}
}

// settle waits until the loop has handled every outstanding fetch result
func (h *harness) settle(t *testing.T, depth int) {
	t.Helper()
	waitFor(t, "fetch result", func() bool {
		st := h.c.Status()
		return !st.Fetching && st.QueueDepth == depth
	})
}

func (h *harness) playing(t *testing.T, seg *ttypes.Segment) {
	t.Helper()
	waitFor(t, "segment "+seg.Script+" playing", func() bool {
		cur := h.sink.Current()
		return cur != nil && cur.ID == seg.ID && h.c.State() == ttypes.StatePlaying
	})
}

// live starts the station and plays first
func (h *harness) live(t *testing.T, first *ttypes.Segment) {
	t.Helper()
	if err := h.c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	h.f.reply(t, first, nil)
	h.playing(t, first)
}

func TestControllerStartLoadsThenPlays(t *testing.T) {
	h := newHarness(t)

	if got := h.c.State(); got != ttypes.StateIdle {
		t.Fatalf("initial state = %v, want idle", got)
	}

	if err := h.c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := h.c.State(); got != ttypes.StateLoading {
		t.Errorf("state after Start = %v, want loading", got)
	}
	if !h.c.Status().Fetching {
		t.Error("expected a fetch in flight after Start")
	}

	seg := newSeg("hello")
	h.f.reply(t, seg, nil)
	h.playing(t, seg)

	if got := h.q.Len(); got != 0 {
		t.Errorf("queue depth = %d, want 0", got)
	}
	st := h.c.Status()
	if st.SegmentID != seg.ID || st.Script != "hello" {
		t.Errorf("status segment = %q %q", st.SegmentID, st.Script)
	}
	if got := h.f.calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
}

func TestControllerAdvancesWithoutGap(t *testing.T) {
	h := newHarness(t)
	first, second := newSeg("one"), newSeg("two")
	h.live(t, first)

	h.tick(t)
	h.f.reply(t, second, nil)
	h.settle(t, 1)

	if !h.sink.Finish() {
		t.Fatal("Finish() = false")
	}
	h.playing(t, second)

	if !first.Released() {
		t.Error("finished segment was not released")
	}
	if second.Released() {
		t.Error("playing segment was released")
	}
	played := h.sink.Played()
	if len(played) != 2 || played[0] != first.ID || played[1] != second.ID {
		t.Errorf("played = %v", played)
	}
}

func TestControllerEndWithEmptyQueueFetches(t *testing.T) {
	h := newHarness(t)
	first := newSeg("one")
	h.live(t, first)

	h.sink.Finish()
	waitFor(t, "refill fetch", func() bool { return h.f.calls.Load() == 2 })

	if got := h.c.State(); got != ttypes.StatePlaying {
		t.Errorf("state = %v, want playing", got)
	}

	next := newSeg("two")
	h.f.reply(t, next, nil)
	h.playing(t, next)
}

func TestControllerPauseResumeKeepsPosition(t *testing.T) {
	h := newHarness(t)
	seg := newSeg("one")
	h.live(t, seg)

	if err := h.c.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if got := h.c.State(); got != ttypes.StatePaused {
		t.Errorf("state = %v, want paused", got)
	}
	if got := h.sink.GetState(); got != audio.StatePaused {
		t.Errorf("sink state = %v, want paused", got)
	}

	if err := h.c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := h.c.State(); got != ttypes.StatePlaying {
		t.Errorf("state = %v, want playing", got)
	}

	m := h.sink.GetMetrics()
	if m.ResumeCount != 1 || m.PlayCount != 1 {
		t.Errorf("sink metrics = %+v, want one play and one resume", m)
	}
	if got := h.f.calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, resume must not fetch", got)
	}
	if seg.Released() {
		t.Error("paused segment was released")
	}
}

func TestControllerToggle(t *testing.T) {
	h := newHarness(t)
	h.live(t, newSeg("one"))

	if err := h.c.Toggle(); err != nil {
		t.Fatal(err)
	}
	if got := h.c.State(); got != ttypes.StatePaused {
		t.Errorf("state after first toggle = %v, want paused", got)
	}
	if err := h.c.Toggle(); err != nil {
		t.Fatal(err)
	}
	if got := h.c.State(); got != ttypes.StatePlaying {
		t.Errorf("state after second toggle = %v, want playing", got)
	}
}

func TestControllerFetchDuringPauseIsKept(t *testing.T) {
	h := newHarness(t)
	first := newSeg("one")
	h.live(t, first)

	h.tick(t)
	if err := h.c.Pause(); err != nil {
		t.Fatal(err)
	}

	late := newSeg("late")
	h.f.reply(t, late, nil)
	h.settle(t, 1)

	if got := h.c.State(); got != ttypes.StatePaused {
		t.Errorf("state = %v, want paused", got)
	}
	if late.Released() {
		t.Error("segment fetched during pause was released")
	}

	if err := h.c.Start(); err != nil {
		t.Fatal(err)
	}
	if cur := h.sink.Current(); cur == nil || cur.ID != first.ID {
		t.Error("resume did not continue the paused segment")
	}
	if got := h.q.Len(); got != 1 {
		t.Errorf("queue depth = %d, want 1", got)
	}
}

func TestControllerFailedFirstFetchRetriesOnTick(t *testing.T) {
	h := newHarness(t)
	if err := h.c.Start(); err != nil {
		t.Fatal(err)
	}

	h.f.reply(t, nil, errors.New("upstream down"))
	waitFor(t, "failed fetch", func() bool {
		st := h.c.Status()
		return !st.Fetching && st.State == ttypes.StatePlaying
	})

	st := h.c.Status()
	if st.LastError == "" {
		t.Error("LastError not recorded")
	}
	if h.sink.Current() != nil {
		t.Error("sink should be silent after a failed fetch")
	}

	h.tick(t)
	waitFor(t, "retried fetch", func() bool { return h.f.calls.Load() == 2 })

	seg := newSeg("recovered")
	h.f.reply(t, seg, nil)
	h.playing(t, seg)
	if got := h.c.Status().LastError; got != "" {
		t.Errorf("LastError = %q after recovery", got)
	}
}

func TestControllerTickRespectsStateAndDepth(t *testing.T) {
	h := newHarness(t)

	h.tick(t)
	if got := h.f.calls.Load(); got != 0 {
		t.Fatalf("idle tick fetched %d times", got)
	}

	h.live(t, newSeg("one"))

	h.tick(t)
	h.f.reply(t, newSeg("two"), nil)
	h.settle(t, 1)

	h.tick(t)
	h.f.reply(t, newSeg("three"), nil)
	h.settle(t, 2)

	h.tick(t)
	if got := h.f.calls.Load(); got != 3 {
		t.Errorf("fetch calls = %d, want 3 (no fetch at low water mark)", got)
	}

	if err := h.c.Pause(); err != nil {
		t.Fatal(err)
	}
	h.sink.Finish() // no-op while paused
	h.q.Dequeue()
	h.q.Dequeue()
	h.tick(t)
	if got := h.f.calls.Load(); got != 3 {
		t.Errorf("paused tick fetched, calls = %d", got)
	}
}

func TestControllerSingleFetchInFlight(t *testing.T) {
	h := newHarness(t)
	h.live(t, newSeg("one"))

	for range 5 {
		h.tick(t)
	}
	h.c.Tick()
	h.c.Tick()
	waitFor(t, "queued ticks", func() bool { return len(h.c.ticks) == 0 })
	h.tick(t)

	waitFor(t, "second fetch", func() bool { return h.f.calls.Load() == 2 })
	h.f.reply(t, newSeg("two"), nil)
	h.settle(t, 1)
	if got := h.f.calls.Load(); got != 2 {
		t.Errorf("fetch calls = %d, want 2", got)
	}
}

func TestControllerSkipsSegmentSinkRefuses(t *testing.T) {
	h := newHarness(t)
	first, bad, good := newSeg("one"), newSeg("bad"), newSeg("good")
	h.live(t, first)

	h.tick(t)
	h.f.reply(t, bad, nil)
	h.settle(t, 1)
	h.tick(t)
	h.f.reply(t, good, nil)
	h.settle(t, 2)

	h.sink.FailNext(audio.ErrSimulatedPlayback)
	h.sink.Finish()
	h.playing(t, good)

	if !bad.Released() {
		t.Error("refused segment was not released")
	}
	if got := h.c.Status().LastError; got == "" {
		t.Error("LastError not recorded for refused segment")
	}
}

func TestControllerVolume(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		fn   func() error
		want float64
	}{
		{"clamps high", func() error { return h.c.SetVolume(1.5) }, 1},
		{"clamps low", func() error { return h.c.SetVolume(-0.2) }, 0},
		{"sets", func() error { return h.c.SetVolume(0.5) }, 0.5},
		{"step up", func() error { return h.c.AdjustVolume(VolumeStep) }, 0.55},
		{"step down", func() error { return h.c.AdjustVolume(-2 * VolumeStep) }, 0.45},
		{"mute", h.c.ToggleMute, 0},
		{"unmute restores", h.c.ToggleMute, 0.45},
	}

	for _, tt := range tests {
		if err := tt.fn(); err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got := h.c.Status().Volume; got != tt.want {
			t.Errorf("%s: volume = %v, want %v", tt.name, got, tt.want)
		}
		if got := h.sink.GetVolume(); got != tt.want {
			t.Errorf("%s: sink volume = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestControllerMuteDefaultsToLastAudible(t *testing.T) {
	h := newHarness(t)

	if err := h.c.ToggleMute(); err != nil {
		t.Fatal(err)
	}
	st := h.c.Status()
	if st.Volume != 0 || !st.Muted {
		t.Errorf("after mute: %+v", st)
	}

	if err := h.c.ToggleMute(); err != nil {
		t.Fatal(err)
	}
	if got := h.c.Status().Volume; got != DefaultVolume {
		t.Errorf("unmuted volume = %v, want %v", got, DefaultVolume)
	}

	// Muting through SetVolume keeps the previous level for unmute
	h.c.SetVolume(0.3)
	h.c.SetVolume(0)
	h.c.ToggleMute()
	if got := h.c.Status().Volume; got != 0.3 {
		t.Errorf("unmuted volume = %v, want 0.3", got)
	}
}

func TestControllerSubscribe(t *testing.T) {
	h := newHarness(t)
	ch, cancel := h.c.Subscribe()
	defer cancel()

	select {
	case st := <-ch:
		if st.State != ttypes.StateIdle {
			t.Errorf("initial status state = %v", st.State)
		}
	case <-time.After(time.Second):
		t.Fatal("no initial status")
	}

	if err := h.c.Start(); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-ch:
			if st.State == ttypes.StateLoading {
				return
			}
		case <-deadline:
			t.Fatal("never saw loading status")
		}
	}
}

func TestControllerShutdownReleasesEverything(t *testing.T) {
	h := newHarness(t)
	first, queued := newSeg("one"), newSeg("two")
	h.live(t, first)
	h.tick(t)
	h.f.reply(t, queued, nil)
	h.settle(t, 1)

	h.stop()

	if !first.Released() || !queued.Released() {
		t.Error("segments not released on shutdown")
	}
	if got := h.c.State(); got != ttypes.StateIdle {
		t.Errorf("state after shutdown = %v, want idle", got)
	}
	if h.sink.Current() != nil {
		t.Error("sink still loaded after shutdown")
	}
	if err := h.c.Start(); !errors.Is(err, ttypes.ErrSessionClosed) {
		t.Errorf("Start() after shutdown error = %v, want ErrSessionClosed", err)
	}
}

func TestControllerRunTwice(t *testing.T) {
	h := newHarness(t)
	// a round trip through the loop means the first Run owns the controller
	if err := h.c.SetVolume(DefaultVolume); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.c.Run(ctx); err == nil {
		t.Error("second Run() should fail")
	}
}

func TestControllerClosedWithoutRun(t *testing.T) {
	c := NewController("closed", queue.NewSegmentQueue(), audio.DefaultMockPlayer(), newStubFetcher(), ttypes.DefaultSettings, nil)
	c.Close()

	done := make(chan error, 1)
	go func() { done <- c.Start() }()
	select {
	case err := <-done:
		if !errors.Is(err, ttypes.ErrSessionClosed) {
			t.Errorf("Start() error = %v, want ErrSessionClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() blocked on a closed controller")
	}
}

// lateFetcher hands back its segment even after the context is cancelled
type lateFetcher struct {
	started chan struct{}
	release chan struct{}
	seg     *ttypes.Segment
}

func (f *lateFetcher) Fetch(context.Context, ttypes.Settings) (*ttypes.Segment, error) {
	close(f.started)
	<-f.release
	return f.seg, nil
}

func TestControllerReleasesFetchFinishedAfterShutdown(t *testing.T) {
	f := &lateFetcher{
		started: make(chan struct{}),
		release: make(chan struct{}),
		seg:     newSeg("late"),
	}
	c := NewController("late", queue.NewSegmentQueue(), audio.DefaultMockPlayer(), f, ttypes.DefaultSettings, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()

	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-f.started:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never started")
	}

	cancel()
	<-done
	close(f.release)

	waitFor(t, "late segment released", f.seg.Released)
}
