package station

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/agentradio/radio/internal/radio"
	"github.com/agentradio/radio/internal/ttypes"
)

// fakeControls records commands and publishes status like a session
type fakeControls struct {
	mu        sync.Mutex
	status    radio.Status
	settings  ttypes.Settings
	amplitude float64
	commands  []string
	updates   chan radio.Status
}

func newFakeControls() *fakeControls {
	return &fakeControls{
		status:   radio.Status{State: ttypes.StateIdle, Volume: 0.8},
		settings: ttypes.DefaultSettings(),
		updates:  make(chan radio.Status, 1),
	}
}

func (f *fakeControls) record(cmd string, mutate func(*radio.Status)) error {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	if mutate != nil {
		mutate(&f.status)
	}
	st := f.status
	f.mu.Unlock()

	select {
	case f.updates <- st:
	default:
	}
	return nil
}

func (f *fakeControls) Play() error {
	return f.record("play", func(s *radio.Status) { s.State = ttypes.StateLoading })
}

func (f *fakeControls) Pause() error {
	return f.record("pause", func(s *radio.Status) { s.State = ttypes.StatePaused })
}

func (f *fakeControls) Toggle() error {
	return f.record("toggle", func(s *radio.Status) {
		if s.State == ttypes.StatePlaying {
			s.State = ttypes.StatePaused
		} else {
			s.State = ttypes.StatePlaying
		}
	})
}

func (f *fakeControls) ToggleMute() error {
	return f.record("mute", func(s *radio.Status) { s.Muted = !s.Muted })
}

func (f *fakeControls) SetVolume(v float64) error {
	return f.record("volume", func(s *radio.Status) { s.Volume = v })
}

func (f *fakeControls) Apply(s ttypes.Settings) ttypes.Settings {
	s = s.Normalize()
	f.mu.Lock()
	f.settings = s
	f.mu.Unlock()
	return s
}

func (f *fakeControls) Settings() ttypes.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings
}

func (f *fakeControls) Status() radio.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeControls) Amplitude() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.amplitude
}

func (f *fakeControls) Subscribe() (<-chan radio.Status, func()) {
	return f.updates, func() {}
}

func (f *fakeControls) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

type testStation struct {
	controls *fakeControls
	station  *Station
	server   *httptest.Server
	clock    clockwork.FakeClock
}

func newTestStation(t *testing.T) *testStation {
	t.Helper()
	ts := &testStation{
		controls: newFakeControls(),
		clock:    clockwork.NewFakeClock(),
	}
	ts.station = New(ts.controls, Config{Clock: ts.clock})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ts.station.Run(ctx)
	}()

	mux := http.NewServeMux()
	ts.station.Register(mux)
	ts.server = httptest.NewServer(mux)

	t.Cleanup(func() {
		ts.server.Close()
		cancel()
		<-done
	})
	return ts
}

func (ts *testStation) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.server.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testStation) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.server.URL, "http") + "/station/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func TestStationControlEndpoints(t *testing.T) {
	ts := newTestStation(t)

	tests := []struct {
		path  string
		body  string
		check func(f Frame) bool
	}{
		{"/station/toggle", "", func(f Frame) bool { return f.State == "playing" && f.Label == "Live" }},
		{"/station/mute", "", func(f Frame) bool { return f.Muted }},
		{"/station/volume", `{"volume":0.35}`, func(f Frame) bool { return f.Volume == 0.35 }},
		{"/station/pause", "", func(f Frame) bool { return f.State == "paused" && f.Label == "Paused" }},
		{"/station/play", "", func(f Frame) bool { return f.State == "loading" && f.Label == "Loading..." }},
	}

	for _, tt := range tests {
		resp := ts.post(t, tt.path, tt.body)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d", tt.path, resp.StatusCode)
			continue
		}
		var f Frame
		if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
			t.Fatalf("%s decode: %v", tt.path, err)
		}
		if !tt.check(f) {
			t.Errorf("%s frame = %+v", tt.path, f)
		}
	}

	want := []string{"toggle", "mute", "volume", "pause", "play"}
	got := ts.controls.Commands()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("commands = %v, want %v", got, want)
	}
}

func TestStationVolumeRequiresValue(t *testing.T) {
	ts := newTestStation(t)
	for _, body := range []string{`{}`, `nope`} {
		if resp := ts.post(t, "/station/volume", body); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q status = %d, want 400", body, resp.StatusCode)
		}
	}
	if len(ts.controls.Commands()) != 0 {
		t.Error("invalid volume reached the session")
	}
}

func TestStationSettings(t *testing.T) {
	ts := newTestStation(t)

	resp, err := http.Get(ts.server.URL + "/station/settings")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got SettingsBody
	json.NewDecoder(resp.Body).Decode(&got)
	if got.VoiceID != ttypes.DefaultVoiceID || got.Instructions != ttypes.DefaultInstructions {
		t.Errorf("GET settings = %+v", got)
	}

	resp2 := ts.post(t, "/station/settings", `{"instructions":" Morning show ","voiceId":""}`)
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("POST settings status = %d", resp2.StatusCode)
	}
	json.NewDecoder(resp2.Body).Decode(&got)
	if got.Instructions != "Morning show" || got.VoiceID != ttypes.DefaultVoiceID {
		t.Errorf("applied settings = %+v", got)
	}
	if s := ts.controls.Settings(); s.Instructions != "Morning show" {
		t.Errorf("session settings = %+v", s)
	}
}

func TestStationFeed(t *testing.T) {
	ts := newTestStation(t)
	conn := ts.dial(t)

	first := readFrame(t, conn)
	if first.State != "idle" || first.Label != "Ready" || first.Volume != 0.8 {
		t.Errorf("initial frame = %+v", first)
	}

	ts.post(t, "/station/toggle", "")
	for {
		f := readFrame(t, conn)
		if f.State == "playing" {
			break
		}
	}

	ts.controls.mu.Lock()
	ts.controls.amplitude = 0.4567
	ts.controls.status.SegmentID = "abc"
	ts.controls.status.Script = "[softly] hello"
	ts.controls.mu.Unlock()

	ts.clock.Advance(DefaultFrameInterval)
	for {
		f := readFrame(t, conn)
		if f.Amplitude == 0.457 {
			if f.Segment == nil || f.Segment.Handle != "segment:abc" || f.Segment.Script != "[softly] hello" {
				t.Errorf("segment = %+v", f.Segment)
			}
			break
		}
		ts.clock.Advance(DefaultFrameInterval)
	}
}

func TestStationFeedCommands(t *testing.T) {
	ts := newTestStation(t)
	conn := ts.dial(t)
	readFrame(t, conn)

	if err := conn.WriteJSON(Command{Type: "volume", Volume: 0.25}); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(Command{Type: "bogus"}); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(Command{Type: "mute"}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(ts.controls.Commands()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("commands = %v", ts.controls.Commands())
		}
		time.Sleep(time.Millisecond)
	}
	if got := ts.controls.Status(); got.Volume != 0.25 || !got.Muted {
		t.Errorf("status = %+v", got)
	}
}

func TestHubCountsClients(t *testing.T) {
	ts := newTestStation(t)
	hub := ts.station.Hub()
	ctx := context.Background()

	a := ts.dial(t)
	readFrame(t, a)
	b := ts.dial(t)
	readFrame(t, b)

	if got := hub.Clients(ctx); got != 2 {
		t.Errorf("Clients() = %d, want 2", got)
	}

	a.Close()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients(ctx) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("Clients() = %d after disconnect, want 1", hub.Clients(ctx))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewFrame(t *testing.T) {
	f := NewFrame(radio.Status{State: ttypes.StatePaused, Volume: 0, Muted: true, QueueDepth: 2}, 1.23456)
	if f.State != "paused" || f.Label != "Paused" || !f.Muted || f.QueueDepth != 2 {
		t.Errorf("NewFrame() = %+v", f)
	}
	if f.Amplitude != 1.235 {
		t.Errorf("Amplitude = %v", f.Amplitude)
	}
	if f.Segment != nil {
		t.Error("frame without segment should omit it")
	}
}
