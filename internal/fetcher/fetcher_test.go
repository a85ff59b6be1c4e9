package fetcher

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/agentradio/radio/internal/ttypes"
)

// fakeScript is a ScriptGenerator that records its calls
type fakeScript struct {
	calls  atomic.Int32
	text   string
	err    error
	gate   chan struct{} // when non-nil, Generate blocks until closed
	inputs []string
	mu     sync.Mutex
}

func (f *fakeScript) Generate(ctx context.Context, instructions string) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.inputs = append(f.inputs, instructions)
	f.mu.Unlock()
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

// fakeSpeech is a SpeechSynthesizer that records its calls
type fakeSpeech struct {
	calls atomic.Int32
	audio []byte
	err   error
	voice string
}

func (f *fakeSpeech) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	f.calls.Add(1)
	f.voice = voiceID
	return f.audio, f.err
}

func TestFetcher_Success(t *testing.T) {
	script := &fakeScript{text: "[softly] Rain on the window..."}
	speech := &fakeSpeech{audio: []byte("mp3-bytes")}
	f := New(script, speech)

	seg, err := f.Fetch(context.Background(), ttypes.Settings{Instructions: "talk about rain"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if seg.Script != "[softly] Rain on the window..." {
		t.Errorf("Unexpected script %q", seg.Script)
	}
	if string(seg.Audio()) != "mp3-bytes" {
		t.Errorf("Unexpected audio %q", seg.Audio())
	}
	if script.inputs[0] != "talk about rain" {
		t.Errorf("Instructions not passed through: %q", script.inputs[0])
	}
	if speech.voice != ttypes.DefaultVoiceID {
		t.Errorf("Expected default voice, got %q", speech.voice)
	}
	if f.InFlight() {
		t.Error("In-flight flag should be cleared after success")
	}
}

func TestFetcher_VoicePassthrough(t *testing.T) {
	speech := &fakeSpeech{audio: []byte{1}}
	f := New(&fakeScript{text: "hi"}, speech)

	if _, err := f.Fetch(context.Background(), ttypes.Settings{Instructions: "x", VoiceID: "custom-voice"}); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if speech.voice != "custom-voice" {
		t.Errorf("Expected custom voice, got %q", speech.voice)
	}
}

func TestFetcher_EmptyInstructions(t *testing.T) {
	script := &fakeScript{text: "unused"}
	speech := &fakeSpeech{audio: []byte{1}}
	f := New(script, speech)

	for _, instructions := range []string{"", "   \n\t"} {
		_, err := f.Fetch(context.Background(), ttypes.Settings{Instructions: instructions})
		if !ttypes.IsKind(err, ttypes.KindValidation) {
			t.Errorf("Expected validation error for %q, got %v", instructions, err)
		}
		if !errors.Is(err, ttypes.ErrMissingInstructions) {
			t.Errorf("Expected ErrMissingInstructions, got %v", err)
		}
	}

	if script.calls.Load() != 0 || speech.calls.Load() != 0 {
		t.Errorf("No collaborator should be called, got script=%d speech=%d",
			script.calls.Load(), speech.calls.Load())
	}
	if f.InFlight() {
		t.Error("In-flight flag should be cleared after validation failure")
	}
}

func TestFetcher_EmptyScript(t *testing.T) {
	speech := &fakeSpeech{audio: []byte{1}}
	f := New(&fakeScript{text: "  "}, speech)

	_, err := f.Fetch(context.Background(), ttypes.Settings{Instructions: "x"})
	if !ttypes.IsKind(err, ttypes.KindValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
	if speech.calls.Load() != 0 {
		t.Error("Speech must not be requested for empty text")
	}
}

func TestFetcher_UpstreamFailures(t *testing.T) {
	tests := []struct {
		name   string
		script *fakeScript
		speech *fakeSpeech
		step   ttypes.Step
	}{
		{
			name:   "script fails",
			script: &fakeScript{err: errors.New("status 500")},
			speech: &fakeSpeech{audio: []byte{1}},
			step:   ttypes.StepScript,
		},
		{
			name:   "speech fails",
			script: &fakeScript{text: "hello"},
			speech: &fakeSpeech{err: errors.New("status 500")},
			step:   ttypes.StepSpeech,
		},
		{
			name:   "speech returns no audio",
			script: &fakeScript{text: "hello"},
			speech: &fakeSpeech{},
			step:   ttypes.StepSpeech,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.script, tt.speech)

			seg, err := f.Fetch(context.Background(), ttypes.Settings{Instructions: "talk about rain"})
			if seg != nil {
				t.Error("No segment expected on failure")
			}
			if !ttypes.IsKind(err, ttypes.KindUpstream) {
				t.Fatalf("Expected upstream error, got %v", err)
			}

			var re *ttypes.Error
			errors.As(err, &re)
			if re.Step != tt.step {
				t.Errorf("Expected step %s, got %s", tt.step, re.Step)
			}
			if f.InFlight() {
				t.Error("In-flight flag should be cleared after failure")
			}
			if f.Failures() != 1 {
				t.Errorf("Expected 1 failure, got %d", f.Failures())
			}
		})
	}
}

func TestFetcher_KeepsCollaboratorKind(t *testing.T) {
	cfgErr := ttypes.NewConfigurationError("ELEVENLABS_API_KEY not configured")
	f := New(&fakeScript{text: "hello"}, &fakeSpeech{err: cfgErr})

	_, err := f.Fetch(context.Background(), ttypes.Settings{Instructions: "x"})
	if !ttypes.IsKind(err, ttypes.KindConfiguration) {
		t.Errorf("Expected configuration kind to survive, got %v", err)
	}
}

func TestFetcher_OverlappingCalls(t *testing.T) {
	script := &fakeScript{text: "hello", gate: make(chan struct{})}
	speech := &fakeSpeech{audio: []byte{1}}
	f := New(script, speech)

	done := make(chan error, 1)
	go func() {
		_, err := f.Fetch(context.Background(), ttypes.Settings{Instructions: "x"})
		done <- err
	}()

	// Wait until the first fetch is parked inside the script collaborator
	for script.calls.Load() == 0 {
		runtime.Gosched()
	}

	_, err := f.Fetch(context.Background(), ttypes.Settings{Instructions: "x"})
	if !errors.Is(err, ttypes.ErrFetchInFlight) {
		t.Errorf("Expected ErrFetchInFlight, got %v", err)
	}

	close(script.gate)
	if err := <-done; err != nil {
		t.Fatalf("First fetch failed: %v", err)
	}

	if script.calls.Load() != 1 || speech.calls.Load() != 1 {
		t.Errorf("Expected exactly one pair of calls, got script=%d speech=%d",
			script.calls.Load(), speech.calls.Load())
	}
	if f.Attempts() != 1 {
		t.Errorf("Rejected call should not count as an attempt, got %d", f.Attempts())
	}

	// Flag is released, a new fetch proceeds
	if _, err := f.Fetch(context.Background(), ttypes.Settings{Instructions: "x"}); err != nil {
		t.Errorf("Fetch after completion failed: %v", err)
	}
}

func TestFetcher_ContextCancelled(t *testing.T) {
	script := &fakeScript{text: "hello", gate: make(chan struct{})}
	f := New(script, &fakeSpeech{audio: []byte{1}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, ttypes.Settings{Instructions: "x"})
	if !ttypes.IsKind(err, ttypes.KindUpstream) {
		t.Errorf("Expected upstream error, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled cause, got %v", err)
	}
	if f.InFlight() {
		t.Error("In-flight flag should be cleared")
	}
}
