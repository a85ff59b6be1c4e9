// Package fetcher produces playable segments: one script-generation request
// followed by one speech-synthesis request per call.
package fetcher

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/agentradio/radio/internal/metrics"
	"github.com/agentradio/radio/internal/ttypes"
)

// ScriptGenerator turns station instructions into the text of one segment.
type ScriptGenerator interface {
	Generate(ctx context.Context, instructions string) (string, error)
}

// SpeechSynthesizer turns text into encoded audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// Fetcher runs the two-step fetch. At most one fetch is outstanding at a
// time: overlapping calls return ttypes.ErrFetchInFlight without side effects.
type Fetcher struct {
	script ScriptGenerator
	speech SpeechSynthesizer
	logger *log.Logger

	inFlight atomic.Bool
	attempts atomic.Int64
	failures atomic.Int64
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the logger used for fetch attempts.
func WithLogger(l *log.Logger) Option {
	return func(f *Fetcher) {
		f.logger = l
	}
}

// New creates a fetcher over the two collaborators.
func New(script ScriptGenerator, speech SpeechSynthesizer, opts ...Option) *Fetcher {
	f := &Fetcher{
		script: script,
		speech: speech,
		logger: log.Default().WithPrefix("fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// InFlight reports whether a fetch is outstanding.
func (f *Fetcher) InFlight() bool {
	return f.inFlight.Load()
}

// Attempts returns the number of fetches that reached validation.
func (f *Fetcher) Attempts() int64 {
	return f.attempts.Load()
}

// Failures returns the number of fetches that ended in an error.
func (f *Fetcher) Failures() int64 {
	return f.failures.Load()
}

// Fetch generates a script from the settings and synthesizes it.
//
// Errors are *ttypes.Error values of kind Validation or Upstream; callers
// treat them as a failed fetch, never as fatal. There is no retry.
func (f *Fetcher) Fetch(ctx context.Context, settings ttypes.Settings) (*ttypes.Segment, error) {
	if !f.inFlight.CompareAndSwap(false, true) {
		metrics.RecordFetch("busy", 0)
		return nil, ttypes.ErrFetchInFlight
	}
	defer f.inFlight.Store(false)

	f.attempts.Add(1)
	start := time.Now()

	seg, err := f.fetch(ctx, settings.Normalize())
	elapsed := time.Since(start)

	if err != nil {
		f.failures.Add(1)
		metrics.RecordFetch(outcome(err), elapsed)
		f.logger.Warn("segment fetch failed", "error", err, "duration", elapsed)
		return nil, err
	}

	metrics.RecordFetch("success", elapsed)
	metrics.RecordAudioBytes("in", seg.Size())
	f.logger.Debug("segment fetched",
		"id", seg.ID,
		"scriptLength", len(seg.Script),
		"audioBytes", seg.Size(),
		"duration", elapsed)

	return seg, nil
}

func (f *Fetcher) fetch(ctx context.Context, settings ttypes.Settings) (*ttypes.Segment, error) {
	if settings.Instructions == "" {
		return nil, ttypes.NewValidationError(ttypes.StepScript, ttypes.ErrMissingInstructions)
	}

	start := time.Now()
	text, err := f.script.Generate(ctx, settings.Instructions)
	metrics.RecordUpstream(string(ttypes.StepScript), err == nil, time.Since(start))
	if err != nil {
		return nil, upstream(ttypes.StepScript, "script generation failed", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ttypes.NewValidationError(ttypes.StepSpeech, ttypes.ErrMissingText)
	}

	start = time.Now()
	audio, err := f.speech.Synthesize(ctx, text, settings.VoiceID)
	metrics.RecordUpstream(string(ttypes.StepSpeech), err == nil, time.Since(start))
	if err != nil {
		return nil, upstream(ttypes.StepSpeech, "speech synthesis failed", err)
	}
	if len(audio) == 0 {
		return nil, ttypes.NewUpstreamError(ttypes.StepSpeech, "speech synthesis failed", ttypes.ErrEmptyAudio)
	}

	return ttypes.NewSegment(text, settings.VoiceID, audio), nil
}

// upstream tags a collaborator error with its step. Errors that already
// carry a kind keep it, so a collaborator can still report Validation.
func upstream(step ttypes.Step, message string, err error) error {
	var re *ttypes.Error
	if errors.As(err, &re) {
		if re.Step == "" {
			re.Step = step
		}
		return re
	}
	return ttypes.NewUpstreamError(step, message, err)
}

func outcome(err error) string {
	switch ttypes.KindOf(err) {
	case ttypes.KindValidation:
		return "validation"
	case ttypes.KindConfiguration:
		return "configuration"
	default:
		return "upstream"
	}
}
