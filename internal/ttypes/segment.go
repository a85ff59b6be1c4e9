package ttypes

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ContentTypeMPEG is the content type produced by the speech collaborator.
const ContentTypeMPEG = "audio/mpeg"

// Segment is one unit of generated, synthesized audio ready for playback.
//
// A segment is created by the fetcher, owned by the queue until dequeued and
// then by the sink until playback ends. Release drops the audio payload so
// that a finished segment cannot be played again.
type Segment struct {
	// ID uniquely identifies the segment
	ID string

	// Script is the spoken text the audio was synthesized from
	Script string

	// VoiceID is the voice that spoke the script
	VoiceID string

	// ContentType of the audio payload
	ContentType string

	// CreatedAt is when the fetch completed
	CreatedAt time.Time

	mu       sync.Mutex
	audio    []byte
	size     int
	released bool
}

// NewSegment wraps synthesized audio in a fresh segment with a new ID.
func NewSegment(script, voiceID string, audio []byte) *Segment {
	return &Segment{
		ID:          uuid.NewString(),
		Script:      script,
		VoiceID:     voiceID,
		ContentType: ContentTypeMPEG,
		CreatedAt:   time.Now(),
		audio:       audio,
		size:        len(audio),
	}
}

// Handle returns the playable resource handle of the segment.
func (s *Segment) Handle() string {
	return HandleFor(s.ID)
}

// HandleFor returns the handle of the segment with the given ID.
func HandleFor(id string) string {
	return "segment:" + id
}

// Size returns the size of the audio payload in bytes, even after release.
func (s *Segment) Size() int {
	return s.size
}

// Audio returns the audio payload, or nil once released.
func (s *Segment) Audio() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audio
}

// Reader returns a reader over the audio payload.
// It returns an empty reader once the segment has been released.
func (s *Segment) Reader() io.ReadSeeker {
	return bytes.NewReader(s.Audio())
}

// Release frees the audio payload. It is safe to call more than once.
func (s *Segment) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = nil
	s.released = true
}

// Released reports whether the segment's resource has been released.
func (s *Segment) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}
