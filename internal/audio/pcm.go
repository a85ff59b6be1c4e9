package audio

import (
	"encoding/binary"
	"io"
	"sync/atomic"

	"github.com/gopxl/beep/v2"
)

// bytesPerFrame is one stereo frame of signed 16-bit little endian samples.
const bytesPerFrame = 4

// pcmReader adapts a stereo beep.Streamer to the byte stream oto consumes.
type pcmReader struct {
	s    beep.Streamer
	buf  [][2]float64
	done atomic.Bool
	err  atomic.Value // error
}

func newPCMReader(s beep.Streamer, frames int) *pcmReader {
	return &pcmReader{
		s:   s,
		buf: make([][2]float64, frames),
	}
}

// Read fills p with whole frames.
func (r *pcmReader) Read(p []byte) (int, error) {
	if r.done.Load() {
		return 0, io.EOF
	}
	if len(p) < bytesPerFrame {
		return 0, io.ErrShortBuffer
	}

	frames := len(p) / bytesPerFrame
	if frames > len(r.buf) {
		frames = len(r.buf)
	}

	n, ok := r.s.Stream(r.buf[:frames])
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(p[i*bytesPerFrame:], uint16(toInt16(r.buf[i][0])))
		binary.LittleEndian.PutUint16(p[i*bytesPerFrame+2:], uint16(toInt16(r.buf[i][1])))
	}

	if !ok {
		if err := r.s.Err(); err != nil {
			r.err.Store(err)
		}
		r.done.Store(true)
		if n == 0 {
			return 0, io.EOF
		}
	}

	return n * bytesPerFrame, nil
}

// Drained reports whether the decoder has produced its last frame.
func (r *pcmReader) Drained() bool {
	return r.done.Load()
}

// Err returns the decoder error that ended the stream, if any.
func (r *pcmReader) Err() error {
	if err, ok := r.err.Load().(error); ok {
		return err
	}
	return nil
}

func toInt16(v float64) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(v * 32767)
}
