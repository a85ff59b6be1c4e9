package audio

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// Analyser defaults, matching a browser AnalyserNode with fftSize 256.
const (
	FFTSize               = 256
	FrequencyBins         = FFTSize / 2
	MinDecibels           = -100.0
	MaxDecibels           = -30.0
	SmoothingTimeConstant = 0.8
)

// Analyser turns a window of time-domain samples into smoothed,
// normalized frequency magnitudes in [0,1].
type Analyser struct {
	mu        sync.Mutex
	fft       *fourier.FFT
	size      int
	smoothing float64
	minDB     float64
	maxDB     float64

	frame  []float64
	coeffs []complex128
	prev   []float64
}

// NewAnalyser creates an analyser with the default parameters.
func NewAnalyser() *Analyser {
	return NewAnalyserWithSize(FFTSize, SmoothingTimeConstant)
}

// NewAnalyserWithSize creates an analyser for the given FFT size and smoothing.
// size must be a positive even number; smoothing is clamped to [0,1).
func NewAnalyserWithSize(size int, smoothing float64) *Analyser {
	if size <= 0 || size%2 != 0 {
		size = FFTSize
	}
	smoothing = math.Max(0, math.Min(smoothing, 0.999))

	return &Analyser{
		fft:       fourier.NewFFT(size),
		size:      size,
		smoothing: smoothing,
		minDB:     MinDecibels,
		maxDB:     MaxDecibels,
		frame:     make([]float64, size),
		coeffs:    make([]complex128, size/2+1),
		prev:      make([]float64, size/2),
	}
}

// Bins returns the number of frequency bins produced per frame.
func (a *Analyser) Bins() int {
	return a.size / 2
}

// Process analyses the most recent samples and writes one normalized value
// per bin into dst. Missing samples are treated as silence.
// It returns the number of bins written.
func (a *Analyser) Process(samples []float64, dst []float64) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	clear(a.frame)
	if len(samples) > a.size {
		samples = samples[len(samples)-a.size:]
	}
	copy(a.frame[a.size-len(samples):], samples)

	window.Blackman(a.frame)
	a.coeffs = a.fft.Coefficients(a.coeffs, a.frame)

	n := min(len(dst), len(a.prev))
	span := a.maxDB - a.minDB
	for k := range a.prev {
		mag := cmplx.Abs(a.coeffs[k]) / float64(a.size)
		a.prev[k] = a.smoothing*a.prev[k] + (1-a.smoothing)*mag
		if k >= n {
			continue
		}

		if a.prev[k] <= 0 {
			dst[k] = 0
			continue
		}
		db := 20 * math.Log10(a.prev[k])
		dst[k] = math.Max(0, math.Min(1, (db-a.minDB)/span))
	}

	return n
}

// Reset forgets smoothing history.
func (a *Analyser) Reset() {
	a.mu.Lock()
	clear(a.prev)
	a.mu.Unlock()
}
