package audio

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Analyser decibel range used to map magnitudes onto bytes.
const (
	MinDecibels = -100.0
	MaxDecibels = -30.0
)

// Analyser computes smoothed frequency-domain magnitudes over the most recent
// fftSize samples written to it, with the same windowing, smoothing and byte
// mapping as a browser AnalyserNode.
//
// Write is called from the render path and ByteFrequencyData from pollers;
// both are safe for concurrent use.
type Analyser struct {
	fftSize   int
	smoothing float64

	mu       sync.Mutex
	ring     []float32
	pos      int
	fft      *fourier.FFT
	window   []float64
	frame    []float64
	coeffs   []complex128
	smoothed []float64
}

// NewAnalyser returns an Analyser. fftSize must be a power of two between 32
// and 32768; smoothing must lie in [0, 1].
func NewAnalyser(fftSize int, smoothing float64) (*Analyser, error) {
	if fftSize < 32 || fftSize > 32768 || fftSize&(fftSize-1) != 0 {
		return nil, fmt.Errorf("audio: analyser: fft size %d is not a power of two in [32, 32768]", fftSize)
	}
	if smoothing < 0 || smoothing > 1 || math.IsNaN(smoothing) {
		return nil, fmt.Errorf("audio: analyser: smoothing %v outside [0, 1]", smoothing)
	}
	return &Analyser{
		fftSize:   fftSize,
		smoothing: smoothing,
		ring:      make([]float32, fftSize),
		fft:       fourier.NewFFT(fftSize),
		window:    blackman(fftSize),
		frame:     make([]float64, fftSize),
		coeffs:    make([]complex128, fftSize/2+1),
		smoothed:  make([]float64, fftSize/2),
	}, nil
}

// FFTSize returns the analysis window length in samples.
func (a *Analyser) FFTSize() int { return a.fftSize }

// FrequencyBinCount returns the number of bins produced, fftSize/2.
func (a *Analyser) FrequencyBinCount() int { return a.fftSize / 2 }

// Write appends rendered samples to the analysis window.
func (a *Analyser) Write(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(samples) >= a.fftSize {
		copy(a.ring, samples[len(samples)-a.fftSize:])
		a.pos = 0
		return
	}
	for _, s := range samples {
		a.ring[a.pos] = s
		a.pos = (a.pos + 1) % a.fftSize
	}
}

// Reset clears the sample window and the smoothing history.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.ring)
	clear(a.smoothed)
	a.pos = 0
}

// ByteFrequencyData computes the current spectrum and writes up to
// FrequencyBinCount bytes into dst, returning the number written. Each byte
// maps [MinDecibels, MaxDecibels] linearly onto [0, 255].
func (a *Analyser) ByteFrequencyData(dst []byte) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.analyse()

	n := min(len(dst), len(a.smoothed))
	scale := 255 / (MaxDecibels - MinDecibels)
	for i := range n {
		mag := a.smoothed[i]
		db := math.Inf(-1)
		if mag > 0 {
			db = 20 * math.Log10(mag)
		}
		v := math.Floor(scale * (db - MinDecibels))
		switch {
		case v < 0 || math.IsNaN(v):
			v = 0
		case v > 255:
			v = 255
		}
		dst[i] = byte(v)
	}
	return n
}

// analyse runs the window, FFT and smoothing steps. Caller holds a.mu.
func (a *Analyser) analyse() {
	// Oldest sample first.
	for i := range a.fftSize {
		a.frame[i] = float64(a.ring[(a.pos+i)%a.fftSize]) * a.window[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.frame)

	inv := 1 / float64(a.fftSize)
	for k := range a.smoothed {
		c := a.coeffs[k]
		mag := math.Hypot(real(c), imag(c)) * inv
		s := a.smoothing*a.smoothed[k] + (1-a.smoothing)*mag
		if math.IsNaN(s) || math.IsInf(s, 0) {
			s = 0
		}
		a.smoothed[k] = s
	}
}

func blackman(n int) []float64 {
	const (
		a0 = 0.42
		a1 = 0.5
		a2 = 0.08
	)
	w := make([]float64, n)
	for i := range w {
		x := 2 * math.Pi * float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
	}
	return w
}
