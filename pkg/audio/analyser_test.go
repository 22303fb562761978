package audio_test

import (
	"math"
	"testing"

	"github.com/MrWong99/roboface/pkg/audio"
)

func TestNewAnalyser_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		fftSize   int
		smoothing float64
		wantErr   bool
	}{
		{name: "valid", fftSize: 256, smoothing: 0.5},
		{name: "not power of two", fftSize: 300, smoothing: 0.5, wantErr: true},
		{name: "too small", fftSize: 16, smoothing: 0.5, wantErr: true},
		{name: "smoothing above one", fftSize: 256, smoothing: 1.5, wantErr: true},
		{name: "negative smoothing", fftSize: 256, smoothing: -0.1, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := audio.NewAnalyser(tc.fftSize, tc.smoothing)
			if (err != nil) != tc.wantErr {
				t.Errorf("NewAnalyser(%d, %v) error = %v, wantErr %v", tc.fftSize, tc.smoothing, err, tc.wantErr)
			}
		})
	}
}

func TestAnalyser_Silence(t *testing.T) {
	t.Parallel()

	a, err := audio.NewAnalyser(256, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if a.FrequencyBinCount() != 128 {
		t.Fatalf("FrequencyBinCount: got %d, want 128", a.FrequencyBinCount())
	}
	a.Write(make([]float32, 512))

	bins := make([]byte, a.FrequencyBinCount())
	if n := a.ByteFrequencyData(bins); n != 128 {
		t.Fatalf("ByteFrequencyData wrote %d bins, want 128", n)
	}
	for i, b := range bins {
		if b != 0 {
			t.Fatalf("bin %d: got %d, want 0 for silence", i, b)
		}
	}
}

func TestAnalyser_SinePeaksAtItsBin(t *testing.T) {
	t.Parallel()

	const (
		fftSize = 256
		rate    = 24000
		bin     = 16
	)
	a, err := audio.NewAnalyser(fftSize, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	freq := float64(bin) * rate / fftSize
	samples := make([]float32, fftSize)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/rate))
	}
	a.Write(samples)

	bins := make([]byte, fftSize/2)
	a.ByteFrequencyData(bins)
	if bins[bin] < 200 {
		t.Errorf("bin %d: got %d, want a strong peak", bin, bins[bin])
	}
	if bins[bin+20] >= bins[bin] {
		t.Errorf("distant bin %d (%d) should be below the peak (%d)", bin+20, bins[bin+20], bins[bin])
	}
}

func TestAnalyser_SmoothingDecays(t *testing.T) {
	t.Parallel()

	a, err := audio.NewAnalyser(256, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	loud := make([]float32, 256)
	for i := range loud {
		loud[i] = float32(0.8 * math.Sin(float64(i)*0.4))
	}
	a.Write(loud)
	bins := make([]byte, 128)
	a.ByteFrequencyData(bins)
	first := sum(bins)

	a.Write(make([]float32, 256))
	a.ByteFrequencyData(bins)
	second := sum(bins)
	if second == 0 || second >= first {
		t.Errorf("smoothed energy after silence: got %d, want in (0, %d)", second, first)
	}

	a.Reset()
	a.ByteFrequencyData(bins)
	if s := sum(bins); s != 0 {
		t.Errorf("after Reset: got %d, want 0", s)
	}
}

func sum(b []byte) int {
	total := 0
	for _, v := range b {
		total += int(v)
	}
	return total
}
