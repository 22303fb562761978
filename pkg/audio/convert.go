package audio

import (
	"log/slog"
	"sync"

	"github.com/oov/audio/resampler"
)

const (
	// resampleQuality is the speex-style quality level (0–10) used for rate
	// conversion.
	resampleQuality = 10

	// resampleFlush is the number of trailing zero samples pushed through the
	// resampler so that its filter tail is emitted.
	resampleFlush = 256
)

// Converter converts Buffers to a target format. It logs a warning on the
// first format mismatch. Create one per stream; not designed for shared use
// across goroutines.
type Converter struct {
	Target         Format
	warnedMismatch sync.Once
}

// Convert converts b to the target format. If b already matches, it is
// returned unchanged (zero allocation). Conversion order: resample first,
// then channel convert. A zero field in Target means "keep the source value".
func (c *Converter) Convert(b *Buffer) *Buffer {
	target := c.Target
	if target.SampleRate <= 0 {
		target.SampleRate = b.SampleRate
	}
	if target.Channels <= 0 {
		target.Channels = b.NumChannels()
	}

	// Fast path: source matches target.
	if b.SampleRate == target.SampleRate && b.NumChannels() == target.Channels {
		return b
	}

	c.warnedMismatch.Do(func() {
		slog.Debug("audio format mismatch: converting",
			"from", b.Format().String(),
			"to", target.String(),
		)
	})

	channels := b.Channels

	// Step 1: Resample first (avoids resampling channels that are about to be
	// dropped when the target has fewer).
	if b.SampleRate != target.SampleRate {
		if target.Channels < len(channels) {
			channels = ConvertChannels(channels, target.Channels)
		}
		channels = ResamplePlanar(channels, b.SampleRate, target.SampleRate)
	}

	// Step 2: Channel conversion.
	channels = ConvertChannels(channels, target.Channels)

	return &Buffer{SampleRate: target.SampleRate, Channels: channels}
}

// ConvertChannels returns planar audio with exactly n channels. Going down to
// mono averages all channels; going up duplicates mono, or repeats the last
// channel for other layouts; other reductions keep the first n channels.
func ConvertChannels(channels [][]float32, n int) [][]float32 {
	if n <= 0 || len(channels) == n || len(channels) == 0 {
		return channels
	}
	if n == 1 {
		return [][]float32{MixDown(channels)}
	}
	out := make([][]float32, n)
	for i := range out {
		if i < len(channels) {
			out[i] = channels[i]
			continue
		}
		src := channels[len(channels)-1]
		dup := make([]float32, len(src))
		copy(dup, src)
		out[i] = dup
	}
	return out
}

// MixDown averages planar channels into a single mono channel.
func MixDown(channels [][]float32) []float32 {
	if len(channels) == 0 {
		return nil
	}
	if len(channels) == 1 {
		return channels[0]
	}
	frames := len(channels[0])
	out := make([]float32, frames)
	scale := 1 / float32(len(channels))
	for _, ch := range channels {
		for i := 0; i < frames && i < len(ch); i++ {
			out[i] += ch[i] * scale
		}
	}
	return out
}

// Deinterleave splits interleaved samples into planar channels. Trailing
// samples that do not form a complete frame are dropped.
func Deinterleave(interleaved []float32, channels int) [][]float32 {
	if channels <= 1 {
		return [][]float32{interleaved}
	}
	frames := len(interleaved) / channels
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, frames)
	}
	for i := range frames {
		for c := range channels {
			out[c][i] = interleaved[i*channels+c]
		}
	}
	return out
}

// ResamplePlanar converts every channel from srcRate to dstRate. If either
// rate is non-positive or they are equal, the input is returned unchanged.
func ResamplePlanar(channels [][]float32, srcRate, dstRate int) [][]float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(channels) == 0 {
		return channels
	}
	r := resampler.New(len(channels), srcRate, dstRate, resampleQuality)
	out := make([][]float32, len(channels))
	for c, in := range channels {
		out[c] = resampleChannel(r, c, in, srcRate, dstRate)
	}
	return out
}

func resampleChannel(r *resampler.Resampler, channel int, in []float32, srcRate, dstRate int) []float32 {
	want := int(int64(len(in)) * int64(dstRate) / int64(srcRate))
	if want == 0 {
		return nil
	}
	out := make([]float32, want+8*(resampleFlush*dstRate/srcRate+1))

	read, written := 0, 0
	for read < len(in) && written < len(out) {
		rd, wr := r.ProcessFloat32(channel, in[read:], out[written:])
		if rd == 0 && wr == 0 {
			break
		}
		read += rd
		written += wr
	}
	tail := make([]float32, resampleFlush)
	for range 8 {
		if written >= want {
			break
		}
		_, wr := r.ProcessFloat32(channel, tail, out[written:])
		written += wr
	}
	// Anything still missing after flushing is silence.
	return out[:want]
}

// StreamResampler converts a continuous mono signal block by block. Unlike
// [ResamplePlanar] it keeps the filter state between calls, so block edges
// do not click. Not safe for concurrent use.
type StreamResampler struct {
	r        *resampler.Resampler
	src, dst int
	out      []float32
}

// NewStreamResampler returns a resampler from srcRate to dstRate. Equal or
// non-positive rates yield a pass-through.
func NewStreamResampler(srcRate, dstRate int) *StreamResampler {
	s := &StreamResampler{src: srcRate, dst: dstRate}
	if srcRate > 0 && dstRate > 0 && srcRate != dstRate {
		s.r = resampler.New(1, srcRate, dstRate, resampleQuality)
	}
	return s
}

// Process converts in and returns the samples available so far. The result
// is only valid until the next call.
func (s *StreamResampler) Process(in []float32) []float32 {
	if s.r == nil {
		return in
	}
	need := len(in)*s.dst/s.src + 16
	if cap(s.out) < need {
		s.out = make([]float32, need)
	}
	out := s.out[:cap(s.out)]

	read, written := 0, 0
	for read < len(in) {
		if written == len(out) {
			out = append(out, make([]float32, len(out))...)
		}
		rd, wr := s.r.ProcessFloat32(0, in[read:], out[written:])
		if rd == 0 && wr == 0 {
			break
		}
		read += rd
		written += wr
	}
	s.out = out
	return out[:written]
}
