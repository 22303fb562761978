// Package audio holds the audio value types and sample-level transforms used by
// the live session core: the outbound PCM encoder, the inbound payload decoder,
// channel and rate conversion, and the frequency analyser that feeds the
// amplitude signal.
//
// Samples are float32 in [-1, 1]. Multi-channel audio is stored planar (one
// slice per channel) inside a [Buffer]; capture frames are mono.
package audio

import "fmt"

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form such as "24000Hz mono".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// Buffer is a decoded, playable block of audio. It is the Go counterpart of a
// playback chunk: created by the [Decoder], scheduled once, then discarded.
type Buffer struct {
	// SampleRate in Hz of every channel in Channels.
	SampleRate int

	// Channels holds planar samples; all channels have the same length.
	Channels [][]float32
}

// NewBuffer allocates a silent buffer with the given channel count and length.
func NewBuffer(sampleRate, channels, frames int) *Buffer {
	b := &Buffer{SampleRate: sampleRate, Channels: make([][]float32, channels)}
	for i := range b.Channels {
		b.Channels[i] = make([]float32, frames)
	}
	return b
}

// NumChannels returns the number of channels in b.
func (b *Buffer) NumChannels() int { return len(b.Channels) }

// Frames returns the number of sample frames per channel.
func (b *Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback length of b in seconds.
func (b *Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Format returns the sample rate and channel count of b.
func (b *Buffer) Format() Format {
	return Format{SampleRate: b.SampleRate, Channels: len(b.Channels)}
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
