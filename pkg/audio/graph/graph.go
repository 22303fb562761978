// Package graph provides the software audio contexts the live session renders
// into and captures from.
//
// An [OutputContext] owns a sample-accurate playback clock driven by a device
// [Sink]: buffers are scheduled at absolute context times, mixed down to mono
// on every render callback, and tapped by an optional [audio.Analyser]. An
// [InputContext] wraps a [CaptureStream] and tracks how much audio has been
// pulled from it.
//
// Device implementations of [Backend] live in the audio/device package; an
// in-memory backend for tests lives in audio/mock.
package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/roboface/pkg/audio"
)

// Sentinel errors returned by contexts and backends.
var (
	// ErrClosed is returned when operating on a closed context.
	ErrClosed = errors.New("graph: context closed")

	// ErrSuspended is returned when pulling audio from a context that has not
	// been resumed yet.
	ErrSuspended = errors.New("graph: context suspended")

	// ErrMicrophoneUnavailable is wrapped by backends when the capture device
	// is missing or access to it was refused.
	ErrMicrophoneUnavailable = errors.New("graph: microphone unavailable")
)

// State is the lifecycle state of an audio context.
type State int

const (
	// StateSuspended is the initial state; the clock does not advance.
	StateSuspended State = iota

	// StateRunning means the device is pulling or pushing audio.
	StateRunning

	// StateClosed is terminal.
	StateClosed
)

// String returns the lower-case name of s.
func (s State) String() string {
	switch s {
	case StateSuspended:
		return "suspended"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Sink is a playback device. Start begins periodic calls to render, each
// asking for the next block of mono samples; Close stops them. render must
// not be called after Close returns.
type Sink interface {
	Start(render func(out []float32)) error
	Close() error
}

// CaptureStream is an open microphone. Read blocks until dst is filled with
// mono samples or the stream is closed.
type CaptureStream interface {
	Read(dst []float32) error
	Close() error
}

// Backend opens platform audio devices.
type Backend interface {
	// OpenSink opens a mono playback device at format.SampleRate.
	OpenSink(format audio.Format, framesPerBuffer int) (Sink, error)

	// OpenMicrophone acquires the capture device. Failures caused by a
	// missing device or denied access wrap [ErrMicrophoneUnavailable].
	OpenMicrophone(ctx context.Context, format audio.Format, framesPerBuffer int) (CaptureStream, error)
}
