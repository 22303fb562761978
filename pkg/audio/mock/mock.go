// Package mock provides in-memory implementations of [graph.Backend],
// [graph.Sink] and [graph.CaptureStream] for use in unit tests.
//
// All mocks are safe for concurrent use. They record calls so that tests can
// assert on them, and expose exported fields that the test sets to control
// return values. Nothing is rendered on its own: tests advance playback with
// [Sink.Pull] and feed capture frames through [Microphone.Push].
//
// Typical usage:
//
//	backend := &mock.Backend{}
//	client := live.New(provider, backend, cfg)
//	_ = client.Connect(ctx, callbacks)
//	backend.Sink().Pull(4800) // render 200 ms at 24 kHz
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/roboface/pkg/audio"
	"github.com/MrWong99/roboface/pkg/audio/graph"
)

// ─── Backend ──────────────────────────────────────────────────────────────────

// Backend is a mock implementation of [graph.Backend].
type Backend struct {
	mu sync.Mutex

	// OpenSinkErr is returned by [Backend.OpenSink] when non-nil.
	OpenSinkErr error

	// SinkStartErr is returned by the created sink's Start when non-nil.
	SinkStartErr error

	// OpenMicrophoneErr is returned by [Backend.OpenMicrophone] when non-nil.
	OpenMicrophoneErr error

	// CallCountOpenSink records how many times OpenSink was called.
	CallCountOpenSink int

	// CallCountOpenMicrophone records how many times OpenMicrophone was called.
	CallCountOpenMicrophone int

	// SinkFormats records the format passed to each OpenSink call.
	SinkFormats []audio.Format

	// MicrophoneFormats records the format passed to each OpenMicrophone call.
	MicrophoneFormats []audio.Format

	sinks []*Sink
	mics  []*Microphone
}

// OpenSink implements [graph.Backend].
func (b *Backend) OpenSink(format audio.Format, framesPerBuffer int) (graph.Sink, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CallCountOpenSink++
	b.SinkFormats = append(b.SinkFormats, format)
	if b.OpenSinkErr != nil {
		return nil, b.OpenSinkErr
	}
	s := &Sink{StartErr: b.SinkStartErr, framesPerBuffer: framesPerBuffer}
	b.sinks = append(b.sinks, s)
	return s, nil
}

// OpenMicrophone implements [graph.Backend].
func (b *Backend) OpenMicrophone(ctx context.Context, format audio.Format, framesPerBuffer int) (graph.CaptureStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CallCountOpenMicrophone++
	b.MicrophoneFormats = append(b.MicrophoneFormats, format)
	if b.OpenMicrophoneErr != nil {
		return nil, b.OpenMicrophoneErr
	}
	m := NewMicrophone()
	b.mics = append(b.mics, m)
	return m, nil
}

// Sink returns the most recently opened sink, or nil.
func (b *Backend) Sink() *Sink {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sinks) == 0 {
		return nil
	}
	return b.sinks[len(b.sinks)-1]
}

// Microphone returns the most recently opened microphone, or nil.
func (b *Backend) Microphone() *Microphone {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.mics) == 0 {
		return nil
	}
	return b.mics[len(b.mics)-1]
}

// ─── Sink ─────────────────────────────────────────────────────────────────────

// Sink is a mock implementation of [graph.Sink] that renders only when the
// test asks it to.
type Sink struct {
	mu sync.Mutex

	// StartErr is returned by [Sink.Start] when non-nil.
	StartErr error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	framesPerBuffer int
	render          func([]float32)
	closed          bool
}

// Start implements [graph.Sink].
func (s *Sink) Start(render func(out []float32)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStart++
	if s.StartErr != nil {
		return s.StartErr
	}
	s.render = render
	return nil
}

// Close implements [graph.Sink].
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	s.closed = true
	s.render = nil
	return nil
}

// Closed reports whether Close has been called.
func (s *Sink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Pull renders frames samples through the registered callback and returns
// them. It returns nil if the sink was never started or is closed.
func (s *Sink) Pull(frames int) []float32 {
	s.mu.Lock()
	render := s.render
	s.mu.Unlock()
	if render == nil {
		return nil
	}
	out := make([]float32, frames)
	render(out)
	return out
}

// ─── Microphone ───────────────────────────────────────────────────────────────

// Microphone is a mock [graph.CaptureStream]. Read blocks until a frame is
// pushed or the stream is closed.
type Microphone struct {
	frames chan []float32
	done   chan struct{}
	once   sync.Once

	mu sync.Mutex

	// CallCountRead records how many reads completed successfully.
	CallCountRead int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewMicrophone returns an open mock microphone.
func NewMicrophone() *Microphone {
	return &Microphone{
		frames: make(chan []float32, 64),
		done:   make(chan struct{}),
	}
}

// Push queues one frame for the next Read. Frames pushed after Close are
// dropped.
func (m *Microphone) Push(frame []float32) {
	select {
	case <-m.done:
	case m.frames <- frame:
	}
}

// Read implements [graph.CaptureStream]. The pushed frame is copied into dst;
// a shorter frame leaves the remainder of dst silent.
func (m *Microphone) Read(dst []float32) error {
	select {
	case <-m.done:
		return ErrStreamClosed
	case f := <-m.frames:
		clear(dst)
		copy(dst, f)
		m.mu.Lock()
		m.CallCountRead++
		m.mu.Unlock()
		return nil
	}
}

// Close implements [graph.CaptureStream]. Safe to call more than once.
func (m *Microphone) Close() error {
	m.mu.Lock()
	m.CallCountClose++
	m.mu.Unlock()
	m.once.Do(func() { close(m.done) })
	return nil
}

// Closed reports whether Close has been called.
func (m *Microphone) Closed() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// ErrStreamClosed is returned by [Microphone.Read] after Close.
var ErrStreamClosed = errors.New("mock: capture stream closed")
