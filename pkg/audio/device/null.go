package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/roboface/pkg/audio"
	"github.com/MrWong99/roboface/pkg/audio/graph"
)

var errNullClosed = errors.New("device: null stream closed")

// Null is a hardware-free [graph.Backend].
type Null struct {
	// DenyMicrophone makes OpenMicrophone fail as if access were refused.
	DenyMicrophone bool
}

var _ graph.Backend = (*Null)(nil)

// OpenSink implements [graph.Backend].
func (n *Null) OpenSink(format audio.Format, framesPerBuffer int) (graph.Sink, error) {
	if format.SampleRate <= 0 || framesPerBuffer <= 0 {
		return nil, errors.New("device: null sink: invalid format")
	}
	return &clockSink{
		frames: framesPerBuffer,
		period: frameDuration(framesPerBuffer, format.SampleRate),
		done:   make(chan struct{}),
	}, nil
}

// OpenMicrophone implements [graph.Backend].
func (n *Null) OpenMicrophone(ctx context.Context, format audio.Format, _ int) (graph.CaptureStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n.DenyMicrophone {
		return nil, graph.ErrMicrophoneUnavailable
	}
	if format.SampleRate <= 0 {
		return nil, errors.New("device: null microphone: invalid format")
	}
	return &silentMic{rate: format.SampleRate, done: make(chan struct{})}, nil
}

func frameDuration(frames, rate int) time.Duration {
	return time.Duration(frames) * time.Second / time.Duration(rate)
}

// clockSink discards rendered audio at real-time pace.
type clockSink struct {
	frames int
	period time.Duration

	mu      sync.Mutex
	started bool
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func (s *clockSink) Start(render func(out []float32)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	select {
	case <-s.done:
		return errNullClosed
	default:
	}
	s.started = true
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		buf := make([]float32, s.frames)
		t := time.NewTicker(s.period)
		defer t.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-t.C:
				render(buf)
			}
		}
	}()
	return nil
}

func (s *clockSink) Close() error {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
	return nil
}

// silentMic yields zero-valued frames at the pace a real device would.
type silentMic struct {
	rate int
	done chan struct{}
	once sync.Once
}

func (m *silentMic) Read(dst []float32) error {
	t := time.NewTimer(frameDuration(len(dst), m.rate))
	defer t.Stop()
	select {
	case <-m.done:
		return errNullClosed
	case <-t.C:
		clear(dst)
		return nil
	}
}

func (m *silentMic) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}
