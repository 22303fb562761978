package graph

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/MrWong99/roboface/pkg/audio"
)

// OutputContext is a playback timeline. Its clock is the number of frames
// rendered so far divided by the sample rate, so scheduled start times are
// sample accurate regardless of device jitter.
type OutputContext struct {
	rate int
	sink Sink
	conv audio.Converter

	mu       sync.Mutex
	state    State
	frames   int64
	sources  map[*Source]struct{}
	analyser *audio.Analyser
}

// NewOutputContext returns a suspended context rendering into sink at rate Hz.
func NewOutputContext(rate int, sink Sink) *OutputContext {
	return &OutputContext{
		rate:    rate,
		sink:    sink,
		conv:    audio.Converter{Target: audio.Format{SampleRate: rate, Channels: 1}},
		sources: make(map[*Source]struct{}),
	}
}

// SampleRate returns the context rate in Hz.
func (c *OutputContext) SampleRate() int { return c.rate }

// CurrentTime returns the context clock in seconds.
func (c *OutputContext) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return float64(c.frames) / float64(c.rate)
}

// State returns the current lifecycle state.
func (c *OutputContext) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect taps the rendered signal into a. Passing nil detaches the analyser.
func (c *OutputContext) Connect(a *audio.Analyser) {
	c.mu.Lock()
	c.analyser = a
	c.mu.Unlock()
}

// Resume starts the sink. Resuming a running context is a no-op.
func (c *OutputContext) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	case StateRunning:
		c.mu.Unlock()
		return nil
	}
	c.state = StateRunning
	c.mu.Unlock()

	if err := c.sink.Start(c.Render); err != nil {
		c.mu.Lock()
		if c.state == StateRunning {
			c.state = StateSuspended
		}
		c.mu.Unlock()
		return fmt.Errorf("graph: start sink: %w", err)
	}
	return nil
}

// Close stops every scheduled source, detaches the analyser and closes the
// sink. It is safe to call more than once.
func (c *OutputContext) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	ended := c.takeSourcesLocked()
	c.analyser = nil
	c.mu.Unlock()

	for _, s := range ended {
		s.fireEnded()
	}
	if err := c.sink.Close(); err != nil {
		return fmt.Errorf("graph: close sink: %w", err)
	}
	return nil
}

// Start schedules buf to begin at context time at (seconds). Times already in
// the past start on the next rendered frame. onEnded, if non-nil, runs exactly
// once when the source finishes naturally or is stopped.
func (c *OutputContext) Start(buf *audio.Buffer, at float64, onEnded func()) (*Source, error) {
	if buf == nil || buf.Frames() == 0 {
		return nil, errors.New("graph: start: empty buffer")
	}
	mono := c.conv.Convert(buf)
	samples := audio.MixDown(mono.Channels)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return nil, ErrClosed
	}
	start := int64(math.Round(at * float64(c.rate)))
	if start < c.frames {
		start = c.frames
	}
	s := &Source{
		ctx:        c,
		samples:    samples,
		startFrame: start,
		onEnded:    onEnded,
	}
	c.sources[s] = struct{}{}
	return s, nil
}

// Render mixes every due source into out, advances the clock by len(out)
// frames and feeds the analyser. Sinks call it from their device callback;
// tests may call it directly. A context that is not running renders silence
// without advancing.
func (c *OutputContext) Render(out []float32) {
	clear(out)

	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return
	}
	blockStart := c.frames
	blockEnd := blockStart + int64(len(out))
	var ended []*Source
	for s := range c.sources {
		if s.startFrame >= blockEnd {
			continue
		}
		// Position in out where this source begins contributing.
		dst := 0
		if s.startFrame > blockStart {
			dst = int(s.startFrame - blockStart)
		}
		for dst < len(out) && s.offset < len(s.samples) {
			out[dst] += s.samples[s.offset]
			dst++
			s.offset++
		}
		if s.offset >= len(s.samples) {
			s.ended = true
			delete(c.sources, s)
			ended = append(ended, s)
		}
	}
	c.frames = blockEnd
	a := c.analyser
	c.mu.Unlock()

	for i, v := range out {
		switch {
		case v > 1:
			out[i] = 1
		case v < -1:
			out[i] = -1
		}
	}
	if a != nil {
		a.Write(out)
	}
	for _, s := range ended {
		s.fireEnded()
	}
}

// Scheduled returns the number of sources that have not ended yet.
func (c *OutputContext) Scheduled() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sources)
}

// takeSourcesLocked marks every source ended and empties the set. Caller holds c.mu.
func (c *OutputContext) takeSourcesLocked() []*Source {
	out := make([]*Source, 0, len(c.sources))
	for s := range c.sources {
		s.ended = true
		out = append(out, s)
	}
	clear(c.sources)
	return out
}

// Source is one scheduled buffer on an [OutputContext].
type Source struct {
	ctx        *OutputContext
	samples    []float32
	startFrame int64
	offset     int
	ended      bool // guarded by ctx.mu
	onEnded    func()
	endOnce    sync.Once
}

// StartTime returns the context time, in seconds, at which s begins.
func (s *Source) StartTime() float64 {
	return float64(s.startFrame) / float64(s.ctx.rate)
}

// Duration returns the length of s in seconds.
func (s *Source) Duration() float64 {
	return float64(len(s.samples)) / float64(s.ctx.rate)
}

// Stop silences s immediately. Stopping an ended source is a no-op.
func (s *Source) Stop() {
	c := s.ctx
	c.mu.Lock()
	if s.ended {
		c.mu.Unlock()
		return
	}
	s.ended = true
	delete(c.sources, s)
	c.mu.Unlock()
	s.fireEnded()
}

func (s *Source) fireEnded() {
	s.endOnce.Do(func() {
		if s.onEnded != nil {
			s.onEnded()
		}
	})
}
