package graph

import (
	"context"
	"fmt"
	"sync"
)

// InputContext is the capture-side timeline. It pulls fixed-size frames from
// a connected [CaptureStream] once resumed. The stream itself is owned by the
// caller; closing the context does not close the stream.
type InputContext struct {
	rate int

	mu     sync.Mutex
	state  State
	stream CaptureStream
	frames int64
}

// NewInputContext returns a suspended capture context at rate Hz.
func NewInputContext(rate int) *InputContext {
	return &InputContext{rate: rate}
}

// SampleRate returns the context rate in Hz.
func (c *InputContext) SampleRate() int { return c.rate }

// CurrentTime returns the amount of audio captured so far, in seconds.
func (c *InputContext) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return float64(c.frames) / float64(c.rate)
}

// State returns the current lifecycle state.
func (c *InputContext) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Resume allows frames to be read.
func (c *InputContext) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return ErrClosed
	}
	c.state = StateRunning
	return nil
}

// Connect sets the stream frames are read from.
func (c *InputContext) Connect(stream CaptureStream) {
	c.mu.Lock()
	c.stream = stream
	c.mu.Unlock()
}

// ReadFrame fills dst with the next block of captured samples.
func (c *InputContext) ReadFrame(dst []float32) error {
	c.mu.Lock()
	state, stream := c.state, c.stream
	c.mu.Unlock()

	switch {
	case state == StateClosed:
		return ErrClosed
	case state != StateRunning:
		return ErrSuspended
	case stream == nil:
		return fmt.Errorf("graph: read frame: no capture stream connected")
	}
	if err := stream.Read(dst); err != nil {
		return fmt.Errorf("graph: read frame: %w", err)
	}

	c.mu.Lock()
	c.frames += int64(len(dst))
	c.mu.Unlock()
	return nil
}

// Close disconnects the stream. It is safe to call more than once.
func (c *InputContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateClosed
	c.stream = nil
	return nil
}
