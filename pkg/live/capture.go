package live

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/roboface/pkg/audio"
	"github.com/MrWong99/roboface/pkg/audio/graph"
	"github.com/MrWong99/roboface/pkg/provider/s2s"
)

// scheduleCapture starts the capture pipeline after the settle delay.
func (c *Client) scheduleCapture(gen uint64, log *slog.Logger) {
	if c.cfg.SettleDelay <= 0 {
		c.startCapture(gen, log)
		return
	}
	t := time.AfterFunc(c.cfg.SettleDelay, func() { c.startCapture(gen, log) })

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen.Load() != gen {
		t.Stop()
		return
	}
	c.settle = t
}

// startCapture launches the capture goroutine once per session.
func (c *Client) startCapture(gen uint64, log *slog.Logger) {
	c.mu.Lock()
	if !c.current(gen) || c.captureCancel != nil || c.input == nil || c.session == nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.captureCancel = cancel
	input, sess := c.input, c.session
	c.mu.Unlock()

	log.Debug("live: capture started", "frame_size", c.cfg.CaptureFrameSize, "sample_rate", input.SampleRate())
	go c.captureLoop(ctx, gen, input, sess, log)
}

// captureLoop pulls fixed-size frames, encodes them and sends each one
// best-effort. It exits when the session is no longer open.
func (c *Client) captureLoop(ctx context.Context, gen uint64, input *graph.InputContext, sess s2s.SessionHandle, log *slog.Logger) {
	frame := make([]float32, c.cfg.CaptureFrameSize)
	for {
		if ctx.Err() != nil {
			return
		}
		if err := input.ReadFrame(frame); err != nil {
			if ctx.Err() == nil && c.current(gen) {
				log.Error("live: capture stopped", "err", err)
			}
			return
		}
		if !c.current(gen) {
			return
		}

		blob := audio.NewPCMBlob(frame, input.SampleRate())
		if err := sess.SendAudio(blob); err != nil {
			// Expected while tearing down.
			if !c.current(gen) {
				return
			}
			c.sendFailures.Add(1)
			c.obs.FrameDropped()
			log.Warn("live: send audio frame", "err", err)
			continue
		}
		c.obs.FrameSent()
	}
}
