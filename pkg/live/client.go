// Package live is the realtime audio session core of roboface.
//
// A [Client] owns one bidirectional speech session at a time. Connect builds
// the audio graph (a 16 kHz capture context and a 24 kHz playback context
// with an analyser tap), acquires the microphone, and opens the remote
// session. Inbound events are dispatched one at a time in arrival order:
// audio is decoded and appended gaplessly by the [Scheduler], barge-in stops
// playback, and transcripts are forwarded to the caller. Microphone frames
// are encoded to 16-bit PCM and streamed out on a best-effort basis.
//
// Disconnect is the only cancellation primitive. It is idempotent, may be
// called from any callback, and invalidates every in-flight continuation by
// moving the lifecycle state and bumping a generation counter before
// releasing resources.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/roboface/pkg/audio"
	"github.com/MrWong99/roboface/pkg/audio/graph"
	"github.com/MrWong99/roboface/pkg/provider/s2s"
)

// Callbacks are the caller-facing notifications of a session. Any of them may
// be nil. They run on the client's dispatch goroutine (or the Connect caller's
// goroutine for setup failures) and may call Disconnect or Connect.
type Callbacks struct {
	// OnClose runs once after the remote side ended the session and all
	// resources were released.
	OnClose func()

	// OnError receives ErrPermission / ErrAudioInit failures during Connect
	// and ErrConnection failures after the session opened.
	OnError func(err error)

	// OnTranscription receives transcript fragments. An empty final user
	// fragment marks the end of a model turn.
	OnTranscription func(text string, isUser, isFinal bool)
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithObserver sets the telemetry observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.obs = o }
}

// Client is the session lifecycle manager. All methods are safe for
// concurrent use.
type Client struct {
	provider s2s.Provider
	backend  graph.Backend
	cfg      Config
	log      *slog.Logger
	obs      Observer

	state        stateMachine
	gen          atomic.Uint64
	sendFailures atomic.Int64

	// mu guards everything below; none of it is touched without checking
	// gen first.
	mu            sync.Mutex
	sessionID     string
	cb            Callbacks
	input         *graph.InputContext
	output        *graph.OutputContext
	mic           graph.CaptureStream
	analyser      *audio.Analyser
	sched         *Scheduler
	decoder       *audio.Decoder
	session       s2s.SessionHandle
	settle        *time.Timer
	captureCancel context.CancelFunc
	handshake     context.CancelFunc
	levelBins     []byte
}

// New returns an idle Client. It does not touch any device or network until
// Connect.
func New(provider s2s.Provider, backend graph.Backend, cfg Config, opts ...Option) *Client {
	c := &Client{
		provider: provider,
		backend:  backend,
		cfg:      cfg.withDefaults(),
		log:      slog.Default(),
		obs:      nopObserver{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Client) State() State { return c.state.Load() }

// IsActive reports whether a session is open.
func (c *Client) IsActive() bool { return c.state.Load() == StateOpen }

// SessionID returns the identifier of the current or last session, or "" if
// Connect was never called.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// SendFailures returns how many capture frames failed to send while the
// session was open.
func (c *Client) SendFailures() int64 { return c.sendFailures.Load() }

// Connect builds the audio graph, acquires the microphone and opens the
// remote session.
//
// Audio setup failures are reported through cb.OnError wrapping
// [ErrAudioInit] or [ErrPermission]; Connect then returns nil without
// opening a session. A failed handshake tears everything down and returns an
// error wrapping [ErrSessionEstablish]. Connecting while a session is
// connecting or open returns an error wrapping [ErrIllegalTransition].
func (c *Client) Connect(ctx context.Context, cb Callbacks) error {
	if _, err := c.state.transitionFromAny(StateConnecting, StateIdle, StateClosed); err != nil {
		return fmt.Errorf("live: connect: %w", err)
	}
	gen := c.gen.Add(1)
	id := uuid.NewString()
	log := c.log.With("session_id", id)

	c.mu.Lock()
	c.sessionID = id
	c.cb = cb
	c.mu.Unlock()

	log.Debug("live: connecting", "model", c.cfg.Model, "voice", c.cfg.Voice)

	if err := c.setupAudio(ctx, gen); err != nil {
		log.Warn("live: audio setup failed", "err", err)
		c.teardown(gen)
		if cb.OnError != nil {
			cb.OnError(err)
		}
		return nil
	}

	hctx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()
	// Disconnect cancels the handshake instead of waiting out the timeout.
	if !c.adopt(gen, func() { c.handshake = cancel }) {
		return fmt.Errorf("%w: disconnected before handshake", ErrSessionEstablish)
	}
	start := time.Now()
	sess, err := c.provider.Connect(hctx, s2s.SessionConfig{
		Model:               c.cfg.Model,
		Voice:               c.cfg.Voice,
		Instructions:        c.cfg.Persona,
		InputTranscription:  c.cfg.InputTranscription,
		OutputTranscription: c.cfg.OutputTranscription,
	})
	c.adopt(gen, func() { c.handshake = nil })
	c.obs.HandshakeCompleted(time.Since(start), err)
	if err != nil {
		log.Error("live: session handshake failed", "err", err)
		c.teardown(gen)
		return fmt.Errorf("%w: %w", ErrSessionEstablish, err)
	}

	if !c.adopt(gen, func() { c.session = sess }) {
		_ = sess.Close()
		return fmt.Errorf("%w: disconnected during handshake", ErrSessionEstablish)
	}
	if err := c.state.transition(StateConnecting, StateOpen); err != nil {
		// Disconnect won the race after adopt; it owns the session now.
		return fmt.Errorf("%w: %w", ErrSessionEstablish, err)
	}
	c.obs.SessionActive(true)
	log.Info("live: session open")

	go c.dispatch(gen, sess, cb, log)
	return nil
}

// setupAudio performs steps that report through OnError: contexts, analyser,
// resume, microphone.
func (c *Client) setupAudio(ctx context.Context, gen uint64) error {
	outFormat := audio.Format{SampleRate: c.cfg.OutputSampleRate, Channels: 1}
	inFormat := audio.Format{SampleRate: c.cfg.InputSampleRate, Channels: 1}

	sink, err := c.backend.OpenSink(outFormat, c.cfg.RenderFrames)
	if err != nil {
		return fmt.Errorf("%w: open output device: %w", ErrAudioInit, err)
	}
	output := graph.NewOutputContext(c.cfg.OutputSampleRate, sink)
	input := graph.NewInputContext(c.cfg.InputSampleRate)
	if !c.adopt(gen, func() {
		c.output = output
		c.input = input
	}) {
		_ = output.Close()
		return fmt.Errorf("%w: disconnected during setup", ErrAudioInit)
	}

	analyser, err := audio.NewAnalyser(c.cfg.FFTSize, c.cfg.Smoothing)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAudioInit, err)
	}
	output.Connect(analyser)
	sched := NewScheduler(OutputTimeline(output))
	decoder := audio.NewDecoder(outFormat)
	if !c.adopt(gen, func() {
		c.analyser = analyser
		c.levelBins = make([]byte, analyser.FrequencyBinCount())
		c.sched = sched
		c.decoder = decoder
	}) {
		return fmt.Errorf("%w: disconnected during setup", ErrAudioInit)
	}

	if err := output.Resume(ctx); err != nil {
		return fmt.Errorf("%w: resume output context: %w", ErrAudioInit, err)
	}
	if err := input.Resume(ctx); err != nil {
		return fmt.Errorf("%w: resume input context: %w", ErrAudioInit, err)
	}

	mic, err := c.backend.OpenMicrophone(ctx, inFormat, c.cfg.CaptureFrameSize)
	if err != nil {
		if errors.Is(err, graph.ErrMicrophoneUnavailable) {
			return fmt.Errorf("%w: %w", ErrPermission, err)
		}
		return fmt.Errorf("%w: open microphone: %w", ErrAudioInit, err)
	}
	if !c.adopt(gen, func() { c.mic = mic }) {
		_ = mic.Close()
		return fmt.Errorf("%w: disconnected during setup", ErrAudioInit)
	}
	input.Connect(mic)
	return nil
}

// adopt runs set under c.mu if gen is still the live connection attempt.
// It reports false when a teardown already claimed this generation, in which
// case the caller owns and must release whatever it was about to store.
func (c *Client) adopt(gen uint64, set func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen.Load() != gen || c.state.Load() != StateConnecting {
		return false
	}
	set()
	return true
}

// current reports whether gen is the open session.
func (c *Client) current(gen uint64) bool {
	return c.gen.Load() == gen && c.state.Load() == StateOpen
}

// Disconnect ends the session and releases every resource. It is idempotent
// and safe to call from within any callback, including ones it triggers.
func (c *Client) Disconnect() {
	if c.teardown(c.gen.Load()) {
		c.log.Info("live: disconnected", "session_id", c.SessionID())
	}
}

// teardown releases all resources of generation gen. Only the first caller
// for a generation does any work; it reports whether this call did.
func (c *Client) teardown(gen uint64) bool {
	if c.gen.Load() != gen {
		return false
	}
	// Mark inactive first so in-flight continuations stop acting.
	prev, err := c.state.transitionFromAny(StateClosing, StateOpen, StateConnecting)
	if err != nil {
		return false
	}
	c.gen.Add(1)

	c.mu.Lock()
	settle, captureCancel, handshake := c.settle, c.captureCancel, c.handshake
	mic, input, output := c.mic, c.input, c.output
	sched, session := c.sched, c.session
	c.settle, c.captureCancel, c.handshake = nil, nil, nil
	c.mic, c.input, c.output = nil, nil, nil
	c.sched, c.session = nil, nil
	c.analyser, c.levelBins, c.decoder = nil, nil, nil
	c.mu.Unlock()

	var errs []error
	if settle != nil {
		settle.Stop()
	}
	if captureCancel != nil {
		captureCancel()
	}
	if handshake != nil {
		handshake()
	}
	if mic != nil {
		errs = append(errs, mic.Close())
	}
	if input != nil {
		errs = append(errs, input.Close())
	}
	if sched != nil {
		sched.Reset()
	}
	if output != nil {
		errs = append(errs, output.Close())
	}
	if session != nil {
		errs = append(errs, session.Close())
	}
	if err := errors.Join(errs...); err != nil {
		c.log.Debug("live: teardown", "err", err)
	}

	if prev == StateOpen {
		c.obs.SessionActive(false)
	}
	if err := c.state.transition(StateClosing, StateClosed); err != nil {
		c.log.Error("live: teardown", "err", err)
	}
	return true
}

// AudioLevel returns the loudness of the playback signal in [0, 1]: the mean
// analyser bin divided by the configured ceiling, clamped to 1. It returns 0
// when no session audio graph exists.
func (c *Client) AudioLevel() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.analyser == nil || len(c.levelBins) == 0 {
		return 0
	}
	n := c.analyser.ByteFrequencyData(c.levelBins)
	if n == 0 {
		return 0
	}
	sum := 0
	for _, b := range c.levelBins[:n] {
		sum += int(b)
	}
	level := float64(sum) / float64(n) / c.cfg.LevelCeiling
	return min(level, 1)
}

// dispatch consumes the session's events in order until the stream ends.
// Events that arrive after this generation was torn down are drained and
// ignored.
func (c *Client) dispatch(gen uint64, sess s2s.SessionHandle, cb Callbacks, log *slog.Logger) {
	for ev := range sess.Events() {
		if c.gen.Load() != gen {
			continue
		}
		switch ev.Kind {
		case s2s.EventOpened:
			c.scheduleCapture(gen, log)
		case s2s.EventMessage:
			if ev.Message != nil {
				c.handleMessage(gen, ev.Message, cb, log)
			}
		case s2s.EventClosed:
			log.Info("live: session closed by remote", "reason", ev.Reason)
			if c.teardown(gen) && cb.OnClose != nil {
				cb.OnClose()
			}
		case s2s.EventErrored:
			log.Error("live: session error", "err", ev.Err)
			c.obs.ConnectionError()
			if cb.OnError != nil {
				cb.OnError(fmt.Errorf("%w: %w", ErrConnection, ev.Err))
			}
		}
	}
}

// handleMessage applies one server message: transcripts, turn end, audio,
// then interruption.
func (c *Client) handleMessage(gen uint64, m *s2s.ServerMessage, cb Callbacks, log *slog.Logger) {
	if t := m.InputTranscription; t != nil {
		c.obs.TranscriptionReceived(true)
		if cb.OnTranscription != nil {
			cb.OnTranscription(t.Text, true, t.Finished)
		}
	}
	if t := m.OutputTranscription; t != nil && c.cfg.OutputTranscription {
		c.obs.TranscriptionReceived(false)
		if cb.OnTranscription != nil {
			cb.OnTranscription(t.Text, false, t.Finished)
		}
	}
	if m.TurnComplete && cb.OnTranscription != nil {
		cb.OnTranscription("", true, true)
	}

	for _, chunk := range m.Audio {
		if !c.current(gen) {
			return
		}
		c.playChunk(gen, chunk, log)
	}

	if m.Interrupted && c.current(gen) {
		c.mu.Lock()
		sched := c.sched
		c.mu.Unlock()
		if sched != nil {
			n := sched.Interrupt()
			c.obs.PlaybackInterrupted(n)
			log.Debug("live: playback interrupted", "stopped", n)
		}
	}
}

// playChunk decodes one inline payload and appends it to the timeline.
// Decode failures drop the chunk.
func (c *Client) playChunk(gen uint64, chunk s2s.AudioChunk, log *slog.Logger) {
	c.mu.Lock()
	decoder, sched := c.decoder, c.sched
	c.mu.Unlock()
	if decoder == nil || sched == nil {
		return
	}

	buf, err := decoder.Decode(chunk.Data, chunk.MIMEType)
	if err != nil {
		c.obs.DecodeFailed()
		log.Warn("live: dropping audio chunk", "mime_type", chunk.MIMEType, "err", err)
		return
	}
	// Decoding is a suspension point; re-check before touching playback.
	if !c.current(gen) {
		return
	}
	if _, err := sched.Schedule(buf); err != nil {
		if c.current(gen) {
			log.Warn("live: schedule chunk", "err", err)
		}
		return
	}
	c.obs.ChunkScheduled(buf.Duration())
}
