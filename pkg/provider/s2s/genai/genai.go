// Package genai implements the s2s.Provider interface on top of the official
// Google Gen AI Go SDK's Live API.
//
// It speaks the same BidiGenerateContent protocol as the gemini package but
// delegates framing, authentication and endpoint selection to the SDK, which
// also makes Vertex AI backends reachable through configuration.
package genai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/MrWong99/roboface/pkg/audio"
	"github.com/MrWong99/roboface/pkg/provider/s2s"
)

var _ s2s.Provider = (*Provider)(nil)
var _ s2s.SessionHandle = (*session)(nil)

const (
	defaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"
	eventBuffer  = 64
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model used for sessions that do not name one.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the SDK's API endpoint.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// Provider implements s2s.Provider using google.golang.org/genai.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a Provider authenticating with apiKey against the Gemini API.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{apiKey: apiKey, model: defaultModel}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Capabilities returns static metadata about the Live API.
func (p *Provider) Capabilities() s2s.Capabilities {
	return s2s.Capabilities{
		MaxSessionDurationMs: 15 * 60 * 1000,
		InputSampleRate:      16000,
		OutputSampleRate:     24000,
		Voices:               []string{"Aoede", "Charon", "Fenrir", "Kore", "Leda", "Orus", "Puck", "Zephyr"},
	}
}

// Connect opens a Live session and waits for the setup acknowledgement.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	cc := &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if p.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("genai: new client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = p.model
	}
	live, err := client.Live.Connect(ctx, model, liveConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("genai: connect: %w", err)
	}

	if err := awaitSetupComplete(ctx, live); err != nil {
		_ = live.Close()
		return nil, fmt.Errorf("genai: setup: %w", err)
	}

	sess := &session{
		live:   live,
		events: make(chan s2s.Event, eventBuffer),
		done:   make(chan struct{}),
	}
	sess.events <- s2s.Event{Kind: s2s.EventOpened}
	go sess.receiveLoop()
	return sess, nil
}

// liveConfig maps the provider-neutral session config onto the SDK's.
func liveConfig(cfg s2s.SessionConfig) *genai.LiveConnectConfig {
	lc := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
	}
	if cfg.Voice != "" {
		lc.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.Instructions != "" {
		lc.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.Instructions}}}
	}
	if cfg.InputTranscription {
		lc.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.OutputTranscription {
		lc.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return lc
}

// awaitSetupComplete blocks until the first setupComplete message arrives or
// ctx is done. The SDK's Receive has no context, so a timed-out wait closes
// the session to unblock it.
func awaitSetupComplete(ctx context.Context, live *genai.Session) error {
	result := make(chan error, 1)
	go func() {
		for {
			msg, err := live.Receive()
			if err != nil {
				result <- err
				return
			}
			if msg.SetupComplete != nil {
				result <- nil
				return
			}
		}
	}()
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		_ = live.Close()
		return ctx.Err()
	}
}

type session struct {
	live   *genai.Session
	events chan s2s.Event

	mu     sync.Mutex
	closed bool

	done     chan struct{}
	stopOnce sync.Once
}

func (s *session) receiveLoop() {
	defer close(s.events)

	for {
		msg, err := s.live.Receive()
		if err != nil {
			if s.isStopped() {
				return
			}
			s.markClosed()
			if reason, ok := closeReason(err); ok {
				s.emit(s2s.Event{Kind: s2s.EventClosed, Reason: reason})
				return
			}
			s.emit(s2s.Event{Kind: s2s.EventErrored, Err: fmt.Errorf("genai: receive: %w", err)})
			s.emit(s2s.Event{Kind: s2s.EventClosed, Reason: "connection lost"})
			return
		}
		if m := convertMessage(msg); m != nil {
			s.emit(s2s.Event{Kind: s2s.EventMessage, Message: m})
		}
	}
}

// closeReason reports whether err is an orderly end of stream rather than a
// transport failure.
func closeReason(err error) (string, bool) {
	if errors.Is(err, io.EOF) {
		return "end of stream", true
	}
	msg := err.Error()
	if i := strings.Index(msg, "websocket: close "); i >= 0 {
		return msg[i+len("websocket: close "):], true
	}
	return "", false
}

// convertMessage returns nil for messages that carry no server content.
func convertMessage(msg *genai.LiveServerMessage) *s2s.ServerMessage {
	sc := msg.ServerContent
	if sc == nil {
		return nil
	}
	out := &s2s.ServerMessage{
		TurnComplete: sc.TurnComplete,
		Interrupted:  sc.Interrupted,
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p == nil {
				continue
			}
			if p.InlineData != nil && len(p.InlineData.Data) > 0 {
				out.Audio = append(out.Audio, s2s.AudioChunk{
					MIMEType: p.InlineData.MIMEType,
					Data:     base64.StdEncoding.EncodeToString(p.InlineData.Data),
				})
			}
			if p.Text != "" {
				out.Text = append(out.Text, p.Text)
			}
		}
	}
	if t := sc.InputTranscription; t != nil && (t.Text != "" || t.Finished) {
		out.InputTranscription = &s2s.Transcription{Text: t.Text, Finished: t.Finished}
	}
	if t := sc.OutputTranscription; t != nil && (t.Text != "" || t.Finished) {
		out.OutputTranscription = &s2s.Transcription{Text: t.Text, Finished: t.Finished}
	}
	return out
}

func (s *session) emit(ev s2s.Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *session) isStopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *session) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// SendAudio forwards one PCM blob as realtime audio input.
func (s *session) SendAudio(blob audio.Blob) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("genai: %w", s2s.ErrSessionClosed)
	}
	raw, err := blob.Bytes()
	if err != nil {
		return fmt.Errorf("genai: send audio: %w", err)
	}
	err = s.live.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{MIMEType: blob.MIMEType, Data: raw},
	})
	if err != nil {
		if s.isStopped() {
			return fmt.Errorf("genai: %w", s2s.ErrSessionClosed)
		}
		return fmt.Errorf("genai: send audio: %w", err)
	}
	return nil
}

// Events returns the ordered inbound event stream.
func (s *session) Events() <-chan s2s.Event { return s.events }

// Close ends the session. Idempotent.
func (s *session) Close() error {
	s.markClosed()
	var err error
	s.stopOnce.Do(func() {
		close(s.done)
		err = s.live.Close()
	})
	if err != nil {
		return fmt.Errorf("genai: close: %w", err)
	}
	return nil
}
