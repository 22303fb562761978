// Package mock provides test doubles for the s2s package interfaces.
//
// Use Provider to verify Connect calls and hand out controlled sessions.
// Use Session to script the inbound event stream and inspect the audio the
// code under test sent.
//
// Example:
//
//	p := &mock.Provider{}
//	handle, _ := p.Connect(ctx, cfg) // emits EventOpened
//	sess := p.LastSession()
//	sess.EmitMessage(&s2s.ServerMessage{Interrupted: true})
//	sess.CloseRemote("bye")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/roboface/pkg/audio"
	"github.com/MrWong99/roboface/pkg/provider/s2s"
)

// eventBuffer is large enough that scripted tests never block on Emit.
const eventBuffer = 256

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Cfg is the SessionConfig passed to Connect.
	Cfg s2s.SessionConfig
}

// Provider is a mock implementation of s2s.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the session returned by Connect. If nil, Connect returns a
	// fresh [NewSession] on every call.
	Session *Session

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectFunc, if non-nil, runs before the session is returned. A non-nil
	// error is returned from Connect. Use it to block a handshake on ctx.
	ConnectFunc func(ctx context.Context, cfg s2s.SessionConfig) error

	// ProviderCapabilities is returned by Capabilities.
	ProviderCapabilities s2s.Capabilities

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall

	// CapabilitiesCallCount is the number of times Capabilities was called.
	CapabilitiesCallCount int

	sessions []*Session
}

// Connect records the call, runs ConnectFunc, and returns a session whose
// first event is EventOpened.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	fn, connectErr := p.ConnectFunc, p.ConnectErr
	p.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, cfg); err != nil {
			return nil, err
		}
	}
	if connectErr != nil {
		return nil, connectErr
	}

	p.mu.Lock()
	sess := p.Session
	if sess == nil {
		sess = NewSession()
	}
	p.sessions = append(p.sessions, sess)
	p.mu.Unlock()

	sess.Emit(s2s.Event{Kind: s2s.EventOpened})
	return sess, nil
}

// Capabilities records the call and returns ProviderCapabilities.
func (p *Provider) Capabilities() s2s.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CapabilitiesCallCount++
	return p.ProviderCapabilities
}

// ConnectCallCount returns the number of Connect calls so far.
func (p *Provider) ConnectCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ConnectCalls)
}

// LastSession returns the session handed out by the most recent successful
// Connect, or nil.
func (p *Provider) LastSession() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}

// Ensure Provider implements s2s.Provider at compile time.
var _ s2s.Provider = (*Provider)(nil)

// Session is a mock implementation of s2s.SessionHandle.
type Session struct {
	events chan s2s.Event

	mu sync.Mutex

	// SendErr, if non-nil, is returned by every SendAudio call.
	SendErr error

	// Sent records every blob passed to SendAudio.
	Sent []audio.Blob

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	closed bool
}

// NewSession returns an open session with a buffered event stream.
func NewSession() *Session {
	return &Session{events: make(chan s2s.Event, eventBuffer)}
}

// Ensure Session implements s2s.SessionHandle at compile time.
var _ s2s.SessionHandle = (*Session)(nil)

// Emit queues ev on the event stream. Events emitted after the stream ended
// are dropped.
func (s *Session) Emit(ev s2s.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- ev
}

// EmitMessage queues an EventMessage carrying m.
func (s *Session) EmitMessage(m *s2s.ServerMessage) {
	s.Emit(s2s.Event{Kind: s2s.EventMessage, Message: m})
}

// EmitError queues an EventErrored carrying err.
func (s *Session) EmitError(err error) {
	s.Emit(s2s.Event{Kind: s2s.EventErrored, Err: err})
}

// CloseRemote simulates the service ending the session: it queues
// EventClosed and ends the stream.
func (s *Session) CloseRemote(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- s2s.Event{Kind: s2s.EventClosed, Reason: reason}
	s.closed = true
	close(s.events)
}

// SendAudio records blob and returns SendErr, or ErrSessionClosed once the
// session ended.
func (s *Session) SendAudio(blob audio.Blob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s2s.ErrSessionClosed
	}
	if s.SendErr != nil {
		return s.SendErr
	}
	s.Sent = append(s.Sent, blob)
	return nil
}

// Events implements s2s.SessionHandle.
func (s *Session) Events() <-chan s2s.Event { return s.events }

// Close ends the stream without emitting EventClosed. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// Closed reports whether the session ended, locally or remotely.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SentCount returns the number of successfully sent blobs.
func (s *Session) SentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Sent)
}

// SetSendErr changes the error returned by SendAudio.
func (s *Session) SetSendErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendErr = err
}

// CloseCalls returns the number of Close calls so far.
func (s *Session) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount
}
