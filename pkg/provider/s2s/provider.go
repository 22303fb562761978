// Package s2s defines the Provider interface for live speech-to-speech
// streaming backends.
//
// An S2S provider wraps a realtime voice service that accepts raw microphone
// audio and streams synthesised speech plus transcription back over a single,
// stateful session. The central abstraction is [SessionHandle]: outbound audio
// is pushed with SendAudio, and everything the transport observes (the setup
// acknowledgement, server messages, remote close, transport errors) arrives in
// order as one tagged [Event] stream.
//
// All implementations must be safe for concurrent use.
package s2s

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/roboface/pkg/audio"
)

// ErrSessionClosed is returned by SendAudio after the session was closed,
// either locally or by the remote side.
var ErrSessionClosed = errors.New("s2s: session closed")

// EventKind tags the variant carried by an [Event].
type EventKind int

const (
	// EventOpened is emitted once, after the service acknowledged the session
	// setup. It is always the first event on a session.
	EventOpened EventKind = iota

	// EventMessage carries one decoded server message in [Event.Message].
	EventMessage

	// EventClosed is emitted when the remote side or the network ended the
	// session. It is the last event before the channel closes. A session
	// closed locally through [SessionHandle.Close] does not emit it.
	EventClosed

	// EventErrored reports a transport or service error in [Event.Err]. It
	// does not by itself end the session.
	EventErrored
)

// String returns the human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "OPENED"
	case EventMessage:
		return "MESSAGE"
	case EventClosed:
		return "CLOSED"
	case EventErrored:
		return "ERRORED"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one item of the inbound session stream.
type Event struct {
	Kind EventKind

	// Message is set for EventMessage.
	Message *ServerMessage

	// Err is set for EventErrored.
	Err error

	// Reason optionally describes why an EventClosed happened, e.g. the
	// websocket close reason.
	Reason string
}

// AudioChunk is one inline audio payload from the model.
type AudioChunk struct {
	// MIMEType declares the payload encoding, e.g. "audio/pcm;rate=24000".
	MIMEType string

	// Data is the base64-encoded payload exactly as received.
	Data string
}

// Transcription is a partial or final transcript fragment.
type Transcription struct {
	Text     string
	Finished bool
}

// ServerMessage is the provider-neutral form of one inbound server message.
// Any combination of fields may be set.
type ServerMessage struct {
	// Audio holds inline audio parts of the model turn, in order.
	Audio []AudioChunk

	// Text holds text parts of the model turn, in order.
	Text []string

	// InputTranscription is recognised user speech.
	InputTranscription *Transcription

	// OutputTranscription is the text form of the model's spoken output.
	OutputTranscription *Transcription

	// TurnComplete marks the end of the model's turn.
	TurnComplete bool

	// Interrupted signals that the user started speaking over the model and
	// queued playback must be cut.
	Interrupted bool
}

// SessionConfig is the initial configuration for a new S2S session.
type SessionConfig struct {
	// Model is the provider model identifier. Empty selects the provider default.
	Model string

	// Voice is the prebuilt voice name for synthesised speech.
	Voice string

	// Instructions is the system-level persona prompt.
	Instructions string

	// InputTranscription requests transcripts of the user's speech.
	InputTranscription bool

	// OutputTranscription requests transcripts of the model's speech.
	OutputTranscription bool
}

// Capabilities describes static properties of an S2S provider.
type Capabilities struct {
	// MaxSessionDurationMs is the provider-imposed session lifetime limit in
	// milliseconds. Zero means no documented limit.
	MaxSessionDurationMs int

	// InputSampleRate is the PCM rate the provider expects for SendAudio.
	InputSampleRate int

	// OutputSampleRate is the PCM rate of the provider's audio output.
	OutputSampleRate int

	// Voices lists the prebuilt voice names available.
	Voices []string
}

// SessionHandle represents an open S2S session.
//
// Callers must call Close when the session is no longer needed.
type SessionHandle interface {
	// SendAudio delivers one encoded capture frame. It is best-effort: an
	// error means the frame was not sent, and the caller decides whether to
	// care. Returns [ErrSessionClosed] (wrapped) after the session ended.
	SendAudio(blob audio.Blob) error

	// Events returns the ordered inbound event stream. The channel is closed
	// after the final event, or when Close is called. Consumers must drain it
	// promptly; transports block on a full channel.
	Events() <-chan Event

	// Close terminates the session and releases all resources. It does not
	// wait for the consumer of Events. Calling Close more than once is safe
	// and returns nil.
	Close() error
}

// Provider is the abstraction over any S2S backend.
type Provider interface {
	// Connect opens a session and blocks until the service acknowledged the
	// setup or ctx is done. The first event on the returned handle is
	// EventOpened. The caller owns the handle and must Close it.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)

	// Capabilities returns static metadata about the provider.
	Capabilities() Capabilities
}
