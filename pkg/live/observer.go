package live

import "time"

// Observer receives session telemetry. Implementations must be safe for
// concurrent use and must not block; calls happen on the capture, dispatch
// and caller goroutines.
type Observer interface {
	// HandshakeCompleted reports how long the remote handshake took. err is
	// nil on success.
	HandshakeCompleted(d time.Duration, err error)

	// SessionActive is called with true when a session opens and false when
	// it is torn down.
	SessionActive(active bool)

	// FrameSent counts one successfully sent capture frame.
	FrameSent()

	// FrameDropped counts one capture frame whose send failed while the
	// session was open.
	FrameDropped()

	// ChunkScheduled reports one playback chunk and its duration in seconds.
	ChunkScheduled(seconds float64)

	// DecodeFailed counts one inbound audio payload that could not be decoded.
	DecodeFailed()

	// PlaybackInterrupted reports a barge-in and the number of stopped chunks.
	PlaybackInterrupted(stopped int)

	// TranscriptionReceived counts one forwarded transcription fragment.
	TranscriptionReceived(isUser bool)

	// ConnectionError counts one transport error after the session opened.
	ConnectionError()
}

type nopObserver struct{}

func (nopObserver) HandshakeCompleted(time.Duration, error) {}
func (nopObserver) SessionActive(bool)                      {}
func (nopObserver) FrameSent()                              {}
func (nopObserver) FrameDropped()                           {}
func (nopObserver) ChunkScheduled(float64)                  {}
func (nopObserver) DecodeFailed()                           {}
func (nopObserver) PlaybackInterrupted(int)                 {}
func (nopObserver) TranscriptionReceived(bool)              {}
func (nopObserver) ConnectionError()                        {}
