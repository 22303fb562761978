package live

import "errors"

// Error kinds surfaced by [Client]. Concrete errors wrap one of these; test
// with errors.Is.
//
// ErrPermission and ErrAudioInit are delivered through [Callbacks.OnError]
// and never returned from Connect. ErrSessionEstablish is returned from
// Connect. ErrConnection is delivered through OnError after the session
// opened.
var (
	// ErrPermission means the microphone could not be acquired.
	ErrPermission = errors.New("live: microphone permission denied")

	// ErrAudioInit means an audio context could not be created or resumed.
	ErrAudioInit = errors.New("live: audio initialisation failed")

	// ErrSessionEstablish means the remote session handshake failed.
	ErrSessionEstablish = errors.New("live: session establishment failed")

	// ErrConnection is a transport failure after the session opened.
	ErrConnection = errors.New("live: connection error")

	// ErrIllegalTransition is returned for operations the current lifecycle
	// state does not allow, such as connecting twice.
	ErrIllegalTransition = errors.New("live: illegal state transition")
)
