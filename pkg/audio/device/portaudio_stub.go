//go:build !portaudio

package device

import (
	"errors"

	"github.com/MrWong99/roboface/pkg/audio/graph"
)

// PortAudio reports that this binary was built without PortAudio support.
// Rebuild with -tags portaudio to enable it.
func PortAudio() (graph.Backend, error) {
	return nil, errors.New("device: built without portaudio support (rebuild with -tags portaudio)")
}
