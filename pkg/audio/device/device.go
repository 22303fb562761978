// Package device implements [graph.Backend] for real and headless audio
// hardware.
//
// [PortAudio] drives the default speaker and microphone through the PortAudio
// C library and is only available in binaries built with the "portaudio" build
// tag. [Null] needs no hardware: its sink consumes rendered audio on a
// wall-clock ticker and its microphone yields silence at the capture cadence,
// which keeps the session clocks moving on servers and in CI.
package device

import (
	"fmt"

	"github.com/MrWong99/roboface/pkg/audio/graph"
)

// Backend names accepted by [Open].
const (
	NamePortAudio = "portaudio"
	NameNull      = "null"
)

// Open returns the backend registered under name.
func Open(name string) (graph.Backend, error) {
	switch name {
	case NamePortAudio:
		return PortAudio()
	case NameNull, "":
		return &Null{}, nil
	default:
		return nil, fmt.Errorf("device: unknown audio backend %q", name)
	}
}
