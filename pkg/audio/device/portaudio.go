//go:build portaudio

package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/roboface/pkg/audio"
	"github.com/MrWong99/roboface/pkg/audio/graph"
)

// captureQueue is the number of device callback blocks buffered between the
// PortAudio thread and the capture reader.
const captureQueue = 32

var (
	paMu   sync.Mutex
	paRefs int
)

// acquire initialises PortAudio on first use.
func acquire() error {
	paMu.Lock()
	defer paMu.Unlock()
	if paRefs == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("device: portaudio initialize: %w", err)
		}
	}
	paRefs++
	return nil
}

// release terminates PortAudio once the last stream is closed.
func release() {
	paMu.Lock()
	defer paMu.Unlock()
	paRefs--
	if paRefs == 0 {
		_ = portaudio.Terminate()
	}
}

type portAudioBackend struct{}

// PortAudio returns a backend for the default PortAudio devices.
func PortAudio() (graph.Backend, error) {
	return portAudioBackend{}, nil
}

// OpenSink implements [graph.Backend]. The device is opened lazily by Start so
// that the render callback is known when the stream is created. The stream
// runs at the device's default rate; the context's audio is resampled to it.
func (portAudioBackend) OpenSink(format audio.Format, framesPerBuffer int) (graph.Sink, error) {
	if err := acquire(); err != nil {
		return nil, err
	}
	dev, err := portaudio.DefaultOutputDevice()
	if err != nil {
		release()
		return nil, fmt.Errorf("device: default output device: %w", err)
	}
	return &speaker{
		rate:    format.SampleRate,
		devRate: int(dev.DefaultSampleRate),
		frames:  framesPerBuffer,
	}, nil
}

// OpenMicrophone implements [graph.Backend]. Only a missing device or refused
// access wraps [graph.ErrMicrophoneUnavailable]; stream and rate failures are
// plain errors.
func (portAudioBackend) OpenMicrophone(ctx context.Context, format audio.Format, framesPerBuffer int) (graph.CaptureStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := acquire(); err != nil {
		return nil, err
	}
	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		release()
		return nil, fmt.Errorf("%w: %w", graph.ErrMicrophoneUnavailable, err)
	}
	devRate := int(dev.DefaultSampleRate)

	m := &microphone{
		blocks:  make(chan []float32, captureQueue),
		done:    make(chan struct{}),
		convert: captureAt(devRate, format.SampleRate),
	}
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(devRate),
		deviceFrames(framesPerBuffer, format.SampleRate, devRate), m.callback)
	if err != nil {
		release()
		return nil, micError("open input stream", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		release()
		return nil, micError("start input stream", err)
	}
	m.stream = stream
	return m, nil
}

// micError wraps err in [graph.ErrMicrophoneUnavailable] when PortAudio
// reports the device itself as unusable.
func micError(op string, err error) error {
	if errors.Is(err, portaudio.DeviceUnavailable) || errors.Is(err, portaudio.InvalidDevice) {
		return fmt.Errorf("%w: %s: %w", graph.ErrMicrophoneUnavailable, op, err)
	}
	return fmt.Errorf("device: %s: %w", op, err)
}

// speaker is a PortAudio output stream pulling from the render callback.
type speaker struct {
	rate    int
	devRate int
	frames  int

	mu     sync.Mutex
	stream *portaudio.Stream
	closed bool
}

func (s *speaker) Start(render func(out []float32)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("device: speaker closed")
	}
	if s.stream != nil {
		return nil
	}
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(s.devRate),
		deviceFrames(s.frames, s.rate, s.devRate), renderAt(render, s.rate, s.devRate))
	if err != nil {
		return fmt.Errorf("device: open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("device: start output stream: %w", err)
	}
	s.stream = stream
	return nil
}

func (s *speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	defer release()
	if s.stream == nil {
		return nil
	}
	err := errors.Join(s.stream.Stop(), s.stream.Close())
	s.stream = nil
	if err != nil {
		return fmt.Errorf("device: close output stream: %w", err)
	}
	return nil
}

// microphone buffers PortAudio input callbacks for a blocking reader.
type microphone struct {
	stream  *portaudio.Stream
	blocks  chan []float32
	done    chan struct{}
	once    sync.Once
	convert func(in []float32) []float32 // device thread only

	pending []float32 // only touched by Read
}

func (m *microphone) callback(in []float32) {
	block := m.convert(in)
	if len(block) == 0 {
		return
	}
	select {
	case m.blocks <- block:
	default:
		// Reader fell behind; drop the block rather than stall the device.
	}
}

func (m *microphone) Read(dst []float32) error {
	n := copy(dst, m.pending)
	m.pending = m.pending[n:]
	for n < len(dst) {
		select {
		case <-m.done:
			return errors.New("device: microphone closed")
		case block := <-m.blocks:
			c := copy(dst[n:], block)
			n += c
			m.pending = block[c:]
		}
	}
	return nil
}

func (m *microphone) Close() error {
	var err error
	m.once.Do(func() {
		close(m.done)
		err = errors.Join(m.stream.Stop(), m.stream.Close())
		release()
	})
	if err != nil {
		return fmt.Errorf("device: close input stream: %w", err)
	}
	return nil
}
