package live

import "time"

// Default session parameters.
const (
	DefaultModel            = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultVoice            = "Zephyr"
	DefaultInputSampleRate  = 16000
	DefaultOutputSampleRate = 24000
	DefaultCaptureFrameSize = 4096
	DefaultRenderFrames     = 480
	DefaultFFTSize          = 256
	DefaultSmoothing        = 0.5
	DefaultLevelCeiling     = 100
	DefaultSettleDelay      = 500 * time.Millisecond
	DefaultHandshakeTimeout = 30 * time.Second
)

// Config configures a [Client]. Start from [DefaultConfig]; zero values in
// fields documented with a default are replaced by it.
type Config struct {
	// Model is the remote model identifier. Defaults to DefaultModel if empty.
	Model string

	// Voice is the prebuilt voice name. Defaults to DefaultVoice if empty.
	Voice string

	// Persona is the system instruction sent with the session setup.
	Persona string

	// InputTranscription requests transcripts of the user's speech.
	InputTranscription bool

	// OutputTranscription requests transcripts of the model's speech.
	OutputTranscription bool

	// InputSampleRate is the capture context rate in Hz. Defaults to 16000.
	InputSampleRate int

	// OutputSampleRate is the playback context rate in Hz. Defaults to 24000.
	OutputSampleRate int

	// CaptureFrameSize is the number of samples per outbound frame.
	// Defaults to 4096.
	CaptureFrameSize int

	// RenderFrames is the playback device block size. Defaults to 480.
	RenderFrames int

	// FFTSize is the analyser window. Defaults to 256.
	FFTSize int

	// Smoothing is the analyser time constant in [0, 1]. Used as is; take
	// the default from DefaultConfig.
	Smoothing float64

	// LevelCeiling normalises the mean analyser bin value into [0, 1].
	// Defaults to 100.
	LevelCeiling float64

	// SettleDelay is waited after the session opened before capture starts.
	// Zero or negative starts capture immediately.
	SettleDelay time.Duration

	// HandshakeTimeout bounds the remote handshake. Defaults to 30s if zero.
	HandshakeTimeout time.Duration
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		Model:            DefaultModel,
		Voice:            DefaultVoice,
		InputSampleRate:  DefaultInputSampleRate,
		OutputSampleRate: DefaultOutputSampleRate,
		CaptureFrameSize: DefaultCaptureFrameSize,
		RenderFrames:     DefaultRenderFrames,
		FFTSize:          DefaultFFTSize,
		Smoothing:        DefaultSmoothing,
		LevelCeiling:     DefaultLevelCeiling,
		SettleDelay:      DefaultSettleDelay,
		HandshakeTimeout: DefaultHandshakeTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Voice == "" {
		c.Voice = DefaultVoice
	}
	if c.InputSampleRate <= 0 {
		c.InputSampleRate = DefaultInputSampleRate
	}
	if c.OutputSampleRate <= 0 {
		c.OutputSampleRate = DefaultOutputSampleRate
	}
	if c.CaptureFrameSize <= 0 {
		c.CaptureFrameSize = DefaultCaptureFrameSize
	}
	if c.RenderFrames <= 0 {
		c.RenderFrames = DefaultRenderFrames
	}
	if c.FFTSize <= 0 {
		c.FFTSize = DefaultFFTSize
	}
	if c.LevelCeiling <= 0 {
		c.LevelCeiling = DefaultLevelCeiling
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return c
}
