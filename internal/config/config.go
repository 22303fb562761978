// Package config provides the configuration schema, loader, and provider registry
// for the roboface live audio service.
package config

import "time"

// LogLevel controls log verbosity for the roboface server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON
}

// Config is the root configuration structure for roboface.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Session   SessionConfig   `yaml:"session"`

	Resilience ResilienceConfig `yaml:"resilience"`
}

// ServerConfig holds network and logging settings for the status server.
type ServerConfig struct {
	// ListenAddr is the TCP address the status server listens on (e.g., ":8080").
	// Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFormat selects text or JSON log output.
	LogFormat LogFormat `yaml:"log_format"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which implementation to use for the remote speech
// session and for the local audio devices. Each field selects a named
// provider registered in the [Registry].
type ProvidersConfig struct {
	S2S   ProviderEntry `yaml:"s2s"`
	Audio ProviderEntry `yaml:"audio"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "gemini-live", "portaudio").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// SessionConfig tunes the live session: persona, voice, audio graph and
// timing. Unset keys keep the values from [Default].
type SessionConfig struct {
	// AutoConnect opens a session as soon as the service starts.
	AutoConnect bool `yaml:"auto_connect"`

	// Voice is the prebuilt voice name.
	Voice string `yaml:"voice"`

	// Persona is the system instruction for the agent.
	Persona string `yaml:"persona"`

	InputTranscription  bool `yaml:"input_transcription"`
	OutputTranscription bool `yaml:"output_transcription"`

	// SettleDelay is waited after the session opened before capture starts.
	SettleDelay time.Duration `yaml:"settle_delay"`

	// HandshakeTimeout bounds the remote session setup.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	CaptureFrameSize int `yaml:"capture_frame_size"`
	InputSampleRate  int `yaml:"input_sample_rate"`
	OutputSampleRate int `yaml:"output_sample_rate"`
	RenderFrames     int `yaml:"render_frames"`

	Analyser AnalyserConfig `yaml:"analyser"`

	// LevelPollInterval is how often the service samples the playback level
	// for the status endpoint and metrics.
	LevelPollInterval time.Duration `yaml:"level_poll_interval"`
}

// AnalyserConfig configures the playback amplitude analyser.
type AnalyserConfig struct {
	// FFTSize is the analysis window, a power of two in [32, 32768].
	FFTSize int `yaml:"fft_size"`

	// Smoothing is the time constant in [0, 1].
	Smoothing float64 `yaml:"smoothing"`

	// LevelCeiling normalises the mean bin value into [0, 1].
	LevelCeiling float64 `yaml:"level_ceiling"`
}

// ResilienceConfig tunes the circuit breaker in front of the s2s provider.
type ResilienceConfig struct {
	// MaxFailures is the number of consecutive failed handshakes after which
	// Connect is rejected locally.
	MaxFailures int `yaml:"max_failures"`

	// Cooldown is how long handshakes stay rejected before one trial handshake is let
	// through.
	Cooldown time.Duration `yaml:"cooldown"`
}

// Default returns the configuration used for keys absent from the YAML file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
			LogFormat:  LogFormatText,
		},
		Providers: ProvidersConfig{
			S2S:   ProviderEntry{Name: "gemini-live"},
			Audio: ProviderEntry{Name: "portaudio"},
		},
		Session: SessionConfig{
			Voice:               "Zephyr",
			InputTranscription:  true,
			OutputTranscription: true,
			SettleDelay:         500 * time.Millisecond,
			HandshakeTimeout:    30 * time.Second,
			CaptureFrameSize:    4096,
			InputSampleRate:     16000,
			OutputSampleRate:    24000,
			RenderFrames:        480,
			Analyser: AnalyserConfig{
				FFTSize:      256,
				Smoothing:    0.5,
				LevelCeiling: 100,
			},
			LevelPollInterval: 50 * time.Millisecond,
		},
		Resilience: ResilienceConfig{
			MaxFailures: 3,
			Cooldown:    30 * time.Second,
		},
	}
}
