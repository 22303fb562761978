package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"s2s":   {"gemini-live", "genai"},
	"audio": {"portaudio", "null"},
}

// APIKeyEnvVars are consulted in order when providers.s2s.api_key is empty.
var APIKeyEnvVars = []string{"API_KEY", "GEMINI_API_KEY"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default], applies
// environment overrides and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg, os.LookupEnv)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv fills secrets that are absent from the file from the environment.
// lookup has the signature of [os.LookupEnv].
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg.Providers.S2S.APIKey != "" {
		return
	}
	for _, name := range APIKeyEnvVars {
		if v, ok := lookup(name); ok && v != "" {
			cfg.Providers.S2S.APIKey = v
			return
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	if cfg.Providers.S2S.Name == "" {
		errs = append(errs, errors.New("providers.s2s.name is required"))
	}
	validateProviderName("s2s", cfg.Providers.S2S.Name)
	validateProviderName("audio", cfg.Providers.Audio.Name)
	if cfg.Providers.S2S.Name != "" && cfg.Providers.S2S.APIKey == "" {
		slog.Warn("providers.s2s.api_key is empty; set it in the config or via API_KEY", "provider", cfg.Providers.S2S.Name)
	}

	// Session
	s := cfg.Session
	if s.InputSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("session.input_sample_rate %d must be positive", s.InputSampleRate))
	}
	if s.OutputSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("session.output_sample_rate %d must be positive", s.OutputSampleRate))
	}
	if s.CaptureFrameSize <= 0 {
		errs = append(errs, fmt.Errorf("session.capture_frame_size %d must be positive", s.CaptureFrameSize))
	}
	if s.RenderFrames <= 0 {
		errs = append(errs, fmt.Errorf("session.render_frames %d must be positive", s.RenderFrames))
	}
	if s.SettleDelay < 0 {
		errs = append(errs, fmt.Errorf("session.settle_delay %s must not be negative", s.SettleDelay))
	}
	if s.HandshakeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("session.handshake_timeout %s must be positive", s.HandshakeTimeout))
	}
	if s.LevelPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("session.level_poll_interval %s must be positive", s.LevelPollInterval))
	}

	a := s.Analyser
	if a.FFTSize < 32 || a.FFTSize > 32768 || a.FFTSize&(a.FFTSize-1) != 0 {
		errs = append(errs, fmt.Errorf("session.analyser.fft_size %d must be a power of two in [32, 32768]", a.FFTSize))
	}
	if a.Smoothing < 0 || a.Smoothing > 1 {
		errs = append(errs, fmt.Errorf("session.analyser.smoothing %.2f is out of range [0, 1]", a.Smoothing))
	}
	if a.LevelCeiling <= 0 {
		errs = append(errs, fmt.Errorf("session.analyser.level_ceiling %.2f must be positive", a.LevelCeiling))
	}

	if r := cfg.Resilience; r.MaxFailures <= 0 || r.Cooldown <= 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d and resilience.cooldown %s must be positive", r.MaxFailures, r.Cooldown))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
