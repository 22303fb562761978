package config_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/roboface/internal/config"
	"github.com/MrWong99/roboface/pkg/audio"
	"github.com/MrWong99/roboface/pkg/audio/graph"
	audiomock "github.com/MrWong99/roboface/pkg/audio/mock"
	"github.com/MrWong99/roboface/pkg/provider/s2s"
	s2smock "github.com/MrWong99/roboface/pkg/provider/s2s/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  log_format: json

providers:
  s2s:
    name: genai
    api_key: test-key
    model: gemini-live-test
  audio:
    name: "null"

session:
  auto_connect: true
  voice: Puck
  persona: You are a helpful desk robot.
  output_transcription: false
  settle_delay: 250ms
  handshake_timeout: 10s
  capture_frame_size: 2048
  analyser:
    fft_size: 512
    smoothing: 0.8
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if cfg.Server.LogFormat != config.LogFormatJSON {
		t.Errorf("server.log_format: got %q, want %q", cfg.Server.LogFormat, config.LogFormatJSON)
	}
	if cfg.Providers.S2S.Name != "genai" || cfg.Providers.S2S.Model != "gemini-live-test" {
		t.Errorf("providers.s2s: got %+v", cfg.Providers.S2S)
	}
	if cfg.Providers.S2S.APIKey != "test-key" {
		t.Errorf("providers.s2s.api_key: got %q, want %q", cfg.Providers.S2S.APIKey, "test-key")
	}
	if cfg.Providers.Audio.Name != "null" {
		t.Errorf("providers.audio.name: got %q, want %q", cfg.Providers.Audio.Name, "null")
	}

	s := cfg.Session
	if !s.AutoConnect {
		t.Error("session.auto_connect: got false, want true")
	}
	if s.Voice != "Puck" {
		t.Errorf("session.voice: got %q, want Puck", s.Voice)
	}
	if s.Persona != "You are a helpful desk robot." {
		t.Errorf("session.persona: got %q", s.Persona)
	}
	if !s.InputTranscription {
		t.Error("session.input_transcription: default true was lost")
	}
	if s.OutputTranscription {
		t.Error("session.output_transcription: got true, want false")
	}
	if s.SettleDelay != 250*time.Millisecond {
		t.Errorf("session.settle_delay: got %v, want 250ms", s.SettleDelay)
	}
	if s.HandshakeTimeout != 10*time.Second {
		t.Errorf("session.handshake_timeout: got %v, want 10s", s.HandshakeTimeout)
	}
	if s.CaptureFrameSize != 2048 {
		t.Errorf("session.capture_frame_size: got %d, want 2048", s.CaptureFrameSize)
	}
	if s.Analyser.FFTSize != 512 || s.Analyser.Smoothing != 0.8 {
		t.Errorf("session.analyser: got %+v", s.Analyser)
	}
	// Untouched keys keep their defaults.
	if s.Analyser.LevelCeiling != 100 {
		t.Errorf("session.analyser.level_ceiling: got %v, want default 100", s.Analyser.LevelCeiling)
	}
	if s.InputSampleRate != 16000 || s.OutputSampleRate != 24000 {
		t.Errorf("sample rates: got %d/%d, want 16000/24000", s.InputSampleRate, s.OutputSampleRate)
	}
}

func TestLoadFromReader_EmptyUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error for empty config: %v", err)
	}
	def := config.Default()
	if cfg.Session != def.Session {
		t.Errorf("session: got %+v, want defaults %+v", cfg.Session, def.Session)
	}
	if cfg.Providers.S2S.Name != "gemini-live" {
		t.Errorf("providers.s2s.name: got %q, want gemini-live", cfg.Providers.S2S.Name)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("session:\n  volume: 11\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "volume") {
		t.Errorf("error should name the unknown field, got: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := config.Load("/nonexistent/roboface.yaml"); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

// ── validation ────────────────────────────────────────────────────────────────

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr string
	}{
		{"defaults", func(*config.Config) {}, ""},
		{"bad log level", func(c *config.Config) { c.Server.LogLevel = "loud" }, "server.log_level"},
		{"bad log format", func(c *config.Config) { c.Server.LogFormat = "xml" }, "server.log_format"},
		{"half tls", func(c *config.Config) { c.Server.TLS = &config.TLSConfig{CertFile: "c.pem"} }, "server.tls"},
		{"no s2s provider", func(c *config.Config) { c.Providers.S2S.Name = "" }, "providers.s2s.name"},
		{"zero input rate", func(c *config.Config) { c.Session.InputSampleRate = 0 }, "session.input_sample_rate"},
		{"zero output rate", func(c *config.Config) { c.Session.OutputSampleRate = 0 }, "session.output_sample_rate"},
		{"zero frame size", func(c *config.Config) { c.Session.CaptureFrameSize = 0 }, "session.capture_frame_size"},
		{"zero render frames", func(c *config.Config) { c.Session.RenderFrames = 0 }, "session.render_frames"},
		{"negative settle", func(c *config.Config) { c.Session.SettleDelay = -time.Second }, "session.settle_delay"},
		{"zero settle is fine", func(c *config.Config) { c.Session.SettleDelay = 0 }, ""},
		{"zero handshake", func(c *config.Config) { c.Session.HandshakeTimeout = 0 }, "session.handshake_timeout"},
		{"zero poll", func(c *config.Config) { c.Session.LevelPollInterval = 0 }, "session.level_poll_interval"},
		{"fft not power of two", func(c *config.Config) { c.Session.Analyser.FFTSize = 300 }, "fft_size"},
		{"fft too small", func(c *config.Config) { c.Session.Analyser.FFTSize = 16 }, "fft_size"},
		{"smoothing above one", func(c *config.Config) { c.Session.Analyser.Smoothing = 1.5 }, "smoothing"},
		{"zero ceiling", func(c *config.Config) { c.Session.Analyser.LevelCeiling = 0 }, "level_ceiling"},
		{"zero breaker failures", func(c *config.Config) { c.Resilience.MaxFailures = 0 }, "resilience.max_failures"},
		{"zero breaker cooldown", func(c *config.Config) { c.Resilience.Cooldown = 0 }, "resilience.cooldown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			cfg.Providers.S2S.APIKey = "k"
			tt.mutate(cfg)
			err := config.Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error mentioning %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error should mention %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Server.LogLevel = "loud"
	cfg.Session.CaptureFrameSize = -1
	cfg.Session.Analyser.Smoothing = 2

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"log_level", "capture_frame_size", "smoothing"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}

// ── environment ───────────────────────────────────────────────────────────────

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := func(m map[string]string) func(string) (string, bool) {
		return func(k string) (string, bool) {
			v, ok := m[k]
			return v, ok
		}
	}

	tests := []struct {
		name    string
		fileKey string
		env     map[string]string
		want    string
	}{
		{"API_KEY fills empty key", "", map[string]string{"API_KEY": "a"}, "a"},
		{"GEMINI_API_KEY fallback", "", map[string]string{"GEMINI_API_KEY": "g"}, "g"},
		{"API_KEY wins over GEMINI_API_KEY", "", map[string]string{"API_KEY": "a", "GEMINI_API_KEY": "g"}, "a"},
		{"empty env value skipped", "", map[string]string{"API_KEY": "", "GEMINI_API_KEY": "g"}, "g"},
		{"file key kept", "f", map[string]string{"API_KEY": "a"}, "f"},
		{"nothing set", "", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			cfg.Providers.S2S.APIKey = tt.fileKey
			config.ApplyEnv(cfg, env(tt.env))
			if got := cfg.Providers.S2S.APIKey; got != tt.want {
				t.Errorf("api_key: got %q, want %q", got, tt.want)
			}
		})
	}
}

// ── registry ──────────────────────────────────────────────────────────────────

func TestRegistry_S2S(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	want := &s2smock.Provider{}
	var gotEntry config.ProviderEntry
	reg.RegisterS2S("fake", func(e config.ProviderEntry) (s2s.Provider, error) {
		gotEntry = e
		return want, nil
	})

	entry := config.ProviderEntry{Name: "fake", APIKey: "k", Model: "m"}
	p, err := reg.CreateS2S(entry)
	if err != nil {
		t.Fatalf("CreateS2S: %v", err)
	}
	if p != want {
		t.Error("CreateS2S returned a different provider")
	}
	if gotEntry.APIKey != "k" || gotEntry.Model != "m" {
		t.Errorf("factory entry: got %+v", gotEntry)
	}

	// Sanity check the provider is usable.
	if _, err := p.Connect(context.Background(), s2s.SessionConfig{}); err != nil {
		t.Errorf("Connect: %v", err)
	}
}

func TestRegistry_Audio(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	backend := &audiomock.Backend{}
	reg.RegisterAudio("fake", func(config.ProviderEntry) (graph.Backend, error) { return backend, nil })

	b, err := reg.CreateAudio(config.ProviderEntry{Name: "fake"})
	if err != nil {
		t.Fatalf("CreateAudio: %v", err)
	}
	if _, err := b.OpenSink(audio.Format{SampleRate: 24000, Channels: 1}, 480); err != nil {
		t.Errorf("OpenSink: %v", err)
	}
	if backend.CallCountOpenSink != 1 {
		t.Errorf("OpenSink calls: got %d, want 1", backend.CallCountOpenSink)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	if _, err := reg.CreateS2S(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateS2S: got %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateAudio(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateAudio: got %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	boom := errors.New("boom")
	reg.RegisterS2S("bad", func(config.ProviderEntry) (s2s.Provider, error) { return nil, boom })
	if _, err := reg.CreateS2S(config.ProviderEntry{Name: "bad"}); !errors.Is(err, boom) {
		t.Errorf("got %v, want %v", err, boom)
	}
}
