package config

// ConfigDiff describes what changed between two configs.
// The log level applies immediately; session changes are reported so the
// service can tell the operator which keys need a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	SessionChanged bool
	SessionChanges []string // yaml keys under session that changed
}

// RequiresRestart reports whether old and new differ in fields that are only
// read at startup (listen address, providers, resilience).
func RequiresRestart(old, new *Config) bool {
	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.LogFormat != new.Server.LogFormat {
		return true
	}
	if old.Resilience != new.Resilience {
		return true
	}
	return !providerEntryEqual(old.Providers.S2S, new.Providers.S2S) ||
		!providerEntryEqual(old.Providers.Audio, new.Providers.Audio)
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	o, n := old.Session, new.Session
	check := func(key string, changed bool) {
		if changed {
			d.SessionChanges = append(d.SessionChanges, key)
		}
	}
	check("voice", o.Voice != n.Voice)
	check("persona", o.Persona != n.Persona)
	check("input_transcription", o.InputTranscription != n.InputTranscription)
	check("output_transcription", o.OutputTranscription != n.OutputTranscription)
	check("settle_delay", o.SettleDelay != n.SettleDelay)
	check("handshake_timeout", o.HandshakeTimeout != n.HandshakeTimeout)
	check("capture_frame_size", o.CaptureFrameSize != n.CaptureFrameSize)
	check("input_sample_rate", o.InputSampleRate != n.InputSampleRate)
	check("output_sample_rate", o.OutputSampleRate != n.OutputSampleRate)
	check("render_frames", o.RenderFrames != n.RenderFrames)
	check("analyser", o.Analyser != n.Analyser)
	d.SessionChanged = len(d.SessionChanges) > 0

	return d
}

func providerEntryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, av := range a.Options {
		bv, ok := b.Options[k]
		if !ok || !scalarEqual(av, bv) {
			return false
		}
	}
	return true
}

// scalarEqual compares option values; nested maps and lists count as changed.
func scalarEqual(a, b any) bool {
	switch a.(type) {
	case map[string]any, []any:
		return false
	}
	switch b.(type) {
	case map[string]any, []any:
		return false
	}
	return a == b
}
