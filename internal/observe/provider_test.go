package observe

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

func TestInitProvider_ExportsSessionMetrics(t *testing.T) {
	origMP, origTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	reg := prometheus.NewRegistry()
	shutdown, err := InitProvider(context.Background(), ProviderConfig{
		ServiceVersion: "test",
		S2SProvider:    "genai",
		AudioBackend:   "null",
		Registerer:     reg,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	o := NewSessionObserver(m, "genai")
	o.HandshakeCompleted(150*time.Millisecond, nil)
	o.FrameSent()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var handshake, frames bool
	labels := map[string]string{}
	for _, f := range families {
		name := f.GetName()
		switch {
		case strings.HasPrefix(name, "roboface_session_handshake_duration"):
			handshake = true
		case strings.HasPrefix(name, "roboface_capture_frames_sent"):
			frames = true
		case name == "target_info":
			for _, lp := range f.GetMetric()[0].GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
		}
	}
	if !handshake {
		t.Error("handshake duration not exported")
	}
	if !frames {
		t.Error("frames sent not exported")
	}
	if labels["roboface_s2s_provider"] != "genai" || labels["roboface_audio_backend"] != "null" {
		t.Errorf("target_info labels: got %v, want s2s provider genai and audio backend null", labels)
	}
	if labels["service_name"] != "roboface" {
		t.Errorf("service_name: got %q, want roboface", labels["service_name"])
	}
}
