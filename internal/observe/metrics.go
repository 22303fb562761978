// Package observe provides application-wide observability primitives for
// roboface: OpenTelemetry metrics, tracing helpers, and HTTP middleware that
// ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all roboface metrics.
const meterName = "github.com/MrWong99/roboface"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// HandshakeDuration tracks how long opening a remote session took. Use
	// with attribute.String("status", "ok"|"error").
	HandshakeDuration metric.Float64Histogram

	// ChunkDuration tracks the playback length of scheduled audio chunks.
	ChunkDuration metric.Float64Histogram

	// --- Counters ---

	// FramesSent counts capture frames delivered to the remote session.
	FramesSent metric.Int64Counter

	// SendFailures counts capture frames whose send failed while open.
	SendFailures metric.Int64Counter

	// ChunksScheduled counts inbound audio chunks queued for playback.
	ChunksScheduled metric.Int64Counter

	// DecodeErrors counts inbound audio payloads that could not be decoded.
	DecodeErrors metric.Int64Counter

	// Interruptions counts barge-in events.
	Interruptions metric.Int64Counter

	// InterruptedChunks counts chunks cut short by barge-in.
	InterruptedChunks metric.Int64Counter

	// Transcriptions counts forwarded transcript fragments. Use with
	// attribute.String("speaker", "user"|"model").
	Transcriptions metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live sessions.
	ActiveSessions metric.Int64UpDownCounter

	// OutputLevel is the last sampled playback amplitude in [0, 1].
	OutputLevel metric.Float64Gauge

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks status server latency by mux route and
	// response status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// handshake and network latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// chunkBuckets covers the typical 20 ms to 2 s model audio chunks.
var chunkBuckets = []float64{
	0.02, 0.04, 0.08, 0.16, 0.32, 0.64, 1.28, 2.56,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.HandshakeDuration, err = m.Float64Histogram("roboface.session.handshake.duration",
		metric.WithDescription("Latency of the remote session handshake."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ChunkDuration, err = m.Float64Histogram("roboface.playback.chunk.duration",
		metric.WithDescription("Playback length of scheduled audio chunks."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(chunkBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.FramesSent, "roboface.capture.frames_sent", "Total capture frames sent to the remote session."},
		{&met.SendFailures, "roboface.capture.send_failures", "Total capture frames that failed to send while the session was open."},
		{&met.ChunksScheduled, "roboface.playback.chunks", "Total inbound audio chunks scheduled for playback."},
		{&met.DecodeErrors, "roboface.playback.decode_errors", "Total inbound audio payloads that failed to decode."},
		{&met.Interruptions, "roboface.playback.interruptions", "Total barge-in interruptions."},
		{&met.InterruptedChunks, "roboface.playback.interrupted_chunks", "Total chunks stopped by barge-in."},
		{&met.Transcriptions, "roboface.transcriptions", "Total transcript fragments by speaker."},
		{&met.ProviderErrors, "roboface.provider.errors", "Total provider errors by provider and kind."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	// Gauges.
	if met.ActiveSessions, err = m.Int64UpDownCounter("roboface.active_sessions",
		metric.WithDescription("Number of live sessions."),
	); err != nil {
		return nil, err
	}
	if met.OutputLevel, err = m.Float64Gauge("roboface.playback.level",
		metric.WithDescription("Last sampled playback amplitude in [0, 1]."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("roboface.http.request.duration",
		metric.WithDescription("Status server request latency by route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
