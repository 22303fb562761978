package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/roboface/pkg/live"
)

var _ live.Observer = (*SessionObserver)(nil)

// SessionObserver records live session telemetry into [Metrics]. It satisfies
// live.Observer.
type SessionObserver struct {
	m        *Metrics
	provider string
}

// NewSessionObserver returns an observer that tags provider errors with the
// given provider name.
func NewSessionObserver(m *Metrics, provider string) *SessionObserver {
	return &SessionObserver{m: m, provider: provider}
}

func (o *SessionObserver) HandshakeCompleted(d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		o.m.RecordProviderError(context.Background(), o.provider, "handshake")
	}
	o.m.HandshakeDuration.Record(context.Background(), d.Seconds(),
		metric.WithAttributes(Attr("status", status)))
}

func (o *SessionObserver) SessionActive(active bool) {
	delta := int64(-1)
	if active {
		delta = 1
	}
	o.m.ActiveSessions.Add(context.Background(), delta)
}

func (o *SessionObserver) FrameSent() { o.m.FramesSent.Add(context.Background(), 1) }

func (o *SessionObserver) FrameDropped() { o.m.SendFailures.Add(context.Background(), 1) }

func (o *SessionObserver) ChunkScheduled(seconds float64) {
	ctx := context.Background()
	o.m.ChunksScheduled.Add(ctx, 1)
	o.m.ChunkDuration.Record(ctx, seconds)
}

func (o *SessionObserver) DecodeFailed() { o.m.DecodeErrors.Add(context.Background(), 1) }

func (o *SessionObserver) PlaybackInterrupted(stopped int) {
	ctx := context.Background()
	o.m.Interruptions.Add(ctx, 1)
	o.m.InterruptedChunks.Add(ctx, int64(stopped))
}

func (o *SessionObserver) TranscriptionReceived(isUser bool) {
	speaker := "model"
	if isUser {
		speaker = "user"
	}
	o.m.Transcriptions.Add(context.Background(), 1, metric.WithAttributes(Attr("speaker", speaker)))
}

func (o *SessionObserver) ConnectionError() {
	o.m.RecordProviderError(context.Background(), o.provider, "connection")
}

// RecordLevel stores the latest sampled playback amplitude.
func (o *SessionObserver) RecordLevel(level float64) {
	o.m.OutputLevel.Record(context.Background(), level)
}
