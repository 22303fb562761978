package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the roboface tracer.
const tracerName = "github.com/MrWong99/roboface"

// Span names used by the session layer.
const (
	SpanSessionConnect    = "session.connect"
	SpanSessionDisconnect = "session.disconnect"
)

// Attribute keys that identify a live session on spans and log lines.
const (
	AttrProvider  = attribute.Key("roboface.provider")
	AttrSessionID = attribute.Key("roboface.session_id")
)

type sessionKey struct{}

// sessionScope is what [WithSession] stores in a context.
type sessionScope struct {
	provider  string
	sessionID string
}

// WithSession returns a context that tags every span started by [StartSpan]
// and every logger built by [Logger] with provider and sessionID. An empty
// sessionID means the session is not known yet.
func WithSession(ctx context.Context, provider, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionScope{provider: provider, sessionID: sessionID})
}

// SessionFrom returns the provider and session id stored by [WithSession].
func SessionFrom(ctx context.Context) (provider, sessionID string) {
	s, _ := ctx.Value(sessionKey{}).(sessionScope)
	return s.provider, s.sessionID
}

func (s sessionScope) attrs() []attribute.KeyValue {
	var kv []attribute.KeyValue
	if s.provider != "" {
		kv = append(kv, AttrProvider.String(s.provider))
	}
	if s.sessionID != "" {
		kv = append(kv, AttrSessionID.String(s.sessionID))
	}
	return kv
}

// Tracer returns the roboface tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span carrying the session attributes found in ctx. The
// caller must end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if s, ok := ctx.Value(sessionKey{}).(sessionScope); ok {
		if kv := s.attrs(); len(kv) > 0 {
			opts = append(opts, trace.WithAttributes(kv...))
		}
	}
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID returns the trace id of the span in ctx, or "".
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns base (or slog.Default() when nil) enriched with the trace
// and session found in ctx.
func Logger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	var args []any
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		args = append(args,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	provider, id := SessionFrom(ctx)
	if provider != "" {
		args = append(args, slog.String("provider", provider))
	}
	if id != "" {
		args = append(args, slog.String("session_id", id))
	}
	if len(args) == 0 {
		return base
	}
	return base.With(args...)
}
