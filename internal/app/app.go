// Package app wires the roboface subsystems into a running service.
//
// The App struct owns the full lifecycle: New builds the live client and the
// status surface from the config, Run serves HTTP and samples the playback
// level until the context ends, and Shutdown tears everything down in order.
//
// For testing, pass mock providers in [Providers] and inject metrics via
// [WithMetrics].
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/roboface/internal/config"
	"github.com/MrWong99/roboface/internal/health"
	"github.com/MrWong99/roboface/internal/observe"
	"github.com/MrWong99/roboface/internal/resilience"
	"github.com/MrWong99/roboface/pkg/audio/graph"
	"github.com/MrWong99/roboface/pkg/live"
	"github.com/MrWong99/roboface/pkg/provider/s2s"
)

// Providers holds the instantiated provider for each slot. Populated by
// main.go via the config registry.
type Providers struct {
	S2S   s2s.Provider
	Audio graph.Backend
}

// App owns all subsystem lifetimes of the roboface service.
type App struct {
	cfg       *config.Config
	providers *Providers
	log       *slog.Logger
	level     *slog.LevelVar
	metrics   *observe.Metrics
	obs       *observe.SessionObserver

	guard    *resilience.GuardedS2S
	client   *live.Client
	sessions *SessionManager
	health   *health.Handler
	handler  http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithLevelVar hands the App the level variable backing the process logger
// so config reloads can change verbosity.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithMetrics injects the metric instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg and the instantiated providers. It does not
// open any device or network connection.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.S2S == nil {
		return nil, errors.New("app: s2s provider is required")
	}
	if providers.Audio == nil {
		return nil, errors.New("app: audio backend is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	a.obs = observe.NewSessionObserver(a.metrics, cfg.Providers.S2S.Name)
	a.guard = resilience.GuardS2S(providers.S2S, resilience.CircuitBreakerConfig{
		Name:        "s2s/" + cfg.Providers.S2S.Name,
		MaxFailures: cfg.Resilience.MaxFailures,
		Cooldown:    cfg.Resilience.Cooldown,
		Logger:      a.log,
	})
	a.client = live.New(a.guard, providers.Audio,
		LiveConfig(cfg.Providers.S2S.Model, cfg.Session),
		live.WithLogger(a.log),
		live.WithObserver(a.obs),
	)
	a.sessions = NewSessionManager(a.client, cfg.Providers.S2S.Name, a.log)

	a.health = health.New(
		health.StateChecker("session", a.client.State,
			live.StateIdle, live.StateOpen, live.StateClosed),
		health.StateChecker("s2s", a.guard.Breaker().State,
			resilience.StateClosed, resilience.StateHalfOpen),
	)
	a.handler = a.routes()
	return a, nil
}

// LiveConfig converts the session section of the config file into a
// [live.Config].
func LiveConfig(model string, sc config.SessionConfig) live.Config {
	return live.Config{
		Model:               model,
		Voice:               sc.Voice,
		Persona:             sc.Persona,
		InputTranscription:  sc.InputTranscription,
		OutputTranscription: sc.OutputTranscription,
		InputSampleRate:     sc.InputSampleRate,
		OutputSampleRate:    sc.OutputSampleRate,
		CaptureFrameSize:    sc.CaptureFrameSize,
		RenderFrames:        sc.RenderFrames,
		FFTSize:             sc.Analyser.FFTSize,
		Smoothing:           sc.Analyser.Smoothing,
		LevelCeiling:        sc.Analyser.LevelCeiling,
		SettleDelay:         sc.SettleDelay,
		HandshakeTimeout:    sc.HandshakeTimeout,
	}
}

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Handler returns the status HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Addr returns the address the status server is listening on, or "" before
// Run started serving.
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// ─── HTTP ────────────────────────────────────────────────────────────────────

// levelResponse is the body of GET /level.
type levelResponse struct {
	Amplitude float64 `json:"amplitude"`
	Active    bool    `json:"active"`
	State     string  `json:"state"`
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /level", a.handleLevel)
	mux.HandleFunc("GET /session", a.handleSessionInfo)
	mux.HandleFunc("POST /session", a.handleSessionStart)
	mux.HandleFunc("DELETE /session", a.handleSessionStop)
	return observe.Middleware(a.metrics, a.log)(mux)
}

func (a *App) handleLevel(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, levelResponse{
		Amplitude: a.sessions.Level(),
		Active:    a.sessions.IsActive(),
		State:     a.sessions.State().String(),
	})
}

func (a *App) handleSessionInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.sessions.Info())
}

func (a *App) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	err := a.sessions.Start(r.Context())
	if err == nil {
		writeJSON(w, http.StatusCreated, a.sessions.Info())
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, live.ErrIllegalTransition):
		status = http.StatusConflict
	case errors.Is(err, live.ErrPermission):
		status = http.StatusForbidden
	case errors.Is(err, resilience.ErrCircuitOpen):
		status = http.StatusServiceUnavailable
	case errors.Is(err, live.ErrSessionEstablish):
		status = http.StatusBadGateway
	}
	observe.Logger(r.Context(), a.log).Warn("session start rejected", "status", status, "err", err)
	writeError(w, status, err)
}

func (a *App) handleSessionStop(w http.ResponseWriter, _ *http.Request) {
	if err := a.sessions.Stop(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the status endpoints, samples the playback level and, when
// configured, opens a session right away. It blocks until ctx is cancelled
// or the HTTP server fails, and returns context.Canceled (or the underlying
// cause).
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("app: listen on %q: %w", addr, err)
		}
		srv := &http.Server{
			Handler:           a.handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		a.mu.Lock()
		a.listener, a.server = ln, srv
		a.mu.Unlock()

		g.Go(func() error {
			a.log.Info("status server listening", "addr", ln.Addr().String())
			var err error
			if tls := a.cfg.Server.TLS; tls != nil {
				err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
			} else {
				err = srv.Serve(ln)
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("app: serve: %w", err)
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		a.pollLevel(ctx)
		return nil
	})

	if a.cfg.Session.AutoConnect {
		g.Go(func() error {
			if err := a.sessions.Start(ctx); err != nil {
				a.log.Error("auto-connect failed", "err", err)
			}
			return nil
		})
	}

	a.log.Info("app running",
		"s2s", a.cfg.Providers.S2S.Name,
		"audio", a.cfg.Providers.Audio.Name,
		"auto_connect", a.cfg.Session.AutoConnect,
	)
	<-ctx.Done()

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// pollLevel records the playback level every LevelPollInterval while a
// session is open.
func (a *App) pollLevel(ctx context.Context) {
	interval := a.cfg.Session.LevelPollInterval
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	wasActive := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			active := a.sessions.IsActive()
			if active {
				a.obs.RecordLevel(a.sessions.Level())
			} else if wasActive {
				a.obs.RecordLevel(0)
			}
			wasActive = active
		}
	}
}

// ─── Config reload ───────────────────────────────────────────────────────────

// ApplyConfig is the [config.Watcher] callback. Log level changes apply at
// once; session changes apply to the next process start.
func (a *App) ApplyConfig(_, newCfg *config.Config, d config.ConfigDiff) {
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.SessionChanged {
		a.log.Warn("session settings changed; restart to apply",
			"keys", d.SessionChanges)
	}
	if config.RequiresRestart(a.cfg, newCfg) {
		a.log.Warn("server or provider settings changed; restart to apply")
	}
}

// SlogLevel maps a config log level onto slog.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown disconnects the live session and stops the status server. It
// respects the context deadline for the server drain.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down")

		a.client.Disconnect()

		a.mu.Lock()
		srv := a.server
		a.mu.Unlock()
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil {
				a.log.Warn("status server shutdown error", "err", err)
				shutdownErr = err
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
