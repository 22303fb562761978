package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/roboface/internal/observe"
	"github.com/MrWong99/roboface/pkg/live"
)

// maxTranscriptLines bounds the transcript kept in [SessionInfo].
const maxTranscriptLines = 200

// ErrNoSession is returned by [SessionManager.Stop] when nothing is connected.
var ErrNoSession = errors.New("session: no active session")

// TranscriptLine is one finished utterance of either speaker.
type TranscriptLine struct {
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// SessionInfo holds metadata about the current or last session.
type SessionInfo struct {
	// SessionID is the identifier of the current or last session.
	SessionID string `json:"session_id,omitempty"`

	// State is the lifecycle state at the time Info was called.
	State string `json:"state"`

	// StartedAt is when the last Start call opened the session.
	StartedAt time.Time `json:"started_at,omitzero"`

	// StoppedAt is when the session ended locally or remotely.
	StoppedAt time.Time `json:"stopped_at,omitzero"`

	// LastError is the most recent error reported by the session.
	LastError string `json:"last_error,omitempty"`

	// SendFailures is the number of capture frames that failed to send.
	SendFailures int64 `json:"send_failures"`

	// Transcript holds the most recent finished utterances, oldest first.
	Transcript []TranscriptLine `json:"transcript,omitempty"`
}

// SessionManager drives a [live.Client] on behalf of the service and keeps a
// running transcript of the conversation. All exported methods are safe for
// concurrent use.
type SessionManager struct {
	client   *live.Client
	log      *slog.Logger
	provider string

	// startMu serialises Start so concurrent callers observe one outcome.
	startMu sync.Mutex

	mu      sync.Mutex
	info    SessionInfo
	lastErr error
	partial map[string]*strings.Builder
}

// NewSessionManager creates a SessionManager around client. provider is the
// configured s2s provider name; it tags the session spans and log lines.
func NewSessionManager(client *live.Client, provider string, log *slog.Logger) *SessionManager {
	if log == nil {
		log = slog.Default()
	}
	return &SessionManager{
		client:   client,
		log:      log,
		provider: provider,
		partial:  make(map[string]*strings.Builder, 2),
	}
}

// Start opens a new session. Unlike [live.Client.Connect], audio setup
// failures are returned as errors so callers have a single failure path.
//
// Returns an error wrapping [live.ErrIllegalTransition] if a session is
// already connecting or open.
func (sm *SessionManager) Start(ctx context.Context) error {
	sm.startMu.Lock()
	defer sm.startMu.Unlock()

	ctx, span := observe.StartSpan(observe.WithSession(ctx, sm.provider, ""), observe.SpanSessionConnect)
	defer span.End()

	if st := sm.client.State(); st == live.StateConnecting || st == live.StateOpen {
		err := fmt.Errorf("session: start while %s: %w", st, live.ErrIllegalTransition)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	sm.mu.Lock()
	sm.lastErr = nil
	sm.info.LastError = ""
	sm.info.Transcript = nil
	clear(sm.partial)
	sm.mu.Unlock()

	err := sm.client.Connect(ctx, live.Callbacks{
		OnClose:         sm.onClose,
		OnError:         sm.onError,
		OnTranscription: sm.onTranscription,
	})
	if err == nil && !sm.client.IsActive() {
		sm.mu.Lock()
		err = sm.lastErr
		sm.mu.Unlock()
		if err == nil {
			err = errors.New("session closed during connect")
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		sm.recordError(err)
		return fmt.Errorf("session: start: %w", err)
	}

	id := sm.client.SessionID()
	span.SetAttributes(observe.AttrSessionID.String(id))

	sm.mu.Lock()
	sm.info.SessionID = id
	sm.info.StartedAt = time.Now().UTC()
	sm.info.StoppedAt = time.Time{}
	sm.mu.Unlock()

	observe.Logger(observe.WithSession(ctx, sm.provider, id), sm.log).Info("session started")
	return nil
}

// Stop ends the active session. It returns [ErrNoSession] when neither
// connecting nor open.
func (sm *SessionManager) Stop() error {
	switch sm.client.State() {
	case live.StateConnecting, live.StateOpen:
	default:
		return ErrNoSession
	}
	ctx, span := observe.StartSpan(
		observe.WithSession(context.Background(), sm.provider, sm.client.SessionID()),
		observe.SpanSessionDisconnect)
	defer span.End()

	sm.client.Disconnect()

	sm.mu.Lock()
	sm.flushPartialLocked()
	sm.info.StoppedAt = time.Now().UTC()
	sm.mu.Unlock()

	observe.Logger(ctx, sm.log).Info("session stopped")
	return nil
}

// IsActive reports whether a session is currently open.
func (sm *SessionManager) IsActive() bool { return sm.client.IsActive() }

// State returns the lifecycle state of the underlying client.
func (sm *SessionManager) State() live.State { return sm.client.State() }

// Level returns the normalised playback amplitude in [0, 1].
func (sm *SessionManager) Level() float64 { return sm.client.AudioLevel() }

// Info returns a snapshot of the current or last session.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	info := sm.info
	info.State = sm.client.State().String()
	info.SendFailures = sm.client.SendFailures()
	info.Transcript = append([]TranscriptLine(nil), sm.info.Transcript...)
	return info
}

func (sm *SessionManager) onClose() {
	sm.mu.Lock()
	sm.flushPartialLocked()
	sm.info.StoppedAt = time.Now().UTC()
	id := sm.info.SessionID
	sm.mu.Unlock()
	sm.log.Info("session closed by remote", "session_id", id)
}

func (sm *SessionManager) onError(err error) {
	sm.log.Error("session error", "err", err)
	sm.recordError(err)
}

func (sm *SessionManager) recordError(err error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.lastErr = err
	sm.info.LastError = err.Error()
}

// onTranscription accumulates incremental fragments per speaker and commits
// a line once the fragment is final. An empty final user fragment closes the
// model's turn.
func (sm *SessionManager) onTranscription(text string, isUser, isFinal bool) {
	speaker := "model"
	if isUser {
		speaker = "user"
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if text == "" && isUser && isFinal {
		sm.commitLocked("model")
		return
	}
	b := sm.partial[speaker]
	if b == nil {
		b = &strings.Builder{}
		sm.partial[speaker] = b
	}
	b.WriteString(text)
	if isFinal {
		sm.commitLocked(speaker)
	}
}

func (sm *SessionManager) commitLocked(speaker string) {
	b := sm.partial[speaker]
	if b == nil {
		return
	}
	text := strings.TrimSpace(b.String())
	delete(sm.partial, speaker)
	if text == "" {
		return
	}
	sm.log.Debug("transcript", "speaker", speaker, "text", text)
	sm.info.Transcript = append(sm.info.Transcript, TranscriptLine{
		Speaker: speaker,
		Text:    text,
		At:      time.Now().UTC(),
	})
	if n := len(sm.info.Transcript); n > maxTranscriptLines {
		sm.info.Transcript = sm.info.Transcript[n-maxTranscriptLines:]
	}
}

func (sm *SessionManager) flushPartialLocked() {
	sm.commitLocked("user")
	sm.commitLocked("model")
}
