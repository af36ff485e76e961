package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/kioskvoice/internal/dialogue"
	"github.com/MrWong99/kioskvoice/internal/observe"
)

// ErrNoSession is returned by [SessionManager.Stop] when no session is
// active, and by [SessionManager.Wait] before the first session.
var ErrNoSession = errors.New("session: no active session")

// LoopFactory builds the dialogue loop for a new session.
type LoopFactory func(sessionID, orderType string) (*dialogue.Loop, error)

// SessionInfo holds metadata about an active session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string `json:"session_id"`

	// OrderType is what the kiosk screen passed when starting the session
	// (e.g., "dineIn" or "takeOut").
	OrderType string `json:"order_type"`

	// StartedAt is when the session was started.
	StartedAt time.Time `json:"started_at"`
}

// Status is a snapshot of the session manager.
type Status struct {
	Active bool                  `json:"session_active"`
	Info   SessionInfo           `json:"session"`
	State  dialogue.SessionState `json:"state"`

	// LastError is the error the previous session ended with, if any.
	LastError string `json:"last_error,omitempty"`
}

// run is one session's goroutine and its outcome.
type run struct {
	info   SessionInfo
	loop   *dialogue.Loop
	cancel context.CancelFunc
	done   chan struct{}
	err    error // set before done is closed
}

// SessionManager manages the lifecycle of voice sessions.
// Only one session can be active at a time (enforced by mutex).
// All exported methods are safe for concurrent use.
type SessionManager struct {
	// opMu serializes Start and Stop, which may wait for a loop to return.
	opMu sync.Mutex

	mu      sync.Mutex
	cur     *run
	last    *run // most recently started, kept after it ends
	lastErr error

	factory LoopFactory
	metrics *observe.Metrics
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Factory LoopFactory
	Metrics *observe.Metrics
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	return &SessionManager{
		factory: cfg.Factory,
		metrics: cfg.Metrics,
	}
}

// Start begins a new voice session. An active session is stopped first, so
// the kiosk screen can restart the dialogue at any time. The session runs
// until an exit phrase, a device failure, or [SessionManager.Stop]. It is not
// tied to ctx beyond the call itself.
func (sm *SessionManager) Start(ctx context.Context, orderType string) (SessionInfo, error) {
	sm.opMu.Lock()
	defer sm.opMu.Unlock()

	if prev := sm.current(); prev != nil {
		slog.Info("session: replacing active session", "session_id", prev.info.SessionID)
		if err := sm.stop(ctx, prev); err != nil {
			return SessionInfo{}, fmt.Errorf("session: stop previous: %w", err)
		}
	}

	sessionID := uuid.NewString()
	loop, err := sm.factory(sessionID, orderType)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("session: build pipeline: %w", err)
	}

	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{
		info: SessionInfo{
			SessionID: sessionID,
			OrderType: orderType,
			StartedAt: time.Now().UTC(),
		},
		loop:   loop,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	sm.mu.Lock()
	sm.cur = r
	sm.last = r
	sm.lastErr = nil
	sm.mu.Unlock()
	if sm.metrics != nil {
		sm.metrics.ActiveSessions.Add(ctx, 1)
	}

	go sm.run(sessionCtx, r)

	slog.Info("session started", "session_id", sessionID, "order_type", orderType)
	return r.info, nil
}

func (sm *SessionManager) run(ctx context.Context, r *run) {
	err := r.loop.Run(ctx)
	r.cancel()

	sm.mu.Lock()
	if sm.cur == r {
		sm.cur = nil
	}
	sm.lastErr = err
	sm.mu.Unlock()
	if sm.metrics != nil {
		sm.metrics.ActiveSessions.Add(context.Background(), -1)
	}

	r.err = err
	close(r.done)

	if err != nil {
		slog.Error("session ended with error", "session_id", r.info.SessionID, "err", err)
		return
	}
	slog.Info("session ended", "session_id", r.info.SessionID)
}

func (sm *SessionManager) current() *run {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.cur
}

// Stop cancels the active session and waits for its loop to return, or for
// ctx to end. The in-flight playback unit finishes before the loop returns.
//
// Returns [ErrNoSession] if no session is active.
func (sm *SessionManager) Stop(ctx context.Context) error {
	sm.opMu.Lock()
	defer sm.opMu.Unlock()

	r := sm.current()
	if r == nil {
		return ErrNoSession
	}
	return sm.stop(ctx, r)
}

func (sm *SessionManager) stop(ctx context.Context, r *run) error {
	r.cancel()
	select {
	case <-r.done:
	case <-ctx.Done():
		return fmt.Errorf("session: wait for %s: %w", r.info.SessionID, ctx.Err())
	}
	slog.Info("session stopped", "session_id", r.info.SessionID)
	return nil
}

// Wait blocks until the most recently started session ends and returns its
// error. A session that already ended returns immediately.
//
// Returns [ErrNoSession] if no session was ever started.
func (sm *SessionManager) Wait(ctx context.Context) error {
	sm.mu.Lock()
	r := sm.last
	sm.mu.Unlock()
	if r == nil {
		return ErrNoSession
	}
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot including the live dialogue state.
func (sm *SessionManager) Status() Status {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	var st Status
	if sm.lastErr != nil {
		st.LastError = sm.lastErr.Error()
	}
	if sm.cur == nil {
		return st
	}
	st.Active = true
	st.Info = sm.cur.info
	st.State = sm.cur.loop.View().Snapshot()
	return st
}
