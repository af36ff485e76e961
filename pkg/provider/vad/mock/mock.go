// Package mock provides test doubles for the vad package interfaces.
//
// Session replays a script of classifications; Engine hands out that session
// and records the configs it was asked for.
//
// Example:
//
//	sess := &mock.Session{Script: []bool{false, true, true}}
//	eng := &mock.Engine{Session: sess}
package mock

import (
	"sync"

	"github.com/MrWong99/kioskvoice/pkg/provider/vad"
)

var (
	_ vad.Engine  = (*Engine)(nil)
	_ vad.Session = (*Session)(nil)
)

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is returned by NewSession. If nil, a new silent Session is
	// returned.
	Session vad.Session

	// NewSessionErr, if non-nil, is returned by NewSession.
	NewSessionErr error

	// NewSessionCalls records every config passed to NewSession.
	NewSessionCalls []vad.Config
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Session is a mock implementation of vad.Session.
type Session struct {
	mu sync.Mutex

	// Script is consumed one entry per IsSpeech call. Once exhausted, Default
	// is returned.
	Script []bool

	// Default is returned after Script runs out.
	Default bool

	// Classify, if set, overrides Script and Default.
	Classify func(frame []byte) bool

	// Err, if non-nil, is returned by every IsSpeech call once ErrAfter
	// frames have been classified.
	Err      error
	ErrAfter int

	// Calls is the number of IsSpeech invocations.
	Calls int

	// CloseCalls is the number of Close invocations.
	CloseCalls int
}

// IsSpeech records the call and returns the next scripted classification.
func (s *Session) IsSpeech(frame []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.Calls
	s.Calls++
	if s.Err != nil && n >= s.ErrAfter {
		return false, s.Err
	}
	if s.Classify != nil {
		return s.Classify(frame), nil
	}
	if n < len(s.Script) {
		return s.Script[n], nil
	}
	return s.Default, nil
}

// Close records the call.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	return nil
}
