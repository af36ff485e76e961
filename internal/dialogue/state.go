package dialogue

import "sync"

// State is the loop's position in the turn cycle.
type State int

const (
	Greeting State = iota
	Listening
	Transcribing
	Responding
	Terminated
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Greeting:
		return "greeting"
	case Listening:
		return "listening"
	case Transcribing:
		return "transcribing"
	case Responding:
		return "responding"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// SessionState is a snapshot of the session flags. Listening and Speaking
// are never both true.
type SessionState struct {
	Phase      State `json:"phase"`
	Active     bool  `json:"active"`
	Listening  bool  `json:"listening"`
	Speaking   bool  `json:"speaking"`
	Processing bool  `json:"processing"`
}

// StateView is the read-only view handed to collaborators.
type StateView interface {
	Snapshot() SessionState
	Active() bool
	Listening() bool
	Speaking() bool
	Processing() bool
}

// sessionState is written only by the loop goroutine; readers take the
// read lock.
type sessionState struct {
	mu sync.RWMutex
	s  SessionState
}

var _ StateView = (*sessionState)(nil)

func (st *sessionState) Snapshot() SessionState {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s
}

func (st *sessionState) Active() bool     { return st.Snapshot().Active }
func (st *sessionState) Listening() bool  { return st.Snapshot().Listening }
func (st *sessionState) Speaking() bool   { return st.Snapshot().Speaking }
func (st *sessionState) Processing() bool { return st.Snapshot().Processing }

func (st *sessionState) update(fn func(*SessionState)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(&st.s)
}

func (st *sessionState) enter(p State) {
	st.update(func(s *SessionState) {
		s.Phase = p
		s.Listening = p == Listening
		s.Speaking = p == Greeting || p == Responding
		s.Processing = p == Transcribing || p == Responding
		if p == Terminated {
			s.Active = false
		}
	})
}

// speak sets Speaking for farewell playback outside the Responding phase.
func (st *sessionState) speak(on bool) {
	st.update(func(s *SessionState) {
		s.Speaking = on
		if on {
			s.Listening = false
		}
	})
}
