// Package store persists the turn log of voice sessions.
//
// [Memory] keeps a bounded ring in process and is the default. The postgres
// subpackage writes to a database when store.postgres_dsn is configured.
package store

import (
	"context"
	"sync"
	"time"
)

// Turn is one completed exchange as recorded in the log.
type Turn struct {
	SessionID string
	User      string
	Assistant string

	// Degraded is set when the reply came from a fallback path (canned
	// reply, manual entry or failed synthesis).
	Degraded bool

	// Units and Played count the reply's speakable units and how many of
	// them reached the speaker.
	Units  int
	Played int

	At       time.Time
	Duration time.Duration
}

// TurnLog appends and reads turns. Implementations are safe for concurrent
// use.
type TurnLog interface {
	Append(ctx context.Context, t Turn) error

	// Recent returns up to n turns of sessionID, oldest first. An empty
	// sessionID selects every session.
	Recent(ctx context.Context, sessionID string, n int) ([]Turn, error)
}

// DefaultMemoryCapacity is the ring size of [NewMemory] when capacity <= 0.
const DefaultMemoryCapacity = 500

// Memory is an in-process ring of the most recent turns.
type Memory struct {
	mu    sync.Mutex
	turns []Turn
	start int
	size  int
}

var _ TurnLog = (*Memory)(nil)

// NewMemory creates a ring holding at most capacity turns.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &Memory{turns: make([]Turn, capacity)}
}

// Append implements [TurnLog]. The oldest turn is evicted when full.
func (m *Memory) Append(_ context.Context, t Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.At.IsZero() {
		t.At = time.Now()
	}
	idx := (m.start + m.size) % len(m.turns)
	m.turns[idx] = t
	if m.size < len(m.turns) {
		m.size++
	} else {
		m.start = (m.start + 1) % len(m.turns)
	}
	return nil
}

// Recent implements [TurnLog].
func (m *Memory) Recent(_ context.Context, sessionID string, n int) ([]Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Turn
	for i := m.size - 1; i >= 0 && (n <= 0 || len(out) < n); i-- {
		t := m.turns[(m.start+i)%len(m.turns)]
		if sessionID == "" || t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	// Collected newest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
