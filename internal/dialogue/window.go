package dialogue

import (
	"time"

	"github.com/MrWong99/kioskvoice/internal/respond"
	"github.com/MrWong99/kioskvoice/internal/segment"
	"github.com/MrWong99/kioskvoice/pkg/audio"
)

const (
	DefaultContextTurns = 10
	DefaultContextClips = 5
)

// Turn is one user utterance and the assistant's ordered units. It is not
// modified after it enters the ContextWindow.
type Turn struct {
	User  string
	Units []segment.Utterance

	// Reply is the full reply text, including units that were not played.
	Reply string

	Degraded bool
	At       time.Time
}

// Ring is a fixed-capacity FIFO that evicts its oldest element.
type Ring[T any] struct {
	items []T
	start int
	size  int
}

// NewRing creates a ring of the given capacity (at least 1).
func NewRing[T any](capacity int) *Ring[T] {
	return &Ring[T]{items: make([]T, max(capacity, 1))}
}

// Push appends v, evicting the oldest element when full.
func (r *Ring[T]) Push(v T) {
	r.items[(r.start+r.size)%len(r.items)] = v
	if r.size < len(r.items) {
		r.size++
		return
	}
	r.start = (r.start + 1) % len(r.items)
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the capacity.
func (r *Ring[T]) Cap() int { return len(r.items) }

// All returns the elements oldest first.
func (r *Ring[T]) All() []T {
	out := make([]T, r.size)
	for i := range r.size {
		out[i] = r.items[(r.start+i)%len(r.items)]
	}
	return out
}

// ContextWindow holds the recent text turns and, separately, the recent
// user clips.
type ContextWindow struct {
	Turns *Ring[Turn]
	Clips *Ring[audio.Clip]
}

// NewContextWindow creates a window of the given sizes. Non-positive sizes
// select the defaults.
func NewContextWindow(turns, clips int) *ContextWindow {
	if turns <= 0 {
		turns = DefaultContextTurns
	}
	if clips <= 0 {
		clips = DefaultContextClips
	}
	return &ContextWindow{Turns: NewRing[Turn](turns), Clips: NewRing[audio.Clip](clips)}
}

// Exchanges returns the text turns as prompt history, oldest first.
func (w *ContextWindow) Exchanges() []respond.Exchange {
	turns := w.Turns.All()
	out := make([]respond.Exchange, len(turns))
	for i, t := range turns {
		out[i] = respond.Exchange{User: t.User, Assistant: t.Reply}
	}
	return out
}
