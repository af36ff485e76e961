package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [Group] failed or had an open
// breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

type member[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Group holds a primary and zero or more fallback instances of the same
// provider type, each behind its own [Breaker]. Entries are tried in
// registration order.
//
// Add must not be called concurrently with Do.
type Group[T any] struct {
	members []member[T]
	cfg     BreakerConfig
}

// NewGroup creates a Group with primary as its first entry. cfg is copied for
// every entry's breaker with Name replaced by the entry name.
func NewGroup[T any](primaryName string, primary T, cfg BreakerConfig) *Group[T] {
	g := &Group[T]{cfg: cfg}
	g.Add(primaryName, primary)
	return g
}

// Add appends a fallback entry.
func (g *Group[T]) Add(name string, value T) {
	cfg := g.cfg
	cfg.Name = name
	g.members = append(g.members, member[T]{name: name, value: value, breaker: NewBreaker(cfg)})
}

// Len returns the number of entries.
func (g *Group[T]) Len() int { return len(g.members) }

// Available reports whether at least one entry would currently accept a call.
func (g *Group[T]) Available() bool {
	for i := range g.members {
		if g.members[i].breaker.State() != StateOpen {
			return true
		}
	}
	return false
}

// States returns each entry's breaker state keyed by entry name.
func (g *Group[T]) States() map[string]State {
	out := make(map[string]State, len(g.members))
	for i := range g.members {
		out[g.members[i].name] = g.members[i].breaker.State()
	}
	return out
}

// Do calls fn against each entry in order until one succeeds.
func Do[T, R any](g *Group[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range g.members {
		m := &g.members[i]
		var result R
		err := m.breaker.Execute(func() error {
			var err error
			result, err = fn(m.value)
			return err
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider, circuit open", "provider", m.name)
			continue
		}
		slog.Warn("provider failed, trying next", "provider", m.name, "error", err)
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
