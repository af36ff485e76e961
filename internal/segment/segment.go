// Package segment splits a streamed reply into speakable units.
//
// A unit ends at the first terminator ('.', '!', '?' or newline) and includes
// it. Text after the terminator starts the next unit. Units are numbered from
// 0 per reply; the number is the only playback ordering key.
package segment

import (
	"context"
	"strings"
)

// Terminators end a unit.
const Terminators = ".!?\n"

// Speaker identifies who produced an utterance.
type Speaker int

const (
	User Speaker = iota
	Assistant
)

// String returns "user" or "assistant".
func (s Speaker) String() string {
	if s == User {
		return "user"
	}
	return "assistant"
}

// Utterance is one speakable unit.
type Utterance struct {
	Speaker Speaker
	Text    string
	Seq     uint64
}

// Segmenter accumulates fragments and emits units. It is not safe for
// concurrent use; create one per reply.
type Segmenter struct {
	buf  strings.Builder
	next uint64
}

// New returns a Segmenter whose first unit has Seq 0.
func New() *Segmenter { return &Segmenter{} }

// Push appends fragment and returns every unit it completed.
func (s *Segmenter) Push(fragment string) []Utterance {
	var out []Utterance
	for fragment != "" {
		i := strings.IndexAny(fragment, Terminators)
		if i < 0 {
			s.buf.WriteString(fragment)
			break
		}
		// Terminators are all single-byte.
		s.buf.WriteString(fragment[:i+1])
		fragment = fragment[i+1:]
		out = append(out, s.emit())
	}
	return out
}

// Flush returns the residual as a final unit unless it is empty or only
// whitespace.
func (s *Segmenter) Flush() (Utterance, bool) {
	if strings.TrimSpace(s.buf.String()) == "" {
		s.buf.Reset()
		return Utterance{}, false
	}
	return s.emit(), true
}

func (s *Segmenter) emit() Utterance {
	u := Utterance{Speaker: Assistant, Text: s.buf.String(), Seq: s.next}
	s.next++
	s.buf.Reset()
	return u
}

// Run segments the fragments read from in. text extracts the string from a
// fragment. The returned channel closes after the final flush, or early when
// ctx is done.
func Run[F any](ctx context.Context, in <-chan F, text func(F) string) <-chan Utterance {
	out := make(chan Utterance)
	go func() {
		defer close(out)
		seg := New()
		send := func(u Utterance) bool {
			select {
			case out <- u:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for {
			var (
				f  F
				ok bool
			)
			select {
			case f, ok = <-in:
			case <-ctx.Done():
				return
			}
			if !ok {
				break
			}
			for _, u := range seg.Push(text(f)) {
				if !send(u) {
					return
				}
			}
		}
		if u, ok := seg.Flush(); ok {
			send(u)
		}
	}()
	return out
}

// Strings is the text extractor for plain string channels.
func Strings(s string) string { return s }
