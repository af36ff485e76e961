// Package transcribe turns a captured clip into the customer's words.
//
// [Remote] calls an [stt.Provider]; [Manual] reads a typed line instead and is
// used when no speech-to-text service is configured or the service fails.
// Both pass their text through the same [Filter]: transcripts shorter than
// MinChars and transcripts containing tone artifacts such as "beep" or
// "시스템" are discarded.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/kioskvoice/internal/observe"
	"github.com/MrWong99/kioskvoice/pkg/audio"
	"github.com/MrWong99/kioskvoice/pkg/provider/stt"
)

var (
	// ErrEmpty means nothing usable was said.
	ErrEmpty = errors.New("transcribe: empty transcript")

	// ErrUnavailable means the speech-to-text service failed. The caller
	// should fall back to manual entry.
	ErrUnavailable = errors.New("transcribe: speech-to-text unavailable")

	// ErrFilteredArtifact means the transcript was a known artifact of the
	// cue tone or system audio. It also matches [ErrEmpty].
	ErrFilteredArtifact error = &childError{msg: "transcribe: filtered artifact", parent: ErrEmpty}
)

type childError struct {
	msg    string
	parent error
}

func (e *childError) Error() string        { return e.msg }
func (e *childError) Is(target error) bool { return target == e.parent }

// DefaultMinChars is the shortest accepted transcript, in characters.
const DefaultMinChars = 2

// DefaultDenylist holds transcript fragments that come from the cue tone or
// leaked system prompts rather than from the customer.
var DefaultDenylist = []string{"beep", "비프", "시스템", "system"}

// Transcriber converts a clip to trimmed text.
type Transcriber interface {
	Transcribe(ctx context.Context, clip audio.Clip) (string, error)
}

// New returns a [Remote] transcriber when p is non-nil and manual otherwise.
func New(p stt.Provider, manual *Manual, opts ...Option) Transcriber {
	if p == nil {
		return manual
	}
	return NewRemote(p, opts...)
}

// Option configures a [Remote].
type Option func(*Remote)

// WithFilter replaces the default [Filter].
func WithFilter(f Filter) Option {
	return func(r *Remote) { r.filter = f }
}

// WithMetrics records STT latency and filtered transcripts on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Remote) { r.metrics = m }
}

// Remote transcribes through a speech-to-text provider. It holds no mutable
// state and is safe for concurrent use.
type Remote struct {
	provider stt.Provider
	filter   Filter
	metrics  *observe.Metrics
}

var _ Transcriber = (*Remote)(nil)

// NewRemote creates a Remote transcriber.
func NewRemote(p stt.Provider, opts ...Option) *Remote {
	r := &Remote{provider: p, filter: NewFilter(0, nil)}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Transcribe implements [Transcriber].
func (r *Remote) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	if clip.Empty() {
		return "", ErrEmpty
	}
	start := time.Now()
	text, err := r.provider.Transcribe(ctx, clip)
	if r.metrics != nil {
		r.metrics.ObserveProvider(ctx, r.metrics.STTDuration, "stt", start, err)
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	text, err = r.filter.Apply(text)
	if err != nil && r.metrics != nil {
		reason := "short"
		if errors.Is(err, ErrFilteredArtifact) {
			reason = "artifact"
		}
		r.metrics.RecordFiltered(ctx, reason)
	}
	return text, err
}

// ── Filter ──────────────────────────────────────────────────────────────────

// Filter discards transcripts that are too short or that contain a denylisted
// fragment. The zero value only rejects blank text.
type Filter struct {
	minChars int
	denylist []string
}

// NewFilter returns a Filter. minChars <= 0 selects [DefaultMinChars] and an
// empty denylist selects [DefaultDenylist]. Matching is case-insensitive.
func NewFilter(minChars int, denylist []string) Filter {
	if minChars <= 0 {
		minChars = DefaultMinChars
	}
	if len(denylist) == 0 {
		denylist = DefaultDenylist
	}
	return Filter{minChars: minChars, denylist: lowerAll(denylist)}
}

// Apply trims text and applies the length and denylist rules.
func (f Filter) Apply(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) < f.minChars {
		return "", ErrEmpty
	}
	lower := strings.ToLower(text)
	for _, w := range f.denylist {
		if strings.Contains(lower, w) {
			return "", fmt.Errorf("%w: %q", ErrFilteredArtifact, text)
		}
	}
	return text, nil
}

func lowerAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			out = append(out, w)
		}
	}
	return out
}
