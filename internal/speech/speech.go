// Package speech turns one unit of reply text into a playable clip.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/kioskvoice/internal/observe"
	"github.com/MrWong99/kioskvoice/pkg/audio"
	"github.com/MrWong99/kioskvoice/pkg/provider/tts"
)

// ErrUnavailable means no clip could be produced for a unit. Playback skips
// the unit and continues with the next one.
var ErrUnavailable = errors.New("speech: synthesis unavailable")

const (
	// PeakRatio is the fraction of full scale that synthesized audio is
	// normalized to.
	PeakRatio = 0.8

	DefaultVoice = "nova"
	DefaultSpeed = 1.0
)

// Synthesizer converts text to audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (audio.Clip, error)
}

// New returns a [Remote] synthesizer when p is non-nil and [Silent]
// otherwise.
func New(p tts.Provider, opts ...Option) Synthesizer {
	if p == nil {
		return Silent{}
	}
	return NewRemote(p, opts...)
}

// Option configures a [Remote].
type Option func(*Remote)

// WithVoice sets the backend voice identifier.
func WithVoice(v string) Option {
	return func(r *Remote) {
		if v != "" {
			r.voice = v
		}
	}
}

// WithSpeed sets the speaking-rate multiplier.
func WithSpeed(s float64) Option {
	return func(r *Remote) {
		if s > 0 {
			r.speed = s
		}
	}
}

// WithMetrics records synthesis latency on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Remote) { r.metrics = m }
}

// Remote synthesizes through a text-to-speech provider. Safe for concurrent
// use.
type Remote struct {
	provider tts.Provider
	voice    string
	speed    float64
	format   audio.Format
	metrics  *observe.Metrics
}

var _ Synthesizer = (*Remote)(nil)

// NewRemote creates a Remote synthesizer producing [audio.SpeechFormat].
func NewRemote(p tts.Provider, opts ...Option) *Remote {
	r := &Remote{provider: p, voice: DefaultVoice, speed: DefaultSpeed, format: audio.SpeechFormat}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Synthesize implements [Synthesizer]. Blank text is rejected without a
// provider call.
func (r *Remote) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return audio.Clip{}, fmt.Errorf("%w: blank text", ErrUnavailable)
	}

	start := time.Now()
	pcm, err := r.provider.Synthesize(ctx, tts.Request{
		Text:       text,
		Voice:      r.voice,
		SampleRate: r.format.SampleRate,
		Speed:      r.speed,
	})
	if r.metrics != nil {
		r.metrics.ObserveProvider(ctx, r.metrics.TTSDuration, "tts", start, err)
	}
	if err != nil {
		if ctx.Err() != nil {
			return audio.Clip{}, ctx.Err()
		}
		return audio.Clip{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if len(pcm) < 2 {
		return audio.Clip{}, fmt.Errorf("%w: empty response", ErrUnavailable)
	}
	return audio.NewClip(audio.NormalizePeak(pcm[:len(pcm)&^1], PeakRatio), r.format), nil
}

// Silent stands in when no synthesis service is configured. Every unit
// fails, so replies are logged but not spoken.
type Silent struct{}

var _ Synthesizer = Silent{}

// Synthesize implements [Synthesizer].
func (Silent) Synthesize(context.Context, string) (audio.Clip, error) {
	return audio.Clip{}, fmt.Errorf("%w: no provider configured", ErrUnavailable)
}
