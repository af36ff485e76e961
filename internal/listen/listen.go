// Package listen captures one user utterance from the microphone.
//
// Two strategies implement [Gate]: [VADGate] ends the recording after trailing
// silence detected by a [vad.Engine], and [FixedGate] records a constant
// duration. [New] picks one at construction time. Both keep every recording
// within [MinDuration, MaxDuration] and refuse to open the microphone while
// the assistant is speaking.
package listen

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrWong99/kioskvoice/pkg/audio"
	"github.com/MrWong99/kioskvoice/pkg/provider/vad"
)

// ErrSpeaking is returned when a capture is requested while playback is active.
var ErrSpeaking = errors.New("listen: microphone refused while speaking")

// Timing parameters.
const (
	// FrameDuration is the capture frame length fed to the classifier.
	FrameDuration = 30 * time.Millisecond

	// CueSettle is the pause between the cue tone and opening the microphone.
	CueSettle = 200 * time.Millisecond

	DefaultMinDuration     = 1 * time.Second
	DefaultMaxDuration     = 15 * time.Second
	DefaultFixedDuration   = 5 * time.Second
	DefaultSilenceHangover = 800 * time.Millisecond
	DefaultTriggerFrames   = 10
)

// View is the read-only session state a gate consults.
type View interface {
	Speaking() bool
}

// Gate captures a single utterance.
type Gate interface {
	// Listen records one clip from dev. A cancelled ctx yields an empty clip
	// and a nil error. Device failures are returned as [*audio.DeviceError].
	Listen(ctx context.Context, dev audio.Device, view View) (audio.Clip, error)
}

// New returns a [VADGate] when engine is non-nil and a [FixedGate] otherwise.
func New(engine vad.Engine, opts ...Option) Gate {
	if engine == nil {
		return NewFixed(opts...)
	}
	return NewVAD(engine, opts...)
}

// ── options ──────────────────────────────────────────────────────────────────

type options struct {
	format          audio.Format
	minDuration     time.Duration
	maxDuration     time.Duration
	fixedDuration   time.Duration
	silenceHangover time.Duration
	triggerFrames   int
	aggressiveness  int
	cue             bool
}

func defaultOptions() options {
	return options{
		format:          audio.CaptureFormat,
		minDuration:     DefaultMinDuration,
		maxDuration:     DefaultMaxDuration,
		fixedDuration:   DefaultFixedDuration,
		silenceHangover: DefaultSilenceHangover,
		triggerFrames:   DefaultTriggerFrames,
		aggressiveness:  2,
	}
}

// Option configures a gate.
type Option func(*options)

// WithBounds sets the minimum and maximum recording length. Non-positive
// values keep the defaults.
func WithBounds(minDur, maxDur time.Duration) Option {
	return func(o *options) {
		if minDur > 0 {
			o.minDuration = minDur
		}
		if maxDur > 0 {
			o.maxDuration = maxDur
		}
	}
}

// WithFixedDuration sets the recording length of the fixed strategy, which
// [VADGate] also uses after a classifier failure.
func WithFixedDuration(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.fixedDuration = d
		}
	}
}

// WithSilenceHangover sets the trailing silence that ends a VAD capture.
func WithSilenceHangover(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.silenceHangover = d
		}
	}
}

// WithTriggerFrames sets the number of consecutive voiced frames that mark
// the start of speech.
func WithTriggerFrames(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.triggerFrames = n
		}
	}
}

// WithAggressiveness sets the VAD mode (0-3).
func WithAggressiveness(n int) Option {
	return func(o *options) { o.aggressiveness = n }
}

// WithCue enables the beep before each capture.
func WithCue(enabled bool) Option {
	return func(o *options) { o.cue = enabled }
}

func (o options) frameBytes() int { return o.format.FrameBytes(FrameDuration) }

// clampFixed returns the fixed duration forced into the configured bounds.
func (o options) clampFixed() time.Duration {
	return min(max(o.fixedDuration, o.minDuration), o.maxDuration)
}

// ── shared capture loop ──────────────────────────────────────────────────────

// decider is asked after every frame whether recording should stop. elapsed
// includes the frame just read.
type decider func(frame []byte, elapsed time.Duration) (stop bool)

// capture plays the optional cue, opens the microphone and reads frames until
// decide, MaxDuration or ctx ends the recording.
func capture(ctx context.Context, dev audio.Device, view View, o options, decide decider) (audio.Clip, error) {
	if view != nil && view.Speaking() {
		return audio.Clip{}, ErrSpeaking
	}
	if o.cue {
		if err := playCue(ctx, dev); err != nil {
			return audio.Clip{}, err
		}
		if ctx.Err() != nil {
			return audio.Clip{}, nil
		}
		if view != nil && view.Speaking() {
			return audio.Clip{}, ErrSpeaking
		}
	}

	fb := o.frameBytes()
	stream, err := dev.OpenCapture(ctx, o.format, fb)
	if err != nil {
		if ctx.Err() != nil {
			return audio.Clip{}, nil
		}
		return audio.Clip{}, asDeviceError("open capture", err)
	}
	defer stream.Close()

	maxFrames := int(o.maxDuration / FrameDuration)
	pcm := make([]byte, 0, fb*min(maxFrames, int(o.fixedDuration/FrameDuration)+1))
	for n := 1; n <= maxFrames; n++ {
		frame, err := stream.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return audio.Clip{}, nil
			}
			return audio.Clip{}, asDeviceError("read frame", err)
		}
		pcm = append(pcm, frame...)
		elapsed := time.Duration(n) * FrameDuration
		if elapsed < o.minDuration {
			decide(frame, elapsed)
			continue
		}
		if decide(frame, elapsed) {
			break
		}
	}
	if ctx.Err() != nil {
		return audio.Clip{}, nil
	}
	clip := audio.NewClip(pcm, o.format)
	slog.Debug("listen: clip captured",
		"duration", clip.Duration(),
		"rms", audio.RMS(pcm),
		"peak", audio.Peak(pcm),
	)
	return clip, nil
}

func playCue(ctx context.Context, dev audio.Device) error {
	if err := dev.Play(ctx, audio.Cue(audio.SpeechFormat)); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return asDeviceError("play cue", err)
	}
	t := time.NewTimer(CueSettle)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
	return nil
}

func asDeviceError(op string, err error) error {
	if errors.Is(err, audio.ErrDevice) {
		return err
	}
	return &audio.DeviceError{Op: op, Err: err}
}

// ── FixedGate ────────────────────────────────────────────────────────────────

// FixedGate records a constant duration regardless of content.
type FixedGate struct {
	opts options
}

var _ Gate = (*FixedGate)(nil)

// NewFixed creates a [FixedGate].
func NewFixed(opts ...Option) *FixedGate {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &FixedGate{opts: o}
}

// Listen implements [Gate].
func (g *FixedGate) Listen(ctx context.Context, dev audio.Device, view View) (audio.Clip, error) {
	target := g.opts.clampFixed()
	return capture(ctx, dev, view, g.opts, func(_ []byte, elapsed time.Duration) bool {
		return elapsed >= target
	})
}

// ── VADGate ──────────────────────────────────────────────────────────────────

// VADGate ends a recording once speech has started and been followed by the
// silence hangover. A recording in which speech never starts yields an empty
// clip after MaxDuration.
//
// If the classifier fails, the rest of that capture behaves like [FixedGate].
type VADGate struct {
	engine vad.Engine
	opts   options
}

var _ Gate = (*VADGate)(nil)

// NewVAD creates a [VADGate] backed by engine.
func NewVAD(engine vad.Engine, opts ...Option) *VADGate {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &VADGate{engine: engine, opts: o}
}

// Listen implements [Gate].
func (g *VADGate) Listen(ctx context.Context, dev audio.Device, view View) (audio.Clip, error) {
	o := g.opts
	fixedTarget := o.clampFixed()

	sess, err := g.engine.NewSession(vad.Config{
		SampleRate:     o.format.SampleRate,
		FrameSizeMs:    int(FrameDuration / time.Millisecond),
		Aggressiveness: o.aggressiveness,
	})
	degraded := err != nil
	if degraded {
		slog.Warn("listen: vad unavailable, using fixed-duration capture", "err", err)
	} else {
		defer sess.Close()
	}

	var (
		run       int
		triggered bool
		silence   time.Duration
	)
	clip, err := capture(ctx, dev, view, o, func(frame []byte, elapsed time.Duration) bool {
		if degraded {
			return elapsed >= fixedTarget
		}
		speech, err := sess.IsSpeech(frame)
		if err != nil {
			degraded = true
			slog.Warn("listen: vad failed mid-capture, using fixed-duration capture", "err", err)
			return elapsed >= fixedTarget
		}
		switch {
		case speech:
			run++
			silence = 0
			if run >= o.triggerFrames {
				triggered = true
			}
		default:
			run = 0
			silence += FrameDuration
		}
		return triggered && silence >= o.silenceHangover
	})
	if err != nil || clip.Empty() {
		return clip, err
	}
	if !triggered && !degraded {
		return audio.Clip{}, nil
	}
	return clip, nil
}
