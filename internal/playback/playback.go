// Package playback speaks a reply unit by unit in strict sequence order.
//
// Units are synthesized concurrently and complete in any order. A
// [Sequencer] holds one "now playing" slot: unit K is played only after unit
// K-1 has drained, and a unit that fails synthesis or does not arrive within
// SkipAfter is skipped so that a missing unit never stalls the reply. Units
// holding only whitespace keep their slot and text but are never synthesized.
package playback

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/kioskvoice/internal/observe"
	"github.com/MrWong99/kioskvoice/internal/segment"
	"github.com/MrWong99/kioskvoice/internal/speech"
	"github.com/MrWong99/kioskvoice/pkg/audio"
)

const (
	// PreDelay lets the output stream settle before a unit starts.
	PreDelay = 200 * time.Millisecond

	// PostDelay is held after a unit drains before the slot is released.
	PostDelay = 200 * time.Millisecond

	// DefaultSkipAfter bounds how long the sequencer waits for the next unit.
	DefaultSkipAfter = 10 * time.Second

	// DefaultConcurrency is the number of units synthesized at once.
	DefaultConcurrency = 4
)

// Outcome is what happened to one unit.
type Outcome int

const (
	Played Outcome = iota
	SkippedFailed
	SkippedTimeout
	Dropped

	// Blank marks a whitespace-only unit. It is not a failure.
	Blank
)

// String returns the outcome label used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case Played:
		return "played"
	case SkippedFailed:
		return "skipped-failed"
	case SkippedTimeout:
		return "skipped-timeout"
	case Dropped:
		return "dropped"
	case Blank:
		return "blank"
	default:
		return "unknown"
	}
}

// Result reports one unit.
type Result struct {
	Seq     uint64
	Text    string
	Outcome Outcome

	// Err is the synthesis error for SkippedFailed.
	Err error
}

// Report lists every unit of a reply in seq order.
type Report struct {
	Results []Result
}

// Count returns the number of units with outcome o.
func (r Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Text concatenates the text of every unit regardless of outcome.
func (r Report) Text() string {
	var b strings.Builder
	for _, res := range r.Results {
		b.WriteString(res.Text)
	}
	return b.String()
}

// Option configures a [Sequencer].
type Option func(*Sequencer)

// WithSkipAfter bounds the wait for the next expected unit.
func WithSkipAfter(d time.Duration) Option {
	return func(s *Sequencer) {
		if d > 0 {
			s.skipAfter = d
		}
	}
}

// WithDelays overrides the stabilization delays around each unit. Intended
// for tests.
func WithDelays(pre, post time.Duration) Option {
	return func(s *Sequencer) {
		s.preDelay = max(pre, 0)
		s.postDelay = max(post, 0)
	}
}

// WithConcurrency sets how many units are synthesized at once.
func WithConcurrency(n int) Option {
	return func(s *Sequencer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithMetrics records unit outcomes and playback time on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Sequencer) { s.metrics = m }
}

// Sequencer plays replies on one device. Play calls must not overlap.
type Sequencer struct {
	dev         audio.Device
	synth       speech.Synthesizer
	skipAfter   time.Duration
	preDelay    time.Duration
	postDelay   time.Duration
	concurrency int
	metrics     *observe.Metrics
}

// New creates a Sequencer.
func New(dev audio.Device, synth speech.Synthesizer, opts ...Option) *Sequencer {
	s := &Sequencer{
		dev:         dev,
		synth:       synth,
		skipAfter:   DefaultSkipAfter,
		preDelay:    PreDelay,
		postDelay:   PostDelay,
		concurrency: DefaultConcurrency,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Say plays fixed texts, one unit each, numbered in argument order.
func (s *Sequencer) Say(ctx context.Context, texts ...string) (Report, error) {
	units := make(chan segment.Utterance, len(texts))
	for i, t := range texts {
		units <- segment.Utterance{Speaker: segment.Assistant, Text: t, Seq: uint64(i)}
	}
	close(units)
	return s.Play(ctx, units)
}

// Play synthesizes and speaks every unit read from units until the channel
// closes. Units must carry consecutive Seq values starting at 0.
//
// When ctx is cancelled, units that have not started are reported as
// Dropped and the unit on the speaker finishes draining. The returned error
// is non-nil only for device failures, as an [*audio.DeviceError].
func (s *Sequencer) Play(ctx context.Context, units <-chan segment.Utterance) (Report, error) {
	t := &turn{notify: make(chan struct{}, 1)}

	g, gctx := errgroup.WithContext(ctx)
	synthCtx, stopSynth := context.WithCancel(gctx)
	defer stopSynth()

	var synth errgroup.Group
	synth.SetLimit(s.concurrency)

	g.Go(func() error {
		defer t.close()
		for {
			var (
				u  segment.Utterance
				ok bool
			)
			select {
			case u, ok = <-units:
			case <-synthCtx.Done():
				return nil
			}
			if !ok {
				return nil
			}
			t.announce(u)
			if strings.TrimSpace(u.Text) == "" {
				t.submit(ready{seq: u.Seq, blank: true})
				continue
			}
			synth.Go(func() error {
				clip, err := s.synth.Synthesize(synthCtx, u.Text)
				if synthCtx.Err() != nil {
					return nil
				}
				t.submit(ready{seq: u.Seq, clip: clip, err: err})
				return nil
			})
		}
	})

	g.Go(func() error {
		defer stopSynth()
		return s.drive(gctx, ctx, t)
	})

	err := g.Wait()
	_ = synth.Wait()
	return t.report(), err
}

// drive is the serial playback section. waitCtx is cancelled on stop or
// device failure; parent is the caller's context, used to tell the two apart.
func (s *Sequencer) drive(waitCtx, parent context.Context, t *turn) error {
	for next := uint64(0); ; next++ {
		r, st := t.await(waitCtx, next, s.skipAfter)
		switch st {
		case awaitDone:
			return nil
		case awaitStopped:
			t.dropFrom(next)
			return nil
		case awaitTimeout:
			slog.Warn("playback: unit timed out", "seq", next, "after", s.skipAfter)
			s.finish(parent, t, next, SkippedTimeout, nil)
			continue
		}

		if r.blank {
			s.finish(parent, t, next, Blank, nil)
			continue
		}
		if r.err != nil {
			slog.Warn("playback: unit skipped", "seq", next, "err", r.err)
			s.finish(parent, t, next, SkippedFailed, r.err)
			continue
		}

		if !sleep(waitCtx, s.preDelay) {
			t.dropFrom(next)
			return nil
		}

		start := time.Now()
		// The unit on the speaker is allowed to drain after stop.
		err := s.dev.Play(context.WithoutCancel(parent), r.clip)
		if s.metrics != nil {
			s.metrics.PlaybackDuration.Record(parent, time.Since(start).Seconds())
		}
		if err != nil {
			t.dropFrom(next)
			var de *audio.DeviceError
			if !errors.As(err, &de) {
				err = &audio.DeviceError{Op: "play", Err: err}
			}
			return err
		}
		s.finish(parent, t, next, Played, nil)

		if !sleep(waitCtx, s.postDelay) {
			t.dropFrom(next + 1)
			return nil
		}
	}
}

func (s *Sequencer) finish(ctx context.Context, t *turn, seq uint64, o Outcome, err error) {
	t.settle(seq, o, err)
	if s.metrics != nil {
		s.metrics.RecordUnit(ctx, o.String())
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// ── turn state ───────────────────────────────────────────────────────────────

type awaitState int

const (
	awaitReady awaitState = iota
	awaitDone
	awaitStopped
	awaitTimeout
)

// turn is the state shared between the intake, the synthesis tasks and the
// playback loop for one reply.
type turn struct {
	mu      sync.Mutex
	pending readyHeap
	results []Result
	settled []bool
	closed  bool
	notify  chan struct{}
}

func (t *turn) signal() {
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

func (t *turn) announce(u segment.Utterance) {
	t.mu.Lock()
	for uint64(len(t.results)) <= u.Seq {
		t.results = append(t.results, Result{Seq: uint64(len(t.results)), Outcome: SkippedTimeout})
		t.settled = append(t.settled, false)
	}
	t.results[u.Seq].Text = u.Text
	t.mu.Unlock()
	t.signal()
}

func (t *turn) submit(r ready) {
	t.mu.Lock()
	heap.Push(&t.pending, r)
	t.mu.Unlock()
	t.signal()
}

func (t *turn) close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.signal()
}

func (t *turn) settle(seq uint64, o Outcome, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if seq < uint64(len(t.results)) {
		t.results[seq].Outcome = o
		t.results[seq].Err = err
		t.settled[seq] = true
	}
}

// dropFrom marks every unsettled unit at or after seq as Dropped.
func (t *turn) dropFrom(seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := seq; i < uint64(len(t.results)); i++ {
		if !t.settled[i] {
			t.results[i].Outcome = Dropped
			t.settled[i] = true
		}
	}
}

func (t *turn) report() Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Result, len(t.results))
	copy(out, t.results)
	return Report{Results: out}
}

// await blocks until unit next is ready, the reply is complete, ctx ends, or
// skipAfter elapses after next has been announced.
func (t *turn) await(ctx context.Context, next uint64, skipAfter time.Duration) (ready, awaitState) {
	var (
		timer   *time.Timer
		timeout <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		t.mu.Lock()
		// Late results for units already skipped.
		for t.pending.Len() > 0 && t.pending[0].seq < next {
			heap.Pop(&t.pending)
		}
		if t.pending.Len() > 0 && t.pending[0].seq == next {
			r := heap.Pop(&t.pending).(ready)
			t.mu.Unlock()
			return r, awaitReady
		}
		known := next < uint64(len(t.results))
		if t.closed && !known {
			t.mu.Unlock()
			return ready{}, awaitDone
		}
		t.mu.Unlock()

		if known && timer == nil {
			timer = time.NewTimer(skipAfter)
			timeout = timer.C
		}
		select {
		case <-ctx.Done():
			return ready{}, awaitStopped
		case <-t.notify:
		case <-timeout:
			return ready{}, awaitTimeout
		}
	}
}
