// Package mock provides an in-memory [audio.Device] for unit tests.
//
// The mock is safe for concurrent use. It records every capture and playback
// with timestamps so tests can assert on ordering and non-overlap, and it
// exposes exported fields that control what the microphone "hears".
//
// Typical usage:
//
//	dev := &mock.Device{
//	    Frames:   [][]byte{voiced, voiced, silence},
//	    PlayTime: 20 * time.Millisecond,
//	}
//	clip, err := gate.Listen(ctx, dev, view)
//	events := dev.Events()
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/kioskvoice/pkg/audio"
)

var _ audio.Device = (*Device)(nil)

// EventKind identifies a recorded device action.
type EventKind int

const (
	CaptureOpened EventKind = iota
	CaptureClosed
	PlayStarted
	PlayFinished
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case CaptureOpened:
		return "capture_opened"
	case CaptureClosed:
		return "capture_closed"
	case PlayStarted:
		return "play_started"
	case PlayFinished:
		return "play_finished"
	default:
		return "unknown"
	}
}

// Event is one recorded device action.
type Event struct {
	Kind EventKind
	At   time.Time

	// Clip is set for PlayStarted and PlayFinished.
	Clip audio.Clip
}

// Device is a mock implementation of [audio.Device].
type Device struct {
	mu sync.Mutex

	// Frames is the script of capture frames replayed by every capture
	// stream. Each frame is padded or truncated to the requested frame size.
	// When exhausted, Silence frames are produced (or FrameErr is returned
	// if set).
	Frames [][]byte

	// FrameInterval simulates real-time capture pacing. Zero delivers frames
	// as fast as they are read.
	FrameInterval time.Duration

	// PlayTime is how long each Play call blocks.
	PlayTime time.Duration

	// OpenErr is returned by OpenCapture when non-nil.
	OpenErr error

	// FrameErr is returned by ReadFrame once Frames is exhausted.
	FrameErr error

	// PlayErr is returned by Play when non-nil.
	PlayErr error

	events   []Event
	open     int
	playing  int
	overlaps int
	closed   bool
}

// OpenCapture implements [audio.Device].
func (d *Device) OpenCapture(_ context.Context, _ audio.Format, frameBytes int) (audio.Capture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	if d.playing > 0 {
		d.overlaps++
	}
	d.open++
	d.events = append(d.events, Event{Kind: CaptureOpened, At: time.Now()})
	frames := make([][]byte, len(d.Frames))
	copy(frames, d.Frames)
	return &capture{dev: d, frames: frames, frameBytes: frameBytes}, nil
}

// Play implements [audio.Device]. It blocks for PlayTime or until ctx is done.
func (d *Device) Play(ctx context.Context, c audio.Clip) error {
	d.mu.Lock()
	if d.PlayErr != nil {
		err := d.PlayErr
		d.mu.Unlock()
		return err
	}
	if d.playing > 0 || d.open > 0 {
		d.overlaps++
	}
	d.playing++
	d.events = append(d.events, Event{Kind: PlayStarted, At: time.Now(), Clip: c})
	wait := d.PlayTime
	d.mu.Unlock()

	var err error
	if wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			err = ctx.Err()
		}
	}

	d.mu.Lock()
	d.playing--
	d.events = append(d.events, Event{Kind: PlayFinished, At: time.Now(), Clip: c})
	d.mu.Unlock()
	return err
}

// Close implements [audio.Device].
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Events returns a copy of every recorded action in order.
func (d *Device) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Event, len(d.events))
	copy(out, d.events)
	return out
}

// Played returns the clips passed to Play, in start order.
func (d *Device) Played() []audio.Clip {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []audio.Clip
	for _, e := range d.events {
		if e.Kind == PlayStarted {
			out = append(out, e.Clip)
		}
	}
	return out
}

// Count returns how many events of kind k were recorded.
func (d *Device) Count(k EventKind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, e := range d.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// Overlaps reports how many times playback and capture (or two playbacks)
// were active at the same moment.
func (d *Device) Overlaps() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.overlaps
}

// Closed reports whether Close was called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Reset clears recorded events and counters. Script fields are preserved.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = nil
	d.overlaps = 0
}

// ── capture ──────────────────────────────────────────────────────────────────

type capture struct {
	dev        *Device
	frames     [][]byte
	frameBytes int
	pos        int
	closeOnce  sync.Once
}

func (c *capture) ReadFrame(ctx context.Context) ([]byte, error) {
	c.dev.mu.Lock()
	interval := c.dev.FrameInterval
	frameErr := c.dev.FrameErr
	c.dev.mu.Unlock()

	if interval > 0 {
		t := time.NewTimer(interval)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]byte, c.frameBytes)
	if c.pos < len(c.frames) {
		copy(out, c.frames[c.pos])
		c.pos++
		return out, nil
	}
	if frameErr != nil {
		return nil, frameErr
	}
	return out, nil
}

func (c *capture) Close() error {
	c.closeOnce.Do(func() {
		c.dev.mu.Lock()
		c.dev.open--
		c.dev.events = append(c.dev.events, Event{Kind: CaptureClosed, At: time.Now()})
		c.dev.mu.Unlock()
	})
	return nil
}
