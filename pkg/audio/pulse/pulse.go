// Package pulse implements [audio.Device] on a PulseAudio (or PipeWire-pulse)
// sound server using the pure-Go protocol client.
package pulse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jfreymuth/pulse"

	"github.com/MrWong99/kioskvoice/pkg/audio"
)

var _ audio.Device = (*Device)(nil)

// frameBacklog bounds how many captured frames may queue up before the
// oldest are dropped.
const frameBacklog = 256

// Device is a PulseAudio-backed microphone and speaker.
type Device struct {
	client *pulse.Client

	mu     sync.Mutex
	closed bool
}

// Option configures a [Device].
type Option func(*options)

type options struct {
	name string
}

// WithClientName sets the application name reported to the sound server.
func WithClientName(name string) Option {
	return func(o *options) { o.name = name }
}

// New connects to the default PulseAudio server.
func New(opts ...Option) (*Device, error) {
	o := options{name: "kioskvoice"}
	for _, opt := range opts {
		opt(&o)
	}
	c, err := pulse.NewClient(pulse.ClientApplicationName(o.name))
	if err != nil {
		return nil, &audio.DeviceError{Op: "connect", Err: err}
	}
	return &Device{client: c}, nil
}

// OpenCapture implements [audio.Device].
func (d *Device) OpenCapture(_ context.Context, f audio.Format, frameBytes int) (audio.Capture, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if frameBytes <= 0 || frameBytes%2 != 0 {
		return nil, fmt.Errorf("pulse: frame size must be a positive even number, got %d", frameBytes)
	}
	c := &capture{
		frameBytes: frameBytes,
		frames:     make(chan []byte, frameBacklog),
		done:       make(chan struct{}),
	}
	writer := pulse.Int16Writer(c.write)
	opts := []pulse.RecordOption{
		pulse.RecordSampleRate(f.SampleRate),
		pulse.RecordLatency(0.05),
	}
	if f.Channels == 2 {
		opts = append(opts, pulse.RecordStereo)
	} else {
		opts = append(opts, pulse.RecordMono)
	}
	stream, err := d.client.NewRecord(writer, opts...)
	if err != nil {
		return nil, &audio.DeviceError{Op: "open capture", Err: err}
	}
	c.stream = stream
	stream.Start()
	return c, nil
}

// Play implements [audio.Device].
func (d *Device) Play(ctx context.Context, clip audio.Clip) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if clip.Empty() {
		return nil
	}
	samples := audio.Samples(clip.PCM)
	pos := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if pos >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[pos:])
		pos += n
		return n, nil
	})
	opts := []pulse.PlaybackOption{
		pulse.PlaybackSampleRate(clip.SampleRate),
		pulse.PlaybackLatency(0.1),
	}
	if clip.Channels == 2 {
		opts = append(opts, pulse.PlaybackStereo)
	} else {
		opts = append(opts, pulse.PlaybackMono)
	}
	stream, err := d.client.NewPlayback(reader, opts...)
	if err != nil {
		return &audio.DeviceError{Op: "open playback", Err: err}
	}
	defer stream.Close()

	drained := make(chan struct{})
	stream.Start()
	go func() {
		defer close(drained)
		stream.Drain()
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		stream.Stop()
		<-drained
		return ctx.Err()
	}
	if err := stream.Error(); err != nil {
		return &audio.DeviceError{Op: "playback", Err: err}
	}
	return nil
}

// Close implements [audio.Device].
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.client.Close()
	return nil
}

func (d *Device) checkOpen() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return &audio.DeviceError{Op: "use", Err: errors.New("device closed")}
	}
	return nil
}

// ── capture ──────────────────────────────────────────────────────────────────

type capture struct {
	stream     *pulse.RecordStream
	frameBytes int

	mu      sync.Mutex
	pending []byte
	drops   int

	frames    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// write is invoked by the pulse client goroutine with freshly recorded samples.
func (c *capture) write(buf []int16) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, audio.PCM(buf)...)
	for len(c.pending) >= c.frameBytes {
		frame := make([]byte, c.frameBytes)
		copy(frame, c.pending)
		c.pending = c.pending[c.frameBytes:]
		select {
		case c.frames <- frame:
		default:
			c.drops++
			if c.drops == 1 {
				slog.Warn("pulse: capture backlog full, dropping frames")
			}
		}
	}
	return len(buf), nil
}

func (c *capture) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-c.frames:
		return frame, nil
	case <-c.done:
		return nil, &audio.DeviceError{Op: "read", Err: errors.New("capture closed")}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *capture) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.stream.Stop()
		c.stream.Close()
	})
	return nil
}
