// Package malgo implements [audio.Device] on miniaudio, covering ALSA,
// CoreAudio and WASAPI through a single cgo binding.
package malgo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/kioskvoice/pkg/audio"
)

var _ audio.Device = (*Device)(nil)

const frameBacklog = 256

// Device is a miniaudio-backed microphone and speaker.
type Device struct {
	ctx *malgo.AllocatedContext

	mu     sync.Mutex
	closed bool
}

// New initialises a miniaudio context on the platform's default backend.
func New() (*Device, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		slog.Debug("malgo", "msg", msg)
	})
	if err != nil {
		return nil, &audio.DeviceError{Op: "init context", Err: err}
	}
	return &Device{ctx: ctx}, nil
}

// OpenCapture implements [audio.Device].
func (d *Device) OpenCapture(_ context.Context, f audio.Format, frameBytes int) (audio.Capture, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if frameBytes <= 0 || frameBytes%2 != 0 {
		return nil, fmt.Errorf("malgo: frame size must be a positive even number, got %d", frameBytes)
	}

	c := &capture{
		frameBytes: frameBytes,
		frames:     make(chan []byte, frameBacklog),
		done:       make(chan struct{}),
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(f.Channels)
	cfg.SampleRate = uint32(f.SampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			c.write(input)
		},
	}
	dev, err := malgo.InitDevice(d.ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, &audio.DeviceError{Op: "open capture", Err: err}
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, &audio.DeviceError{Op: "start capture", Err: err}
	}
	c.dev = dev
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

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(clip.Channels)
	cfg.SampleRate = uint32(clip.SampleRate)

	var (
		mu       sync.Mutex
		pos      int
		drained  = make(chan struct{})
		doneOnce sync.Once
	)
	data := clip.PCM
	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, _ uint32) {
			mu.Lock()
			n := copy(output, data[pos:])
			pos += n
			rest := pos >= len(data)
			mu.Unlock()
			clear(output[n:])
			if rest && n == 0 {
				doneOnce.Do(func() { close(drained) })
			}
		},
	}
	dev, err := malgo.InitDevice(d.ctx.Context, cfg, callbacks)
	if err != nil {
		return &audio.DeviceError{Op: "open playback", Err: err}
	}
	defer dev.Uninit()
	if err := dev.Start(); err != nil {
		return &audio.DeviceError{Op: "start playback", Err: err}
	}
	defer func() { _ = dev.Stop() }()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements [audio.Device].
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	_ = d.ctx.Uninit()
	d.ctx.Free()
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
	dev        *malgo.Device
	frameBytes int

	mu      sync.Mutex
	pending []byte
	drops   int

	frames    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *capture) write(input []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, input...)
	for len(c.pending) >= c.frameBytes {
		frame := make([]byte, c.frameBytes)
		copy(frame, c.pending)
		c.pending = c.pending[c.frameBytes:]
		select {
		case c.frames <- frame:
		default:
			c.drops++
			if c.drops == 1 {
				slog.Warn("malgo: capture backlog full, dropping frames")
			}
		}
	}
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
		_ = c.dev.Stop()
		c.dev.Uninit()
	})
	return nil
}
