package audio

import (
	"context"
	"errors"
	"fmt"
)

// ErrDevice is matched by every [DeviceError]. Device failures are fatal to a
// voice session.
var ErrDevice = errors.New("audio: device failure")

// DeviceError reports a failure of the local audio hardware or sound server.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio: device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Is reports whether target is [ErrDevice].
func (e *DeviceError) Is(target error) bool { return target == ErrDevice }

// Capture is an open microphone stream delivering fixed-size frames.
type Capture interface {
	// ReadFrame blocks until the next frame is available or ctx is done.
	// Each frame holds exactly the frame size requested at open time.
	ReadFrame(ctx context.Context) ([]byte, error)

	// Close stops recording and releases the stream. Idempotent.
	Close() error
}

// Device is the local microphone and speaker.
//
// Implementations must be safe for use by one capturing goroutine and one
// playing goroutine at a time; the pipeline never does both concurrently.
type Device interface {
	// OpenCapture starts recording in format f and returns a stream that
	// yields frames of frameBytes bytes.
	OpenCapture(ctx context.Context, f Format, frameBytes int) (Capture, error)

	// Play writes the clip to the speaker and blocks until it has fully
	// drained. Cancelling ctx stops playback early.
	Play(ctx context.Context, c Clip) error

	// Close releases the device. Idempotent.
	Close() error
}
