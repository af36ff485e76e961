// Package vad defines the Engine interface for voice activity detection
// backends.
//
// An engine wraps a frame-level speech classifier and hands out stateful,
// per-capture sessions. Classification is synchronous: IsSpeech returns
// immediately, so it can run inline in the capture loop.
//
// Implementations must be safe for concurrent use across different sessions.
// A single Session must not be shared between goroutines.
package vad

import "errors"

// ErrFrameSize is returned when a frame does not match the configured size.
var ErrFrameSize = errors.New("vad: frame size does not match session config")

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate in Hz. Must match the PCM passed to IsSpeech.
	SampleRate int

	// FrameSizeMs is the duration of each frame. WebRTC VAD accepts 10, 20
	// or 30 ms.
	FrameSizeMs int

	// Aggressiveness is the engine-specific sensitivity, 0 (least) to 3
	// (most aggressive at rejecting non-speech).
	Aggressiveness int
}

// FrameBytes returns the expected frame size in bytes for 16-bit mono PCM.
func (c Config) FrameBytes() int {
	return c.SampleRate * c.FrameSizeMs / 1000 * 2
}

// Session classifies frames for a single capture.
type Session interface {
	// IsSpeech reports whether frame contains speech. The frame must be
	// little-endian 16-bit mono PCM of exactly [Config.FrameBytes] bytes.
	IsSpeech(frame []byte) (bool, error)

	// Close releases the session. Calling Close more than once is safe.
	Close() error
}

// Engine is the factory for VAD sessions.
type Engine interface {
	// NewSession creates a session ready to accept frames. Returns an error if
	// cfg is unsupported.
	NewSession(cfg Config) (Session, error)
}
