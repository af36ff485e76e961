// Package audio defines the PCM containers and the device abstraction shared
// by the capture, transcription, synthesis and playback stages.
//
// All PCM in this package is 16-bit signed little-endian. A [Clip] owns its
// byte slice; stages hand clips off by value and never mutate a clip they
// received from someone else.
package audio

import (
	"fmt"
	"time"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form such as "16000Hz mono".
func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// BytesPerSecond returns the byte rate of 16-bit PCM in this format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// FrameBytes returns the size in bytes of a frame of the given duration.
func (f Format) FrameBytes(d time.Duration) int {
	samples := int(int64(f.SampleRate) * int64(d) / int64(time.Second))
	return samples * f.Channels * 2
}

// Common formats used by the kiosk pipeline.
var (
	// CaptureFormat is what the microphone records and what STT receives.
	CaptureFormat = Format{SampleRate: 16000, Channels: 1}

	// SpeechFormat is what the synthesizer produces.
	SpeechFormat = Format{SampleRate: 24000, Channels: 1}
)

// Clip is a contiguous buffer of linear PCM with a fixed format.
type Clip struct {
	// PCM is 16-bit signed little-endian sample data, interleaved if
	// Channels > 1.
	PCM []byte

	// SampleRate in Hz (16000 for capture, 24000 for synthesis).
	SampleRate int

	// Channels: 1 for mono.
	Channels int
}

// NewClip wraps pcm in a Clip of the given format.
func NewClip(pcm []byte, f Format) Clip {
	return Clip{PCM: pcm, SampleRate: f.SampleRate, Channels: f.Channels}
}

// Format returns the clip's sample rate and channel count.
func (c Clip) Format() Format {
	return Format{SampleRate: c.SampleRate, Channels: c.Channels}
}

// Empty reports whether the clip carries no samples.
func (c Clip) Empty() bool { return len(c.PCM) < 2 }

// Duration returns the playback length of the clip.
func (c Clip) Duration() time.Duration {
	bps := c.Format().BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(int64(len(c.PCM)) * int64(time.Second) / int64(bps))
}
