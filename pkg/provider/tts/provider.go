// Package tts defines the Provider interface for text-to-speech backends.
//
// A provider synthesizes one short unit of text (typically a sentence) into
// raw 16-bit mono PCM. The pipeline calls Synthesize concurrently for
// consecutive units, so implementations must be safe for concurrent use.
package tts

import "context"

// Request describes one synthesis call.
type Request struct {
	// Text is the unit to speak. Never empty.
	Text string

	// Voice is the backend-specific voice identifier (e.g. "nova" for
	// OpenAI, a voice ID for ElevenLabs). Empty selects the provider default.
	Voice string

	// SampleRate is the desired output rate in Hz.
	SampleRate int

	// Speed is the speaking-rate multiplier. Zero means 1.0.
	Speed float64
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize returns little-endian 16-bit mono PCM at req.SampleRate.
	// An empty result with a nil error means the backend produced nothing.
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}
