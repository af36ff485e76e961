// Package stt defines the Provider interface for speech-to-text backends.
//
// A provider turns one finished [audio.Clip] into UTF-8 text. Providers are
// batch-oriented: the capture stage decides where an utterance ends and
// hands the whole clip over at once.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/MrWong99/kioskvoice/pkg/audio"
)

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe returns the recognised text for clip. The text is returned
	// as the backend produced it; callers trim and filter it.
	//
	// Returns an error if the backend is unreachable, rejects the request,
	// or ctx is cancelled.
	Transcribe(ctx context.Context, clip audio.Clip) (string, error)
}
