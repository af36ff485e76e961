// Package mock provides a test double for the stt.Provider interface.
//
// Provider returns scripted texts in order and records every clip it was
// asked to transcribe.
//
// Example:
//
//	p := &mock.Provider{Texts: []string{"불고기버거 주세요"}}
//	text, _ := p.Transcribe(ctx, clip)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/kioskvoice/pkg/audio"
	"github.com/MrWong99/kioskvoice/pkg/provider/stt"
)

var _ stt.Provider = (*Provider)(nil)

// TranscribeCall records one invocation of Provider.Transcribe.
type TranscribeCall struct {
	Clip audio.Clip
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Texts is consumed one entry per call. Once exhausted, Text is returned.
	Texts []string

	// Text is returned after Texts runs out.
	Text string

	// Err, if non-nil, is returned by every call.
	Err error

	// Errs is consumed one entry per call before Err; a nil entry means
	// success for that call.
	Errs []error

	// Delay blocks each call for the given duration or until ctx is done.
	Delay time.Duration

	// TranscribeCalls records every call in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the next scripted result.
func (p *Provider) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	p.mu.Lock()
	n := len(p.TranscribeCalls)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Clip: clip})
	delay := p.Delay
	var err error
	if n < len(p.Errs) {
		err = p.Errs[n]
	} else {
		err = p.Err
	}
	text := p.Text
	if n < len(p.Texts) {
		text = p.Texts[n]
	}
	p.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// Calls returns the number of Transcribe invocations.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}
