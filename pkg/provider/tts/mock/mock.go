// Package mock provides a test double for the tts.Provider interface.
//
// Provider returns deterministic PCM for each request and can inject
// per-text failures and latencies, which lets tests exercise out-of-order
// completion in the playback stage.
//
// Example:
//
//	p := &mock.Provider{
//	    FailTexts: map[string]error{"두 번째 문장.": errors.New("boom")},
//	    Latency:   func(text string) time.Duration { return 10 * time.Millisecond },
//	}
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/kioskvoice/pkg/audio"
	"github.com/MrWong99/kioskvoice/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// SynthesizeCall records one invocation of Synthesize.
type SynthesizeCall struct {
	Req tts.Request
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// PCM is returned for every successful call. If nil, a short non-silent
	// buffer is generated whose length is proportional to the text.
	PCM []byte

	// Err, if non-nil, is returned by every call.
	Err error

	// FailTexts maps a unit text to the error returned for it.
	FailTexts map[string]error

	// Latency returns how long to block for a given text. May be nil.
	Latency func(text string) time.Duration

	// SynthesizeCalls records every call in invocation order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns the configured result.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Req: req})
	err := p.Err
	if e, ok := p.FailTexts[req.Text]; ok {
		err = e
	}
	latency := p.Latency
	pcm := p.PCM
	p.mu.Unlock()

	if latency != nil {
		if d := latency(req.Text); d > 0 {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if err != nil {
		return nil, err
	}
	if pcm != nil {
		out := make([]byte, len(pcm))
		copy(out, pcm)
		return out, nil
	}
	samples := make([]int16, 16*len([]rune(req.Text))+16)
	for i := range samples {
		samples[i] = int16(1000 * (i%7 - 3))
	}
	return audio.PCM(samples), nil
}

// Texts returns the texts passed to Synthesize, in call order.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.SynthesizeCalls))
	for i, c := range p.SynthesizeCalls {
		out[i] = c.Req.Text
	}
	return out
}

// Reset clears recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}
