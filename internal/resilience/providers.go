package resilience

import (
	"context"

	"github.com/MrWong99/kioskvoice/pkg/audio"
	"github.com/MrWong99/kioskvoice/pkg/provider/llm"
	"github.com/MrWong99/kioskvoice/pkg/provider/stt"
	"github.com/MrWong99/kioskvoice/pkg/provider/tts"
)

// ─── STT ─────────────────────────────────────────────────────────────────────

// STTFallback implements [stt.Provider] with failover across backends.
type STTFallback struct{ *Group[stt.Provider] }

var _ stt.Provider = STTFallback{}

// NewSTTFallback creates an STTFallback with primary as the preferred backend.
func NewSTTFallback(name string, primary stt.Provider, cfg BreakerConfig) STTFallback {
	return STTFallback{NewGroup(name, primary, cfg)}
}

// Transcribe implements [stt.Provider].
func (f STTFallback) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	return Do(f.Group, func(p stt.Provider) (string, error) {
		return p.Transcribe(ctx, clip)
	})
}

// ─── LLM ─────────────────────────────────────────────────────────────────────

// LLMFallback implements [llm.Provider] with failover across backends. Only
// establishing the stream is covered; mid-stream errors reach the caller.
type LLMFallback struct{ *Group[llm.Provider] }

var _ llm.Provider = LLMFallback{}

// NewLLMFallback creates an LLMFallback with primary as the preferred backend.
func NewLLMFallback(name string, primary llm.Provider, cfg BreakerConfig) LLMFallback {
	return LLMFallback{NewGroup(name, primary, cfg)}
}

// StreamCompletion implements [llm.Provider].
func (f LLMFallback) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return Do(f.Group, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// ─── TTS ─────────────────────────────────────────────────────────────────────

// TTSFallback implements [tts.Provider] with failover across backends.
type TTSFallback struct{ *Group[tts.Provider] }

var _ tts.Provider = TTSFallback{}

// NewTTSFallback creates a TTSFallback with primary as the preferred backend.
func NewTTSFallback(name string, primary tts.Provider, cfg BreakerConfig) TTSFallback {
	return TTSFallback{NewGroup(name, primary, cfg)}
}

// Synthesize implements [tts.Provider].
func (f TTSFallback) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	return Do(f.Group, func(p tts.Provider) ([]byte, error) {
		return p.Synthesize(ctx, req)
	})
}
