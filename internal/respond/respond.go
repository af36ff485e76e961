// Package respond streams the assistant's reply to one customer utterance.
//
// [Stream] sends the persona prompt, the recent exchanges and the latest
// utterance to an [llm.Provider] and forwards the generated text as ordered
// [Fragment] values. [Echo] is the degraded stand-in used when no model is
// configured: it answers with a single canned fragment.
package respond

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/kioskvoice/internal/observe"
	"github.com/MrWong99/kioskvoice/pkg/provider/llm"
)

// ErrGenerationUnavailable marks a degraded fragment produced because the
// language model could not be reached.
var ErrGenerationUnavailable = errors.New("respond: generation unavailable")

// Defaults for the streamed completion.
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.0
	DefaultMaxTokens   = 400
)

// Fragment is one ordered piece of the assistant's reply.
type Fragment struct {
	Text string

	// Err is set on a degraded fragment and wraps [ErrGenerationUnavailable].
	Err error
}

// Degraded reports whether the fragment is a canned fallback.
func (f Fragment) Degraded() bool { return errors.Is(f.Err, ErrGenerationUnavailable) }

// Exchange is one past user utterance and the assistant's full reply.
type Exchange struct {
	User      string
	Assistant string
}

// Generator produces the reply for one utterance. The returned channel is
// finite and closed when the reply ends or ctx is cancelled. Consumers that
// stop reading early must cancel ctx.
type Generator interface {
	Generate(ctx context.Context, userText string, history []Exchange, menu string) <-chan Fragment
}

// New returns a [Stream] when p is non-nil and [Echo] otherwise.
func New(p llm.Provider, opts ...Option) Generator {
	if p == nil {
		return Echo{}
	}
	return NewStream(p, opts...)
}

// EchoText is the canned reply for userText.
func EchoText(userText string) string {
	return "요청하신 내용에 대한 안내입니다: " + userText
}

// Echo answers every utterance with [EchoText].
type Echo struct{}

var _ Generator = Echo{}

// Generate implements [Generator].
func (Echo) Generate(_ context.Context, userText string, _ []Exchange, _ string) <-chan Fragment {
	return single(Fragment{Text: EchoText(userText), Err: ErrGenerationUnavailable})
}

func single(f Fragment) <-chan Fragment {
	ch := make(chan Fragment, 1)
	ch <- f
	close(ch)
	return ch
}

// Option configures a [Stream].
type Option func(*Stream)

// WithPersona replaces [DefaultPersona].
func WithPersona(p string) Option {
	return func(s *Stream) {
		if p != "" {
			s.persona = p
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(s *Stream) { s.temperature = t }
}

// WithMaxTokens caps the reply length.
func WithMaxTokens(n int) Option {
	return func(s *Stream) { s.maxTokens = n }
}

// WithMetrics records first-fragment and total latency on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Stream) { s.metrics = m }
}

// Stream generates replies with a streaming language model.
type Stream struct {
	provider    llm.Provider
	persona     string
	temperature float64
	maxTokens   int
	metrics     *observe.Metrics
}

var _ Generator = (*Stream)(nil)

// NewStream creates a Stream backed by p.
func NewStream(p llm.Provider, opts ...Option) *Stream {
	s := &Stream{
		provider:    p,
		persona:     DefaultPersona,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Request builds the completion request for one utterance.
func (s *Stream) Request(userText string, history []Exchange, menu string) llm.CompletionRequest {
	msgs := make([]llm.Message, 0, 2*len(history)+1)
	for _, ex := range history {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: ex.User},
			llm.Message{Role: llm.RoleAssistant, Content: ex.Assistant},
		)
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: userText})
	return llm.CompletionRequest{
		SystemPrompt: SystemPrompt(s.persona, menu),
		Messages:     msgs,
		Temperature:  s.temperature,
		MaxTokens:    s.maxTokens,
	}
}

// Generate implements [Generator].
func (s *Stream) Generate(ctx context.Context, userText string, history []Exchange, menu string) <-chan Fragment {
	log := observe.Logger(ctx)
	start := time.Now()

	src, err := s.provider.StreamCompletion(ctx, s.Request(userText, history, menu))
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordProviderRequest(ctx, "llm", "error")
		}
		if ctx.Err() != nil {
			ch := make(chan Fragment)
			close(ch)
			return ch
		}
		log.Warn("respond: generation unavailable, using canned reply", "err", err)
		return single(Fragment{Text: EchoText(userText), Err: fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)})
	}

	out := make(chan Fragment)
	go func() {
		defer close(out)
		// The provider closes src once ctx is done, so draining it means no
		// provider goroutine outlives out.
		defer func() {
			for range src {
			}
		}()

		first := true
		var streamErr error
		defer func() {
			if s.metrics != nil {
				s.metrics.ObserveProvider(ctx, s.metrics.LLMDuration, "llm", start, streamErr)
			}
		}()

		for chunk := range src {
			if chunk.Err != nil {
				streamErr = chunk.Err
				if ctx.Err() == nil {
					log.Warn("respond: stream ended with error", "err", chunk.Err)
				}
				return
			}
			if chunk.Text == "" {
				continue
			}
			if first && s.metrics != nil {
				s.metrics.LLMFirstFragment.Record(ctx, time.Since(start).Seconds())
			}
			first = false
			select {
			case out <- Fragment{Text: chunk.Text}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
