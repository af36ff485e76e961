// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider to feed scripted chunks without a live backend and to inspect
// the CompletionRequests the caller built.
//
// Example:
//
//	p := &mock.Provider{Replies: [][]string{{"불고기버거는 ", "6,500원입니다."}}}
//	ch, _ := p.StreamCompletion(ctx, req)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/kioskvoice/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// StreamCall records a single invocation of StreamCompletion.
type StreamCall struct {
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Replies holds the text pieces streamed for each call, in call order.
	// Once exhausted, Reply is used.
	Replies [][]string

	// Reply is streamed after Replies runs out.
	Reply []string

	// StreamErr, if non-nil, is returned from StreamCompletion.
	StreamErr error

	// MidStreamErr, if non-nil, is emitted as a terminal error chunk after
	// the scripted pieces.
	MidStreamErr error

	// ChunkDelay is slept between pieces; cancelling ctx stops the stream.
	ChunkDelay time.Duration

	// StreamCalls records every invocation of StreamCompletion in order.
	StreamCalls []StreamCall

	active int
}

// StreamCompletion records the call and streams the next scripted reply.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	n := len(p.StreamCalls)
	p.StreamCalls = append(p.StreamCalls, StreamCall{Req: req})
	if p.StreamErr != nil {
		err := p.StreamErr
		p.mu.Unlock()
		return nil, err
	}
	pieces := p.Reply
	if n < len(p.Replies) {
		pieces = p.Replies[n]
	}
	delay := p.ChunkDelay
	midErr := p.MidStreamErr
	p.active++
	p.mu.Unlock()

	ch := make(chan llm.Chunk)
	go func() {
		defer func() {
			p.mu.Lock()
			p.active--
			p.mu.Unlock()
			close(ch)
		}()
		for _, text := range pieces {
			if delay > 0 {
				t := time.NewTimer(delay)
				select {
				case <-t.C:
				case <-ctx.Done():
					t.Stop()
					return
				}
			}
			select {
			case ch <- llm.Chunk{Text: text}:
			case <-ctx.Done():
				return
			}
		}
		last := llm.Chunk{FinishReason: "stop"}
		if midErr != nil {
			last = llm.Chunk{FinishReason: llm.FinishReasonError, Err: midErr}
		}
		select {
		case ch <- last:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

// Active returns the number of streams whose goroutine has not yet exited.
func (p *Provider) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Calls returns a copy of the recorded calls.
func (p *Provider) Calls() []StreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]StreamCall, len(p.StreamCalls))
	copy(out, p.StreamCalls)
	return out
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StreamCalls = nil
}
