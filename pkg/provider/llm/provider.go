// Package llm defines the Provider interface for streaming chat-completion
// backends.
//
// The central method is StreamCompletion: it starts generation and returns a
// channel of incremental text chunks that downstream stages (sentence
// segmentation, speech synthesis) consume while the model is still writing.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn sent to the model.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest is the input to StreamCompletion.
type CompletionRequest struct {
	// SystemPrompt is prepended as a system message when non-empty.
	SystemPrompt string

	// Messages is the conversation history, oldest first, ending with the
	// newest user message.
	Messages []Message

	// Temperature is passed through verbatim, including zero.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// FinishReasonError marks a terminal chunk that carries a stream error.
const FinishReasonError = "error"

// Chunk is one increment of a streamed completion.
type Chunk struct {
	// Text is the newly generated text. May be empty on the final chunk.
	Text string

	// FinishReason is set on the last chunk ("stop", "length", ...). It is
	// [FinishReasonError] when the stream failed, in which case Err is set.
	FinishReason string

	// Err is the mid-stream failure, if any.
	Err error
}

// Provider is the abstraction over any chat-completion backend.
type Provider interface {
	// StreamCompletion starts a streamed completion. The returned channel is
	// closed when generation finishes, fails, or ctx is cancelled. An error is
	// returned only if the stream could not be started at all.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)
}
