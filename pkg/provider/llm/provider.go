// Package llm defines the Provider interface for the language-model backend
// that drives StreamingLLM.
//
// A provider wraps a remote chat-completion API and exposes a uniform
// streaming interface, so the coordinator never couples to a specific SDK.
// Implementors must be safe for concurrent use. The channel returned by
// StreamCompletion must be closed by the implementation when the stream ends
// or when the supplied context is cancelled.
package llm

import "context"

// CompletionRequest carries everything the model needs to produce a
// response. Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history, oldest first. The last
	// message is the new user turn that triggered this request.
	Messages []Message

	// Temperature controls output randomness, provider-native range.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may
	// generate. Zero means use the provider default.
	MaxTokens int
}

// Chunk is a single delta emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental text content of this chunk.
	Text string

	// FinishReason is set on the final chunk: "stop" on natural
	// completion, "length" when MaxTokens was reached, "error" when the
	// stream failed after starting, "" on any non-final chunk.
	FinishReason string
}

// Provider is the abstraction over any streaming chat-completion backend.
//
// Implementations must be safe for concurrent use from multiple goroutines
// and must propagate context cancellation promptly: when ctx is cancelled,
// StreamCompletion must close its channel as quickly as possible without
// emitting a "stop" or "length" FinishReason.
type Provider interface {
	// StreamCompletion sends req to the model and returns a read-only
	// channel that emits Chunk values as they arrive. The channel is
	// closed by the implementation when generation finishes or ctx is
	// cancelled.
	//
	// Callers must drain the channel to avoid goroutine leaks. The
	// returned channel must never be nil when error is nil; the initial
	// error return is non-nil only for failures that prevent the stream
	// from starting (invalid credentials, malformed request).
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Capabilities returns static metadata describing the underlying
	// model. Assumed constant for the lifetime of the Provider instance.
	Capabilities() ModelCapabilities
}
