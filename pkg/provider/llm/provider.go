// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (e.g. OpenAI GPT-4o, an
// Anthropic model via any-llm-go, or a local Ollama instance) and exposes a
// uniform completion interface. The interview domain never talks to a backend
// SDK directly: prompt construction and response parsing live in
// internal/assess, on top of this port.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
package llm

import "context"

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is an optional high-priority instruction injected before the
	// conversation. Providers without native system-prompt support prepend it
	// as a "system"-role message.
	SystemPrompt string

	// Messages is the ordered conversation. The last message drives the response.
	Messages []Message

	// Temperature controls output randomness in [0.0, 2.0]. Zero requests the
	// provider default.
	Temperature float64

	// MaxTokens caps completion length. Zero means provider default.
	MaxTokens int

	// ForceJSON asks the backend to constrain output to a single JSON object.
	// Providers without a native JSON response mode may ignore it; callers must
	// still validate the response shape.
	ForceJSON bool
}

// CompletionResponse is the model's full reply.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use. When ctx is cancelled the
// call must return as quickly as possible with ctx.Err() (possibly wrapped).
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
