// Package llm abstracts the chat-completion backend used for judgment calls.
package llm

import "context"

// Message is a single conversation message.
type Message struct {
	Role    string
	Content string
}

// CompletionRequest holds the parameters for one completion call.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Temperature  float64
	MaxTokens    int
}

// CompletionResponse holds the model's reply.
type CompletionResponse struct {
	Content    string
	Model      string
	DurationMS int64
}

// Provider is a completion backend. Implementations must be safe for
// concurrent use.
type Provider interface {
	Name() string
	DefaultModel() string
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}
