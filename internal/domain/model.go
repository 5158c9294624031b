package domain

import "context"

// ModelResponse is one assistant turn from a language model.
type ModelResponse struct {
	Message ChatMessage
	Usage   TokenUsage
}

// Model is the language-model capability. Implementations send the message
// history plus the supplied tool definitions and return the assistant's
// reply, which may carry tool-call requests.
type Model interface {
	Invoke(ctx context.Context, messages []ChatMessage, tools []Tool) (*ModelResponse, error)
}
