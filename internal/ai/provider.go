package ai

import "context"

// CompletionRequest is one prompt sent to an LLM.
type CompletionRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// LLMProvider sends a prompt to an LLM and returns the raw text response.
// Used only by LLMTextGenerator; not exported to the rest of the system.
type LLMProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
