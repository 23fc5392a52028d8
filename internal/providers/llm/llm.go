// Package llm talks to chat-completion providers and routes calls between a
// primary and a fallback model.
package llm

import (
	"context"
	"errors"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// ErrNotConfigured is returned by a provider that has no credentials.
var ErrNotConfigured = errors.New("llm provider not configured")

// Request is one prompt sent to a provider.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	// JSON asks the provider for a single JSON document. Schema describes
	// the expected shape and is appended to the prompt.
	JSON   bool
	Schema string
}

// Completer is implemented by every provider client.
type Completer interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Transcriber turns recorded speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, fileName string, audio []byte) (string, error)
}
