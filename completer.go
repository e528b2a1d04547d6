package egress

import "context"

// CompletionRequest is a provider-agnostic text generation request.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature *float32
}

// Validate returns an error if the request cannot be sent.
func (r *CompletionRequest) Validate() error {
	if r.Prompt == "" {
		return Errorf(EINVALID, "prompt required")
	}
	if r.MaxTokens < 0 {
		return Errorf(EINVALID, "max tokens must not be negative")
	}
	return nil
}

// Completion is the text produced by a provider.
type Completion struct {
	Text      string
	Provider  string
	RequestID string
}

// Completer generates text with a single LLM backend.
type Completer interface {
	// Name returns the provider key used for rate limits and circuit breaking.
	Name() string

	// Complete sends the request to the backend.
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)
}
