package ai

import (
	"context"
	"time"
)

// CompletionRequest is a single prompt-in/JSON-out call to a language model.
// Evidence is the serialized summary payload embedded in the user prompt; it
// is the only data the model ever sees.
type CompletionRequest struct {
	System   string
	Prompt   string
	Model    string
	Timeout  time.Duration
	MaxTokens int64
}

// CompletionClient is the interface for AI completion providers. Complete
// returns the raw response content; callers are responsible for schema
// validation.
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
