package generator

import (
	"context"

	"gen-agents/internal/hf"
)

// Result is the terminal output of a generation call. Replies and Meta are
// parallel: Meta[i] describes Replies[i].
type Result struct {
	Replies []string         `json:"replies"`
	Meta    []map[string]any `json:"meta"`
}

// Client is the text-generation backend contract the generator drives.
// *hf.Client satisfies it; tests substitute a mock.
type Client interface {
	TextGeneration(ctx context.Context, prompt string, params hf.GenerationParams) (*hf.Output, error)
	TextGenerationStream(ctx context.Context, prompt string, params hf.GenerationParams) (hf.TokenStream, error)
	Model() string
}
