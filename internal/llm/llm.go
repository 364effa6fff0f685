package llm

import "context"

// Client is a minimal LLM interface to allow pluggable providers.
// The evaluator needs exactly one capability: a chat completion that is
// guaranteed to return a JSON object.
type Client interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}
