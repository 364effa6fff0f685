package hf

import (
	"fmt"
)

// APIType selects which Hugging Face text-generation surface the client talks to.
type APIType string

const (
	// APITypeServerless is the hosted serverless inference API. Requires a model ID.
	APITypeServerless APIType = "serverless_inference_api"
	// APITypeInferenceEndpoints is a paid, dedicated inference endpoint. Requires a URL.
	APITypeInferenceEndpoints APIType = "inference_endpoints"
	// APITypeTextGenerationInference is a self-hosted TGI server. Requires a URL.
	APITypeTextGenerationInference APIType = "text_generation_inference"
)

// ParseAPIType converts a config string into an APIType.
func ParseAPIType(s string) (APIType, error) {
	switch APIType(s) {
	case APITypeServerless, APITypeInferenceEndpoints, APITypeTextGenerationInference:
		return APIType(s), nil
	default:
		return "", fmt.Errorf("unknown hf api type: %q", s)
	}
}

// Token is one generated token as reported by the provider.
type Token struct {
	ID      int     `json:"id"`
	Text    string  `json:"text"`
	Logprob float64 `json:"logprob"`
	// Special marks control tokens that are not user-visible text.
	Special bool `json:"special"`
}

// StreamDetails is the terminal detail bag attached to the last event of a stream.
type StreamDetails struct {
	FinishReason    string `json:"finish_reason"`
	GeneratedTokens int    `json:"generated_tokens"`
	Seed            *int64 `json:"seed,omitempty"`
}

// StreamOutput is one incremental event from a streaming text-generation call.
type StreamOutput struct {
	Index int   `json:"index"`
	Token Token `json:"token"`
	// GeneratedText is set only on the final event and carries the full text.
	GeneratedText *string `json:"generated_text"`
	// Details is present only on the final event.
	Details *StreamDetails `json:"details"`
}

// Details is the detail bag of a non-streaming response.
type Details struct {
	FinishReason    string  `json:"finish_reason"`
	GeneratedTokens int     `json:"generated_tokens"`
	Seed            *int64  `json:"seed,omitempty"`
	Tokens          []Token `json:"tokens"`
}

// Output is the terminal response of a non-streaming text-generation call.
type Output struct {
	GeneratedText string   `json:"generated_text"`
	Details       *Details `json:"details"`
}

// GenerationParams customizes a text-generation request. Zero values are
// omitted from the wire payload so the server applies its own defaults.
type GenerationParams struct {
	MaxNewTokens      int      `json:"max_new_tokens,omitempty"`
	Temperature       float64  `json:"temperature,omitempty"`
	TopK              int      `json:"top_k,omitempty"`
	TopP              float64  `json:"top_p,omitempty"`
	RepetitionPenalty float64  `json:"repetition_penalty,omitempty"`
	StopSequences     []string `json:"stop,omitempty"`
	Seed              *int64   `json:"seed,omitempty"`
	DoSample          bool     `json:"do_sample,omitempty"`
}

// Merge returns a copy of p with every non-zero field of override applied on
// top, matching how per-call generation parameters shadow the ones bound at
// construction time.
func (p GenerationParams) Merge(override GenerationParams) GenerationParams {
	out := p
	if override.MaxNewTokens != 0 {
		out.MaxNewTokens = override.MaxNewTokens
	}
	if override.Temperature != 0 {
		out.Temperature = override.Temperature
	}
	if override.TopK != 0 {
		out.TopK = override.TopK
	}
	if override.TopP != 0 {
		out.TopP = override.TopP
	}
	if override.RepetitionPenalty != 0 {
		out.RepetitionPenalty = override.RepetitionPenalty
	}
	if len(override.StopSequences) > 0 {
		out.StopSequences = override.StopSequences
	}
	if override.Seed != nil {
		out.Seed = override.Seed
	}
	if override.DoSample {
		out.DoSample = true
	}
	return out
}

// TokenStream is a finite, ordered, single-pass sequence of streaming events.
// The caller drives it: Next advances to the following event, Current returns
// it, and Err reports what terminated the stream, if anything did.
type TokenStream interface {
	Next() bool
	Current() StreamOutput
	Err() error
	Close() error
}
