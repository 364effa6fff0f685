package generator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"gen-agents/internal/hf"
	"gen-agents/internal/streaming"
)

// ErrEmptyStream reports that a streaming call produced zero non-special
// events. The provider is expected to emit at least one visible token; an
// empty stream indicates a malformed or empty response.
var ErrEmptyStream = errors.New("generator: stream produced no chunks")

const defaultMaxNewTokens = 512

// HuggingFaceGenerator generates text through a Hugging Face inference
// backend. It owns no transport of its own; the client does the HTTP work.
type HuggingFaceGenerator struct {
	client Client
	params hf.GenerationParams
	// callback bound at construction time; a per-call callback shadows it.
	callback streaming.Callback
	info     *streaming.ComponentInfo
	log      *slog.Logger
}

// Option configures a HuggingFaceGenerator.
type Option func(*HuggingFaceGenerator)

// WithGenerationParams binds default generation parameters.
func WithGenerationParams(params hf.GenerationParams) Option {
	return func(g *HuggingFaceGenerator) { g.params = params }
}

// WithStopWords appends stop words to the bound stop sequences.
func WithStopWords(words ...string) Option {
	return func(g *HuggingFaceGenerator) {
		g.params.StopSequences = append(g.params.StopSequences, words...)
	}
}

// WithStreamingCallback binds a callback invoked once per streamed chunk.
func WithStreamingCallback(cb streaming.Callback) Option {
	return func(g *HuggingFaceGenerator) { g.callback = cb }
}

// WithName sets the pipeline-assigned component name.
func WithName(name string) Option {
	return func(g *HuggingFaceGenerator) { g.info.Name = name }
}

// NewHuggingFace builds a generator around the given client.
func NewHuggingFace(client Client, log *slog.Logger, opts ...Option) (*HuggingFaceGenerator, error) {
	if client == nil {
		return nil, errors.New("generator: client is required")
	}
	if log == nil {
		log = slog.Default()
	}
	g := &HuggingFaceGenerator{
		client: client,
		info:   &streaming.ComponentInfo{Type: "gen-agents/internal/generator.HuggingFaceGenerator"},
		log:    log,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.params.MaxNewTokens == 0 {
		g.params.MaxNewTokens = defaultMaxNewTokens
	}
	return g, nil
}

// RunOption configures a single Run call.
type RunOption func(*runConfig)

type runConfig struct {
	callback streaming.Callback
	params   hf.GenerationParams
}

// WithRuntimeCallback supplies a per-call streaming callback. It takes
// precedence over the callback bound at construction time.
func WithRuntimeCallback(cb streaming.Callback) RunOption {
	return func(rc *runConfig) { rc.callback = cb }
}

// WithRuntimeParams merges per-call generation parameters over the bound ones.
func WithRuntimeParams(params hf.GenerationParams) RunOption {
	return func(rc *runConfig) { rc.params = params }
}

// Run invokes text generation for the prompt. When an effective streaming
// callback is present the call streams and folds the events; otherwise it
// performs one blocking request.
func (g *HuggingFaceGenerator) Run(ctx context.Context, prompt string, opts ...RunOption) (Result, error) {
	var rc runConfig
	for _, opt := range opts {
		opt(&rc)
	}
	params := g.params.Merge(rc.params)

	// This is the synchronous path, so async-shaped callbacks are rejected
	// here even when they would never be invoked.
	selected, err := streaming.SelectCallback(g.callback, rc.callback, false)
	if err != nil {
		return Result{}, err
	}

	if selected == nil {
		g.log.Debug("running non-streaming generation", "model", g.client.Model())
		out, err := g.client.TextGeneration(ctx, prompt, params)
		if err != nil {
			return Result{}, err
		}
		return MapNonStreaming(out, g.client.Model()), nil
	}

	g.log.Debug("running streaming generation", "model", g.client.Model())
	stream, err := g.client.TextGenerationStream(ctx, prompt, params)
	if err != nil {
		return Result{}, err
	}
	defer stream.Close()

	return AggregateStream(stream, selected.(streaming.SyncCallback), g.info, g.client.Model())
}

// AggregateStream folds a provider event sequence into one Result, invoking
// cb once per visible token, in event order. The fold does not advance to the
// next event until the callback returns; a slow callback stalls the stream.
// A callback error aborts the fold and propagates unchanged.
func AggregateStream(stream hf.TokenStream, cb streaming.SyncCallback, info *streaming.ComponentInfo, model string) (Result, error) {
	var (
		contents       []string
		lastChunk      streaming.StreamingChunk
		accumulated    int
		firstChunkTime time.Time
	)

	for stream.Next() {
		event := stream.Current()
		if event.Token.Special {
			// Control tokens never reach the callback or the reply.
			continue
		}

		meta := chunkMeta(event)
		if accumulated == 0 {
			firstChunkTime = time.Now()
		}

		chunk := streaming.StreamingChunk{
			Content:       event.Token.Text,
			Meta:          meta,
			ComponentInfo: info,
			Index:         0,
			Start:         accumulated == 0,
			FinishReason:  MapFinishReason(rawFinishReason(event)),
		}
		contents = append(contents, chunk.Content)
		lastChunk = chunk
		accumulated++

		if err := cb(chunk); err != nil {
			return Result{}, err
		}
	}
	if err := stream.Err(); err != nil {
		return Result{}, err
	}
	if accumulated == 0 {
		return Result{}, ErrEmptyStream
	}

	completionTokens := 0
	if n, ok := lastChunk.Meta["generated_tokens"].(int); ok {
		completionTokens = n
	}
	meta := map[string]any{
		"finish_reason":         lastChunk.FinishReason,
		"model":                 model,
		"usage":                 map[string]any{"completion_tokens": completionTokens},
		"completion_start_time": firstChunkTime.Format(time.RFC3339Nano),
	}
	return Result{
		Replies: []string{strings.Join(contents, "")},
		Meta:    []map[string]any{meta},
	}, nil
}

// MapNonStreaming converts a terminal provider response into a Result.
// No callback is involved.
func MapNonStreaming(out *hf.Output, model string) Result {
	finishReason := streaming.FinishReasonNone
	completionTokens := 0
	if out.Details != nil {
		finishReason = MapFinishReason(out.Details.FinishReason)
		completionTokens = len(out.Details.Tokens)
	}
	meta := map[string]any{
		"model":         model,
		"finish_reason": finishReason,
		"usage":         map[string]any{"completion_tokens": completionTokens},
	}
	return Result{
		Replies: []string{out.GeneratedText},
		Meta:    []map[string]any{meta},
	}
}

// MapFinishReason normalizes the provider's finish-reason vocabulary.
// Unknown or absent reasons map to FinishReasonNone.
func MapFinishReason(raw string) streaming.FinishReason {
	switch raw {
	case "length":
		return streaming.FinishReasonLength
	case "eos_token", "stop_sequence":
		return streaming.FinishReasonStop
	default:
		return streaming.FinishReasonNone
	}
}

// chunkMeta merges the token's detail bag with the event's terminal details.
func chunkMeta(event hf.StreamOutput) map[string]any {
	meta := map[string]any{
		"id":      event.Token.ID,
		"text":    event.Token.Text,
		"logprob": event.Token.Logprob,
		"special": event.Token.Special,
	}
	if event.Details != nil {
		meta["finish_reason"] = event.Details.FinishReason
		meta["generated_tokens"] = event.Details.GeneratedTokens
		if event.Details.Seed != nil {
			meta["seed"] = *event.Details.Seed
		}
	}
	return meta
}

func rawFinishReason(event hf.StreamOutput) string {
	if event.Details == nil {
		return ""
	}
	return event.Details.FinishReason
}
