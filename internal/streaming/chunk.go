package streaming

import (
	"context"
	"errors"
	"fmt"
)

// FinishReason is the normalized signal for why generation stopped.
// Providers report termination in their own vocabulary; everything downstream
// of the generators sees only these values.
type FinishReason string

const (
	// FinishReasonNone means the stream has not terminated yet, or the
	// provider did not report a recognizable reason.
	FinishReasonNone FinishReason = ""
	// FinishReasonStop means generation ended naturally (EOS token or a
	// configured stop sequence).
	FinishReasonStop FinishReason = "stop"
	// FinishReasonLength means generation hit the token limit.
	FinishReasonLength FinishReason = "length"
)

// ComponentInfo identifies the pipeline component that produced a chunk.
// Name is assigned by the pipeline at wiring time and is immutable afterwards.
type ComponentInfo struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// StreamingChunk is one incremental unit of generated text along with its
// metadata. Chunks are ephemeral: they are created as the provider yields
// events, handed to the streaming callback, and discarded after aggregation.
type StreamingChunk struct {
	// Content is the user-visible text fragment. May be empty.
	Content string `json:"content"`
	// Meta carries provider-specific detail for this chunk, e.g. the raw
	// finish reason or the running token count.
	Meta map[string]any `json:"meta,omitempty"`
	// ComponentInfo points at the producing component. Shared across all
	// chunks of one call; not owned by the chunk.
	ComponentInfo *ComponentInfo `json:"component_info,omitempty"`
	// Index identifies which parallel output stream this chunk belongs to.
	Index int `json:"index"`
	// Start is true only for the first chunk of a given output stream.
	Start bool `json:"start"`
	// FinishReason is set only on the terminal chunk of a stream.
	FinishReason FinishReason `json:"finish_reason,omitempty"`
}

// SyncCallback is invoked in-line, once per chunk, on the same call stack as
// the stream fold. Returning an error aborts the stream.
type SyncCallback func(chunk StreamingChunk) error

// AsyncCallback is the deferred counterpart used by asynchronous call paths.
type AsyncCallback func(ctx context.Context, chunk StreamingChunk) error

// Callback is either a SyncCallback or an AsyncCallback. The two concrete
// types replace runtime shape inspection: a call site states its concurrency
// contract via requiresAsync and SelectCallback checks both candidates
// against it.
type Callback interface {
	streamingCallback()
}

func (SyncCallback) streamingCallback()  {}
func (AsyncCallback) streamingCallback() {}

// ErrInvalidCallbackType reports a mismatch between the callback kind a call
// site requires and the kind it was given.
var ErrInvalidCallbackType = errors.New("invalid streaming callback type")

// SelectCallback picks the effective streaming callback for a generation
// call. The runtime callback, when present, takes precedence over the init
// callback. Both callbacks are validated against requiresAsync even though
// only one is used, since a single component instance typically serves both
// the synchronous and the asynchronous call path.
func SelectCallback(init, runtime Callback, requiresAsync bool) (Callback, error) {
	if err := checkCallback("init", init, requiresAsync); err != nil {
		return nil, err
	}
	if err := checkCallback("runtime", runtime, requiresAsync); err != nil {
		return nil, err
	}
	if runtime != nil {
		return runtime, nil
	}
	return init, nil
}

func checkCallback(origin string, cb Callback, requiresAsync bool) error {
	if cb == nil {
		return nil
	}
	switch cb.(type) {
	case SyncCallback:
		if requiresAsync {
			return fmt.Errorf("%w: the %s callback must be async compatible", ErrInvalidCallbackType, origin)
		}
	case AsyncCallback:
		if !requiresAsync {
			return fmt.Errorf("%w: the %s callback cannot be async", ErrInvalidCallbackType, origin)
		}
	default:
		return fmt.Errorf("%w: unknown callback type %T", ErrInvalidCallbackType, cb)
	}
	return nil
}
