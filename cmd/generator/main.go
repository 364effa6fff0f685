package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"gen-agents/internal/app"
	"gen-agents/internal/generator"
	"gen-agents/internal/hf"
	"gen-agents/internal/httputil"
	"gen-agents/internal/streaming"
)

type generateRequest struct {
	Prompt       string   `json:"prompt" validate:"required,min=1"`
	Stream       bool     `json:"stream"`
	MaxNewTokens int      `json:"max_new_tokens" validate:"omitempty,min=1,max=4096"`
	Temperature  float64  `json:"temperature" validate:"omitempty,gt=0,lte=2"`
	StopWords    []string `json:"stop_words" validate:"omitempty,max=8"`
}

func main() {
	deps, err := app.BuildGenerator(context.Background())
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	r := httputil.NewRouter(deps.Log)

	r.Post("/api/generate", generateHandler(deps))
	r.Get("/healthz", httputil.HealthHandler(deps.Log))

	addr := fmt.Sprintf(":%d", deps.Config.Port)
	deps.Log.Info("generator service listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		deps.Log.Error("server error", "err", err)
	}
}

func generateHandler(deps app.GeneratorDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Fail(deps.Log, w, "invalid payload", err, http.StatusBadRequest)
			return
		}

		if err := httputil.Validator.Struct(&req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}

		params := hf.GenerationParams{
			MaxNewTokens:  req.MaxNewTokens,
			Temperature:   req.Temperature,
			StopSequences: req.StopWords,
		}

		if !req.Stream {
			result, err := deps.Generator.Run(r.Context(), req.Prompt, generator.WithRuntimeParams(params))
			if err != nil {
				httputil.Fail(deps.Log, w, "generation failed", err, http.StatusBadGateway)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, result)
			return
		}

		streamGenerate(deps, w, r, req.Prompt, params)
	}
}

// streamGenerate relays chunks to the client as server-sent events, then a
// terminal "result" event with the aggregated response.
func streamGenerate(deps app.GeneratorDeps, w http.ResponseWriter, r *http.Request, prompt string, params hf.GenerationParams) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.Fail(deps.Log, w, "streaming unsupported", nil, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	headerWritten := false
	callback := streaming.SyncCallback(func(chunk streaming.StreamingChunk) error {
		if !headerWritten {
			w.WriteHeader(http.StatusOK)
			headerWritten = true
		}
		data, err := json.Marshal(chunk)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})

	result, err := deps.Generator.Run(r.Context(), prompt,
		generator.WithRuntimeParams(params),
		generator.WithRuntimeCallback(callback),
	)
	if err != nil {
		if !headerWritten {
			httputil.Fail(deps.Log, w, "generation failed", err, http.StatusBadGateway)
			return
		}
		// Mid-stream failure: the status line is gone, signal in-band.
		deps.Log.Error("stream aborted", "err", err)
		fmt.Fprintf(w, "event: error\ndata: %q\n\n", err.Error())
		flusher.Flush()
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		deps.Log.Error("failed to marshal result", "err", err)
		return
	}
	fmt.Fprintf(w, "event: result\ndata: %s\n\n", data)
	flusher.Flush()
}
