package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"

	"gen-agents/internal/app"
	"gen-agents/internal/config"
	"gen-agents/internal/generator"
	"gen-agents/internal/hf"
)

func newTestDeps(t *testing.T, client generator.Client) app.GeneratorDeps {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	gen, err := generator.NewHuggingFace(client, log)
	if err != nil {
		t.Fatalf("failed to build generator: %v", err)
	}
	return app.GeneratorDeps{
		Config:    config.Config{},
		Log:       log,
		Generator: gen,
	}
}

func TestGenerateHandlerNonStreaming(t *testing.T) {
	client := new(generator.MockClient)
	client.On("Model").Return("test-model")
	client.On("TextGeneration", mock.Anything, "What is the capital of France?", mock.Anything).
		Return(&hf.Output{GeneratedText: "Paris"}, nil)

	deps := newTestDeps(t, client)
	req := httptest.NewRequest(http.MethodPost, "/api/generate",
		bytes.NewBufferString(`{"prompt":"What is the capital of France?"}`))
	rec := httptest.NewRecorder()
	generateHandler(deps)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var result generator.Result
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(result.Replies) != 1 || result.Replies[0] != "Paris" {
		t.Errorf("expected replies [\"Paris\"], got %v", result.Replies)
	}
}

func TestGenerateHandlerStreaming(t *testing.T) {
	stream := &hf.StaticStream{Events: []hf.StreamOutput{
		{Token: hf.Token{Text: "Hello"}},
		{Token: hf.Token{Text: " world"}, Details: &hf.StreamDetails{FinishReason: "eos_token", GeneratedTokens: 2}},
	}}
	client := new(generator.MockClient)
	client.On("Model").Return("test-model")
	client.On("TextGenerationStream", mock.Anything, "hi", mock.Anything).Return(stream, nil)

	deps := newTestDeps(t, client)
	req := httptest.NewRequest(http.MethodPost, "/api/generate",
		bytes.NewBufferString(`{"prompt":"hi","stream":true}`))
	rec := httptest.NewRecorder()
	generateHandler(deps)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("expected event-stream content type, got %q", got)
	}

	body := rec.Body.String()
	if strings.Count(body, "data: ") != 3 { // 2 chunks + 1 result
		t.Errorf("expected 3 data events, got body:\n%s", body)
	}
	if !strings.Contains(body, "event: result") {
		t.Errorf("expected terminal result event, got body:\n%s", body)
	}
	if !strings.Contains(body, `"Hello world"`) {
		t.Errorf("expected aggregated reply in result event, got body:\n%s", body)
	}
}

func TestGenerateHandlerValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing prompt", `{"stream":true}`},
		{"temperature out of range", `{"prompt":"hi","temperature":3.5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestDeps(t, new(generator.MockClient))
			req := httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			generateHandler(deps)(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", rec.Code)
			}
		})
	}
}

func TestGenerateHandlerPassesRuntimeParams(t *testing.T) {
	client := new(generator.MockClient)
	client.On("Model").Return("test-model")
	client.On("TextGeneration", mock.Anything, "hi", mock.MatchedBy(func(p hf.GenerationParams) bool {
		return p.MaxNewTokens == 32 && len(p.StopSequences) == 1 && p.StopSequences[0] == "###"
	})).Return(&hf.Output{GeneratedText: "ok"}, nil)

	deps := newTestDeps(t, client)
	req := httptest.NewRequest(http.MethodPost, "/api/generate",
		bytes.NewBufferString(`{"prompt":"hi","max_new_tokens":32,"stop_words":["###"]}`))
	rec := httptest.NewRecorder()
	generateHandler(deps)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	client.AssertExpectations(t)
}
