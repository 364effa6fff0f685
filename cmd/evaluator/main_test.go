package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"gen-agents/internal/app"
	"gen-agents/internal/cache"
	"gen-agents/internal/config"
	"gen-agents/internal/evaluator"
	"gen-agents/internal/llm"
	"gen-agents/internal/queue"
	"gen-agents/internal/store"
)

func newTestDeps(t *testing.T, llmClient llm.Client, c cache.Cache, st store.Store, q queue.Queue) app.EvaluatorDeps {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eval, err := evaluator.NewContextRelevance(llmClient, log, evaluator.WithRaiseOnFailure(false))
	if err != nil {
		t.Fatalf("failed to build evaluator: %v", err)
	}
	return app.EvaluatorDeps{
		Config:    config.Config{},
		Log:       log,
		Evaluator: eval,
		Cache:     c,
		Store:     st,
		Queue:     q,
	}
}

func TestEvaluateHandler(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    string
		setup          func(*llm.MockClient, *cache.MockCache, *store.MockStore, *queue.MockQueue)
		wantStatusCode int
		checkResponse  func(*testing.T, *http.Response)
	}{
		{
			name: "successful evaluation",
			requestBody: `{
				"questions": ["What is the capital of France?"],
				"contexts": [["Paris is the capital of France."]]
			}`,
			setup: func(l *llm.MockClient, c *cache.MockCache, st *store.MockStore, q *queue.MockQueue) {
				c.On("GetEvaluation", mock.Anything, mock.Anything).Return(nil, nil)
				l.On("GenerateJSON", mock.Anything, mock.Anything).
					Return(`{"relevant_statements":["Paris is the capital of France."]}`, nil)
				st.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
				q.On("Enqueue", mock.Anything, mock.Anything).Return(nil)
				c.On("SetEvaluation", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
			},
			wantStatusCode: http.StatusOK,
			checkResponse: func(t *testing.T, resp *http.Response) {
				var body struct {
					RunID  string `json:"run_id"`
					Cached bool   `json:"cached"`
					Result struct {
						Score *float64 `json:"score"`
					} `json:"result"`
				}
				if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if body.Cached {
					t.Error("expected cached=false")
				}
				if body.RunID == "" {
					t.Error("expected a run id")
				}
				if body.Result.Score == nil || *body.Result.Score != 1 {
					t.Errorf("expected score 1, got %v", body.Result.Score)
				}
			},
		},
		{
			name: "cache hit skips evaluation",
			requestBody: `{
				"questions": ["q"],
				"contexts": [["c"]]
			}`,
			setup: func(l *llm.MockClient, c *cache.MockCache, st *store.MockStore, q *queue.MockQueue) {
				c.On("GetEvaluation", mock.Anything, mock.Anything).
					Return(&cache.Evaluation{
						RunID:  "0c8f9a62-1a55-4df0-9b33-9bfb7c6a4c11",
						Result: evaluator.ContextRelevanceResult{Score: 1, IndividualScores: []float64{1}},
					}, nil)
			},
			wantStatusCode: http.StatusOK,
			checkResponse: func(t *testing.T, resp *http.Response) {
				var body struct {
					RunID  string `json:"run_id"`
					Cached bool   `json:"cached"`
				}
				if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if !body.Cached {
					t.Error("expected cached=true")
				}
				if body.RunID != "0c8f9a62-1a55-4df0-9b33-9bfb7c6a4c11" {
					t.Errorf("expected the cached run id, got %q", body.RunID)
				}
			},
		},
		{
			name:           "invalid json",
			requestBody:    `{`,
			setup:          func(*llm.MockClient, *cache.MockCache, *store.MockStore, *queue.MockQueue) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "missing questions",
			requestBody:    `{"contexts": [["c"]]}`,
			setup:          func(*llm.MockClient, *cache.MockCache, *store.MockStore, *queue.MockQueue) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "length mismatch",
			requestBody:    `{"questions": ["q1", "q2"], "contexts": [["c"]]}`,
			setup:          func(*llm.MockClient, *cache.MockCache, *store.MockStore, *queue.MockQueue) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "store failure is tolerated",
			requestBody: `{
				"questions": ["q"],
				"contexts": [["c"]]
			}`,
			setup: func(l *llm.MockClient, c *cache.MockCache, st *store.MockStore, q *queue.MockQueue) {
				c.On("GetEvaluation", mock.Anything, mock.Anything).Return(nil, nil)
				l.On("GenerateJSON", mock.Anything, mock.Anything).
					Return(`{"relevant_statements":[]}`, nil)
				st.On("SaveRun", mock.Anything, mock.Anything).Return(errors.New("db down"))
				q.On("Enqueue", mock.Anything, mock.Anything).Return(nil)
				c.On("SetEvaluation", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
			},
			wantStatusCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llmClient := new(llm.MockClient)
			mockCache := new(cache.MockCache)
			mockStore := new(store.MockStore)
			mockQueue := new(queue.MockQueue)
			tt.setup(llmClient, mockCache, mockStore, mockQueue)

			deps := newTestDeps(t, llmClient, mockCache, mockStore, mockQueue)
			handler := evaluateHandler(deps)

			req := httptest.NewRequest(http.MethodPost, "/api/evaluate", bytes.NewBufferString(tt.requestBody))
			rec := httptest.NewRecorder()
			handler(rec, req)

			resp := rec.Result()
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatusCode {
				t.Fatalf("expected status %d, got %d", tt.wantStatusCode, resp.StatusCode)
			}
			if tt.checkResponse != nil {
				tt.checkResponse(t, resp)
			}
		})
	}
}

func TestEvaluateHandlerEnqueuesReportTask(t *testing.T) {
	llmClient := new(llm.MockClient)
	mockCache := new(cache.MockCache)
	mockStore := new(store.MockStore)
	mockQueue := new(queue.MockQueue)

	mockCache.On("GetEvaluation", mock.Anything, mock.Anything).Return(nil, nil)
	llmClient.On("GenerateJSON", mock.Anything, mock.Anything).
		Return(`{"relevant_statements":["x"]}`, nil)
	mockStore.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	mockQueue.On("Enqueue", mock.Anything, mock.MatchedBy(func(task queue.Task) bool {
		return task.Type == queue.TaskTypeReport
	})).Return(nil)
	mockCache.On("SetEvaluation", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	deps := newTestDeps(t, llmClient, mockCache, mockStore, mockQueue)
	req := httptest.NewRequest(http.MethodPost, "/api/evaluate", bytes.NewBufferString(`{"questions":["q"],"contexts":[["c"]]}`))
	rec := httptest.NewRecorder()
	evaluateHandler(deps)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	mockQueue.AssertExpectations(t)
}

func TestEvaluateHandlerCachesRunID(t *testing.T) {
	llmClient := new(llm.MockClient)
	mockCache := new(cache.MockCache)
	mockStore := new(store.MockStore)
	mockQueue := new(queue.MockQueue)

	mockCache.On("GetEvaluation", mock.Anything, mock.Anything).Return(nil, nil)
	llmClient.On("GenerateJSON", mock.Anything, mock.Anything).
		Return(`{"relevant_statements":["x"]}`, nil)
	mockStore.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	mockQueue.On("Enqueue", mock.Anything, mock.Anything).Return(nil)
	mockCache.On("SetEvaluation", mock.Anything, mock.Anything, mock.MatchedBy(func(entry *cache.Evaluation) bool {
		return entry.RunID != ""
	}), mock.Anything).Return(nil)

	deps := newTestDeps(t, llmClient, mockCache, mockStore, mockQueue)
	req := httptest.NewRequest(http.MethodPost, "/api/evaluate", bytes.NewBufferString(`{"questions":["q"],"contexts":[["c"]]}`))
	rec := httptest.NewRecorder()
	evaluateHandler(deps)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var body struct {
		RunID string `json:"run_id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.RunID == "" {
		t.Error("expected a run id")
	}
	mockCache.AssertExpectations(t)
}

func TestGetRunHandlerNotFound(t *testing.T) {
	mockStore := new(store.MockStore)
	id := uuid.New()
	mockStore.On("GetRun", mock.Anything, id).
		Return(store.EvaluationRun{}, fmt.Errorf("loading run: %w", store.ErrRunNotFound))

	deps := newTestDeps(t, new(llm.MockClient), new(cache.MockCache), mockStore, new(queue.MockQueue))
	r := chi.NewRouter()
	r.Get("/api/runs/{id}", getRunHandler(deps))

	req := httptest.NewRequest(http.MethodGet, "/api/runs/"+id.String(), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}
