package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"gen-agents/internal/app"
	"gen-agents/internal/cache"
	"gen-agents/internal/evaluator"
	"gen-agents/internal/httputil"
	"gen-agents/internal/queue"
	"gen-agents/internal/store"
)

type evaluateRequest struct {
	Questions []string   `json:"questions" validate:"required,min=1,max=100,dive,min=1"`
	Contexts  [][]string `json:"contexts" validate:"required,min=1,max=100"`
}

type evaluateResponse struct {
	RunID  string                           `json:"run_id"`
	Cached bool                             `json:"cached"`
	Result evaluator.ContextRelevanceResult `json:"result"`
}

type reportPayload struct {
	RunID string  `json:"run_id"`
	Score float64 `json:"score"`
}

func main() {
	deps, err := app.BuildEvaluator()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	r := httputil.NewRouter(deps.Log)

	r.Post("/api/evaluate", evaluateHandler(deps))
	r.Get("/api/runs", listRunsHandler(deps))
	r.Get("/api/runs/{id}", getRunHandler(deps))
	r.Get("/healthz", httputil.HealthHandler(deps.Log))

	addr := fmt.Sprintf(":%d", deps.Config.Port)
	deps.Log.Info("evaluator service listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		deps.Log.Error("server error", "err", err)
	}
}

func evaluateHandler(deps app.EvaluatorDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req evaluateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Fail(deps.Log, w, "invalid payload", err, http.StatusBadRequest)
			return
		}

		if err := httputil.Validator.Struct(&req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}
		if len(req.Questions) != len(req.Contexts) {
			httputil.Fail(deps.Log, w, "questions and contexts must have the same length", nil, http.StatusBadRequest)
			return
		}

		ctx := r.Context()

		// Check cache first
		cacheKey := cache.GenerateCacheKey(req.Questions, req.Contexts)
		if cached, err := deps.Cache.GetEvaluation(ctx, cacheKey); err == nil && cached != nil {
			deps.Log.Info("cache hit", "key", cacheKey)
			httputil.WriteJSON(w, http.StatusOK, evaluateResponse{
				RunID:  cached.RunID,
				Cached: true,
				Result: cached.Result,
			})
			return
		}

		result, err := deps.Evaluator.Run(ctx, req.Questions, req.Contexts)
		if err != nil {
			httputil.Fail(deps.Log, w, "evaluation failed", err, http.StatusBadGateway)
			return
		}

		run := buildRun(req, result)
		if err := deps.Store.SaveRun(ctx, run); err != nil {
			// The evaluation itself succeeded; losing the record is not fatal.
			deps.Log.Warn("failed to persist evaluation run", "run_id", run.ID, "err", err)
		}

		payload, _ := json.Marshal(reportPayload{RunID: run.ID.String(), Score: result.Score})
		task := queue.Task{Type: queue.TaskTypeReport, Payload: payload}
		if err := queue.EnqueueWithRetry(ctx, deps.Queue, task, 3, 100*time.Millisecond); err != nil {
			deps.Log.Warn("failed to enqueue report task", "run_id", run.ID, "err", err)
		}

		entry := cache.Evaluation{RunID: run.ID.String(), Result: result}
		if err := deps.Cache.SetEvaluation(ctx, cacheKey, &entry, deps.Config.CacheTTL); err != nil {
			deps.Log.Warn("failed to cache evaluation result", "err", err)
		}

		httputil.WriteJSON(w, http.StatusOK, evaluateResponse{
			RunID:  run.ID.String(),
			Result: result,
		})
	}
}

func buildRun(req evaluateRequest, result evaluator.ContextRelevanceResult) store.EvaluationRun {
	run := store.EvaluationRun{
		ID:               uuid.New(),
		Evaluator:        "context_relevance",
		Score:            result.Score,
		IndividualScores: result.IndividualScores,
	}
	for i, res := range result.Results {
		run.Results = append(run.Results, store.EvaluationResult{
			RunID:              run.ID,
			Ord:                i,
			Question:           req.Questions[i],
			Contexts:           req.Contexts[i],
			RelevantStatements: res.RelevantStatements,
			Score:              res.Score,
		})
	}
	return run
}

func getRunHandler(deps app.EvaluatorDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			httputil.Fail(deps.Log, w, "invalid run id", err, http.StatusBadRequest)
			return
		}

		run, err := deps.Store.GetRun(r.Context(), id)
		if errors.Is(err, store.ErrRunNotFound) {
			httputil.Fail(deps.Log, w, "run not found", err, http.StatusNotFound)
			return
		}
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to load run", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, runJSON(run))
	}
}

func listRunsHandler(deps app.EvaluatorDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 || parsed > 100 {
				httputil.Fail(deps.Log, w, "invalid limit", err, http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		runs, err := deps.Store.ListRuns(r.Context(), limit)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to list runs", err, http.StatusInternalServerError)
			return
		}

		out := make([]map[string]any, 0, len(runs))
		for _, run := range runs {
			out = append(out, runJSON(run))
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"runs": out})
	}
}

// runJSON renders a run for the API, filtering NaN scores into nulls.
func runJSON(run store.EvaluationRun) map[string]any {
	results := make([]map[string]any, 0, len(run.Results))
	for _, res := range run.Results {
		results = append(results, map[string]any{
			"question":            res.Question,
			"contexts":            res.Contexts,
			"relevant_statements": res.RelevantStatements,
			"score":               jsonScore(res.Score),
		})
	}
	scores := make([]any, 0, len(run.IndividualScores))
	for _, s := range run.IndividualScores {
		scores = append(scores, jsonScore(s))
	}
	return map[string]any{
		"id":                run.ID.String(),
		"evaluator":         run.Evaluator,
		"score":             jsonScore(run.Score),
		"individual_scores": scores,
		"created_at":        run.CreatedAt,
		"results":           results,
	}
}

func jsonScore(score float64) any {
	if score != score { // NaN marks a tolerated evaluation failure
		return nil
	}
	return score
}
