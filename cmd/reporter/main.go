package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"gen-agents/internal/app"
	"gen-agents/internal/httputil"
	"gen-agents/internal/queue"
	"gen-agents/internal/store"
)

type reportTaskPayload struct {
	RunID string  `json:"run_id"`
	Score float64 `json:"score"`
}

func main() {
	deps, err := app.BuildReporter()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	deps.Log.Info("report worker starting")

	g, ctx := errgroup.WithContext(context.Background())

	// Run queue worker
	g.Go(func() error {
		return runWorker(ctx, deps)
	})

	// Run health check server
	g.Go(func() error {
		r := httputil.NewRouter(deps.Log)
		r.Get("/healthz", httputil.HealthHandler(deps.Log))
		return http.ListenAndServe(fmt.Sprintf(":%d", deps.Config.Port), r)
	})

	// Wait for either to fail
	if err := g.Wait(); err != nil {
		deps.Log.Error("reporter service stopped", "err", err)
	}
}

func runWorker(ctx context.Context, deps app.ReporterDeps) error {
	return deps.Queue.Worker(ctx, queue.TaskTypeReport, func(ctx context.Context, task queue.Task) error {
		var payload reportTaskPayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return err
		}
		return handleReport(ctx, deps, payload)
	})
}

func handleReport(ctx context.Context, deps app.ReporterDeps, payload reportTaskPayload) error {
	id, err := uuid.Parse(payload.RunID)
	if err != nil {
		return err
	}

	run, err := deps.Store.GetRun(ctx, id)
	if errors.Is(err, store.ErrRunNotFound) {
		// Run persistence is best-effort on the evaluator side.
		deps.Log.Warn("run not persisted, skipping report", "run_id", payload.RunID)
		return nil
	}
	if err != nil {
		return err
	}

	failed := 0
	for _, s := range run.IndividualScores {
		if math.IsNaN(s) {
			failed++
		}
	}
	deps.Log.Info("evaluation report",
		"run_id", run.ID,
		"evaluator", run.Evaluator,
		"score", run.Score,
		"results", len(run.Results),
		"failed", failed,
	)
	return nil
}
