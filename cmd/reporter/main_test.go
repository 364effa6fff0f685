package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"gen-agents/internal/app"
	"gen-agents/internal/config"
	"gen-agents/internal/queue"
	"gen-agents/internal/store"
)

func newTestDeps(st store.Store, q queue.Queue) app.ReporterDeps {
	return app.ReporterDeps{
		Config: config.Config{},
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:  st,
		Queue:  q,
	}
}

func TestHandleReport(t *testing.T) {
	runID := uuid.New()

	tests := []struct {
		name    string
		payload reportTaskPayload
		setup   func(*store.MockStore)
		wantErr bool
	}{
		{
			name:    "reports a persisted run",
			payload: reportTaskPayload{RunID: runID.String(), Score: 0.5},
			setup: func(st *store.MockStore) {
				st.On("GetRun", mock.Anything, runID).Return(store.EvaluationRun{
					ID:               runID,
					Evaluator:        "context_relevance",
					Score:            0.5,
					IndividualScores: []float64{1, math.NaN()},
				}, nil)
			},
		},
		{
			name:    "missing run is skipped",
			payload: reportTaskPayload{RunID: runID.String()},
			setup: func(st *store.MockStore) {
				st.On("GetRun", mock.Anything, runID).
					Return(store.EvaluationRun{}, fmt.Errorf("loading run: %w", store.ErrRunNotFound))
			},
		},
		{
			name:    "store failure is retried",
			payload: reportTaskPayload{RunID: runID.String()},
			setup: func(st *store.MockStore) {
				st.On("GetRun", mock.Anything, runID).
					Return(store.EvaluationRun{}, errors.New("db down"))
			},
			wantErr: true,
		},
		{
			name:    "invalid run id",
			payload: reportTaskPayload{RunID: "not-a-uuid"},
			setup:   func(*store.MockStore) {},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockStore := new(store.MockStore)
			tt.setup(mockStore)

			err := handleReport(context.Background(), newTestDeps(mockStore, new(queue.MockQueue)), tt.payload)
			if tt.wantErr && err == nil {
				t.Fatal("expected an error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			mockStore.AssertExpectations(t)
		})
	}
}

func TestRunWorkerConsumesReportTasks(t *testing.T) {
	runID := uuid.New()
	payload, err := json.Marshal(reportTaskPayload{RunID: runID.String(), Score: 1})
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}

	mockStore := new(store.MockStore)
	mockStore.On("GetRun", mock.Anything, runID).Return(store.EvaluationRun{
		ID:               runID,
		Evaluator:        "context_relevance",
		Score:            1,
		IndividualScores: []float64{1},
	}, nil)

	var handlerErr error
	mockQueue := new(queue.MockQueue)
	mockQueue.On("Worker", mock.Anything, queue.TaskTypeReport, mock.Anything).
		Run(func(args mock.Arguments) {
			handler := args.Get(2).(queue.Handler)
			handlerErr = handler(context.Background(), queue.Task{
				ID:      uuid.New(),
				Type:    queue.TaskTypeReport,
				Payload: payload,
			})
		}).Return(nil)

	if err := runWorker(context.Background(), newTestDeps(mockStore, mockQueue)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if handlerErr != nil {
		t.Fatalf("expected handler to succeed, got %v", handlerErr)
	}
	mockStore.AssertExpectations(t)
	mockQueue.AssertExpectations(t)
}
