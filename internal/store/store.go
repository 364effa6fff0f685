package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrRunNotFound = errors.New("evaluation run not found")

// EvaluationRun is one persisted evaluation request with its aggregate scores.
type EvaluationRun struct {
	ID               uuid.UUID
	Evaluator        string
	Score            float64
	IndividualScores []float64
	CreatedAt        time.Time
	Results          []EvaluationResult
}

// EvaluationResult is the per-(question, contexts) row of a run.
type EvaluationResult struct {
	RunID              uuid.UUID
	Ord                int
	Question           string
	Contexts           []string
	RelevantStatements []string
	Score              float64
}

// Store defines persistence contract; an external DB implementation can replace this.
type Store interface {
	SaveRun(ctx context.Context, run EvaluationRun) error
	GetRun(ctx context.Context, id uuid.UUID) (EvaluationRun, error)
	ListRuns(ctx context.Context, limit int) ([]EvaluationRun, error)
}
