package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"gen-agents/internal/llm"
)

const contextRelevanceInstructions = "Please extract only sentences from the provided context which are absolutely relevant and " +
	"required to answer the following question. If no relevant sentences are found, or if you " +
	"believe the question cannot be answered from the given context, return an empty list, example: []"

// Few-shot examples used when the caller does not provide any.
var defaultContextRelevanceExamples = []Example{
	{
		Inputs: map[string]any{
			"questions": "What is the capital of Germany?",
			"contexts":  []string{"Berlin is the capital of Germany. Berlin and was founded in 1244."},
		},
		Outputs: map[string]any{"relevant_statements": []string{"Berlin is the capital of Germany."}},
	},
	{
		Inputs: map[string]any{
			"questions": "What is the capital of France?",
			"contexts": []string{
				"Berlin is the capital of Germany and was founded in 1244.",
				"Europe is a continent with 44 countries.",
				"Madrid is the capital of Spain.",
			},
		},
		Outputs: map[string]any{"relevant_statements": []string{}},
	},
	{
		Inputs: map[string]any{
			"questions": "What is the capital of Italy?",
			"contexts":  []string{"Rome is the capital of Italy."},
		},
		Outputs: map[string]any{"relevant_statements": []string{"Rome is the capital of Italy."}},
	},
}

// ContextResult scores one (question, contexts) pair. Score is 1 when the
// context contained at least one relevant statement, 0 when it contained
// none, and NaN when the evaluation failed and failures are tolerated.
type ContextResult struct {
	RelevantStatements []string
	Score              float64
}

// MarshalJSON renders a NaN score as null, since JSON has no NaN literal.
func (r ContextResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(contextResultJSON{
		RelevantStatements: r.RelevantStatements,
		Score:              floatOrNil(r.Score),
	})
}

func (r *ContextResult) UnmarshalJSON(data []byte) error {
	var aux contextResultJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.RelevantStatements = aux.RelevantStatements
	r.Score = floatOrNaN(aux.Score)
	return nil
}

type contextResultJSON struct {
	RelevantStatements []string `json:"relevant_statements"`
	Score              *float64 `json:"score"`
}

// ContextRelevanceResult aggregates a whole evaluation run.
type ContextRelevanceResult struct {
	Score            float64
	IndividualScores []float64
	Results          []ContextResult
}

func (r ContextRelevanceResult) MarshalJSON() ([]byte, error) {
	scores := make([]*float64, len(r.IndividualScores))
	for i, s := range r.IndividualScores {
		scores[i] = floatOrNil(s)
	}
	return json.Marshal(contextRelevanceResultJSON{
		Score:            floatOrNil(r.Score),
		IndividualScores: scores,
		Results:          r.Results,
	})
}

func (r *ContextRelevanceResult) UnmarshalJSON(data []byte) error {
	var aux contextRelevanceResultJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Score = floatOrNaN(aux.Score)
	r.IndividualScores = make([]float64, len(aux.IndividualScores))
	for i, s := range aux.IndividualScores {
		r.IndividualScores[i] = floatOrNaN(s)
	}
	r.Results = aux.Results
	return nil
}

type contextRelevanceResultJSON struct {
	Score            *float64        `json:"score"`
	IndividualScores []*float64      `json:"individual_scores"`
	Results          []ContextResult `json:"results"`
}

func floatOrNil(f float64) *float64 {
	if math.IsNaN(f) {
		return nil
	}
	return &f
}

func floatOrNaN(f *float64) float64 {
	if f == nil {
		return math.NaN()
	}
	return *f
}

// ContextRelevanceEvaluator checks whether provided contexts are relevant to
// their questions. An LLM extracts the context statements required to answer
// each question; a context scores 1 when at least one statement survives and
// 0 otherwise.
type ContextRelevanceEvaluator struct {
	inner *LLMEvaluator
}

// ContextRelevanceOption configures the evaluator.
type ContextRelevanceOption func(*contextRelevanceConfig)

type contextRelevanceConfig struct {
	examples       []Example
	raiseOnFailure bool
	concurrency    int
}

// WithExamples replaces the default few-shot examples.
func WithExamples(examples []Example) ContextRelevanceOption {
	return func(c *contextRelevanceConfig) { c.examples = examples }
}

// WithRaiseOnFailure controls whether a failed LLM call aborts the run.
// When false, failed pairs score NaN and the run continues.
func WithRaiseOnFailure(raise bool) ContextRelevanceOption {
	return func(c *contextRelevanceConfig) { c.raiseOnFailure = raise }
}

// WithConcurrency bounds parallel LLM calls during a run.
func WithConcurrency(n int) ContextRelevanceOption {
	return func(c *contextRelevanceConfig) { c.concurrency = n }
}

// NewContextRelevance builds the evaluator on top of the given LLM client.
func NewContextRelevance(client llm.Client, log *slog.Logger, opts ...ContextRelevanceOption) (*ContextRelevanceEvaluator, error) {
	cfg := contextRelevanceConfig{
		examples:       defaultContextRelevanceExamples,
		raiseOnFailure: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	inner, err := NewLLMEvaluator(client, log, contextRelevanceInstructions, []string{"relevant_statements"}, cfg.examples, cfg.raiseOnFailure)
	if err != nil {
		return nil, err
	}
	if cfg.concurrency > 0 {
		inner.SetConcurrency(cfg.concurrency)
	}
	return &ContextRelevanceEvaluator{inner: inner}, nil
}

// Run scores every (question, contexts) pair and returns the mean score.
// contexts[i] holds the candidate contexts for questions[i].
func (e *ContextRelevanceEvaluator) Run(ctx context.Context, questions []string, contexts [][]string) (ContextRelevanceResult, error) {
	if len(questions) == 0 {
		return ContextRelevanceResult{}, fmt.Errorf("evaluator: at least one question is required")
	}
	if len(questions) != len(contexts) {
		return ContextRelevanceResult{}, fmt.Errorf("evaluator: got %d questions but %d context lists", len(questions), len(contexts))
	}

	inputs := make([]map[string]any, len(questions))
	for i := range questions {
		inputs[i] = map[string]any{
			"questions": questions[i],
			"contexts":  contexts[i],
		}
	}

	raw, err := e.inner.EvaluateBatch(ctx, inputs)
	if err != nil {
		return ContextRelevanceResult{}, err
	}

	result := ContextRelevanceResult{
		IndividualScores: make([]float64, len(raw)),
		Results:          make([]ContextResult, len(raw)),
	}
	var sum float64
	for i, out := range raw {
		if out == nil {
			result.Results[i] = ContextResult{RelevantStatements: []string{}, Score: math.NaN()}
			result.IndividualScores[i] = math.NaN()
			sum = math.NaN()
			continue
		}
		statements := toStringSlice(out["relevant_statements"])
		score := 0.0
		if len(statements) > 0 {
			score = 1.0
		}
		result.Results[i] = ContextResult{RelevantStatements: statements, Score: score}
		result.IndividualScores[i] = score
		sum += score
	}
	result.Score = sum / float64(len(raw))
	return result, nil
}

// toStringSlice coerces the decoded JSON array into []string, dropping
// non-string members.
func toStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
