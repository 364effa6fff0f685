package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"gen-agents/internal/llm"
)

const defaultConcurrency = 4

// Example is one few-shot example embedded in the evaluation prompt.
type Example struct {
	Inputs  map[string]any `json:"inputs"`
	Outputs map[string]any `json:"outputs"`
}

// LLMEvaluator scores inputs by prompting an LLM with instructions and
// few-shot examples, expecting a JSON object with a fixed set of keys back.
type LLMEvaluator struct {
	instructions   string
	outputs        []string
	examples       []Example
	raiseOnFailure bool
	concurrency    int
	client         llm.Client
	log            *slog.Logger
}

// NewLLMEvaluator builds a generic evaluator. outputs lists the keys the
// model's JSON reply must contain.
func NewLLMEvaluator(client llm.Client, log *slog.Logger, instructions string, outputs []string, examples []Example, raiseOnFailure bool) (*LLMEvaluator, error) {
	if client == nil {
		return nil, fmt.Errorf("evaluator: llm client is required")
	}
	if instructions == "" {
		return nil, fmt.Errorf("evaluator: instructions are required")
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("evaluator: at least one output key is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &LLMEvaluator{
		instructions:   instructions,
		outputs:        outputs,
		examples:       examples,
		raiseOnFailure: raiseOnFailure,
		concurrency:    defaultConcurrency,
		client:         client,
		log:            log,
	}, nil
}

// SetConcurrency bounds the number of in-flight LLM calls during a batch.
func (e *LLMEvaluator) SetConcurrency(n int) {
	if n > 0 {
		e.concurrency = n
	}
}

// EvaluateBatch evaluates every input and returns outputs in input order.
// When failures are tolerated, a failed evaluation yields a nil entry instead
// of aborting the batch.
func (e *LLMEvaluator) EvaluateBatch(ctx context.Context, inputs []map[string]any) ([]map[string]any, error) {
	results := make([]map[string]any, len(inputs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, input := range inputs {
		g.Go(func() error {
			out, err := e.evaluateOne(ctx, input)
			if err != nil {
				if e.raiseOnFailure {
					return err
				}
				e.log.Warn("evaluation failed, recording empty result", "index", i, "err", err)
				return nil
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *LLMEvaluator) evaluateOne(ctx context.Context, input map[string]any) (map[string]any, error) {
	prompt, err := e.buildPrompt(input)
	if err != nil {
		return nil, err
	}

	raw, err := e.client.GenerateJSON(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("evaluator: llm call failed: %w", err)
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("evaluator: response is not a JSON object: %w", err)
	}
	for _, key := range e.outputs {
		if _, ok := parsed[key]; !ok {
			return nil, fmt.Errorf("evaluator: response is missing expected key %q", key)
		}
	}
	return parsed, nil
}

// buildPrompt renders instructions, the output contract, the few-shot
// examples, and the current input into one user prompt.
func (e *LLMEvaluator) buildPrompt(input map[string]any) (string, error) {
	var b strings.Builder
	b.WriteString("Instructions:\n")
	b.WriteString(e.instructions)
	b.WriteString("\n\nGenerate the response in JSON format with the following keys: ")
	b.WriteString(strings.Join(e.outputs, ", "))
	b.WriteString(".\n")

	if len(e.examples) > 0 {
		b.WriteString("\nConsider the following examples:\n")
		for _, ex := range e.examples {
			in, err := json.Marshal(ex.Inputs)
			if err != nil {
				return "", err
			}
			out, err := json.Marshal(ex.Outputs)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "Inputs: %s\nOutputs: %s\n\n", in, out)
		}
	}

	in, err := json.Marshal(input)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&b, "Inputs: %s\nOutputs:\n", in)
	return b.String(), nil
}
