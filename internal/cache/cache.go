package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"gen-agents/internal/evaluator"
)

// Evaluation is the cached outcome of an evaluation request. The run ID is
// stored alongside the result so cache hits reference the same persisted run.
type Evaluation struct {
	RunID  string                           `json:"run_id"`
	Result evaluator.ContextRelevanceResult `json:"result"`
}

// Cache provides evaluation result caching
type Cache interface {
	// GetEvaluation retrieves a cached evaluation by key
	// Returns nil if not found
	GetEvaluation(ctx context.Context, key string) (*Evaluation, error)

	// SetEvaluation stores an evaluation with TTL
	SetEvaluation(ctx context.Context, key string, eval *Evaluation, ttl time.Duration) error

	// Close closes the cache connection
	Close() error
}

// GenerateCacheKey derives a stable key from the evaluation inputs.
// The same questions and contexts, in the same order, hit the same entry.
func GenerateCacheKey(questions []string, contexts [][]string) string {
	h := sha256.New()
	for _, q := range questions {
		h.Write([]byte(q))
		h.Write([]byte{0})
	}
	for _, ctxs := range contexts {
		h.Write([]byte(strings.Join(ctxs, "\x00")))
		h.Write([]byte{1})
	}
	return hex.EncodeToString(h.Sum(nil))
}
