package cache

import (
	"context"
	"time"
)

// NoOpCache is a cache that stores nothing. Used when no Redis is configured.
type NoOpCache struct{}

func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

// GetEvaluation always reports a cache miss
func (c *NoOpCache) GetEvaluation(_ context.Context, _ string) (*Evaluation, error) {
	return nil, nil
}

// SetEvaluation silently drops the evaluation
func (c *NoOpCache) SetEvaluation(_ context.Context, _ string, _ *Evaluation, _ time.Duration) error {
	return nil
}

func (c *NoOpCache) Close() error {
	return nil
}
