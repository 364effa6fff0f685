package generator

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gen-agents/internal/hf"
)

// MockClient is a mock implementation of Client using testify/mock.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) TextGeneration(ctx context.Context, prompt string, params hf.GenerationParams) (*hf.Output, error) {
	args := m.Called(ctx, prompt, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*hf.Output), args.Error(1)
}

func (m *MockClient) TextGenerationStream(ctx context.Context, prompt string, params hf.GenerationParams) (hf.TokenStream, error) {
	args := m.Called(ctx, prompt, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(hf.TokenStream), args.Error(1)
}

func (m *MockClient) Model() string {
	args := m.Called()
	return args.String(0)
}
