package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
)

func TestEnqueueWithRetry(t *testing.T) {
	task := Task{Type: TaskTypeReport, Payload: []byte(`{}`)}

	t.Run("succeeds on first attempt", func(t *testing.T) {
		q := new(MockQueue)
		q.On("Enqueue", mock.Anything, task).Return(nil).Once()

		if err := EnqueueWithRetry(context.Background(), q, task, 3, time.Millisecond); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		q.AssertExpectations(t)
	})

	t.Run("retries transient failures", func(t *testing.T) {
		q := new(MockQueue)
		q.On("Enqueue", mock.Anything, task).Return(errors.New("nats down")).Twice()
		q.On("Enqueue", mock.Anything, task).Return(nil).Once()

		if err := EnqueueWithRetry(context.Background(), q, task, 3, time.Millisecond); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		q.AssertExpectations(t)
	})

	t.Run("gives up after all attempts", func(t *testing.T) {
		wantErr := errors.New("nats down")
		q := new(MockQueue)
		q.On("Enqueue", mock.Anything, task).Return(wantErr).Times(3)

		if err := EnqueueWithRetry(context.Background(), q, task, 3, time.Millisecond); !errors.Is(err, wantErr) {
			t.Fatalf("expected %v, got %v", wantErr, err)
		}
		q.AssertExpectations(t)
	})

	t.Run("stops when context is canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		q := new(MockQueue)
		q.On("Enqueue", mock.Anything, task).Return(errors.New("nats down")).Run(func(mock.Arguments) {
			cancel()
		})

		if err := EnqueueWithRetry(ctx, q, task, 3, time.Second); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}
