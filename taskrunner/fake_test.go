package taskrunner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeRunner_EnqueueDispatchesToRegisteredHandler(t *testing.T) {
	r := NewFakeRunner()
	var got Task
	require.NoError(t, r.Register(TaskExtractText, 1, 5, func(ctx context.Context, task Task) error {
		got = task
		return nil
	}))

	err := r.Enqueue(context.Background(), TaskExtractText, []byte(`{"guide_id":"g1"}`))
	require.NoError(t, err)

	assert.Equal(t, TaskExtractText, got.Type)
	assert.Equal(t, []byte(`{"guide_id":"g1"}`), got.Payload)
	assert.Equal(t, 1, got.Attempt)
}

func TestFakeRunner_EnqueuePropagatesHandlerError(t *testing.T) {
	r := NewFakeRunner()
	wantErr := errors.New("boom")
	require.NoError(t, r.Register(TaskParseMatrix, 1, 5, func(ctx context.Context, task Task) error {
		return wantErr
	}))

	err := r.Enqueue(context.Background(), TaskParseMatrix, nil)
	assert.ErrorIs(t, err, wantErr)
}

func TestFakeRunner_EnqueueWithoutRegistrationIsANoOp(t *testing.T) {
	r := NewFakeRunner()
	err := r.Enqueue(context.Background(), TaskKickoffGeneration, []byte("payload"))
	require.NoError(t, err)

	calls := r.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, TaskKickoffGeneration, calls[0].TaskType)
}

func TestFakeRunner_EnqueueDelayedRecordsCountdownWithoutDispatching(t *testing.T) {
	r := NewFakeRunner()
	dispatched := false
	require.NoError(t, r.Register(TaskFinalizeGeneration, 1, 3, func(ctx context.Context, task Task) error {
		dispatched = true
		return nil
	}))

	err := r.EnqueueDelayed(context.Background(), TaskFinalizeGeneration, []byte("payload"), 30*time.Second)
	require.NoError(t, err)

	assert.False(t, dispatched, "EnqueueDelayed records the countdown but does not run the handler")
	calls := r.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 30*time.Second, calls[0].Countdown)
}

func TestFakeRunner_CallsRecordsEveryEnqueueInOrder(t *testing.T) {
	r := NewFakeRunner()
	require.NoError(t, r.Enqueue(context.Background(), TaskGenerateCells, []byte("a")))
	require.NoError(t, r.EnqueueDelayed(context.Background(), TaskFinalizeGeneration, []byte("b"), time.Minute))

	calls := r.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, TaskGenerateCells, calls[0].TaskType)
	assert.Equal(t, TaskFinalizeGeneration, calls[1].TaskType)
}

func TestFakeRunner_RunBlocksUntilContextCanceled(t *testing.T) {
	r := NewFakeRunner()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case <-done:
		t.Fatal("Run returned before context was canceled")
	case <-time.After(20 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
