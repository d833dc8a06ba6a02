package actor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_AskRunsSynchronouslyAndReturnsResult(t *testing.T) {
	mb := New("test", 4)
	mb.Start(context.Background())
	defer mb.Stop()

	var result int
	err := mb.Ask(context.Background(), func(ctx context.Context) { result = 42 })
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestMailbox_TellIsFireAndForget(t *testing.T) {
	mb := New("test", 4)
	mb.Start(context.Background())
	defer mb.Stop()

	done := make(chan struct{})
	err := mb.Tell(func(ctx context.Context) { close(done) })
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tell never ran")
	}
}

func TestMailbox_JobsRunInArrivalOrder(t *testing.T) {
	mb := New("test", 16)
	mb.Start(context.Background())
	defer mb.Stop()

	var order []int
	var wg atomic.Int32
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		require.NoError(t, mb.Tell(func(ctx context.Context) {
			order = append(order, i)
			wg.Add(-1)
		}))
	}

	require.Eventually(t, func() bool { return wg.Load() == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestMailbox_OperationsAfterStopReturnErrStopped(t *testing.T) {
	mb := New("test", 4)
	mb.Start(context.Background())
	mb.Stop()

	assert.ErrorIs(t, mb.Tell(func(ctx context.Context) {}), ErrStopped)
	assert.ErrorIs(t, mb.Ask(context.Background(), func(ctx context.Context) {}), ErrStopped)
}

func TestMailbox_AskRespectsContextCancellation(t *testing.T) {
	mb := New("test", 0)
	mb.Start(context.Background())
	defer mb.Stop()

	block := make(chan struct{})
	require.NoError(t, mb.Tell(func(ctx context.Context) { <-block }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := mb.Ask(ctx, func(ctx context.Context) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(block)
}

func TestMailbox_QueueDepthReflectsBufferedJobs(t *testing.T) {
	mb := New("test", 8)
	mb.Start(context.Background())
	defer mb.Stop()

	block := make(chan struct{})
	require.NoError(t, mb.Tell(func(ctx context.Context) { <-block }))
	require.NoError(t, mb.Tell(func(ctx context.Context) {}))
	require.NoError(t, mb.Tell(func(ctx context.Context) {}))

	require.Eventually(t, func() bool { return mb.QueueDepth() == 2 }, time.Second, time.Millisecond)
	close(block)
}

func TestMailbox_PendingJobsDrainOnStop(t *testing.T) {
	mb := New("test", 8)
	mb.Start(context.Background())

	var ran atomic.Int32
	for i := 0; i < 3; i++ {
		require.NoError(t, mb.Tell(func(ctx context.Context) { ran.Add(1) }))
	}
	mb.Stop()

	assert.Equal(t, int32(3), ran.Load())
}
