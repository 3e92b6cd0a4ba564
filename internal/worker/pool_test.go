package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not finish")
	}
}

func TestPool_RunsTasks(t *testing.T) {
	pool := NewPool(Config{WorkerCount: 2, QueueSize: 8, TaskTimeout: time.Second}, zerolog.Nop())
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	var count atomic.Int32
	dones := make([]<-chan struct{}, 0, 10)
	for i := 0; i < 10; i++ {
		dones = append(dones, pool.Run("count", func(ctx context.Context) error {
			count.Add(1)
			return nil
		}))
	}
	for _, done := range dones {
		waitDone(t, done)
	}
	assert.Equal(t, int32(10), count.Load())
}

func TestPool_TaskContextSurvivesCancelledParent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(Config{WorkerCount: 1, QueueSize: 1, TaskTimeout: time.Second}, zerolog.Nop())
	require.NoError(t, pool.Start(ctx))
	defer pool.Stop()
	cancel()

	var taskErr error
	waitDone(t, pool.Run("check", func(ctx context.Context) error {
		taskErr = ctx.Err()
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return nil
	}))
	assert.NoError(t, taskErr)
}

func TestPool_PanicAndErrorAreContained(t *testing.T) {
	pool := NewPool(Config{WorkerCount: 1, QueueSize: 4}, zerolog.Nop())
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	waitDone(t, pool.Run("boom", func(ctx context.Context) error { panic("boom") }))
	waitDone(t, pool.Run("fails", func(ctx context.Context) error { return errors.New("nope") }))

	ran := false
	waitDone(t, pool.Run("after", func(ctx context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran, "worker keeps serving after a panic")
}

func TestPool_FullQueueRunsInline(t *testing.T) {
	pool := NewPool(Config{WorkerCount: 1, QueueSize: 0}, zerolog.Nop())
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	release := make(chan struct{})
	blocked := pool.Run("block", func(ctx context.Context) error {
		<-release
		return nil
	})

	overflow := pool.Run("overflow", func(ctx context.Context) error { return nil })
	waitDone(t, overflow)

	close(release)
	waitDone(t, blocked)
}

func TestPool_NotStartedStillRuns(t *testing.T) {
	pool := NewPool(Config{WorkerCount: 1, QueueSize: 1}, zerolog.Nop())
	ran := make(chan struct{})
	waitDone(t, pool.Run("early", func(ctx context.Context) error {
		close(ran)
		return nil
	}))
	<-ran
	pool.Stop()
}

func TestPool_StopDrainsQueue(t *testing.T) {
	pool := NewPool(Config{WorkerCount: 1, QueueSize: 4}, zerolog.Nop())
	require.NoError(t, pool.Start(context.Background()))

	var count atomic.Int32
	for i := 0; i < 4; i++ {
		pool.Run("slow", func(ctx context.Context) error {
			time.Sleep(10 * time.Millisecond)
			count.Add(1)
			return nil
		})
	}
	pool.Stop()
	assert.Equal(t, int32(4), count.Load())

	ran := false
	waitDone(t, pool.Run("after-stop", func(ctx context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}
