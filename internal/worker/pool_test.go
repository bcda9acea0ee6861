package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turbine-wpa/internal/engine"
	"turbine-wpa/internal/models"
)

type fakeComputer struct {
	block chan struct{}
	fail  map[string]error
}

func (f *fakeComputer) Compute(ctx context.Context, req engine.Request) (*models.Result, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := f.fail[req.TurbineID]; ok {
		return nil, err
	}
	return &models.Result{ComputationID: req.ComputationID, TurbineID: req.TurbineID}, nil
}

func receive(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case out, ok := <-ch:
		require.True(t, ok, "results channel closed")
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outcome")
	}
	return Outcome{}
}

func TestPool_ProcessesJobs(t *testing.T) {
	computer := &fakeComputer{fail: map[string]error{"T02": engine.ErrInsufficientData}}
	pool := NewPool(computer, 10, time.Second, nil)
	pool.Start(2)
	defer pool.Stop()

	require.NoError(t, pool.Submit(Job{Request: engine.Request{ComputationID: "c-1", TurbineID: "T01"}, CacheKey: "k1"}))
	require.NoError(t, pool.Submit(Job{Request: engine.Request{ComputationID: "c-2", TurbineID: "T02"}}))

	outcomes := map[string]Outcome{}
	for i := 0; i < 2; i++ {
		out := receive(t, pool.GetResultsChan())
		outcomes[out.Job.Request.ComputationID] = out
	}

	require.NoError(t, outcomes["c-1"].Err)
	assert.Equal(t, "T01", outcomes["c-1"].Result.TurbineID)
	assert.Equal(t, "k1", outcomes["c-1"].Job.CacheKey)
	assert.ErrorIs(t, outcomes["c-2"].Err, engine.ErrInsufficientData)
	assert.Nil(t, outcomes["c-2"].Result)

	stats := pool.GetStats()
	assert.Equal(t, int64(2), stats["processed"])
	assert.Equal(t, int64(1), stats["failed"])
}

func TestPool_SubmitQueueFull(t *testing.T) {
	pool := NewPool(&fakeComputer{}, 1, 0, nil)

	require.NoError(t, pool.Submit(Job{}))
	assert.ErrorIs(t, pool.Submit(Job{}), ErrQueueFull)
	assert.Equal(t, 1, pool.GetStats()["queue_size"])
	pool.Stop()
}

func TestPool_SubmitAfterStop(t *testing.T) {
	pool := NewPool(&fakeComputer{}, 1, 0, nil)
	pool.Start(1)
	pool.Stop()
	pool.Stop()

	assert.ErrorIs(t, pool.Submit(Job{}), ErrStopped)
	_, ok := <-pool.GetResultsChan()
	assert.False(t, ok)
}

func TestPool_Timeout(t *testing.T) {
	computer := &fakeComputer{block: make(chan struct{})}
	pool := NewPool(computer, 1, 20*time.Millisecond, nil)
	pool.Start(1)
	defer pool.Stop()

	require.NoError(t, pool.Submit(Job{Request: engine.Request{TurbineID: "T01"}}))
	out := receive(t, pool.GetResultsChan())
	assert.True(t, errors.Is(out.Err, context.DeadlineExceeded))
}

func TestPool_StopCancelsRunningJob(t *testing.T) {
	computer := &fakeComputer{block: make(chan struct{})}
	pool := NewPool(computer, 1, 0, nil)
	pool.Start(1)

	require.NoError(t, pool.Submit(Job{}))
	require.Eventually(t, func() bool {
		return pool.GetStats()["active"] == int64(1)
	}, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
