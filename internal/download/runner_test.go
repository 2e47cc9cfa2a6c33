package download

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagepack/pagepack/internal/queue"
)

// gateJob blocks each run until release is closed or the flag is raised.
type gateJob struct {
	started chan struct{}
	release chan struct{}
	runs    atomic.Int32
}

func newGateJob() *gateJob {
	return &gateJob{started: make(chan struct{}, 4), release: make(chan struct{})}
}

func (j *gateJob) Run(ctx context.Context, q *queue.DownloadQueue, cancel *CancelFlag) Summary {
	j.runs.Add(1)
	j.started <- struct{}{}
	for {
		select {
		case <-j.release:
			return Summary{Succeeded: len(q.ByStatus(queue.StatusPending))}
		case <-ctx.Done():
			return Summary{Cancelled: 1}
		case <-time.After(5 * time.Millisecond):
			if cancel.Cancelled() {
				return Summary{Cancelled: 1}
			}
		}
	}
}

func TestRunner_StartRejectsWhileBusy(t *testing.T) {
	job := newGateJob()
	q := newQueueWith("1", "2")
	r := NewRunner(context.Background(), job, q)
	defer r.GracefulShutdown()

	require.True(t, r.Start())
	<-job.started
	assert.True(t, r.Busy())
	assert.False(t, r.Start())

	close(job.release)
	sum := r.Wait()
	assert.Equal(t, Summary{Succeeded: 2}, sum)
	assert.False(t, r.Busy())

	// Idle again, a new run is accepted.
	require.True(t, r.Start())
	<-job.started
	r.Wait()
	assert.EqualValues(t, 2, job.runs.Load())
}

func TestRunner_CancelStopsRun(t *testing.T) {
	job := newGateJob()
	r := NewRunner(context.Background(), job, newQueueWith("1"))
	defer r.GracefulShutdown()

	require.True(t, r.Start())
	<-job.started
	r.Cancel()
	assert.Equal(t, Summary{Cancelled: 1}, r.Wait())
}

func TestRunner_StartResetsCancelFlag(t *testing.T) {
	job := newGateJob()
	r := NewRunner(context.Background(), job, newQueueWith("1"))
	defer r.GracefulShutdown()

	r.Cancel()
	close(job.release)
	require.True(t, r.Start())
	<-job.started
	assert.Equal(t, Summary{Succeeded: 1}, r.Wait())
}

func TestRunner_OnFinished(t *testing.T) {
	job := newGateJob()
	close(job.release)

	var got atomic.Value
	r := NewRunner(context.Background(), job, newQueueWith("1"), WithOnFinished(func(s Summary) {
		got.Store(s)
	}))
	defer r.GracefulShutdown()

	require.True(t, r.Start())
	r.Wait()
	assert.Equal(t, Summary{Succeeded: 1}, got.Load())
	assert.Equal(t, Summary{Succeeded: 1}, r.LastSummary())
}

func TestRunner_GracefulShutdown(t *testing.T) {
	job := newGateJob()
	r := NewRunner(context.Background(), job, newQueueWith("1"))

	require.True(t, r.Start())
	<-job.started

	done := make(chan Summary)
	go func() { done <- r.GracefulShutdown() }()

	select {
	case sum := <-done:
		assert.Equal(t, Summary{Cancelled: 1}, sum)
	case <-time.After(2 * time.Second):
		t.Fatal("GracefulShutdown did not return")
	}

	assert.False(t, r.Start(), "no runs after shutdown")
	r.GracefulShutdown() // idempotent
}

func TestRunner_AbortInterruptsRun(t *testing.T) {
	job := newGateJob()
	r := NewRunner(context.Background(), job, newQueueWith("1"))
	defer r.GracefulShutdown()

	require.True(t, r.Start())
	<-job.started
	r.Abort()
	assert.Equal(t, Summary{Cancelled: 1}, r.Wait())
	assert.False(t, r.Start())
}
