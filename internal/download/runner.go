package download

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pagepack/pagepack/internal/queue"
)

// Job is one run over a queue. *Orchestrator satisfies it.
type Job interface {
	Run(ctx context.Context, q *queue.DownloadQueue, cancel *CancelFlag) Summary
}

// Runner owns the single background worker that executes runs. At most one
// run is active at a time.
type Runner struct {
	job    Job
	queue  *queue.DownloadQueue
	taskCh chan struct{}

	ctx   context.Context
	abort context.CancelFunc

	cancel  CancelFlag
	busy    atomic.Bool
	wg      sync.WaitGroup // Held while a run is in progress
	mu      sync.Mutex
	last    Summary
	onDone  func(Summary)
	closed  bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithOnFinished is called on the worker goroutine after every run.
func WithOnFinished(fn func(Summary)) RunnerOption {
	return func(r *Runner) { r.onDone = fn }
}

// NewRunner starts the worker. Runs use a context derived from ctx, so
// cancelling ctx aborts the active run immediately.
func NewRunner(ctx context.Context, job Job, q *queue.DownloadQueue, opts ...RunnerOption) *Runner {
	runCtx, abort := context.WithCancel(ctx)
	r := &Runner{
		job:    job,
		queue:  q,
		taskCh: make(chan struct{}, 1),
		ctx:    runCtx,
		abort:  abort,
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.worker()
	return r
}

// Start begins a run over the currently Pending items. It returns false
// when a run is already in progress or the runner is shut down.
func (r *Runner) Start() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.ctx.Err() != nil || !r.busy.CompareAndSwap(false, true) {
		return false
	}
	r.cancel.Reset()
	r.wg.Add(1)
	// Buffered for one; busy guarantees the slot is free.
	r.taskCh <- struct{}{}
	return true
}

// Busy reports whether a run is in progress.
func (r *Runner) Busy() bool {
	return r.busy.Load()
}

// Cancel asks the active run to stop at the next window or item boundary.
func (r *Runner) Cancel() {
	r.cancel.Cancel()
}

// Abort cancels the run context; in-flight requests are interrupted.
func (r *Runner) Abort() {
	r.cancel.Cancel()
	r.abort()
}

// Wait blocks until the active run, if any, finishes and returns the
// summary of the last completed run.
func (r *Runner) Wait() Summary {
	r.wg.Wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// LastSummary returns the summary of the last completed run.
func (r *Runner) LastSummary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Runner) worker() {
	for range r.taskCh {
		sum := r.job.Run(r.ctx, r.queue, &r.cancel)

		r.mu.Lock()
		r.last = sum
		r.mu.Unlock()

		r.busy.Store(false)
		if r.onDone != nil {
			r.onDone(sum)
		}
		r.wg.Done() // Wait returns only after onDone
	}
}

// GracefulShutdown cancels the active run, waits for it to finish and
// stops the worker.
func (r *Runner) GracefulShutdown() Summary {
	r.Cancel()
	sum := r.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		r.abort()
		close(r.taskCh)
	}
	return sum
}
