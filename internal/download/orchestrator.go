package download

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pagepack/pagepack/internal/archive"
	"github.com/pagepack/pagepack/internal/engine/batch"
	"github.com/pagepack/pagepack/internal/engine/events"
	"github.com/pagepack/pagepack/internal/engine/retry"
	"github.com/pagepack/pagepack/internal/engine/types"
	"github.com/pagepack/pagepack/internal/logger"
	"github.com/pagepack/pagepack/internal/queue"
	"github.com/pagepack/pagepack/internal/utils"
)

// ErrNoPages is the item failure when not a single page could be fetched.
var ErrNoPages = errors.New("no pages downloaded")

// PageSupplier resolves an item id into its ordered pages and title.
type PageSupplier interface {
	Pages(ctx context.Context, itemID string) (types.Gallery, error)
}

// PageBatcher fetches the pages of one item. *batch.Fetcher satisfies it.
type PageBatcher interface {
	FetchAll(ctx context.Context, pages []types.PageDescriptor, limit int, cancelled func() bool, onProgress func(attempted, total int)) batch.Result
}

// Recorder is the download history. *history.Store satisfies it. It is only
// written to once an item is Completed.
type Recorder interface {
	RecordCompletion(ctx context.Context, itemID string, rec types.HistoryEntry) error
}

// sizer is implemented by sinks that count bytes per item.
type sizer interface {
	BytesWritten(itemID string) int64
}

// CancelFlag is the cooperative cancel signal of a run. It is checked before
// every page window and between items; requests already in flight finish.
type CancelFlag struct {
	set atomic.Bool
}

// Cancel raises the flag.
func (c *CancelFlag) Cancel() { c.set.Store(true) }

// Cancelled reports whether the flag is raised. A nil flag is never raised.
func (c *CancelFlag) Cancelled() bool { return c != nil && c.set.Load() }

// Reset lowers the flag for the next run.
func (c *CancelFlag) Reset() { c.set.Store(false) }

// Summary counts how the items of a run ended.
type Summary struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

func (s Summary) String() string {
	return fmt.Sprintf("完成 %d 本，失敗 %d 本，取消 %d 本", s.Succeeded, s.Failed, s.Cancelled)
}

type itemOutcome int

const (
	outcomeNone itemOutcome = iota
	outcomeCompleted
	outcomeFailed
	outcomeCancelled
)

// Orchestrator drains a queue one item at a time into an archive sink.
type Orchestrator struct {
	supplier    PageSupplier
	batcher     PageBatcher
	sink        archive.Sink
	layout      archive.Layout
	history     Recorder
	concurrency int
	report      func(msg any)
	now         func() time.Time

	mu      sync.Mutex
	current string // Item being downloaded, for retry attribution
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLayout sets where pages go inside the sink.
func WithLayout(l archive.Layout) Option {
	return func(o *Orchestrator) { o.layout = l }
}

// WithHistory records completions in r.
func WithHistory(r Recorder) Option {
	return func(o *Orchestrator) { o.history = r }
}

// WithConcurrency sets the page window size.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) { o.concurrency = n }
}

// WithReporter receives the events.* messages of a run.
func WithReporter(fn func(msg any)) Option {
	return func(o *Orchestrator) { o.report = fn }
}

// WithClock sets the time source used for elapsed times and history stamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator wires the collaborators of a run.
func NewOrchestrator(supplier PageSupplier, batcher PageBatcher, sink archive.Sink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		supplier:    supplier,
		batcher:     batcher,
		sink:        sink,
		layout:      archive.Layout{Template: "{title}", Subfolders: true},
		concurrency: types.DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run processes the items that are Pending when it starts, strictly one at a
// time in queue order. Items added during the run are left for the next one.
// Once cancel is raised, or ctx ends, every snapshot item still Pending is
// cancelled and Run returns.
func (o *Orchestrator) Run(ctx context.Context, q *queue.DownloadQueue, cancel *CancelFlag) Summary {
	runID := uuid.NewString()
	start := o.now()
	snapshot := q.ByStatus(queue.StatusPending)

	o.emit(events.RunStartedMsg{RunID: runID, Items: len(snapshot), Start: start})
	logger.L().Infow("Run started", "run", runID, "items", len(snapshot))

	var sum Summary
	for i, it := range snapshot {
		if cancel.Cancelled() || ctx.Err() != nil {
			sum.Cancelled += o.cancelPending(q, snapshot[i:])
			break
		}

		switch o.runItem(ctx, runID, q, it.ID, cancel) {
		case outcomeCompleted:
			sum.Succeeded++
		case outcomeFailed:
			sum.Failed++
		case outcomeCancelled:
			sum.Cancelled++
		}
	}

	elapsed := o.now().Sub(start)
	o.emit(events.RunFinishedMsg{
		RunID:     runID,
		Succeeded: sum.Succeeded,
		Failed:    sum.Failed,
		Cancelled: sum.Cancelled,
		Elapsed:   elapsed,
	})
	logger.L().Infow("Run finished", "run", runID,
		"succeeded", sum.Succeeded, "failed", sum.Failed,
		"cancelled", sum.Cancelled, "elapsed", elapsed)
	return sum
}

// NotifyRetry forwards a fetcher retry to the reporter, attributed to the
// item currently downloading.
func (o *Orchestrator) NotifyRetry(ev retry.RetryEvent) {
	o.mu.Lock()
	id := o.current
	o.mu.Unlock()

	utils.Debug("Retry %d/%d for %s in %v: %s", ev.Attempt, ev.MaxRetries, ev.URL, ev.Delay, ev.Message)
	o.emit(events.PageRetryMsg{
		ItemID:     id,
		URL:        ev.URL,
		Attempt:    ev.Attempt,
		MaxRetries: ev.MaxRetries,
		Status:     ev.Status,
		Delay:      ev.Delay,
		Message:    ev.Message,
	})
}

func (o *Orchestrator) runItem(ctx context.Context, runID string, q *queue.DownloadQueue, id string, cancel *CancelFlag) itemOutcome {
	// The item may have been removed or cancelled since the snapshot.
	it, ok := q.Get(id)
	if !ok || it.Status != queue.StatusPending {
		return outcomeNone
	}

	if err := q.StartDownload(id); err != nil {
		utils.Debug("Run: cannot start %s: %v", id, err)
		return outcomeNone
	}
	o.setCurrent(id)
	defer o.setCurrent("")
	started := o.now()

	g, err := o.supplier.Pages(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return o.cancelItem(q, id, it.Title)
		}
		return o.failItem(q, id, it.Title, err)
	}

	title := it.Title
	if g.Title != "" && g.Title != title {
		title = g.Title
		_ = q.SetTitle(id, title)
	}
	total := len(g.Pages)
	o.emit(events.ItemStartedMsg{RunID: runID, ItemID: id, Title: title, TotalPages: total})

	if total == 0 {
		return o.failItem(q, id, title, fmt.Errorf("%w: gallery has no pages", ErrNoPages))
	}
	_ = q.UpdateProgress(id, 0, total)

	res := o.batcher.FetchAll(ctx, g.Pages, o.concurrency, cancel.Cancelled, func(attempted, total int) {
		_ = q.UpdateProgress(id, attempted, total)
		progress := 0
		if cur, ok := q.Get(id); ok {
			progress = cur.Progress
		}
		o.emit(events.ItemProgressMsg{ItemID: id, CurrentPage: attempted, TotalPages: total, Progress: progress})
	})

	// Windows that finished before a cancel are kept; the item only counts
	// as cancelled when none of its pages arrived.
	stopped := res.Cancelled || ctx.Err() != nil
	if stopped && len(res.Pages) == 0 {
		return o.cancelItem(q, id, title)
	}

	if len(res.Pages) == 0 {
		err := ErrNoPages
		if len(res.Errors) > 0 {
			err = fmt.Errorf("%w: %w", ErrNoPages, res.Errors[0].Err)
		}
		return o.failItem(q, id, title, err)
	}

	// Pages arrive sorted by index; the sink sees them in that order.
	for _, p := range res.Pages {
		if err := o.sink.Put(id, o.layout.EntryPath(id, title, p), p.Data); err != nil {
			return o.failItem(q, id, title, fmt.Errorf("write archive: %w", err))
		}
	}

	var size int64
	if s, ok := o.sink.(sizer); ok {
		size = s.BytesWritten(id)
	}
	if err := q.Complete(id, queue.CompletionMeta{FileSize: size}); err != nil {
		utils.Debug("Run: cannot complete %s: %v", id, err)
		return outcomeNone
	}

	missing := total - len(res.Pages)
	if o.history != nil {
		rec := types.HistoryEntry{
			GalleryID:    id,
			Title:        title,
			PageCount:    len(res.Pages),
			FileSize:     size,
			DownloadedAt: o.now().UnixMilli(),
		}
		// The item is already Completed; record it even if ctx just ended.
		if err := o.history.RecordCompletion(context.WithoutCancel(ctx), id, rec); err != nil {
			logger.L().Warnw("Failed to record history", "item", id, "error", err)
		}
	}

	o.emit(events.ItemCompletedMsg{
		ItemID:   id,
		Title:    title,
		Pages:    len(res.Pages),
		Missing:  missing,
		FileSize: size,
		Elapsed:  o.now().Sub(started),
	})
	if missing > 0 {
		logger.L().Infow("Item completed with missing pages", "item", id,
			"pages", len(res.Pages), "missing", missing, "stopped", stopped)
	}
	return outcomeCompleted
}

func (o *Orchestrator) failItem(q *queue.DownloadQueue, id, title string, err error) itemOutcome {
	if qerr := q.Fail(id, retry.FriendlyMessage(err)); qerr != nil {
		utils.Debug("Run: cannot fail %s: %v", id, qerr)
		return outcomeNone
	}
	logger.L().Warnw("Item failed", "item", id, "error", err)
	o.emit(events.ItemFailedMsg{ItemID: id, Title: title, Err: err})
	return outcomeFailed
}

func (o *Orchestrator) cancelItem(q *queue.DownloadQueue, id, title string) itemOutcome {
	if err := q.Cancel(id); err != nil {
		utils.Debug("Run: cannot cancel %s: %v", id, err)
		return outcomeNone
	}
	o.emit(events.ItemCancelledMsg{ItemID: id, Title: title})
	return outcomeCancelled
}

// cancelPending cancels the snapshot items that are still Pending.
func (o *Orchestrator) cancelPending(q *queue.DownloadQueue, rest []queue.Item) int {
	n := 0
	for _, it := range rest {
		cur, ok := q.Get(it.ID)
		if !ok || cur.Status != queue.StatusPending {
			continue
		}
		if o.cancelItem(q, cur.ID, cur.Title) == outcomeCancelled {
			n++
		}
	}
	return n
}

func (o *Orchestrator) setCurrent(id string) {
	o.mu.Lock()
	o.current = id
	o.mu.Unlock()
}

func (o *Orchestrator) emit(msg any) {
	if o.report != nil {
		o.report(msg)
	}
}
