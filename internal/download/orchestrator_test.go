package download

import (
	archivezip "archive/zip"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagepack/pagepack/internal/archive"
	"github.com/pagepack/pagepack/internal/engine/batch"
	"github.com/pagepack/pagepack/internal/engine/events"
	"github.com/pagepack/pagepack/internal/engine/retry"
	"github.com/pagepack/pagepack/internal/engine/types"
	"github.com/pagepack/pagepack/internal/gallery"
	"github.com/pagepack/pagepack/internal/queue"
	"github.com/pagepack/pagepack/internal/testutil"
)

// fakeSupplier serves galleries of N png pages at fake://<id>/<n>.
type fakeSupplier struct {
	pages map[string]int
	errs  map[string]error
}

func (f *fakeSupplier) Pages(_ context.Context, id string) (types.Gallery, error) {
	if err, ok := f.errs[id]; ok {
		return types.Gallery{}, err
	}
	n, ok := f.pages[id]
	if !ok {
		return types.Gallery{}, fmt.Errorf("%w: %s", gallery.ErrNotFound, id)
	}
	g := types.Gallery{ID: id, MediaID: "m" + id, Title: "Title " + id}
	for i := range n {
		g.Pages = append(g.Pages, types.PageDescriptor{
			Index: i,
			URL:   fmt.Sprintf("fake://%s/%d", id, i+1),
			Ext:   "png",
		})
	}
	return g, nil
}

// fakePages answers page requests; URLs listed in fail get a 404.
type fakePages struct {
	mu   sync.Mutex
	fail map[string]bool
	hits int
}

func (f *fakePages) Fetch(_ context.Context, url string, _ retry.RequestOptions, _ retry.Policy) retry.Outcome {
	f.mu.Lock()
	f.hits++
	fail := f.fail[url]
	f.mu.Unlock()

	if fail {
		return retry.Success{Status: http.StatusNotFound, Header: http.Header{}}
	}
	return retry.Success{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"image/png"}},
		Body:   testutil.ImageBytes("png", 1),
	}
}

type putCall struct {
	itemID string
	path   string
}

type memSink struct {
	mu    sync.Mutex
	puts  []putCall
	sizes map[string]int64
	err   error
}

func (m *memSink) Put(itemID, relPath string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.sizes == nil {
		m.sizes = make(map[string]int64)
	}
	m.puts = append(m.puts, putCall{itemID: itemID, path: relPath})
	m.sizes[itemID] += int64(len(data))
	return nil
}

func (m *memSink) BytesWritten(itemID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sizes[itemID]
}

func (m *memSink) pathsFor(itemID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, p := range m.puts {
		if p.itemID == itemID {
			out = append(out, p.path)
		}
	}
	return out
}

// flakySink fails the failAt-th Put once, after earlier entries were stored.
type flakySink struct {
	*archive.ZipSink
	mu     sync.Mutex
	calls  int
	failAt int
}

func (f *flakySink) Put(itemID, relPath string, data []byte) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls == f.failAt
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.ZipSink.Put(itemID, relPath, data)
}

type fakeRecorder struct {
	mu       sync.Mutex
	recorded []types.HistoryEntry
	// statusAtRecord captures the queue status seen when RecordCompletion runs.
	q              *queue.DownloadQueue
	statusAtRecord []queue.Status
}

func (f *fakeRecorder) RecordCompletion(_ context.Context, id string, rec types.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, rec)
	if f.q != nil {
		it, _ := f.q.Get(id)
		f.statusAtRecord = append(f.statusAtRecord, it.Status)
	}
	return nil
}

type msgLog struct {
	mu   sync.Mutex
	msgs []any
}

func (l *msgLog) add(msg any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

func (l *msgLog) names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.msgs))
	for i, m := range l.msgs {
		out[i] = events.Name(m)
	}
	return out
}

func newQueueWith(ids ...string) *queue.DownloadQueue {
	q := queue.New()
	for _, id := range ids {
		q.Add(queue.Item{ID: id, Title: "Gallery " + id})
	}
	return q
}

func newTestOrchestrator(supplier PageSupplier, pages *fakePages, sink archive.Sink, opts ...Option) *Orchestrator {
	fetcher := batch.New(pages, retry.DefaultPolicy(), nil)
	return NewOrchestrator(supplier, fetcher, sink, opts...)
}

func TestRun_CompletedAndFailed(t *testing.T) {
	supplier := &fakeSupplier{pages: map[string]int{"A": 3, "B": 2}}
	pages := &fakePages{fail: map[string]bool{"fake://B/1": true, "fake://B/2": true}}
	sink := &memSink{}
	q := newQueueWith("A", "B")
	rec := &fakeRecorder{q: q}

	o := newTestOrchestrator(supplier, pages, sink, WithHistory(rec))
	sum := o.Run(context.Background(), q, &CancelFlag{})

	assert.Equal(t, Summary{Succeeded: 1, Failed: 1}, sum)

	a, _ := q.Get("A")
	assert.Equal(t, queue.StatusCompleted, a.Status)
	assert.Equal(t, 100, a.Progress)
	assert.Equal(t, 3, a.TotalPages)
	assert.Equal(t, "Title A", a.Title)
	assert.Positive(t, a.FileSize)

	b, _ := q.Get("B")
	assert.Equal(t, queue.StatusFailed, b.Status)
	assert.Equal(t, 1, b.RetryCount)
	assert.Equal(t, "資源不存在", b.Error)

	assert.Equal(t, []string{"Title A/001.png", "Title A/002.png", "Title A/003.png"}, sink.pathsFor("A"))
	assert.Empty(t, sink.pathsFor("B"))

	require.Len(t, rec.recorded, 1)
	assert.Equal(t, "A", rec.recorded[0].GalleryID)
	assert.Equal(t, 3, rec.recorded[0].PageCount)
	assert.Equal(t, []queue.Status{queue.StatusCompleted}, rec.statusAtRecord)
}

func TestRun_PartialSuccessCompletes(t *testing.T) {
	supplier := &fakeSupplier{pages: map[string]int{"A": 4}}
	pages := &fakePages{fail: map[string]bool{"fake://A/2": true}}
	sink := &memSink{}
	log := &msgLog{}
	q := newQueueWith("A")

	o := newTestOrchestrator(supplier, pages, sink, WithReporter(log.add))
	sum := o.Run(context.Background(), q, &CancelFlag{})

	assert.Equal(t, Summary{Succeeded: 1}, sum)
	assert.Equal(t, []string{"Title A/001.png", "Title A/003.png", "Title A/004.png"}, sink.pathsFor("A"))

	var completed events.ItemCompletedMsg
	for _, m := range log.msgs {
		if c, ok := m.(events.ItemCompletedMsg); ok {
			completed = c
		}
	}
	assert.Equal(t, 3, completed.Pages)
	assert.Equal(t, 1, completed.Missing)
}

func TestRun_CancelBetweenItems(t *testing.T) {
	supplier := &fakeSupplier{pages: map[string]int{"1": 5, "2": 5, "3": 5}}
	q := newQueueWith("1", "2", "3")
	cancel := &CancelFlag{}

	// Raise the flag while the first (and only) window of item 1 reports.
	o := newTestOrchestrator(supplier, &fakePages{}, &memSink{},
		WithConcurrency(5),
		WithReporter(func(msg any) {
			if _, ok := msg.(events.ItemProgressMsg); ok {
				cancel.Cancel()
			}
		}))
	sum := o.Run(context.Background(), q, cancel)

	assert.Equal(t, Summary{Succeeded: 1, Cancelled: 2}, sum)
	it, _ := q.Get("1")
	assert.Equal(t, queue.StatusCompleted, it.Status)
	for _, id := range []string{"2", "3"} {
		it, _ := q.Get(id)
		assert.Equal(t, queue.StatusCancelled, it.Status, id)
		assert.Nil(t, it.StartedAt, "item %s never started", id)
	}
}

func TestRun_CancelMidItem(t *testing.T) {
	supplier := &fakeSupplier{pages: map[string]int{"1": 12, "2": 12, "3": 12}}
	pages := &fakePages{}
	sink := &memSink{}
	log := &msgLog{}
	q := newQueueWith("1", "2", "3")
	rec := &fakeRecorder{q: q}
	cancel := &CancelFlag{}

	// The flag goes up after the first window of item 1.
	o := newTestOrchestrator(supplier, pages, sink,
		WithConcurrency(5),
		WithHistory(rec),
		WithReporter(func(msg any) {
			log.add(msg)
			if _, ok := msg.(events.ItemProgressMsg); ok {
				cancel.Cancel()
			}
		}))
	sum := o.Run(context.Background(), q, cancel)

	assert.Equal(t, Summary{Succeeded: 1, Cancelled: 2}, sum)
	assert.Equal(t, 5, pages.hits, "only the first window was issued")

	it, _ := q.Get("1")
	assert.Equal(t, queue.StatusCompleted, it.Status)
	assert.Empty(t, it.Error)
	assert.Equal(t, []string{"Title 1/001.png", "Title 1/002.png", "Title 1/003.png", "Title 1/004.png", "Title 1/005.png"}, sink.pathsFor("1"))
	require.Len(t, rec.recorded, 1)
	assert.Equal(t, 5, rec.recorded[0].PageCount)

	var completed events.ItemCompletedMsg
	for _, m := range log.msgs {
		if c, ok := m.(events.ItemCompletedMsg); ok {
			completed = c
		}
	}
	assert.Equal(t, 5, completed.Pages)
	assert.Equal(t, 7, completed.Missing)

	for _, id := range []string{"2", "3"} {
		it, _ := q.Get(id)
		assert.Equal(t, queue.StatusCancelled, it.Status, id)
		assert.Empty(t, sink.pathsFor(id))
	}
}

func TestRun_CancelBeforeFirstWindow(t *testing.T) {
	supplier := &fakeSupplier{pages: map[string]int{"1": 12, "2": 12}}
	pages := &fakePages{}
	sink := &memSink{}
	q := newQueueWith("1", "2")
	cancel := &CancelFlag{}

	o := newTestOrchestrator(supplier, pages, sink,
		WithConcurrency(5),
		WithReporter(func(msg any) {
			if _, ok := msg.(events.ItemStartedMsg); ok {
				cancel.Cancel()
			}
		}))
	sum := o.Run(context.Background(), q, cancel)

	assert.Equal(t, Summary{Cancelled: 2}, sum)
	assert.Zero(t, pages.hits)
	it, _ := q.Get("1")
	assert.Equal(t, queue.StatusCancelled, it.Status)
	assert.Empty(t, sink.pathsFor("1"))
}

func TestRun_RetryAfterSinkErrorDoesNotDuplicateEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.zip")
	zs, err := archive.NewZipSink(path)
	require.NoError(t, err)
	sink := &flakySink{ZipSink: zs, failAt: 2}

	supplier := &fakeSupplier{pages: map[string]int{"1": 3}}
	q := newQueueWith("1")
	o := newTestOrchestrator(supplier, &fakePages{}, sink)

	assert.Equal(t, Summary{Failed: 1}, o.Run(context.Background(), q, &CancelFlag{}))
	require.NoError(t, q.Retry("1"))
	assert.Equal(t, Summary{Succeeded: 1}, o.Run(context.Background(), q, &CancelFlag{}))
	require.NoError(t, zs.Close())

	r, err := archivezip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"Title 1/001.png", "Title 1/002.png", "Title 1/003.png"}, names)
}

func TestRun_SnapshotIgnoresLateItems(t *testing.T) {
	supplier := &fakeSupplier{pages: map[string]int{"1": 1, "late": 1}}
	q := newQueueWith("1")

	o := newTestOrchestrator(supplier, &fakePages{}, &memSink{},
		WithReporter(func(msg any) {
			if _, ok := msg.(events.RunStartedMsg); ok {
				q.Add(queue.Item{ID: "late"})
			}
		}))
	sum := o.Run(context.Background(), q, &CancelFlag{})

	assert.Equal(t, Summary{Succeeded: 1}, sum)
	late, ok := q.Get("late")
	require.True(t, ok)
	assert.Equal(t, queue.StatusPending, late.Status)
}

func TestRun_SkipsItemsChangedSinceSnapshot(t *testing.T) {
	supplier := &fakeSupplier{pages: map[string]int{"1": 1, "2": 1}}
	q := newQueueWith("1", "2")

	o := newTestOrchestrator(supplier, &fakePages{}, &memSink{},
		WithReporter(func(msg any) {
			if m, ok := msg.(events.ItemCompletedMsg); ok && m.ItemID == "1" {
				_ = q.Remove("2")
			}
		}))
	sum := o.Run(context.Background(), q, &CancelFlag{})

	assert.Equal(t, Summary{Succeeded: 1}, sum)
}

func TestRun_RecordsOnlyCompletedItems(t *testing.T) {
	supplier := &fakeSupplier{pages: map[string]int{"1": 1, "2": 1}}
	pages := &fakePages{fail: map[string]bool{"fake://2/1": true}}
	q := newQueueWith("1", "2")
	rec := &fakeRecorder{q: q}

	o := newTestOrchestrator(supplier, pages, &memSink{}, WithHistory(rec))
	sum := o.Run(context.Background(), q, &CancelFlag{})

	assert.Equal(t, Summary{Succeeded: 1, Failed: 1}, sum)
	require.Len(t, rec.recorded, 1)
	assert.Equal(t, "1", rec.recorded[0].GalleryID)
	assert.Equal(t, []queue.Status{queue.StatusCompleted}, rec.statusAtRecord)
}

func TestRun_SupplierErrorFailsItem(t *testing.T) {
	supplier := &fakeSupplier{
		pages: map[string]int{"2": 1},
		errs: map[string]error{
			"1": fmt.Errorf("%w: 1: %w", gallery.ErrNotFound, &retry.HTTPError{Status: 404}),
		},
	}
	q := newQueueWith("1", "2")

	o := newTestOrchestrator(supplier, &fakePages{}, &memSink{})
	sum := o.Run(context.Background(), q, &CancelFlag{})

	assert.Equal(t, Summary{Succeeded: 1, Failed: 1}, sum)
	it, _ := q.Get("1")
	assert.Equal(t, queue.StatusFailed, it.Status)
	assert.Equal(t, "資源不存在", it.Error)
}

func TestRun_EmptyGalleryFails(t *testing.T) {
	supplier := &fakeSupplier{pages: map[string]int{"1": 0}}
	q := newQueueWith("1")
	log := &msgLog{}

	o := newTestOrchestrator(supplier, &fakePages{}, &memSink{}, WithReporter(log.add))
	sum := o.Run(context.Background(), q, &CancelFlag{})

	assert.Equal(t, Summary{Failed: 1}, sum)
	for _, m := range log.msgs {
		if f, ok := m.(events.ItemFailedMsg); ok {
			assert.ErrorIs(t, f.Err, ErrNoPages)
		}
	}
}

func TestRun_SinkErrorFailsItem(t *testing.T) {
	supplier := &fakeSupplier{pages: map[string]int{"1": 2}}
	q := newQueueWith("1")
	sink := &memSink{err: errors.New("disk full")}

	o := newTestOrchestrator(supplier, &fakePages{}, sink)
	sum := o.Run(context.Background(), q, &CancelFlag{})

	assert.Equal(t, Summary{Failed: 1}, sum)
	it, _ := q.Get("1")
	assert.True(t, strings.Contains(it.Error, "disk full"), it.Error)
}

func TestRun_ContextDoneCancelsEverything(t *testing.T) {
	supplier := &fakeSupplier{pages: map[string]int{"1": 1, "2": 1}}
	q := newQueueWith("1", "2")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newTestOrchestrator(supplier, &fakePages{}, &memSink{})
	sum := o.Run(ctx, q, &CancelFlag{})

	assert.Equal(t, Summary{Cancelled: 2}, sum)
	assert.Equal(t, 2, q.Stats().Cancelled)
}

func TestRun_ProgressIsMonotonic(t *testing.T) {
	supplier := &fakeSupplier{pages: map[string]int{"1": 12}}
	q := newQueueWith("1")

	var mu sync.Mutex
	var seen []int
	q.Subscribe(func(ev queue.Event) {
		if ev.Item != nil && ev.Item.Status == queue.StatusDownloading && ev.Item.TotalPages > 0 {
			mu.Lock()
			seen = append(seen, ev.Item.CurrentPage)
			mu.Unlock()
		}
	})

	o := newTestOrchestrator(supplier, &fakePages{}, &memSink{}, WithConcurrency(5))
	o.Run(context.Background(), q, &CancelFlag{})

	assert.Equal(t, []int{0, 5, 10, 12}, seen)
}

func TestRun_EventOrder(t *testing.T) {
	supplier := &fakeSupplier{pages: map[string]int{"1": 2}}
	q := newQueueWith("1")
	log := &msgLog{}

	o := newTestOrchestrator(supplier, &fakePages{}, &memSink{}, WithReporter(log.add))
	o.Run(context.Background(), q, &CancelFlag{})

	assert.Equal(t, []string{"run_started", "started", "progress", "completed", "run_finished"}, log.names())
}

func TestNotifyRetry_AttributesCurrentItem(t *testing.T) {
	log := &msgLog{}
	o := NewOrchestrator(&fakeSupplier{}, nil, &memSink{}, WithReporter(log.add))
	o.setCurrent("42")

	o.NotifyRetry(retry.RetryEvent{URL: "u", Attempt: 1, MaxRetries: 3, Status: 503})

	require.Len(t, log.msgs, 1)
	msg := log.msgs[0].(events.PageRetryMsg)
	assert.Equal(t, "42", msg.ItemID)
	assert.Equal(t, 503, msg.Status)
}

func TestSummaryString(t *testing.T) {
	assert.Equal(t, "完成 2 本，失敗 1 本，取消 0 本", Summary{Succeeded: 2, Failed: 1}.String())
}

func TestCancelFlag(t *testing.T) {
	var nilFlag *CancelFlag
	assert.False(t, nilFlag.Cancelled())

	f := &CancelFlag{}
	assert.False(t, f.Cancelled())
	f.Cancel()
	assert.True(t, f.Cancelled())
	f.Reset()
	assert.False(t, f.Cancelled())
}
