package queue

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/pagepack/pagepack/internal/logger"
)

type subscription struct {
	id int
	fn Listener
}

// DownloadQueue tracks items through pending, downloading and a terminal
// state. It does no I/O. Every mutation notifies all listeners; listeners are
// called after the lock is released, so they may call back into the queue.
type DownloadQueue struct {
	mu        sync.RWMutex
	items     map[string]*Item
	order     []string
	listeners []subscription
	nextSubID int
	now       func() time.Time
}

// Option configures a DownloadQueue.
type Option func(*DownloadQueue)

// WithClock sets the time source for AddedAt, StartedAt and CompletedAt.
func WithClock(now func() time.Time) Option {
	return func(q *DownloadQueue) { q.now = now }
}

// New creates an empty queue.
func New(opts ...Option) *DownloadQueue {
	q := &DownloadQueue{
		items: make(map[string]*Item),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Subscribe registers l and returns a function that removes it.
func (q *DownloadQueue) Subscribe(l Listener) func() {
	q.mu.Lock()
	q.nextSubID++
	id := q.nextSubID
	q.listeners = append(q.listeners, subscription{id: id, fn: l})
	q.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			q.mu.Lock()
			defer q.mu.Unlock()
			q.listeners = slices.DeleteFunc(q.listeners, func(s subscription) bool { return s.id == id })
		})
	}
}

// Add appends item as Pending. It returns false, without notifying, when the
// id is already present. Status, progress and timestamps on item are ignored.
func (q *DownloadQueue) Add(item Item) bool {
	q.mu.Lock()
	ev, ok := q.addLocked(item)
	listeners := q.snapshotListenersLocked()
	q.mu.Unlock()

	if ok {
		q.dispatch(listeners, ev)
	}
	return ok
}

// AddBatch adds items in order and returns how many were new.
func (q *DownloadQueue) AddBatch(items []Item) int {
	q.mu.Lock()
	var events []Event
	for _, item := range items {
		if ev, ok := q.addLocked(item); ok {
			events = append(events, ev)
		}
	}
	listeners := q.snapshotListenersLocked()
	q.mu.Unlock()

	q.dispatch(listeners, events...)
	return len(events)
}

func (q *DownloadQueue) addLocked(in Item) (Event, bool) {
	if in.ID == "" {
		return Event{}, false
	}
	if _, exists := q.items[in.ID]; exists {
		return Event{}, false
	}

	total := max(in.TotalPages, 0)
	it := &Item{
		ID:         in.ID,
		Title:      in.Title,
		Status:     StatusPending,
		TotalPages: total,
		AddedAt:    q.now(),
	}
	q.items[it.ID] = it
	q.order = append(q.order, it.ID)
	return q.eventLocked(EventAdd, it), true
}

// Remove deletes an item in any state.
func (q *DownloadQueue) Remove(id string) error {
	q.mu.Lock()
	it, ok := q.items[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	q.removeLocked(id)
	ev := q.eventLocked(EventRemove, it)
	listeners := q.snapshotListenersLocked()
	q.mu.Unlock()

	q.dispatch(listeners, ev)
	return nil
}

func (q *DownloadQueue) removeLocked(id string) {
	delete(q.items, id)
	q.order = slices.DeleteFunc(q.order, func(o string) bool { return o == id })
}

// StartDownload moves a Pending item to Downloading.
func (q *DownloadQueue) StartDownload(id string) error {
	return q.update(id, func(it *Item) error {
		if it.Status != StatusPending {
			return transitionError(it, StatusDownloading)
		}
		it.Status = StatusDownloading
		if it.StartedAt == nil {
			t := q.now()
			it.StartedAt = &t
		}
		return nil
	})
}

// SetTitle replaces the display title of an item in any state.
func (q *DownloadQueue) SetTitle(id, title string) error {
	return q.update(id, func(it *Item) error {
		it.Title = title
		return nil
	})
}

// UpdateProgress records current of total pages for a Downloading item.
// current is clamped to [0, total].
func (q *DownloadQueue) UpdateProgress(id string, current, total int) error {
	return q.update(id, func(it *Item) error {
		if it.Status != StatusDownloading {
			return transitionError(it, StatusDownloading)
		}
		total = max(total, 0)
		current = min(max(current, 0), total)
		it.TotalPages = total
		it.CurrentPage = current
		it.Progress = percent(current, total)
		return nil
	})
}

// Complete moves a Downloading item to Completed with progress 100.
func (q *DownloadQueue) Complete(id string, meta CompletionMeta) error {
	return q.update(id, func(it *Item) error {
		if it.Status != StatusDownloading {
			return transitionError(it, StatusCompleted)
		}
		it.Status = StatusCompleted
		it.Progress = 100
		it.Error = ""
		it.FileSize = meta.FileSize
		t := q.now()
		it.CompletedAt = &t
		return nil
	})
}

// Fail moves a Downloading item to Failed and increments its retry count.
func (q *DownloadQueue) Fail(id, message string) error {
	return q.update(id, func(it *Item) error {
		if it.Status != StatusDownloading {
			return transitionError(it, StatusFailed)
		}
		it.Status = StatusFailed
		it.Error = message
		it.RetryCount++
		t := q.now()
		it.CompletedAt = &t
		return nil
	})
}

// Cancel moves a Pending or Downloading item to Cancelled.
func (q *DownloadQueue) Cancel(id string) error {
	return q.update(id, func(it *Item) error {
		if it.Status != StatusPending && it.Status != StatusDownloading {
			return transitionError(it, StatusCancelled)
		}
		it.Status = StatusCancelled
		return nil
	})
}

// CancelAll cancels every Pending or Downloading item and returns the count.
func (q *DownloadQueue) CancelAll() int {
	return q.updateWhere(
		func(it *Item) bool { return it.Status == StatusPending || it.Status == StatusDownloading },
		func(it *Item) { it.Status = StatusCancelled },
	)
}

// Retry moves a Failed item back to Pending and clears its progress and error.
func (q *DownloadQueue) Retry(id string) error {
	return q.update(id, func(it *Item) error {
		if it.Status != StatusFailed {
			return transitionError(it, StatusPending)
		}
		resetForRetry(it)
		return nil
	})
}

// RetryAll retries every Failed item and returns the count.
func (q *DownloadQueue) RetryAll() int {
	return q.updateWhere(
		func(it *Item) bool { return it.Status == StatusFailed },
		resetForRetry,
	)
}

func resetForRetry(it *Item) {
	it.Status = StatusPending
	it.Progress = 0
	it.CurrentPage = 0
	it.Error = ""
	it.CompletedAt = nil
}

// ClearCompleted removes Completed items and returns the count.
func (q *DownloadQueue) ClearCompleted() int {
	q.mu.Lock()
	var events []Event
	for _, id := range slices.Clone(q.order) {
		it := q.items[id]
		if it.Status != StatusCompleted {
			continue
		}
		q.removeLocked(id)
		events = append(events, q.eventLocked(EventRemove, it))
	}
	listeners := q.snapshotListenersLocked()
	q.mu.Unlock()

	q.dispatch(listeners, events...)
	return len(events)
}

// Clear removes every item.
func (q *DownloadQueue) Clear() {
	q.mu.Lock()
	q.items = make(map[string]*Item)
	q.order = nil
	ev := Event{Type: EventClear, Stats: q.statsLocked()}
	listeners := q.snapshotListenersLocked()
	q.mu.Unlock()

	q.dispatch(listeners, ev)
}

// Reorder moves id to newIndex, clamped to the valid range.
func (q *DownloadQueue) Reorder(id string, newIndex int) error {
	q.mu.Lock()
	from := slices.Index(q.order, id)
	if from < 0 {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	q.order = slices.Delete(q.order, from, from+1)
	to := min(max(newIndex, 0), len(q.order))
	q.order = slices.Insert(q.order, to, id)

	ev := q.eventLocked(EventReorder, q.items[id])
	ev.From, ev.To = from, to
	listeners := q.snapshotListenersLocked()
	q.mu.Unlock()

	q.dispatch(listeners, ev)
	return nil
}

// Get returns a copy of the item.
func (q *DownloadQueue) Get(id string) (Item, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	it, ok := q.items[id]
	if !ok {
		return Item{}, false
	}
	return it.clone(), true
}

// Next returns the first Pending item in queue order.
func (q *DownloadQueue) Next() (Item, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, id := range q.order {
		if it := q.items[id]; it.Status == StatusPending {
			return it.clone(), true
		}
	}
	return Item{}, false
}

// All returns copies of every item in queue order.
func (q *DownloadQueue) All() []Item {
	return q.filter(func(*Item) bool { return true })
}

// ByStatus returns copies of the items in status s, in queue order.
func (q *DownloadQueue) ByStatus(s Status) []Item {
	return q.filter(func(it *Item) bool { return it.Status == s })
}

// Stats counts items per status.
func (q *DownloadQueue) Stats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.statsLocked()
}

func (q *DownloadQueue) filter(keep func(*Item) bool) []Item {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]Item, 0, len(q.order))
	for _, id := range q.order {
		if it := q.items[id]; keep(it) {
			out = append(out, it.clone())
		}
	}
	return out
}

func (q *DownloadQueue) update(id string, mutate func(*Item) error) error {
	q.mu.Lock()
	it, ok := q.items[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := mutate(it); err != nil {
		q.mu.Unlock()
		return err
	}
	ev := q.eventLocked(EventUpdate, it)
	listeners := q.snapshotListenersLocked()
	q.mu.Unlock()

	q.dispatch(listeners, ev)
	return nil
}

func (q *DownloadQueue) updateWhere(match func(*Item) bool, mutate func(*Item)) int {
	q.mu.Lock()
	var events []Event
	for _, id := range q.order {
		it := q.items[id]
		if !match(it) {
			continue
		}
		mutate(it)
		events = append(events, q.eventLocked(EventUpdate, it))
	}
	listeners := q.snapshotListenersLocked()
	q.mu.Unlock()

	q.dispatch(listeners, events...)
	return len(events)
}

func (q *DownloadQueue) eventLocked(t EventType, it *Item) Event {
	c := it.clone()
	return Event{Type: t, Item: &c, Stats: q.statsLocked()}
}

func (q *DownloadQueue) statsLocked() Stats {
	s := Stats{Total: len(q.order)}
	for _, id := range q.order {
		switch q.items[id].Status {
		case StatusPending:
			s.Pending++
		case StatusDownloading:
			s.Downloading++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusCancelled:
			s.Cancelled++
		}
	}
	return s
}

func (q *DownloadQueue) snapshotListenersLocked() []Listener {
	out := make([]Listener, len(q.listeners))
	for i, s := range q.listeners {
		out[i] = s.fn
	}
	return out
}

func (q *DownloadQueue) dispatch(listeners []Listener, events ...Event) {
	for _, ev := range events {
		for _, l := range listeners {
			// Each listener gets its own copy of the item.
			delivered := ev
			if ev.Item != nil {
				c := ev.Item.clone()
				delivered.Item = &c
			}
			safeCall(l, delivered)
		}
	}
}

func safeCall(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.L().Errorw("Queue listener panicked", "event", string(ev.Type), "panic", r)
		}
	}()
	l(ev)
}

func transitionError(it *Item, to Status) error {
	return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, it.ID, it.Status, to)
}

// percent rounds half up, matching round(100*current/total).
func percent(current, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*current + total) / (2 * total)
}
