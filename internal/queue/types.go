package queue

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a queue item.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether no further transition is possible without Remove or Retry.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

var (
	ErrNotFound          = errors.New("queue item not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Item is one unit of work, typically a gallery.
type Item struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"` // 0-100
	CurrentPage int        `json:"current_page"`
	TotalPages  int        `json:"total_pages"`
	Error       string     `json:"error,omitempty"` // Set only while Failed
	RetryCount  int        `json:"retry_count"`     // Times the item entered Failed
	FileSize    int64      `json:"file_size,omitempty"`
	AddedAt     time.Time  `json:"added_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (it *Item) clone() Item {
	c := *it
	if it.StartedAt != nil {
		t := *it.StartedAt
		c.StartedAt = &t
	}
	if it.CompletedAt != nil {
		t := *it.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

// CompletionMeta carries what the sink learned about a completed item.
type CompletionMeta struct {
	FileSize int64
}

// Stats counts items per status.
type Stats struct {
	Total       int `json:"total"`
	Pending     int `json:"pending"`
	Downloading int `json:"downloading"`
	Completed   int `json:"completed"`
	Failed      int `json:"failed"`
	Cancelled   int `json:"cancelled"`
}

// EventType names a queue mutation.
type EventType string

const (
	EventAdd     EventType = "add"
	EventRemove  EventType = "remove"
	EventUpdate  EventType = "update"
	EventClear   EventType = "clear"
	EventReorder EventType = "reorder"
)

// Event is delivered to listeners after every mutation.
type Event struct {
	Type  EventType
	Item  *Item // Copy of the affected item; nil for EventClear
	From  int   // Reorder only
	To    int   // Reorder only
	Stats Stats // Counts right after the mutation
}

// Listener receives queue events. It must not assume it runs on any
// particular goroutine.
type Listener func(Event)
