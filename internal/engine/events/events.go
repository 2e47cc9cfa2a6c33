package events

import (
	"encoding/json"
	"errors"
	"time"
)

// RunStartedMsg is sent when a run takes its snapshot of pending items.
type RunStartedMsg struct {
	RunID string
	Items int
	Start time.Time
}

// RunFinishedMsg is sent once per run with the final counts.
type RunFinishedMsg struct {
	RunID     string
	Succeeded int
	Failed    int
	Cancelled int
	Elapsed   time.Duration
}

// ItemQueuedMsg is sent when an item is added to the queue.
type ItemQueuedMsg struct {
	ItemID string
	Title  string
}

// ItemStartedMsg is sent once the item's pages are resolved.
type ItemStartedMsg struct {
	RunID      string
	ItemID     string
	Title      string
	TotalPages int
}

// ItemProgressMsg is sent after every window of pages.
type ItemProgressMsg struct {
	ItemID      string
	CurrentPage int
	TotalPages  int
	Progress    int // 0-100
}

// ItemCompletedMsg signals that an item was written to the sink.
type ItemCompletedMsg struct {
	ItemID   string
	Title    string
	Pages    int // Pages written
	Missing  int // Pages that failed and were left out
	FileSize int64
	Elapsed  time.Duration
}

// ItemCancelledMsg signals that an item stopped because the run was cancelled.
type ItemCancelledMsg struct {
	ItemID string
	Title  string
}

// ItemSkippedMsg signals that an id was left out of the queue because it is
// already in the download history.
type ItemSkippedMsg struct {
	ItemID string
	Reason string
}

// PageRetryMsg is sent before a page or metadata request is retried.
type PageRetryMsg struct {
	ItemID     string
	URL        string
	Attempt    int
	MaxRetries int
	Status     int
	Delay      time.Duration
	Message    string
}

// ItemFailedMsg signals that an item ended in Failed.
type ItemFailedMsg struct {
	ItemID string
	Title  string
	Err    error
}

func (m ItemFailedMsg) MarshalJSON() ([]byte, error) {
	type encoded struct {
		ItemID string `json:"ItemID"`
		Title  string `json:"Title,omitempty"`
		Err    string `json:"Err,omitempty"`
	}

	out := encoded{
		ItemID: m.ItemID,
		Title:  m.Title,
	}
	if m.Err != nil {
		out.Err = m.Err.Error()
	}

	return json.Marshal(out)
}

func (m *ItemFailedMsg) UnmarshalJSON(data []byte) error {
	var aux struct {
		ItemID string          `json:"ItemID"`
		Title  string          `json:"Title"`
		Err    json.RawMessage `json:"Err"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	m.ItemID = aux.ItemID
	m.Title = aux.Title
	m.Err = nil

	if len(aux.Err) == 0 {
		return nil
	}

	var errStr string
	if err := json.Unmarshal(aux.Err, &errStr); err == nil {
		if errStr != "" {
			m.Err = errors.New(errStr)
		}
		return nil
	}

	// Accept non-string payloads (e.g. {}) rather than failing the whole line.
	raw := string(aux.Err)
	if raw != "" && raw != "null" {
		m.Err = errors.New(raw)
	}
	return nil
}

// Name returns a short label for a message, used by the JSON line printer.
func Name(msg any) string {
	switch msg.(type) {
	case RunStartedMsg:
		return "run_started"
	case RunFinishedMsg:
		return "run_finished"
	case ItemQueuedMsg:
		return "queued"
	case ItemStartedMsg:
		return "started"
	case ItemProgressMsg:
		return "progress"
	case ItemCompletedMsg:
		return "completed"
	case ItemFailedMsg:
		return "failed"
	case ItemCancelledMsg:
		return "cancelled"
	case ItemSkippedMsg:
		return "skipped"
	case PageRetryMsg:
		return "retry"
	default:
		return "unknown"
	}
}
