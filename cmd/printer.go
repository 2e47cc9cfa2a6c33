package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/pagepack/pagepack/internal/download"
	"github.com/pagepack/pagepack/internal/engine/events"
)

// eventPrinter writes run events as human readable lines or JSON lines.
type eventPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	jsonOut bool
	enc     *json.Encoder
}

func newEventPrinter(w io.Writer, jsonOut bool) *eventPrinter {
	return &eventPrinter{w: w, jsonOut: jsonOut, enc: json.NewEncoder(w)}
}

type jsonLine struct {
	Event string `json:"event"`
	Time  string `json:"time"`
	Data  any    `json:"data,omitempty"`
}

func (p *eventPrinter) print(msg any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.jsonOut {
		_ = p.enc.Encode(jsonLine{
			Event: events.Name(msg),
			Time:  time.Now().UTC().Format(time.RFC3339Nano),
			Data:  msg,
		})
		return
	}

	if line := formatEvent(msg); line != "" {
		fmt.Fprintln(p.w, line)
	}
}

// notice prints an out-of-band message. In JSON mode it becomes a
// "notice" event.
func (p *eventPrinter) notice(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.jsonOut {
		_ = p.enc.Encode(jsonLine{Event: "notice", Time: time.Now().UTC().Format(time.RFC3339Nano), Data: text})
		return
	}
	fmt.Fprintln(p.w, text)
}

// summary prints the run counts; skipped ids never entered the queue.
func (p *eventPrinter) summary(sum download.Summary, skipped int, archivePath string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.jsonOut {
		_ = p.enc.Encode(jsonLine{
			Event: "summary",
			Time:  time.Now().UTC().Format(time.RFC3339Nano),
			Data: map[string]any{
				"succeeded": sum.Succeeded,
				"failed":    sum.Failed,
				"cancelled": sum.Cancelled,
				"skipped":   skipped,
				"archive":   archivePath,
				"message":   sum.String(),
			},
		})
		return
	}

	fmt.Fprintln(p.w, sum.String())
	if skipped > 0 {
		fmt.Fprintf(p.w, "Skipped %d already downloaded\n", skipped)
	}
	if archivePath != "" {
		fmt.Fprintf(p.w, "Saved to %s\n", archivePath)
	}
}

func formatEvent(msg any) string {
	switch m := msg.(type) {
	case events.ItemQueuedMsg:
		return fmt.Sprintf("Queued: %s [%s]", m.Title, m.ItemID)
	case events.ItemStartedMsg:
		return fmt.Sprintf("Started: %s [%s] (%d pages)", m.Title, m.ItemID, m.TotalPages)
	case events.ItemCompletedMsg:
		line := fmt.Sprintf("Completed: %s [%s] %d pages, %s (in %s)",
			m.Title, m.ItemID, m.Pages, humanize.Bytes(uint64(max(m.FileSize, 0))), m.Elapsed.Round(time.Millisecond))
		if m.Missing > 0 {
			line += fmt.Sprintf(", %d missing", m.Missing)
		}
		return line
	case events.ItemFailedMsg:
		return fmt.Sprintf("Failed: %s [%s]: %v", m.Title, m.ItemID, m.Err)
	case events.ItemCancelledMsg:
		return fmt.Sprintf("Cancelled: %s [%s]", m.Title, m.ItemID)
	case events.ItemSkippedMsg:
		return fmt.Sprintf("Skipped: [%s] (%s)", m.ItemID, m.Reason)
	case events.PageRetryMsg:
		return fmt.Sprintf("Retry %d/%d in %s: %s [%s]", m.Attempt, m.MaxRetries, m.Delay.Round(time.Millisecond), m.Message, m.ItemID)
	default:
		// Progress and run boundaries are only interesting to the TUI
		return ""
	}
}
