package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagepack/pagepack/internal/download"
	"github.com/pagepack/pagepack/internal/engine/events"
)

func TestFormatEvent(t *testing.T) {
	cases := []struct {
		msg  any
		want string
	}{
		{events.ItemQueuedMsg{ItemID: "1", Title: "Gallery 1"}, "Queued: Gallery 1 [1]"},
		{events.ItemStartedMsg{ItemID: "1", Title: "Alpha", TotalPages: 3}, "Started: Alpha [1] (3 pages)"},
		{events.ItemCompletedMsg{ItemID: "1", Title: "Alpha", Pages: 2, Missing: 1, FileSize: 2048, Elapsed: 1500 * time.Millisecond},
			"Completed: Alpha [1] 2 pages, 2.0 kB (in 1.5s), 1 missing"},
		{events.ItemFailedMsg{ItemID: "2", Title: "Beta", Err: errors.New("資源不存在")}, "Failed: Beta [2]: 資源不存在"},
		{events.ItemCancelledMsg{ItemID: "3", Title: "Gamma"}, "Cancelled: Gamma [3]"},
		{events.ItemSkippedMsg{ItemID: "4", Reason: "already downloaded"}, "Skipped: [4] (already downloaded)"},
		{events.PageRetryMsg{ItemID: "5", Attempt: 1, MaxRetries: 3, Delay: time.Second, Message: "伺服器錯誤"}, "Retry 1/3 in 1s: 伺服器錯誤 [5]"},
		{events.ItemProgressMsg{ItemID: "1"}, ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, formatEvent(tc.msg))
	}
}

func TestEventPrinter_Lines(t *testing.T) {
	var buf bytes.Buffer
	p := newEventPrinter(&buf, false)
	p.print(events.ItemQueuedMsg{ItemID: "1", Title: "Gallery 1"})
	p.print(events.ItemProgressMsg{ItemID: "1", CurrentPage: 1})
	p.summary(download.Summary{Succeeded: 1, Failed: 2, Cancelled: 3}, 1, "/tmp/a.zip")

	assert.Equal(t, "Queued: Gallery 1 [1]\n"+
		"完成 1 本，失敗 2 本，取消 3 本\n"+
		"Skipped 1 already downloaded\n"+
		"Saved to /tmp/a.zip\n", buf.String())
}

func TestEventPrinter_JSON(t *testing.T) {
	var buf bytes.Buffer
	p := newEventPrinter(&buf, true)
	p.print(events.ItemFailedMsg{ItemID: "2", Title: "Beta", Err: errors.New("boom")})
	p.summary(download.Summary{Succeeded: 1}, 0, "")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "failed", first.Event)

	var failed events.ItemFailedMsg
	require.NoError(t, json.Unmarshal(first.Data, &failed))
	assert.Equal(t, "2", failed.ItemID)
	assert.EqualError(t, failed.Err, "boom")

	var last struct {
		Event string         `json:"event"`
		Data  map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &last))
	assert.Equal(t, "summary", last.Event)
	assert.Equal(t, "完成 1 本，失敗 0 本，取消 0 本", last.Data["message"])
}
