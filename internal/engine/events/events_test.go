package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestItemFailedMsg_MarshalJSON(t *testing.T) {
	msg := ItemFailedMsg{ItemID: "177013", Title: "Title", Err: errors.New("HTTP 429: 請求過於頻繁，請稍後再試")}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]string
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded["Err"] != "HTTP 429: 請求過於頻繁，請稍後再試" {
		t.Errorf("Err = %q", decoded["Err"])
	}
	if decoded["ItemID"] != "177013" {
		t.Errorf("ItemID = %q", decoded["ItemID"])
	}
}

func TestItemFailedMsg_NilErr(t *testing.T) {
	data, err := json.Marshal(ItemFailedMsg{ItemID: "1"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"ItemID":"1"}` {
		t.Errorf("unexpected JSON: %s", data)
	}
}

func TestItemFailedMsg_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"string error", `{"ItemID":"1","Err":"boom"}`, "boom"},
		{"empty string", `{"ItemID":"1","Err":""}`, ""},
		{"missing", `{"ItemID":"1"}`, ""},
		{"null", `{"ItemID":"1","Err":null}`, ""},
		{"object payload", `{"ItemID":"1","Err":{}}`, "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg ItemFailedMsg
			if err := json.Unmarshal([]byte(tt.input), &msg); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if msg.ItemID != "1" {
				t.Errorf("ItemID = %q", msg.ItemID)
			}
			got := ""
			if msg.Err != nil {
				got = msg.Err.Error()
			}
			if got != tt.wantErr {
				t.Errorf("Err = %q, want %q", got, tt.wantErr)
			}
		})
	}
}

func TestMessages_ChannelCommunication(t *testing.T) {
	ch := make(chan any, 4)
	ch <- RunStartedMsg{RunID: "r", Items: 2, Start: time.Now()}
	ch <- ItemProgressMsg{ItemID: "a", CurrentPage: 5, TotalPages: 12, Progress: 42}
	ch <- ItemCompletedMsg{ItemID: "a", Pages: 12}
	ch <- RunFinishedMsg{RunID: "r", Succeeded: 1}
	close(ch)

	var names []string
	for msg := range ch {
		names = append(names, Name(msg))
	}
	want := []string{"run_started", "progress", "completed", "run_finished"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("names = %v, want %v", names, want)
	}
}

func TestMessageTypes_AreDistinct(t *testing.T) {
	messages := []any{
		RunStartedMsg{}, RunFinishedMsg{}, ItemQueuedMsg{}, ItemStartedMsg{},
		ItemProgressMsg{}, ItemCompletedMsg{}, ItemFailedMsg{}, ItemCancelledMsg{},
		ItemSkippedMsg{}, PageRetryMsg{},
	}

	names := make(map[string]bool)
	for _, msg := range messages {
		name := Name(msg)
		if name == "unknown" {
			t.Errorf("%T has no name", msg)
		}
		if names[name] {
			t.Errorf("Duplicate name %q for %T", name, msg)
		}
		names[name] = true
	}

	if Name(42) != "unknown" {
		t.Error("non-message should be unknown")
	}
}
