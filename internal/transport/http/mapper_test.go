package http

import (
	"encoding/json"
	"testing"

	"github.com/vovakirdan/strangerchat-server/internal/core"
)

func TestAdminOutboundFromEvent(t *testing.T) {
	tests := []struct {
		name  string
		event *core.Event
		want  string
	}{
		{
			name:  "killed",
			event: &core.Event{Kind: core.EventStatus, Status: core.StatusKilled, Room: "r1"},
			want:  `{"status":"killed","room_id":"r1"}`,
		},
		{
			name:  "all deleted with zero count",
			event: &core.Event{Kind: core.EventStatus, Status: core.StatusAllDeleted},
			want:  `{"status":"all_deleted","count":0}`,
		},
		{
			name:  "invalid keeps action",
			event: &core.Event{Kind: core.EventStatus, Status: core.StatusInvalid, Action: "nope"},
			want:  `{"status":"invalid","action":"nope"}`,
		},
		{
			name:  "empty history",
			event: &core.Event{Kind: core.EventHistory, Room: "r1"},
			want:  `{"type":"history","room_id":"r1","messages":[]}`,
		},
		{
			name:  "notice",
			event: &core.Event{Kind: core.EventNotice, Room: "r1", Text: core.NoticeConnected},
			want:  `{"message":"You are now connected!"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, ok := adminOutboundFromEvent(tt.event)
			if !ok {
				t.Fatalf("event was not mapped")
			}
			raw, err := json.Marshal(out)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(raw) != tt.want {
				t.Fatalf("got %s, want %s", raw, tt.want)
			}
		})
	}
}

func TestChatOutboundFromEvent(t *testing.T) {
	out, ok := chatOutboundFromEvent(&core.Event{Kind: core.EventWaiting, Room: "r1"})
	if !ok || out.Status != "waiting" || out.Room != "r1" {
		t.Fatalf("unexpected waiting frame: %+v", out)
	}

	out, ok = chatOutboundFromEvent(&core.Event{Kind: core.EventChat, Room: "r1", Text: "hi", Sender: "Stranger"})
	if !ok || out.Message != "hi" || out.SenderName != "Stranger" {
		t.Fatalf("unexpected chat frame: %+v", out)
	}

	if _, ok := chatOutboundFromEvent(&core.Event{Kind: core.EventStatus, Status: core.StatusKilled}); ok {
		t.Fatalf("status events must not reach participants")
	}
}
