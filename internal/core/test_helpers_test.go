package core

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/strangerchat-server/internal/store/sqlite"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustStatus(t *testing.T, c *Client, status string) *Event {
	t.Helper()

	ev := mustEvent(t, c.Events, EventStatus)
	if ev.Status != status {
		t.Fatalf("expected status %q, got %+v", status, ev)
	}
	return ev
}

func mustClosed(t *testing.T, c *Client) {
	t.Helper()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("client %s was not closed", c.ID)
	}
}

func mustOpen(t *testing.T, c *Client) {
	t.Helper()

	select {
	case <-c.Done():
		t.Fatalf("client %s was closed: %s", c.ID, c.CloseReason())
	default:
	}
}

// drain returns every queued event without blocking.
func drain(c *Client) []*Event {
	var events []*Event
	for {
		select {
		case ev := <-c.Events:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func countNotices(events []*Event, text string) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == EventNotice && ev.Text == text {
			n++
		}
	}
	return n
}

func newTestHub(t *testing.T, opts Options) (*Hub, *sqlite.SQLiteStore) {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	registry, err := NewRegistry(context.Background(), NewLocalBus(), nil, nil)
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}
	return NewHub(st, registry, opts, nil, nil), st
}

func connect(t *testing.T, hub *Hub, id string) *Session {
	t.Helper()

	s := hub.NewSession(NewClient(id, "", false, 32))
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect %s: %v", id, err)
	}
	return s
}

func connectAdmin(hub *Hub, operator string) *AdminSession {
	return hub.NewAdminSession(NewClient("admin-"+operator, AdminName, true, 32), operator)
}
