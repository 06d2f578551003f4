package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/vovakirdan/strangerchat-server/internal/store"
)

func newTestStore(t *testing.T) *PostgresStore {
	t.Helper()

	url := os.Getenv("STRANGERCHAT_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("STRANGERCHAT_TEST_POSTGRES_URL not set")
	}

	ctx := context.Background()
	s, err := New(ctx, url)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if _, err := s.DeleteAll(ctx); err != nil {
		t.Fatalf("failed to reset: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.DeleteAll(context.Background())
		_ = s.Close()
	})
	return s
}

func TestClaimHasExactlyOneWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	room, err := s.CreateWaiting(ctx, "", "alice")
	if err != nil {
		t.Fatalf("create waiting: %v", err)
	}

	const claimants = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := range claimants {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := s.Claim(ctx, room.Token, id)
			switch {
			case err == nil:
				mu.Lock()
				winners++
				mu.Unlock()
			case !errors.Is(err, store.ErrClaimConflict):
				t.Errorf("unexpected claim error: %v", err)
			}
		}(string(rune('a' + i)))
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestAppendMessageAndCascadeDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	room, _ := s.CreateWaiting(ctx, "", "alice")
	for _, text := range []string{"one", "two", "three"} {
		if _, err := s.AppendMessage(ctx, room.Token, "alice", text); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	msgs, err := s.ListMessages(ctx, room.Token, 0, store.OrderAsc)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 3 || msgs[0].Content != "one" || msgs[2].Content != "three" {
		t.Fatalf("unexpected transcript: %+v", msgs)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Timestamp.Before(msgs[i-1].Timestamp) {
			t.Fatalf("timestamp decreased at %d", i)
		}
	}

	if changed, err := s.Deactivate(ctx, room.Token); err != nil || !changed {
		t.Fatalf("deactivate = %v, %v", changed, err)
	}
	if _, err := s.AppendMessage(ctx, room.Token, "alice", "late"); !errors.Is(err, store.ErrRoomClosed) {
		t.Fatalf("expected ErrRoomClosed, got %v", err)
	}

	if err := s.Delete(ctx, room.Token); err != nil {
		t.Fatalf("delete: %v", err)
	}
	msgs, _ = s.ListMessages(ctx, room.Token, 0, store.OrderAsc)
	if len(msgs) != 0 {
		t.Fatalf("expected cascade delete, got %d messages", len(msgs))
	}
}

func TestCountRooms(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _ = s.CreateWaiting(ctx, "", "a")
	active, _ := s.CreateWaiting(ctx, "", "b")
	_, _ = s.Claim(ctx, active.Token, "c")

	counts, err := s.CountRooms(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts != (store.RoomCounts{Waiting: 1, Active: 1}) {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}
