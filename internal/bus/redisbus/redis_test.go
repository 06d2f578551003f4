package redisbus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/vovakirdan/strangerchat-server/internal/core"
)

func newTestBus(t *testing.T, mr *miniredis.Miniredis) *Bus {
	t.Helper()

	bus, err := New(context.Background(), Options{Addr: mr.Addr()}, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestEnvelopesReachEveryInstance(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	first := newTestBus(t, mr)
	second := newTestBus(t, mr)

	got := make(chan core.Envelope, 4)
	for _, b := range []*Bus{first, second} {
		if err := b.Subscribe(ctx, func(env core.Envelope) { got <- env }); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}

	sent := core.Envelope{
		Room:    "r1",
		Kind:    core.EnvelopeDeliver,
		Event:   &core.Event{Kind: core.EventChat, Text: "hi", Sender: "Stranger"},
		Exclude: "c1",
	}
	if err := first.Publish(ctx, sent); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for range 2 {
		select {
		case env := <-got:
			if env.Room != "r1" || env.Kind != core.EnvelopeDeliver || env.Exclude != "c1" || env.Event == nil || env.Event.Text != "hi" {
				t.Fatalf("unexpected envelope: %+v", env)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("envelope not delivered to both instances")
		}
	}
}

func TestPresenceIsShared(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	first := newTestBus(t, mr)
	second := newTestBus(t, mr)

	if err := first.Track(ctx, "c1"); err != nil {
		t.Fatalf("track: %v", err)
	}
	if online, err := second.IsOnline(ctx, "c1"); err != nil || !online {
		t.Fatalf("online = %v, %v; want true", online, err)
	}
	if err := second.Untrack(ctx, "c1"); err != nil {
		t.Fatalf("untrack: %v", err)
	}
	if online, _ := first.IsOnline(ctx, "c1"); online {
		t.Fatalf("client should be offline")
	}
}

func TestRegistryOverRedisClosesRemoteMembers(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	local, err := core.NewRegistry(ctx, newTestBus(t, mr), nil, nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	remote, err := core.NewRegistry(ctx, newTestBus(t, mr), nil, nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	peer := core.NewClient("peer", "", false, 4)
	remote.Join(ctx, "room", peer)

	_ = local.SendToRoom(ctx, "room", &core.Event{Kind: core.EventNotice, Text: core.NoticeDisconnected}, nil)
	_ = local.CloseRoom(ctx, "room", "peer disconnected")

	select {
	case <-peer.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("remote member was not closed")
	}
	select {
	case ev := <-peer.Events:
		if ev.Text != core.NoticeDisconnected {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatalf("notice should be queued before close")
	}
}
