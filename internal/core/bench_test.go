package core

import (
	"context"
	"fmt"
	"testing"
)

func benchmarkRoomBroadcast(b *testing.B, recipients int) {
	ctx := context.Background()

	registry, err := NewRegistry(ctx, NewLocalBus(), nil, nil)
	if err != nil {
		b.Fatalf("registry: %v", err)
	}

	sender := NewClient("sender", "", false, 1)
	registry.Join(ctx, "bench", sender)

	clients := make([]*Client, 0, recipients)
	for i := range recipients {
		c := NewClient(fmt.Sprintf("c%d", i), "", false, 64)
		registry.Join(ctx, "bench", c)
		clients = append(clients, c)
	}

	// Drain events for all but the first recipient to avoid channel backpressure.
	target := clients[0]
	for _, c := range clients[1:] {
		go func(cl *Client) {
			for {
				select {
				case <-cl.Events:
				case <-cl.Done():
					return
				}
			}
		}(c)
	}
	defer func() {
		for _, c := range clients {
			c.Close("bench done")
		}
	}()

	event := &Event{Kind: EventChat, Room: "bench", Text: "payload"}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = registry.SendToRoom(ctx, "bench", event, sender)
		<-target.Events
	}
}

func BenchmarkRoomBroadcast_10(b *testing.B)  { benchmarkRoomBroadcast(b, 10) }
func BenchmarkRoomBroadcast_100(b *testing.B) { benchmarkRoomBroadcast(b, 100) }
func BenchmarkRoomBroadcast_500(b *testing.B) { benchmarkRoomBroadcast(b, 500) }
