package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/strangerchat-server/internal/proto"
)

// ws_smoke pairs two anonymous participants, exchanges a message and
// checks that the partner is told about the disconnect.
func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws/chat/", "chat WebSocket address")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	a, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial a: %w", err)
	}
	defer a.Close(websocket.StatusNormalClosure, "bye")

	waiting, err := read(ctx, a, "a")
	if err != nil {
		return err
	}
	if waiting.Status != proto.OutboundStatusWaiting {
		return fmt.Errorf("expected waiting frame, got %+v", waiting)
	}

	b, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial b: %w", err)
	}
	for name, conn := range map[string]*websocket.Conn{"a": a, "b": b} {
		if _, err := read(ctx, conn, name); err != nil {
			return err
		}
	}

	if err := wsjson.Write(ctx, a, proto.ChatInbound{Message: *text}); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	relayed, err := read(ctx, b, "b")
	if err != nil {
		return err
	}
	if relayed.Message != *text {
		return fmt.Errorf("expected relay of %q, got %+v", *text, relayed)
	}

	b.Close(websocket.StatusNormalClosure, "bye")
	if _, err := read(ctx, a, "a"); err != nil {
		return err
	}

	_, _, err = a.Read(ctx)
	if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure {
		return errors.Join(fmt.Errorf("expected normal closure, got %v", status), err)
	}
	fmt.Printf("smoke ok: room=%s\n", waiting.Room)
	return nil
}

func read(ctx context.Context, conn *websocket.Conn, name string) (proto.ChatOutbound, error) {
	var out proto.ChatOutbound
	if err := wsjson.Read(ctx, conn, &out); err != nil {
		return out, fmt.Errorf("read %s: %w", name, err)
	}
	fmt.Printf("%s <- status=%q room=%q message=%q sender=%q\n", name, out.Status, out.Room, out.Message, out.SenderName)
	return out, nil
}
