package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/strangerchat-server/internal/store"
)

// AdminSession is the connection-scoped state of one operator.
type AdminSession struct {
	hub      *Hub
	client   *Client
	operator string
	log      zerolog.Logger

	mu   sync.Mutex
	room string
}

// Client returns the operator's client.
func (a *AdminSession) Client() *Client { return a.client }

// Subscribed returns the room the operator currently observes.
func (a *AdminSession) Subscribed() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.room
}

// Handle executes one command. Failures that concern the command are
// reported to the operator as status replies; the returned error is kept
// for infrastructure failures.
func (a *AdminSession) Handle(ctx context.Context, cmd AdminCommand) error {
	log := a.log.With().Str("action", string(cmd.Action)).Str("room", cmd.RoomID).Logger()

	var err error
	switch cmd.Action {
	case ActionSubscribeRoom:
		err = a.subscribe(ctx, cmd.RoomID)
	case ActionMessage:
		err = a.message(ctx, cmd.Message)
	case ActionKillRoom:
		err = a.kill(ctx, cmd.RoomID)
	case ActionConnectToWaiting:
		err = a.connectToWaiting(ctx, cmd.RoomID)
	case ActionDeleteRoom:
		err = a.deleteRoom(ctx, cmd.RoomID)
	case ActionDeleteAll:
		err = a.deleteAll(ctx)
	default:
		log.Debug().Msg("invalid admin action")
		return a.reply(&Event{Kind: EventStatus, Status: StatusInvalid, Action: string(cmd.Action)})
	}
	if err != nil {
		log.Error().Err(err).Msg("admin action failed")
		return err
	}

	a.hub.metrics.AdminAction(string(cmd.Action))
	log.Info().Msg("admin action handled")
	return nil
}

// Disconnect leaves the observed room.
func (a *AdminSession) Disconnect(ctx context.Context) {
	a.mu.Lock()
	room := a.room
	a.room = ""
	a.mu.Unlock()

	if room != "" {
		a.hub.registry.Leave(ctx, room, a.client)
	}
}

func (a *AdminSession) subscribe(ctx context.Context, token string) error {
	if token == "" {
		return a.failed(token)
	}
	if _, err := a.hub.store.GetRoom(ctx, token); err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			return a.failed(token)
		}
		return err
	}

	a.switchRoom(ctx, token)
	if err := a.reply(statusEvent(StatusSubscribed, token)); err != nil {
		return err
	}
	return a.sendHistory(ctx, token)
}

func (a *AdminSession) message(ctx context.Context, text string) error {
	room := a.Subscribed()
	if room == "" {
		return a.failed("")
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	if _, err := a.hub.store.AppendMessage(ctx, room, store.AdminIdentifier(a.operator), text); err != nil {
		if errors.Is(err, store.ErrRoomNotFound) || errors.Is(err, store.ErrRoomClosed) {
			return a.failed(room)
		}
		return fmt.Errorf("append message: %w", err)
	}
	a.hub.metrics.MessageStored()

	var exclude *Client
	if !a.hub.opts.AdminEcho {
		exclude = a.client
	}
	event := &Event{Kind: EventChat, Room: room, Text: text, Sender: AdminName}
	return a.hub.registry.SendToRoom(ctx, room, event, exclude)
}

func (a *AdminSession) kill(ctx context.Context, token string) error {
	if ok, err := a.exists(ctx, token); err != nil || !ok {
		if err != nil {
			return err
		}
		return a.failed(token)
	}

	if err := a.terminate(ctx, token, NoticeKilled, "killed by administrator"); err != nil {
		return err
	}
	if _, err := a.hub.store.Deactivate(ctx, token); err != nil {
		return fmt.Errorf("deactivate room: %w", err)
	}
	// Sweep a claimant that joined between the first close and the update.
	if err := a.terminate(ctx, token, NoticeKilled, "killed by administrator"); err != nil {
		return err
	}
	return a.reply(statusEvent(StatusKilled, token))
}

func (a *AdminSession) connectToWaiting(ctx context.Context, token string) error {
	if token == "" {
		return a.failed(token)
	}

	room, err := a.hub.store.Claim(ctx, token, store.AdminIdentifier(a.operator))
	if errors.Is(err, store.ErrClaimConflict) || errors.Is(err, store.ErrRoomNotFound) {
		return a.failed(token)
	}
	if err != nil {
		return fmt.Errorf("claim room: %w", err)
	}

	a.switchRoom(ctx, room.Token)
	if err := a.hub.registry.SendToRoom(ctx, room.Token, noticeEvent(room.Token, NoticeConnected), nil); err != nil {
		return err
	}
	a.hub.metrics.RoomMatched()
	return a.sendHistory(ctx, room.Token)
}

func (a *AdminSession) deleteRoom(ctx context.Context, token string) error {
	if ok, err := a.exists(ctx, token); err != nil || !ok {
		if err != nil {
			return err
		}
		return a.failed(token)
	}

	if err := a.terminate(ctx, token, NoticeDeleted, "deleted by administrator"); err != nil {
		return err
	}
	if err := a.hub.store.Delete(ctx, token); err != nil && !errors.Is(err, store.ErrRoomNotFound) {
		return fmt.Errorf("delete room: %w", err)
	}
	if err := a.terminate(ctx, token, NoticeDeleted, "deleted by administrator"); err != nil {
		return err
	}
	return a.reply(statusEvent(StatusDeleted, token))
}

func (a *AdminSession) deleteAll(ctx context.Context) error {
	tokens, err := a.hub.store.ListAllTokens(ctx)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}
	for _, token := range tokens {
		if err := a.terminate(ctx, token, NoticeDeleted, "deleted by administrator"); err != nil {
			return err
		}
	}

	deleted, err := a.hub.store.DeleteAll(ctx)
	if err != nil {
		return fmt.Errorf("delete all rooms: %w", err)
	}
	// Rooms created or joined after the listing are closed here.
	for _, token := range deleted {
		if err := a.terminate(ctx, token, NoticeDeleted, "deleted by administrator"); err != nil {
			return err
		}
	}
	return a.reply(&Event{Kind: EventStatus, Status: StatusAllDeleted, Count: int64(len(deleted))})
}

// terminate notifies the room and closes its members. Callers run it before
// touching the record, so members always get the final notice, and again
// after, so members that joined in between are closed too. The second run
// finds only those late members.
func (a *AdminSession) terminate(ctx context.Context, token, notice, reason string) error {
	if err := a.hub.registry.SendToRoom(ctx, token, noticeEvent(token, notice), a.client); err != nil {
		return err
	}
	return a.hub.registry.CloseRoom(ctx, token, reason)
}

func (a *AdminSession) exists(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	_, err := a.hub.store.GetRoom(ctx, token)
	if errors.Is(err, store.ErrRoomNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (a *AdminSession) switchRoom(ctx context.Context, token string) {
	a.mu.Lock()
	prev := a.room
	a.room = token
	a.mu.Unlock()

	if prev != "" && prev != token {
		a.hub.registry.Leave(ctx, prev, a.client)
	}
	a.hub.registry.Join(ctx, token, a.client)
}

func (a *AdminSession) sendHistory(ctx context.Context, token string) error {
	messages, err := a.hub.store.ListMessages(ctx, token, 0, store.OrderAsc)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}
	entries := make([]HistoryEntry, 0, len(messages))
	for _, m := range messages {
		entries = append(entries, HistoryEntry{Sender: m.Sender, Content: m.Content, Timestamp: m.Timestamp})
	}
	return a.reply(&Event{Kind: EventHistory, Room: token, Messages: entries})
}

func (a *AdminSession) failed(token string) error {
	return a.reply(statusEvent(StatusFailed, token))
}

func (a *AdminSession) reply(event *Event) error {
	if err := a.client.Send(event); err != nil {
		return fmt.Errorf("reply to operator: %w", err)
	}
	return nil
}
