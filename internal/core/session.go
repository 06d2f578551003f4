package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/strangerchat-server/internal/store"
)

// Session is the connection-scoped state of one ordinary participant.
type Session struct {
	hub    *Hub
	client *Client
	log    zerolog.Logger

	mu       sync.Mutex
	room     string
	role     Role
	location json.RawMessage
	loggedIn bool

	disconnect sync.Once
}

// Client returns the session's client.
func (s *Session) Client() *Client { return s.client }

// Room returns the assigned room token, or "" before matchmaking.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Role returns which side of the room this session is on.
func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// Location returns the last location reported by the client.
func (s *Session) Location() (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location, s.loggedIn
}

// Connect marks the client online and runs matchmaking.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.hub.registry.SetOnline(ctx, s.client); err != nil {
		return fmt.Errorf("mark online: %w", err)
	}

	a, err := s.hub.matchmaker.Match(ctx, s.client)
	if err != nil {
		return fmt.Errorf("matchmaking: %w", err)
	}

	s.mu.Lock()
	s.room = a.Room.Token
	s.role = a.Role
	s.mu.Unlock()

	s.log = s.log.With().Str("room", a.Room.Token).Str("role", a.Role.String()).Logger()
	s.log.Info().Msg("session assigned")
	return nil
}

// UpdateLocation keeps the latest location in memory and persists it on
// the participant's side of the room.
func (s *Session) UpdateLocation(ctx context.Context, location json.RawMessage, loggedIn bool) error {
	s.mu.Lock()
	s.location = location
	s.loggedIn = loggedIn
	room := s.room
	s.mu.Unlock()

	if room == "" {
		return nil
	}

	err := s.hub.store.UpdateLocation(ctx, room, s.client.ID, location)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrRoomNotFound), errors.Is(err, store.ErrRoomClosed), errors.Is(err, store.ErrNotParticipant):
		s.log.Debug().Err(err).Msg("location update dropped")
		return nil
	default:
		return fmt.Errorf("update location: %w", err)
	}
}

// SendMessage persists text and relays it to the other room members.
// Empty text and messages to vanished or closed rooms are dropped.
func (s *Session) SendMessage(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	room := s.Room()
	if room == "" {
		return nil
	}

	if _, err := s.hub.store.AppendMessage(ctx, room, s.client.ID, text); err != nil {
		if errors.Is(err, store.ErrRoomNotFound) || errors.Is(err, store.ErrRoomClosed) || errors.Is(err, store.ErrEmptyMessage) {
			s.log.Debug().Err(err).Msg("message dropped")
			return nil
		}
		return fmt.Errorf("append message: %w", err)
	}
	s.hub.metrics.MessageStored()

	event := &Event{Kind: EventChat, Room: room, Text: text, Sender: s.client.Name}
	if err := s.hub.registry.SendToRoom(ctx, room, event, s.client); err != nil {
		return fmt.Errorf("relay message: %w", err)
	}
	return nil
}

// Disconnect releases the session. It runs once; later calls are no-ops.
// Leaving a waiting room does not touch it. Leaving a paired room closes
// it, and only the caller whose deactivation succeeded notifies the peer,
// so the peer sees exactly one notice even if both sides leave at once.
func (s *Session) Disconnect(ctx context.Context) {
	s.disconnect.Do(func() {
		s.disconnectOnce(ctx)
	})
}

func (s *Session) disconnectOnce(ctx context.Context) {
	if err := s.hub.registry.SetOffline(ctx, s.client); err != nil {
		s.log.Warn().Err(err).Msg("failed to clear presence")
	}

	room := s.Room()
	if room == "" {
		return
	}
	s.hub.registry.Leave(ctx, room, s.client)

	current, err := s.hub.store.GetRoom(ctx, room)
	if err != nil {
		s.log.Debug().Err(err).Msg("room gone on disconnect")
		return
	}
	if current.Status() != store.RoomStatusActive {
		return
	}

	changed, err := s.hub.store.Deactivate(ctx, room)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to deactivate room")
		return
	}
	if !changed {
		return
	}

	if err := s.hub.registry.SendToRoom(ctx, room, noticeEvent(room, NoticeDisconnected), nil); err != nil {
		s.log.Warn().Err(err).Msg("failed to notify peer")
	}
	if err := s.hub.registry.CloseRoom(ctx, room, "peer disconnected"); err != nil {
		s.log.Warn().Err(err).Msg("failed to close peer")
	}
	s.log.Info().Msg("room closed after disconnect")
}
