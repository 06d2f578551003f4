package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/strangerchat-server/internal/metrics"
	"github.com/vovakirdan/strangerchat-server/internal/store"
)

// DefaultClaimAttempts bounds matchmaking retry loops when not configured.
const DefaultClaimAttempts = 5

// Role tells which side of a room a participant is on.
type Role int

const (
	RoleNone Role = iota
	// RoleA created the room and waited.
	RoleA
	// RoleB claimed a waiting room.
	RoleB
)

func (r Role) String() string {
	switch r {
	case RoleA:
		return "a"
	case RoleB:
		return "b"
	default:
		return "none"
	}
}

// Assignment is the outcome of matchmaking.
type Assignment struct {
	Room *store.Room
	Role Role
}

// Matchmaker pairs arriving clients through the room store. The store's
// conditional claim is the only synchronization point, so any number of
// server instances can share one store.
type Matchmaker struct {
	store    store.RoomStore
	registry *Registry
	attempts int
	log      *zerolog.Logger
	metrics  *metrics.Metrics
}

// NewMatchmaker builds a matchmaker.
func NewMatchmaker(st store.RoomStore, registry *Registry, attempts int, logger *zerolog.Logger, m *metrics.Metrics) *Matchmaker {
	if attempts <= 0 {
		attempts = DefaultClaimAttempts
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Matchmaker{store: st, registry: registry, attempts: attempts, log: logger, metrics: m}
}

// Match places c in a room. The client is a member of the room's group
// when Match returns. Every room c waits in is announced with a waiting
// event, so the last one names the room c ends up in; a pairing
// broadcasts the connected notice to the room.
func (m *Matchmaker) Match(ctx context.Context, c *Client) (*Assignment, error) {
	for attempt := 0; ; attempt++ {
		a, err := m.claimOldest(ctx, c)
		if err != nil || a != nil {
			return a, err
		}

		room, err := m.createWaiting(ctx, c)
		if err != nil {
			return nil, err
		}

		if attempt+1 >= m.attempts {
			return &Assignment{Room: room, Role: RoleA}, nil
		}

		a, err = m.reconcile(ctx, c, room)
		if err != nil || a != nil {
			return a, err
		}
	}
}

// claimOldest tries to claim the oldest waiting room. It returns nil
// without error when there is nothing left to claim.
func (m *Matchmaker) claimOldest(ctx context.Context, c *Client) (*Assignment, error) {
	for range m.attempts {
		room, err := m.store.FindOldestWaiting(ctx)
		if errors.Is(err, store.ErrRoomNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("find waiting room: %w", err)
		}
		if room.ParticipantA == c.ID {
			return nil, nil
		}

		a, err := m.claim(ctx, c, room.Token)
		if err != nil || a != nil {
			return a, err
		}
	}
	return nil, nil
}

// claim attempts to become participant B of token. A lost race or a
// room whose creator has gone away yields nil without error.
func (m *Matchmaker) claim(ctx context.Context, c *Client, token string) (*Assignment, error) {
	room, err := m.store.Claim(ctx, token, c.ID)
	if errors.Is(err, store.ErrClaimConflict) || errors.Is(err, store.ErrRoomNotFound) {
		m.metrics.ClaimConflict()
		m.log.Debug().Str("room", token).Str("client_id", c.ID).Msg("claim lost")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim room: %w", err)
	}

	m.registry.Join(ctx, room.Token, c)

	// An admin may have closed or deleted the room between the claim and
	// the join, after its members were swept. Re-read it now that we can
	// be reached through the group.
	current, err := m.store.GetRoom(ctx, room.Token)
	if err != nil && !errors.Is(err, store.ErrRoomNotFound) {
		m.registry.Leave(ctx, room.Token, c)
		return nil, fmt.Errorf("reload claimed room: %w", err)
	}
	if err != nil || current.Status() != store.RoomStatusActive {
		m.registry.Leave(ctx, room.Token, c)
		m.metrics.ClaimConflict()
		m.log.Debug().Str("room", room.Token).Str("client_id", c.ID).Msg("claimed room closed before join")
		return nil, nil
	}

	online, err := m.registry.IsOnline(ctx, room.ParticipantA)
	if err != nil {
		m.log.Warn().Err(err).Str("room", room.Token).Msg("presence check failed, assuming online")
		online = true
	}
	if !online {
		m.registry.Leave(ctx, room.Token, c)
		if _, err := m.store.Deactivate(ctx, room.Token); err != nil {
			return nil, fmt.Errorf("deactivate stale room: %w", err)
		}
		m.metrics.StaleRoom()
		m.log.Info().Str("room", room.Token).Msg("dropped waiting room of departed participant")
		return nil, nil
	}

	if err := m.registry.SendToRoom(ctx, room.Token, noticeEvent(room.Token, NoticeConnected), nil); err != nil {
		m.log.Warn().Err(err).Str("room", room.Token).Msg("failed to announce pairing")
	}
	m.metrics.RoomMatched()
	m.log.Info().Str("room", room.Token).Str("client_id", c.ID).Msg("participants paired")
	return &Assignment{Room: room, Role: RoleB}, nil
}

// createWaiting joins the group and queues the waiting event before the
// room becomes visible, so a fast claimant's connected notice always
// arrives after it and is never missed.
func (m *Matchmaker) createWaiting(ctx context.Context, c *Client) (*store.Room, error) {
	token := store.NewToken()
	m.registry.Join(ctx, token, c)

	if err := c.Send(&Event{Kind: EventWaiting, Room: token}); err != nil {
		m.registry.Leave(ctx, token, c)
		return nil, fmt.Errorf("send waiting status: %w", err)
	}

	room, err := m.store.CreateWaiting(ctx, token, c.ID)
	if err != nil {
		m.registry.Leave(ctx, token, c)
		return nil, fmt.Errorf("create waiting room: %w", err)
	}
	m.metrics.RoomCreated()
	m.log.Debug().Str("room", token).Str("client_id", c.ID).Msg("waiting for partner")
	return room, nil
}

// reconcile resolves the race where two arrivals both found nothing to
// claim and each created a room. The newer room is abandoned and its
// owner goes back to claiming. A nil assignment means retry.
func (m *Matchmaker) reconcile(ctx context.Context, c *Client, room *store.Room) (*Assignment, error) {
	oldest, err := m.store.FindOldestWaiting(ctx)
	switch {
	case errors.Is(err, store.ErrRoomNotFound):
		return m.settle(ctx, c, room.Token)
	case err != nil:
		return nil, fmt.Errorf("find waiting room: %w", err)
	case oldest.Token == room.Token:
		return &Assignment{Room: room, Role: RoleA}, nil
	}

	abandoned, err := m.store.AbandonWaiting(ctx, room.Token)
	if err != nil {
		return nil, fmt.Errorf("abandon waiting room: %w", err)
	}
	if !abandoned {
		return m.settle(ctx, c, room.Token)
	}
	m.registry.Leave(ctx, room.Token, c)
	m.log.Debug().Str("room", room.Token).Str("older", oldest.Token).Msg("abandoned newer waiting room")
	return nil, nil
}

// settle inspects our own room after it may have left the waiting state.
func (m *Matchmaker) settle(ctx context.Context, c *Client, token string) (*Assignment, error) {
	room, err := m.store.GetRoom(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("reload room: %w", err)
	}
	switch room.Status() {
	case store.RoomStatusWaiting, store.RoomStatusActive:
		// When active, the claimant has already announced the pairing.
		return &Assignment{Room: room, Role: RoleA}, nil
	default:
		m.registry.Leave(ctx, token, c)
		return nil, ErrRoomLost
	}
}
