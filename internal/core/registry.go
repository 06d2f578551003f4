package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/strangerchat-server/internal/metrics"
)

// Registry maps room tokens to the local clients subscribed to them and
// routes room traffic through a Bus.
type Registry struct {
	bus     Bus
	log     *zerolog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	groups map[string]*group
}

// NewRegistry subscribes a registry to bus.
func NewRegistry(ctx context.Context, bus Bus, logger *zerolog.Logger, m *metrics.Metrics) (*Registry, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	r := &Registry{
		bus:     bus,
		log:     logger,
		metrics: m,
		groups:  make(map[string]*group),
	}
	if err := bus.Subscribe(ctx, r.dispatch); err != nil {
		return nil, fmt.Errorf("subscribe to bus: %w", err)
	}
	return r, nil
}

// Join adds a client to a room's group.
func (r *Registry) Join(_ context.Context, token string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[token]
	if !ok {
		g = newGroup(token)
		r.groups[token] = g
	}
	g.add(c)
}

// Leave removes a client from a room's group. Unknown rooms are ignored.
func (r *Registry) Leave(_ context.Context, token string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[token]
	if !ok {
		return
	}
	if g.remove(c) {
		delete(r.groups, token)
	}
}

// SendToRoom fans event out to every member of the room on every instance.
// exclude, when non-nil, does not receive it.
func (r *Registry) SendToRoom(ctx context.Context, token string, event *Event, exclude *Client) error {
	env := Envelope{Room: token, Kind: EnvelopeDeliver, Event: event}
	if exclude != nil {
		env.Exclude = exclude.ID
	}
	if err := r.bus.Publish(ctx, env); err != nil {
		return fmt.Errorf("publish to room %s: %w", token, err)
	}
	return nil
}

// CloseRoom force-closes the room's ordinary members and evicts admin
// observers without closing their control socket.
func (r *Registry) CloseRoom(ctx context.Context, token, reason string) error {
	if err := r.bus.Publish(ctx, Envelope{Room: token, Kind: EnvelopeClose, Reason: reason}); err != nil {
		return fmt.Errorf("publish close for room %s: %w", token, err)
	}
	return nil
}

// SetOnline marks an ordinary client as reachable.
func (r *Registry) SetOnline(ctx context.Context, c *Client) error {
	return r.bus.Track(ctx, c.ID)
}

// SetOffline clears the client's presence.
func (r *Registry) SetOffline(ctx context.Context, c *Client) error {
	return r.bus.Untrack(ctx, c.ID)
}

// IsOnline reports whether the client with the given ID is connected anywhere.
func (r *Registry) IsOnline(ctx context.Context, clientID string) (bool, error) {
	return r.bus.IsOnline(ctx, clientID)
}

// Members returns the number of local members of a room.
func (r *Registry) Members(token string) int {
	r.mu.Lock()
	g, ok := r.groups[token]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	return g.size()
}

func (r *Registry) lookup(token string) *group {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.groups[token]
}

func (r *Registry) dispatch(env Envelope) {
	switch env.Kind {
	case EnvelopeDeliver:
		g := r.lookup(env.Room)
		if g == nil || env.Event == nil {
			return
		}
		for _, c := range g.deliver(env.Event, env.Exclude) {
			r.metrics.DeliveryFailure()
			r.log.Warn().Str("room", env.Room).Str("client_id", c.ID).Msg("evicting unreachable member")
			c.Close("delivery failure")
		}
	case EnvelopeClose:
		r.mu.Lock()
		g, ok := r.groups[env.Room]
		delete(r.groups, env.Room)
		r.mu.Unlock()
		if !ok {
			return
		}
		for _, c := range g.drain() {
			if c.Admin {
				continue
			}
			c.Close(env.Reason)
		}
	default:
		r.log.Warn().Str("room", env.Room).Str("kind", string(env.Kind)).Msg("unknown envelope kind")
	}
}
