package core

import (
	"context"
	"sync"
)

// EnvelopeKind tells subscribers what to do with an envelope.
type EnvelopeKind string

const (
	// EnvelopeDeliver fans an event out to the room's members.
	EnvelopeDeliver EnvelopeKind = "deliver"
	// EnvelopeClose force-closes the room's ordinary members and evicts observers.
	EnvelopeClose EnvelopeKind = "close"
)

// Envelope is the unit published on a Bus.
type Envelope struct {
	Room    string       `json:"room"`
	Kind    EnvelopeKind `json:"kind"`
	Event   *Event       `json:"event,omitempty"`
	Exclude string       `json:"exclude,omitempty"` // client ID that must not receive Event
	Reason  string       `json:"reason,omitempty"`
}

// Bus carries room envelopes to every server instance and tracks which
// ordinary clients are online anywhere.
type Bus interface {
	// Publish sends env to all subscribers, including the local one.
	Publish(ctx context.Context, env Envelope) error
	// Subscribe registers deliver for every published envelope. It returns
	// once the subscription is established.
	Subscribe(ctx context.Context, deliver func(Envelope)) error

	Track(ctx context.Context, clientID string) error
	Untrack(ctx context.Context, clientID string) error
	IsOnline(ctx context.Context, clientID string) (bool, error)

	Close() error
}

// LocalBus is an in-process Bus. Publish delivers synchronously.
type LocalBus struct {
	mu       sync.RWMutex
	handlers []func(Envelope)
	online   map[string]struct{}
}

// NewLocalBus creates an in-process bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{online: make(map[string]struct{})}
}

func (b *LocalBus) Publish(_ context.Context, env Envelope) error {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, h := range handlers {
		h(env)
	}
	return nil
}

func (b *LocalBus) Subscribe(_ context.Context, deliver func(Envelope)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, deliver)
	return nil
}

func (b *LocalBus) Track(_ context.Context, clientID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.online[clientID] = struct{}{}
	return nil
}

func (b *LocalBus) Untrack(_ context.Context, clientID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.online, clientID)
	return nil
}

func (b *LocalBus) IsOnline(_ context.Context, clientID string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.online[clientID]
	return ok, nil
}

func (b *LocalBus) Close() error {
	return nil
}
