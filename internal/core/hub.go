package core

import (
	"github.com/rs/zerolog"

	"github.com/vovakirdan/strangerchat-server/internal/metrics"
	"github.com/vovakirdan/strangerchat-server/internal/store"
)

// Options tunes the hub.
type Options struct {
	// ClaimAttempts bounds the matchmaker's retry loops.
	ClaimAttempts int
	// AdminEcho delivers an operator's injected message back to the operator.
	AdminEcho bool
}

// Hub wires the store, the broadcast registry and the matchmaker together
// and hands out per-connection sessions.
type Hub struct {
	store      store.Store
	registry   *Registry
	matchmaker *Matchmaker
	opts       Options
	log        *zerolog.Logger
	metrics    *metrics.Metrics
}

// NewHub creates a new chat hub instance.
func NewHub(st store.Store, registry *Registry, opts Options, logger *zerolog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		store:      st,
		registry:   registry,
		matchmaker: NewMatchmaker(st, registry, opts.ClaimAttempts, logger, m),
		opts:       opts,
		log:        logger,
		metrics:    m,
	}
}

// Registry exposes the broadcast registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Store exposes the room store.
func (h *Hub) Store() store.Store { return h.store }

// NewSession prepares a session for an ordinary participant.
func (h *Hub) NewSession(c *Client) *Session {
	return &Session{
		hub:    h,
		client: c,
		log:    h.log.With().Str("client_id", c.ID).Logger(),
	}
}

// NewAdminSession prepares a session for an operator.
func (h *Hub) NewAdminSession(c *Client, operator string) *AdminSession {
	return &AdminSession{
		hub:      h,
		client:   c,
		operator: operator,
		log:      h.log.With().Str("client_id", c.ID).Str("operator", operator).Logger(),
	}
}
